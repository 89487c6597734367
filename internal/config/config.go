package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
)

// Default configuration values
const (
	DefaultDomain = "localhost:3001"
	DefaultSTUN   = "stun:stun.l.google.com:19302,stun:stun1.l.google.com:19302,stun:stun2.l.google.com:19302,stun:stun3.l.google.com:19302,stun:stun4.l.google.com:19302"
)

// Config holds client configuration
type Config struct {
	// Domain is the relay and web app host, optionally with a port.
	Domain string

	// WebSocketURL is the relay endpoint, derived from Domain unless set.
	WebSocketURL string

	// ICE servers for WebRTC
	STUNServers []string
	TURNServer  string
	TURNUser    string
	TURNPass    string
	ForceRelay  bool

	// HistoryPath is the transfer history database. Empty disables history;
	// "off" on the command line or in WEBDROP_HISTORY selects that.
	HistoryPath string
}

// Options carries CLI flag overrides
type Options struct {
	Domain       string
	SignalingURL string
	STUNServer   string
	TURNServer   string
	TURNUser     string
	TURNPass     string
	ForceRelay   bool
	HistoryPath  string
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. Defaults - lowest priority
func Load(opts Options) (*Config, error) {
	domain := pick(opts.Domain, "DOMAIN", DefaultDomain)
	if strings.Contains(domain, "://") {
		return nil, fmt.Errorf("domain %q must not include a scheme", domain)
	}

	wsURL := pick(opts.SignalingURL, "SIGNALING_URL", "")
	if wsURL == "" {
		scheme := "wss"
		if isLocal(domain) {
			scheme = "ws"
		}
		wsURL = fmt.Sprintf("%s://%s/ws", scheme, domain)
	}

	stun := splitList(pick(opts.STUNServer, "STUN_SERVER", DefaultSTUN))

	historyPath := pick(opts.HistoryPath, "WEBDROP_HISTORY", "")
	switch historyPath {
	case "":
		historyPath = defaultHistoryPath()
	case "off":
		historyPath = ""
	}

	return &Config{
		Domain:       domain,
		WebSocketURL: wsURL,
		STUNServers:  stun,
		TURNServer:   pick(opts.TURNServer, "TURN_SERVER", ""),
		TURNUser:     pick(opts.TURNUser, "TURN_USERNAME", ""),
		TURNPass:     pick(opts.TURNPass, "TURN_PASSWORD", ""),
		ForceRelay:   opts.ForceRelay || os.Getenv("FORCE_RELAY") == "true",
		HistoryPath:  historyPath,
	}, nil
}

// pick returns flag, else the environment variable, else def.
func pick(flag, env, def string) string {
	if flag != "" {
		return flag
	}
	if v := os.Getenv(env); v != "" {
		return v
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func isLocal(domain string) bool {
	host := domain
	if h, _, err := net.SplitHostPort(domain); err == nil {
		host = h
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && (ip.IsLoopback() || ip.IsPrivate())
}

func defaultHistoryPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "webdrop", "history.db")
}

// GetRoomLink returns the web app URL for a room code
func (c *Config) GetRoomLink(code string) string {
	scheme := "https"
	if isLocal(c.Domain) {
		scheme = "http"
	}
	return fmt.Sprintf("%s://%s/room/%s", scheme, c.Domain, code)
}

// GetSTUNServers returns STUN server URLs
func (c *Config) GetSTUNServers() []string {
	return c.STUNServers
}

// GetTURNServers returns TURN server URLs if configured
func (c *Config) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	host := strings.TrimPrefix(strings.TrimPrefix(c.TURNServer, "turn:"), "turns:")
	return []string{
		fmt.Sprintf("turn:%s:3478?transport=udp", host),
		fmt.Sprintf("turn:%s:3478?transport=tcp", host),
		fmt.Sprintf("turns:%s:5349?transport=tcp", host),
	}
}

// GetTURNCredentials returns TURN username and password
func (c *Config) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}
