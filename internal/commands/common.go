package commands

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/BioHazard786/webdrop/internal/config"
	"github.com/BioHazard786/webdrop/internal/history"
	"github.com/BioHazard786/webdrop/internal/session"
	"github.com/BioHazard786/webdrop/internal/transfer"
	"github.com/BioHazard786/webdrop/internal/ui"
)

// connFlags are the relay and ICE overrides shared by send and receive.
type connFlags struct {
	domain       string
	signalingURL string
	stun         string
	turn         string
	turnUser     string
	turnPass     string
	relay        bool
	history      string
}

func (f *connFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.domain, "domain", "", "Relay and web app domain")
	fs.StringVar(&f.signalingURL, "signaling-url", "", "Relay websocket URL (overrides --domain)")
	fs.StringVarP(&f.stun, "stun", "s", "", "Comma separated STUN servers")
	fs.StringVarP(&f.turn, "turn", "t", "", "TURN server host")
	fs.StringVar(&f.turnUser, "turn-user", "", "TURN username")
	fs.StringVar(&f.turnPass, "turn-pass", "", "TURN password")
	fs.BoolVarP(&f.relay, "relay", "r", false, "Force relay (TURN) mode")
	fs.StringVar(&f.history, "history", "", `History database path, or "off"`)
}

func (f *connFlags) load() (*config.Config, error) {
	cfg, err := config.Load(config.Options{
		Domain:       f.domain,
		SignalingURL: f.signalingURL,
		STUNServer:   f.stun,
		TURNServer:   f.turn,
		TURNUser:     f.turnUser,
		TURNPass:     f.turnPass,
		ForceRelay:   f.relay,
		HistoryPath:  f.history,
	})
	if err != nil {
		return nil, transfer.NewError("load config", err)
	}

	if cfg.ForceRelay && cfg.GetTURNServers() == nil {
		return nil, fmt.Errorf("cannot force relay mode without TURN server configured")
	}
	return cfg, nil
}

func sessionOptions(cfg *config.Config, log *slog.Logger) session.Options {
	return session.Options{
		ServerURL: cfg.WebSocketURL,
		Dialer:    transfer.NewICEDialer(cfg, log),
		Log:       log,
	}
}

// start connects s to the relay behind a spinner.
func start(ctx context.Context, s *session.Session) error {
	sp := ui.NewConnectionSpinner("Connecting to relay...").Start()
	err := s.Start(ctx)
	sp.Stop()
	return err
}

// follow mirrors session updates into view until done reports true, the
// session fails or ctx ends.
func follow(ctx context.Context, s *session.Session, view *ui.LiveView, done func(session.Snapshot) bool) (session.Snapshot, error) {
	for {
		select {
		case snap, ok := <-s.Updates():
			if !ok {
				return s.Snapshot(), transfer.NewError("session", transfer.ErrChannelClosed)
			}
			view.Update(toState(snap))
			if snap.Status == session.StatusError {
				return snap, snap.Err
			}
			if done(snap) {
				return snap, nil
			}
		case <-ctx.Done():
			return s.Snapshot(), ctx.Err()
		}
	}
}

func toState(snap session.Snapshot) ui.State {
	st := ui.State{
		Status: string(snap.Status),
		Peer:   snap.Peer.ClientType,
		Speed:  snap.Speed,
		Files: lo.Map(snap.Files, func(f session.FileProgress, _ int) ui.FileView {
			return ui.FileView{
				Name:     f.Metadata.Name,
				Size:     f.Metadata.Size,
				Progress: f.Progress,
				Status:   string(f.Status),
				Err:      f.Err,
			}
		}),
	}
	if snap.Err != nil {
		st.Err = snap.Err.Error()
	}
	return st
}

// summarize prints the totals of the completed files.
func summarize(title string, snap session.Snapshot, elapsed time.Duration) {
	done := lo.Filter(snap.Files, func(f session.FileProgress, _ int) bool {
		return f.Status == session.FileCompleted
	})
	status := "Complete"
	if len(done) < len(snap.Files) {
		status = fmt.Sprintf("%d of %d files failed", len(snap.Files)-len(done), len(snap.Files))
	}

	fmt.Println()
	fmt.Println(ui.SummaryTable(title, ui.TransferSummary{
		Status:   status,
		Files:    len(done),
		Bytes:    lo.SumBy(done, func(f session.FileProgress) int64 { return f.Metadata.Size }),
		Duration: elapsed,
	}))
}

// record appends the session's files to the history database. Failures
// are logged and otherwise ignored.
func record(cfg *config.Config, direction string, snap session.Snapshot, log *slog.Logger) {
	if cfg.HistoryPath == "" || len(snap.Files) == 0 {
		return
	}

	store, err := history.Open(cfg.HistoryPath)
	if err != nil {
		log.Warn("history unavailable", "path", cfg.HistoryPath, "err", err)
		return
	}
	defer store.Close()

	records := lo.Map(snap.Files, func(f session.FileProgress, _ int) history.Record {
		return history.Record{
			Direction: direction,
			RoomCode:  snap.RoomCode,
			PeerType:  snap.Peer.ClientType,
			FileName:  f.Metadata.Name,
			Size:      f.Metadata.Size,
			MimeType:  f.Metadata.Type,
			Status:    string(f.Status),
			SavedAs:   f.SavedAs,
			Error:     f.Err,
		}
	})
	if err := store.Add(records...); err != nil {
		log.Warn("history not written", "err", err)
	}
}
