// Package roomcode generates and parses the short codes that identify a room
// on the relay.
package roomcode

import (
	"crypto/rand"
	"errors"
	"math/big"
	"net/url"
	"strings"
)

// Alphabet excludes characters that are easy to confuse when read aloud or
// typed (0/O, 1/I).
const Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// Length is the number of characters in a room code.
const Length = 6

var ErrInvalidCode = errors.New("invalid room code")

// Generate returns a new random room code.
func Generate() string {
	var b strings.Builder
	b.Grow(Length)
	for i := 0; i < Length; i++ {
		b.WriteByte(Alphabet[randomIndex(len(Alphabet))])
	}
	return b.String()
}

// randomIndex returns a cryptographically secure random index for a slice of given length.
func randomIndex(max int) int {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		panic("roomcode: failed to generate random index: " + err.Error())
	}
	return int(n.Int64())
}

// Normalize trims and upper-cases user input so "abcd23 " matches "ABCD23".
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Valid reports whether code is a well-formed room code.
func Valid(code string) bool {
	if len(code) != Length {
		return false
	}
	for i := 0; i < len(code); i++ {
		if strings.IndexByte(Alphabet, code[i]) < 0 {
			return false
		}
	}
	return true
}

// Parse accepts either a bare code or a room link such as
// https://webdrop.example/room/ABCD23 and returns the normalized code.
func Parse(input string) (string, error) {
	input = strings.TrimSpace(input)
	if strings.Contains(input, "/") {
		input = fromURL(input)
	}

	code := Normalize(input)
	if !Valid(code) {
		return "", ErrInvalidCode
	}
	return code, nil
}

func fromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Path == "" {
		return raw
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i < len(parts)-1; i++ {
		if parts[i] == "room" || parts[i] == "r" {
			return parts[i+1]
		}
	}
	return parts[len(parts)-1]
}
