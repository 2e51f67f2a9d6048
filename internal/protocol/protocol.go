// Package protocol defines the plain-text payload conventions shared by the
// relay server and its command-line client.
//
// There is no envelope: every frame is a UTF-8 string, and the few control
// payloads below are recognised by exact match or by prefix.
package protocol

import (
	"fmt"
	"strings"
	"time"
)

// Control payloads.
const (
	Ping     = "ping"
	Pong     = "pong"
	Shutdown = "shutdown"

	// Greeting is sent by the ping client shortly after its handshake.
	Greeting = "HI"

	joinPrefix    = "join"
	joinSeparator = ":"
	welcomePrefix = "Welcome "
)

// Variant selects which private-reply rule the relay applies and which
// handshake the client sends.
type Variant string

const (
	// VariantPing answers "ping" with "pong".
	VariantPing Variant = "ping"
	// VariantJoin answers "join:<name>" with "Welcome <name>".
	VariantJoin Variant = "join"
)

// ParseVariant converts a configuration string into a Variant.
func ParseVariant(s string) (Variant, error) {
	switch v := Variant(strings.ToLower(strings.TrimSpace(s))); v {
	case VariantPing, VariantJoin:
		return v, nil
	default:
		return "", fmt.Errorf("unknown protocol variant %q", s)
	}
}

// DrainTimeout is the default grace period between the shutdown notice and
// the listener abort.
func (v Variant) DrainTimeout() time.Duration {
	if v == VariantJoin {
		return 2 * time.Second
	}
	return 5 * time.Second
}

// Handshake returns the first payload a client sends once connected.
func (v Variant) Handshake(username string) string {
	if v == VariantJoin {
		return JoinPayload(username)
	}
	return Ping
}

// Reply reports whether payload is answered privately to its sender instead
// of being broadcast, and with what.
func (v Variant) Reply(payload string) (string, bool) {
	switch v {
	case VariantPing:
		if payload == Ping {
			return Pong, true
		}
	case VariantJoin:
		if IsJoin(payload) {
			return Welcome(JoinName(payload)), true
		}
	}
	return "", false
}

// IsJoin matches loosely: anything starting with "join" is a join request,
// including "join" alone and "joinery".
func IsJoin(payload string) bool {
	return strings.HasPrefix(payload, joinPrefix)
}

// JoinName returns everything after the first colon, or "" if there is none.
func JoinName(payload string) string {
	_, name, found := strings.Cut(payload, joinSeparator)
	if !found {
		return ""
	}
	return name
}

// JoinPayload builds the join announcement for name.
func JoinPayload(name string) string {
	return joinPrefix + joinSeparator + name
}

// Welcome builds the join acknowledgment for name.
func Welcome(name string) string {
	return welcomePrefix + name
}

// ChatLine formats a line typed by username for broadcast.
func ChatLine(username, text string) string {
	return username + ": " + text
}

// IsSelfEcho reports whether payload looks like it was sent by username.
// It is a prefix match, so it also hides other users' lines that happen to
// start with the same text.
func IsSelfEcho(payload, username string) bool {
	if username == "" {
		return false
	}
	return strings.HasPrefix(payload, username)
}
