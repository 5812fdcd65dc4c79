// Package clientstore is the durable, process-wide key/value store used to
// correlate flows across restarts of the console and across browser tabs.
//
// Each key has one writer by convention: the linking flow writes the device
// code and the login flow clears it; the session provider owns the session
// token. Writes are last-write-wins with no merge logic.
package clientstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/refactorly/console/internal/model"
	"github.com/refactorly/console/internal/repository"
)

const (
	KeyDeviceCode   = "device_code"
	KeySessionToken = "session_token"

	handshakePrefix = "oauth_state:"

	// HandshakeTTL bounds how long a provider redirect may take. Older
	// handshakes are refused and swept.
	HandshakeTTL = 15 * time.Minute
)

// Store is the durable client store adapter.
type Store struct {
	entries repository.EntryRepository
	now     func() time.Time
}

func New(entries repository.EntryRepository) *Store {
	return &Store{entries: entries, now: time.Now}
}

// DeviceCode returns the pending device-linking code, or "" when none is pending.
func (s *Store) DeviceCode() (string, error) {
	return s.get(KeyDeviceCode)
}

// SetDeviceCode stores code as given. Codes are opaque, so only a blank one
// is refused.
func (s *Store) SetDeviceCode(code string) error {
	if strings.TrimSpace(code) == "" {
		return errors.New("device code is required")
	}
	return s.put(KeyDeviceCode, code)
}

func (s *Store) ClearDeviceCode() error {
	return s.delete(KeyDeviceCode)
}

// SessionToken returns the cached session credential, or "" when none is cached.
func (s *Store) SessionToken() (string, error) {
	return s.get(KeySessionToken)
}

func (s *Store) SetSessionToken(token string) error {
	if token == "" {
		return errors.New("session token is required")
	}
	return s.put(KeySessionToken, token)
}

// ClearSession removes the session-scoped keys. The device code survives a
// logout so a linkage started before it can still be resumed.
func (s *Store) ClearSession() error {
	return s.delete(KeySessionToken)
}

// ClearSessionIf removes the session token only while it still equals
// token, so a credential written by a concurrent login survives cleanup of
// the one it replaced.
func (s *Store) ClearSessionIf(token string) error {
	if token == "" {
		return nil
	}
	_, err := s.entries.DeleteIf(KeySessionToken, token)
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", KeySessionToken, err)
	}
	return nil
}

// SaveHandshake records an in-flight provider redirect under its state.
// Abandoned handshakes past HandshakeTTL are swept on the way.
func (s *Store) SaveHandshake(state string, h model.Handshake) error {
	if state == "" || h.Verifier == "" {
		return errors.New("handshake state and verifier are required")
	}

	swept, err := s.SweepHandshakes()
	if err != nil {
		slog.Warn("failed to sweep expired oauth handshakes", "error", err)
	} else if swept > 0 {
		slog.Debug("swept expired oauth handshakes", "count", swept)
	}

	raw, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("failed to encode handshake: %w", err)
	}
	return s.put(handshakePrefix+state, string(raw))
}

// SweepHandshakes deletes handshakes older than HandshakeTTL and returns how
// many it removed. An entry rewritten since it was listed is left alone.
func (s *Store) SweepHandshakes() (int, error) {
	entries, err := s.entries.List()
	if err != nil {
		return 0, fmt.Errorf("failed to list entries: %w", err)
	}

	cutoff := s.now().Add(-HandshakeTTL)
	swept := 0
	for _, e := range entries {
		if !strings.HasPrefix(e.Key, handshakePrefix) || !e.UpdatedAt.Before(cutoff) {
			continue
		}
		deleted, err := s.entries.DeleteIf(e.Key, e.Value)
		if err != nil {
			return swept, fmt.Errorf("failed to delete %s: %w", e.Key, err)
		}
		if deleted {
			swept++
		}
	}
	return swept, nil
}

// TakeHandshake returns and forgets the handshake saved for state. ok is
// false when the state is unknown, already consumed or expired.
func (s *Store) TakeHandshake(state string) (h model.Handshake, ok bool, err error) {
	if state == "" {
		return h, false, nil
	}
	entry, err := s.entries.Take(handshakePrefix + state)
	if errors.Is(err, repository.ErrEntryNotFound) {
		return h, false, nil
	}
	if err != nil {
		return h, false, fmt.Errorf("failed to take handshake: %w", err)
	}

	if entry.UpdatedAt.Before(s.now().Add(-HandshakeTTL)) {
		slog.Info("refusing expired oauth handshake", "age", s.now().Sub(entry.UpdatedAt).Round(time.Second))
		return h, false, nil
	}

	err = json.Unmarshal([]byte(entry.Value), &h)
	if err != nil {
		return model.Handshake{}, false, fmt.Errorf("failed to decode handshake: %w", err)
	}
	if h.Verifier == "" {
		return model.Handshake{}, false, errors.New("handshake has no verifier")
	}
	return h, true, nil
}

// Listing is an entry as shown to an operator.
type Listing struct {
	Key       string
	Value     string
	UpdatedAt time.Time
}

// List returns every entry with credentials masked.
func (s *Store) List() ([]Listing, error) {
	entries, err := s.entries.List()
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}

	out := make([]Listing, 0, len(entries))
	for _, e := range entries {
		out = append(out, Listing{Key: e.Key, Value: Mask(e.Key, e.Value), UpdatedAt: e.UpdatedAt})
	}
	return out, nil
}

// Forget removes a single key, whatever flow owns it.
func (s *Store) Forget(key string) error {
	if key == "" {
		return errors.New("key is required")
	}
	return s.delete(key)
}

// Mask hides the session token and handshake verifiers, keeping a short
// prefix so two values can still be told apart.
func Mask(key, value string) string {
	if key != KeySessionToken && !strings.HasPrefix(key, handshakePrefix) {
		return value
	}
	if len(value) <= 4 {
		return "****"
	}
	return value[:4] + "****"
}

func (s *Store) get(key string) (string, error) {
	entry, err := s.entries.ByKey(key)
	if errors.Is(err, repository.ErrEntryNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", key, err)
	}
	return entry.Value, nil
}

func (s *Store) put(key, value string) error {
	err := s.entries.Put(key, value)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

func (s *Store) delete(key string) error {
	err := s.entries.Delete(key)
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}
