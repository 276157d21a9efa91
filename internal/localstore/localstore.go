// Package localstore persists the small amount of client-side state that must
// survive between views and runs: whether the user has shared their location,
// the ghost they picked, and the backend session cookies.
//
// [Store] layers typed accessors over a string key/value [KV]. [SQLite] is the
// on-disk backend; [Memory] is used in tests and when no storage path is
// configured.
package localstore

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/MrWong99/phantomlink/pkg/ghostapi"
)

// Keys used in the key/value space.
const (
	KeyLocationShared = "locationShared"
	KeySelectedGhost  = "selectedGhost"
	KeyCookies        = "cookies"
)

// KV is a string key/value store. Get reports ok=false for a missing key.
// Implementations must be safe for concurrent use.
type KV interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Store provides typed access to the persisted client state.
type Store struct {
	kv KV
}

// New wraps kv.
func New(kv KV) *Store {
	return &Store{kv: kv}
}

// Close releases the underlying store.
func (s *Store) Close() error { return s.kv.Close() }

// Ping checks that the backing store is usable. Backends without a health
// probe always pass.
func (s *Store) Ping(ctx context.Context) error {
	if p, ok := s.kv.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

// LocationShared reports whether the user has shared their location. A
// missing flag means false.
func (s *Store) LocationShared(ctx context.Context) (bool, error) {
	v, ok, err := s.kv.Get(ctx, KeyLocationShared)
	if err != nil {
		return false, fmt.Errorf("localstore: read %s: %w", KeyLocationShared, err)
	}
	return ok && v == "true", nil
}

// SetLocationShared records the location-shared flag.
func (s *Store) SetLocationShared(ctx context.Context, shared bool) error {
	v := "false"
	if shared {
		v = "true"
	}
	if err := s.kv.Set(ctx, KeyLocationShared, v); err != nil {
		return fmt.Errorf("localstore: write %s: %w", KeyLocationShared, err)
	}
	return nil
}

// SelectedGhost returns the last ghost the user picked, if any.
func (s *Store) SelectedGhost(ctx context.Context) (ghostapi.Ghost, bool, error) {
	v, ok, err := s.kv.Get(ctx, KeySelectedGhost)
	if err != nil {
		return ghostapi.Ghost{}, false, fmt.Errorf("localstore: read %s: %w", KeySelectedGhost, err)
	}
	if !ok {
		return ghostapi.Ghost{}, false, nil
	}
	var g ghostapi.Ghost
	if err := json.Unmarshal([]byte(v), &g); err != nil {
		return ghostapi.Ghost{}, false, fmt.Errorf("localstore: decode %s: %w", KeySelectedGhost, err)
	}
	return g, true, nil
}

// SetSelectedGhost stores g as the selected ghost.
func (s *Store) SetSelectedGhost(ctx context.Context, g ghostapi.Ghost) error {
	data, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("localstore: encode %s: %w", KeySelectedGhost, err)
	}
	if err := s.kv.Set(ctx, KeySelectedGhost, string(data)); err != nil {
		return fmt.Errorf("localstore: write %s: %w", KeySelectedGhost, err)
	}
	return nil
}

// ClearSelectedGhost forgets the selected ghost.
func (s *Store) ClearSelectedGhost(ctx context.Context) error {
	if err := s.kv.Delete(ctx, KeySelectedGhost); err != nil {
		return fmt.Errorf("localstore: delete %s: %w", KeySelectedGhost, err)
	}
	return nil
}

type storedCookie struct {
	Name    string    `json:"name"`
	Value   string    `json:"value"`
	Expires time.Time `json:"expires,omitzero"`
}

// Cookies returns the persisted session cookies.
func (s *Store) Cookies(ctx context.Context) ([]*http.Cookie, error) {
	v, ok, err := s.kv.Get(ctx, KeyCookies)
	if err != nil {
		return nil, fmt.Errorf("localstore: read %s: %w", KeyCookies, err)
	}
	if !ok {
		return nil, nil
	}
	var stored []storedCookie
	if err := json.Unmarshal([]byte(v), &stored); err != nil {
		return nil, fmt.Errorf("localstore: decode %s: %w", KeyCookies, err)
	}
	cookies := make([]*http.Cookie, 0, len(stored))
	for _, c := range stored {
		cookies = append(cookies, &http.Cookie{Name: c.Name, Value: c.Value, Path: "/", Expires: c.Expires})
	}
	return cookies, nil
}

// SaveCookies replaces the persisted session cookies. An empty slice clears
// them.
func (s *Store) SaveCookies(ctx context.Context, cookies []*http.Cookie) error {
	if len(cookies) == 0 {
		if err := s.kv.Delete(ctx, KeyCookies); err != nil {
			return fmt.Errorf("localstore: delete %s: %w", KeyCookies, err)
		}
		return nil
	}
	stored := make([]storedCookie, 0, len(cookies))
	for _, c := range cookies {
		stored = append(stored, storedCookie{Name: c.Name, Value: c.Value, Expires: c.Expires})
	}
	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("localstore: encode %s: %w", KeyCookies, err)
	}
	if err := s.kv.Set(ctx, KeyCookies, string(data)); err != nil {
		return fmt.Errorf("localstore: write %s: %w", KeyCookies, err)
	}
	return nil
}
