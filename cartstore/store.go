package cartstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/susutoys/storefront/cart"
)

var ErrMalformedEntry = errors.New("cartstore: malformed cart entry")

// KeyPrefix matches the storefront's local storage key.
const KeyPrefix = "susu_cart"

func cartKey(visitor string) string { return KeyPrefix + ":" + visitor }

// Store reads and writes the authoritative cart of each visitor.
type Store struct {
	kv    KV
	log   zerolog.Logger
	sfg   singleflight.Group
	locks sync.Map // map[string]*sync.Mutex
}

func New(kv KV, log zerolog.Logger) *Store {
	return &Store{kv: kv, log: log.With().Str("component", "cartstore").Logger()}
}

// Load returns the visitor's cart. A value that does not decode or validate
// is treated as an empty cart and logged.
func (s *Store) Load(ctx context.Context, visitor string) ([]cart.Entry, error) {
	v, err, _ := s.sfg.Do(visitor, func() (any, error) {
		return s.read(ctx, visitor)
	})
	if err != nil {
		return nil, err
	}
	shared := v.([]cart.Entry)
	out := make([]cart.Entry, len(shared))
	copy(out, shared)
	return out, nil
}

// Add merges e into the visitor's cart: an existing product gets its quantity
// raised, a new one is appended.
func (s *Store) Add(ctx context.Context, visitor string, e cart.Entry) ([]cart.Entry, error) {
	if e.ID <= 0 || e.Price < 0 {
		return nil, fmt.Errorf("%w: id=%d price=%d", ErrMalformedEntry, e.ID, e.Price)
	}
	if e.Quantity <= 0 {
		e.Quantity = 1
	}

	unlock := s.lockFor(visitor)
	defer unlock()

	entries, err := s.read(ctx, visitor)
	if err != nil {
		return nil, err
	}
	merged := false
	for i := range entries {
		if entries[i].ID == e.ID {
			entries[i].Quantity += e.Quantity
			merged = true
			break
		}
	}
	if !merged {
		entries = append(entries, e)
	}
	if err := s.write(ctx, visitor, entries); err != nil {
		return nil, err
	}
	s.log.Debug().Str("visitor", visitor).Int64("product", e.ID).Bool("merged", merged).Msg("cart entry added")
	return entries, nil
}

func (s *Store) Clear(ctx context.Context, visitor string) error {
	unlock := s.lockFor(visitor)
	defer unlock()
	if err := s.kv.Delete(ctx, cartKey(visitor)); err != nil {
		return fmt.Errorf("cartstore: clear %s: %w", visitor, err)
	}
	return nil
}

func (s *Store) read(ctx context.Context, visitor string) ([]cart.Entry, error) {
	raw, err := s.kv.Get(ctx, cartKey(visitor))
	if errors.Is(err, ErrNotFound) {
		return []cart.Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cartstore: load %s: %w", visitor, err)
	}
	entries, err := Decode(raw)
	if err != nil {
		s.log.Warn().Err(err).Str("visitor", visitor).Msg("persisted cart unreadable, using empty cart")
		return []cart.Entry{}, nil
	}
	return entries, nil
}

func (s *Store) write(ctx context.Context, visitor string, entries []cart.Entry) error {
	b, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("cartstore: encode: %w", err)
	}
	if err := s.kv.Set(ctx, cartKey(visitor), b); err != nil {
		return fmt.Errorf("cartstore: save %s: %w", visitor, err)
	}
	return nil
}

// lockFor serializes writers of one visitor's cart inside this process.
func (s *Store) lockFor(visitor string) func() {
	v, _ := s.locks.LoadOrStore(visitor, &sync.Mutex{})
	m := v.(*sync.Mutex)
	m.Lock()
	return m.Unlock
}

// Decode parses a persisted cart value. Empty input is an empty cart.
func Decode(raw []byte) ([]cart.Entry, error) {
	if len(raw) == 0 {
		return []cart.Entry{}, nil
	}
	var entries []cart.Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEntry, err)
	}
	if entries == nil {
		return []cart.Entry{}, nil
	}
	seen := make(map[int64]struct{}, len(entries))
	for i, e := range entries {
		switch {
		case e.ID <= 0:
			return nil, fmt.Errorf("%w: entry %d has id %d", ErrMalformedEntry, i, e.ID)
		case e.Price < 0:
			return nil, fmt.Errorf("%w: entry %d has negative price", ErrMalformedEntry, i)
		case e.Quantity < 1:
			return nil, fmt.Errorf("%w: entry %d has quantity %d", ErrMalformedEntry, i, e.Quantity)
		}
		if _, dup := seen[e.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate product %d", ErrMalformedEntry, e.ID)
		}
		seen[e.ID] = struct{}{}
	}
	return entries, nil
}
