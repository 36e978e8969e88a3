package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/user/weather-bot-go/internal/metrics"
	"github.com/user/weather-bot-go/internal/model"
)

var (
	// ErrInvalidTime is returned when a record carries a delivery time that is not HH:MM
	ErrInvalidTime = errors.New("invalid delivery time")
	// ErrInvalidMode is returned for an unknown display mode
	ErrInvalidMode = errors.New("invalid display mode")
	// ErrInvalidPending is returned for an unknown pending-input state
	ErrInvalidPending = errors.New("invalid pending input")
)

// Store defines the subscriber operations used by the scheduler and the bot
type Store interface {
	Get(ctx context.Context, id int64) (model.Subscriber, bool)
	Put(ctx context.Context, sub model.Subscriber) error
	Update(ctx context.Context, id int64, fn func(sub *model.Subscriber) error) (model.Subscriber, error)
	All(ctx context.Context) []model.Subscriber

	// Health check
	Ping(ctx context.Context) error
	Close() error
}

// Backend persists the subscriber table.
// Save receives the changed record and the full table; implementations pick
// whichever they need and must not retain the slice.
type Backend interface {
	Load(ctx context.Context) ([]model.Subscriber, error)
	Save(ctx context.Context, changed model.Subscriber, all []model.Subscriber) error
	Ping(ctx context.Context) error
	Close() error
}

// SubscriberStore is the authoritative in-memory subscriber table.
// Every mutation is written through to the backend before the lock is released.
type SubscriberStore struct {
	mu      sync.RWMutex
	records []model.Subscriber
	index   map[int64]int
	backend Backend
}

// Open loads the table from the backend
func Open(ctx context.Context, backend Backend) (*SubscriberStore, error) {
	loaded, err := backend.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load subscribers: %w", err)
	}

	s := &SubscriberStore{
		records: make([]model.Subscriber, 0, len(loaded)),
		index:   make(map[int64]int, len(loaded)),
		backend: backend,
	}

	for _, sub := range loaded {
		if sub.DeliveryTime != "" && !model.ValidTime(sub.DeliveryTime) {
			log.Warn().
				Int64("chatID", sub.ID).
				Str("deliveryTime", sub.DeliveryTime).
				Msg("Dropping malformed delivery time from stored record")
			sub.DeliveryTime = ""
		}
		if !sub.Mode.Valid() {
			if sub.Mode != "" {
				log.Warn().Int64("chatID", sub.ID).Str("mode", string(sub.Mode)).Msg("Resetting unknown display mode")
			}
			sub.Mode = model.ModeStandard
		}
		if !sub.Pending.Valid() {
			log.Warn().Int64("chatID", sub.ID).Int("pending", int(sub.Pending)).Msg("Clearing unknown pending input")
			sub.Pending = model.PendingNone
		}
		s.upsertLocked(sub)
	}

	metrics.SetSubscribers(len(s.records))
	log.Info().Int("count", len(s.records)).Msg("Subscribers loaded")

	return s, nil
}

// Get returns a copy of the record for id
func (s *SubscriberStore) Get(ctx context.Context, id int64) (model.Subscriber, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.index[id]
	if !ok {
		return model.Subscriber{}, false
	}
	return s.records[i], true
}

// Put replaces or appends sub and persists the table
func (s *SubscriberStore) Put(ctx context.Context, sub model.Subscriber) error {
	if err := validate(&sub); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.upsertLocked(sub)
	s.persistLocked(ctx, sub)
	return nil
}

// Update applies fn to the record for id (or to a default record if none
// exists) and stores the result, all under the write lock.
// If fn returns an error nothing is written.
func (s *SubscriberStore) Update(ctx context.Context, id int64, fn func(sub *model.Subscriber) error) (model.Subscriber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := model.NewSubscriber(id)
	if i, ok := s.index[id]; ok {
		cur = s.records[i]
	}

	if err := fn(&cur); err != nil {
		return model.Subscriber{}, err
	}
	cur.ID = id

	if err := validate(&cur); err != nil {
		return model.Subscriber{}, err
	}

	s.upsertLocked(cur)
	s.persistLocked(ctx, cur)
	return cur, nil
}

// All returns a snapshot of every record in insertion order
func (s *SubscriberStore) All(ctx context.Context) []model.Subscriber {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Subscriber, len(s.records))
	copy(out, s.records)
	return out
}

// Len returns the number of records
func (s *SubscriberStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Ping checks backend connectivity
func (s *SubscriberStore) Ping(ctx context.Context) error {
	return s.backend.Ping(ctx)
}

// Close releases the backend
func (s *SubscriberStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend.Close()
}

func (s *SubscriberStore) upsertLocked(sub model.Subscriber) {
	if i, ok := s.index[sub.ID]; ok {
		s.records[i] = sub
		return
	}
	s.index[sub.ID] = len(s.records)
	s.records = append(s.records, sub)
}

// persistLocked writes through to the backend. Failures are logged only:
// the in-memory table stays authoritative until the next restart.
func (s *SubscriberStore) persistLocked(ctx context.Context, changed model.Subscriber) {
	metrics.SetSubscribers(len(s.records))

	if err := s.backend.Save(ctx, changed, s.records); err != nil {
		metrics.RecordError("persist")
		log.Error().
			Err(err).
			Int64("chatID", changed.ID).
			Msg("Failed to persist subscribers")
	}
}

func validate(sub *model.Subscriber) error {
	if sub.DeliveryTime != "" && !model.ValidTime(sub.DeliveryTime) {
		return fmt.Errorf("%w: %q", ErrInvalidTime, sub.DeliveryTime)
	}
	if sub.Mode == "" {
		sub.Mode = model.ModeStandard
	}
	if !sub.Mode.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidMode, sub.Mode)
	}
	if !sub.Pending.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidPending, int(sub.Pending))
	}
	return nil
}
