// Package interaction implements the two-step conversations a subscriber
// uses to set a location or a delivery time.
//
// A bare command puts the subscriber into a pending state; the next free
// text message is then interpreted as the answer. Every transition is a
// single store.Update so concurrent messages from the same chat cannot
// interleave a read-modify-write.
package interaction

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/user/weather-bot-go/internal/model"
	"github.com/user/weather-bot-go/internal/store"
)

var (
	// ErrEmptyLocation is returned when a location argument is blank
	ErrEmptyLocation = errors.New("location is empty")
	// ErrInvalidTime is returned when a time argument is not HH:MM
	ErrInvalidTime = errors.New("time must be HH:MM")
)

// Result tells the caller which reply to send for a handled text
type Result int

const (
	// ResultReprompt means the input was rejected and the state is unchanged
	ResultReprompt Result = iota
	ResultLocationSet
	ResultTimeSet
)

func (r Result) String() string {
	switch r {
	case ResultLocationSet:
		return "location_set"
	case ResultTimeSet:
		return "time_set"
	default:
		return "reprompt"
	}
}

// Machine drives per-subscriber pending-input state over a store
type Machine struct {
	store store.Store
}

// New creates a state machine backed by s
func New(s store.Store) *Machine {
	return &Machine{store: s}
}

// Lookup returns the subscriber record, or the default one if none exists.
// It does not write.
func (m *Machine) Lookup(ctx context.Context, id int64) model.Subscriber {
	if sub, ok := m.store.Get(ctx, id); ok {
		return sub
	}
	return model.NewSubscriber(id)
}

// BeginLocation waits for the next text to be a location
func (m *Machine) BeginLocation(ctx context.Context, id int64) error {
	return m.setPending(ctx, id, model.PendingLocation)
}

// BeginTime waits for the next text to be a delivery time
func (m *Machine) BeginTime(ctx context.Context, id int64) error {
	return m.setPending(ctx, id, model.PendingTime)
}

func (m *Machine) setPending(ctx context.Context, id int64, state model.PendingInput) error {
	_, err := m.store.Update(ctx, id, func(sub *model.Subscriber) error {
		sub.Pending = state
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to enter %s: %w", state, err)
	}
	log.Debug().Int64("chatID", id).Str("state", state.String()).Msg("Awaiting input")
	return nil
}

// errNotPending aborts an Update when there is nothing to do
var errNotPending = errors.New("no pending input")

// errReprompt aborts an Update when the answer is rejected
var errReprompt = errors.New("reprompt")

// HandleText interprets free text as the answer to a pending question.
// handled is false when the subscriber is Idle; the caller then treats
// the text as a normal message.
func (m *Machine) HandleText(ctx context.Context, id int64, text string) (Result, bool, error) {
	value := strings.TrimSpace(text)
	var result Result

	_, err := m.store.Update(ctx, id, func(sub *model.Subscriber) error {
		switch sub.Pending {
		case model.PendingLocation:
			if value == "" {
				return errReprompt
			}
			sub.Location = value
			result = ResultLocationSet
		case model.PendingTime:
			if !model.ValidTime(value) {
				return errReprompt
			}
			sub.DeliveryTime = value
			result = ResultTimeSet
		default:
			return errNotPending
		}
		sub.Pending = model.PendingNone
		return nil
	})

	switch {
	case errors.Is(err, errNotPending):
		return ResultReprompt, false, nil
	case errors.Is(err, errReprompt):
		return ResultReprompt, true, nil
	case err != nil:
		return ResultReprompt, true, err
	}

	log.Info().Int64("chatID", id).Str("result", result.String()).Msg("Pending input completed")
	return result, true, nil
}

// SetLocation sets the location directly and clears any pending input
func (m *Machine) SetLocation(ctx context.Context, id int64, value string) (model.Subscriber, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return model.Subscriber{}, ErrEmptyLocation
	}
	return m.store.Update(ctx, id, func(sub *model.Subscriber) error {
		sub.Location = value
		sub.Pending = model.PendingNone
		return nil
	})
}

// SetTime sets the delivery time directly and clears any pending input
func (m *Machine) SetTime(ctx context.Context, id int64, value string) (model.Subscriber, error) {
	value = strings.TrimSpace(value)
	if !model.ValidTime(value) {
		return model.Subscriber{}, ErrInvalidTime
	}
	return m.store.Update(ctx, id, func(sub *model.Subscriber) error {
		sub.DeliveryTime = value
		sub.Pending = model.PendingNone
		return nil
	})
}

// SetMode changes the display mode and clears any pending input
func (m *Machine) SetMode(ctx context.Context, id int64, mode model.DisplayMode) (model.Subscriber, error) {
	return m.store.Update(ctx, id, func(sub *model.Subscriber) error {
		sub.Mode = mode
		sub.Pending = model.PendingNone
		return nil
	})
}

// Stop opts the subscriber out of every delivery by clearing location and time.
// The record itself is kept.
func (m *Machine) Stop(ctx context.Context, id int64) (model.Subscriber, error) {
	return m.store.Update(ctx, id, func(sub *model.Subscriber) error {
		sub.Location = ""
		sub.DeliveryTime = ""
		sub.Pending = model.PendingNone
		return nil
	})
}

// Reset is used by /start: it creates the record if needed, cancels any
// pending input and restores the standard display mode.
func (m *Machine) Reset(ctx context.Context, id int64) (model.Subscriber, error) {
	return m.SetMode(ctx, id, model.ModeStandard)
}
