package push

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/user/weather-bot-go/internal/metrics"
	"github.com/user/weather-bot-go/internal/model"
	"github.com/user/weather-bot-go/internal/weather"
	"golang.org/x/time/rate"
)

// ErrNoLocation is reported when a delivery targets a subscriber without a location
var ErrNoLocation = errors.New("subscriber has no location")

// Sender defines the interface for sending Telegram messages
type Sender interface {
	SendMessage(chatID int64, text string) error
	SendMarkdown(chatID int64, text string) error
}

// Outcome is the result of one delivery attempt.
// Status is one of the metrics.Status* values.
type Outcome struct {
	Status string
	Err    error
}

// Delivered reports whether the weather message reached the channel
func (o Outcome) Delivered() bool {
	return o.Status == metrics.StatusSuccess
}

// Dispatcher fetches content for a subscriber and sends it
type Dispatcher struct {
	provider     weather.ContentProvider
	sender       Sender
	formatter    *Formatter
	fetchTimeout time.Duration
	limiter      *rate.Limiter // Telegram rate limit: max 30 msg/sec globally
}

// NewDispatcher creates a new dispatcher
func NewDispatcher(provider weather.ContentProvider, sender Sender, formatter *Formatter, fetchTimeout time.Duration) *Dispatcher {
	if formatter == nil {
		formatter = NewFormatter()
	}
	return &Dispatcher{
		provider:     provider,
		sender:       sender,
		formatter:    formatter,
		fetchTimeout: fetchTimeout,
		// Telegram rate limit: 30 messages per second globally
		limiter: rate.NewLimiter(rate.Limit(30), 1),
	}
}

// Deliver sends one notification to sub. It never panics or returns an
// error to the caller: every failure is logged, counted and reported in
// the Outcome.
//
// A personal delivery whose fetch fails sends an error notice instead.
// A broadcast delivery whose fetch fails is skipped silently.
func (d *Dispatcher) Deliver(ctx context.Context, sub model.Subscriber, occasion Occasion, day time.Weekday) Outcome {
	if !sub.HasLocation() {
		log.Warn().
			Int64("chatID", sub.ID).
			Str("occasion", string(occasion)).
			Msg("Subscriber has no location, skipping")
		return d.finish(occasion, Outcome{Status: metrics.StatusSkipped, Err: ErrNoLocation})
	}

	content, err := d.fetch(ctx, sub.Location)
	if err != nil {
		log.Warn().
			Err(err).
			Int64("chatID", sub.ID).
			Str("location", sub.Location).
			Str("occasion", string(occasion)).
			Msg("Failed to fetch weather")

		if occasion.IsBroadcast() {
			return d.finish(occasion, Outcome{Status: metrics.StatusSkipped, Err: err})
		}

		notice := d.formatter.FetchErrorNotice(sub, err)
		if sendErr := d.send(ctx, sub.ID, notice); sendErr != nil {
			log.Error().Err(sendErr).Int64("chatID", sub.ID).Msg("Failed to send error notice")
			return d.finish(occasion, Outcome{Status: metrics.StatusFailed, Err: sendErr})
		}
		return d.finish(occasion, Outcome{Status: metrics.StatusNotice, Err: err})
	}

	message := d.formatter.Notification(sub, occasion, day, content)
	if err := d.send(ctx, sub.ID, message); err != nil {
		log.Error().
			Err(err).
			Int64("chatID", sub.ID).
			Str("occasion", string(occasion)).
			Msg("Failed to send notification")
		return d.finish(occasion, Outcome{Status: metrics.StatusFailed, Err: err})
	}

	log.Info().
		Int64("chatID", sub.ID).
		Str("occasion", string(occasion)).
		Msg("Notification sent")
	return d.finish(occasion, Outcome{Status: metrics.StatusSuccess})
}

type fetchResult struct {
	content string
	err     error
}

// fetch calls the provider under the per-fetch timeout. The call is
// abandoned when the timeout fires even if the provider ignores ctx.
func (d *Dispatcher) fetch(ctx context.Context, location string) (string, error) {
	if d.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.fetchTimeout)
		defer cancel()
	}

	ch := make(chan fetchResult, 1)
	go func() {
		content, err := d.provider.Fetch(ctx, location)
		ch <- fetchResult{content: content, err: err}
	}()

	select {
	case r := <-ch:
		return r.content, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (d *Dispatcher) send(ctx context.Context, chatID int64, text string) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter error: %w", err)
	}
	return d.sender.SendMarkdown(chatID, text)
}

func (d *Dispatcher) finish(occasion Occasion, o Outcome) Outcome {
	metrics.RecordDelivery(string(occasion), o.Status)
	return o
}
