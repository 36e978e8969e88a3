package push

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/user/weather-bot-go/internal/metrics"
	"github.com/user/weather-bot-go/internal/model"
	"github.com/user/weather-bot-go/internal/weather"
)

// SentMessage is one message captured by MockSender
type SentMessage struct {
	ChatID   int64
	Text     string
	Markdown bool
}

// MockSender implements Sender for testing
type MockSender struct {
	mu      sync.Mutex
	sent    []SentMessage
	failFor map[int64]error
}

func NewMockSender() *MockSender {
	return &MockSender{failFor: make(map[int64]error)}
}

func (m *MockSender) SendMessage(chatID int64, text string) error {
	return m.record(chatID, text, false)
}

func (m *MockSender) SendMarkdown(chatID int64, text string) error {
	return m.record(chatID, text, true)
}

func (m *MockSender) record(chatID int64, text string, markdown bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failFor[chatID]; err != nil {
		return err
	}
	m.sent = append(m.sent, SentMessage{ChatID: chatID, Text: text, Markdown: markdown})
	return nil
}

func (m *MockSender) Sent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentMessage, len(m.sent))
	copy(out, m.sent)
	return out
}

var _ Sender = (*MockSender)(nil)

// MockProvider implements weather.ContentProvider for testing
type MockProvider struct {
	mu      sync.Mutex
	content map[string]string
	errs    map[string]error
	delay   time.Duration
	calls   []string
}

func NewMockProvider() *MockProvider {
	return &MockProvider{content: make(map[string]string), errs: make(map[string]error)}
}

func (m *MockProvider) Fetch(ctx context.Context, location string) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, location)
	delay := m.delay
	content, err := m.content[location], m.errs[location]
	m.mu.Unlock()

	if delay > 0 {
		// Ignores ctx on purpose to check the dispatcher enforces the timeout
		time.Sleep(delay)
	}
	if err != nil {
		return "", err
	}
	if content == "" {
		content = "Sunny in " + location
	}
	return content, nil
}

func (m *MockProvider) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

var _ weather.ContentProvider = (*MockProvider)(nil)

func located(id int64, location string) model.Subscriber {
	sub := model.NewSubscriber(id)
	sub.Location = location
	sub.DeliveryTime = "08:00"
	return sub
}

func TestDispatcher_DeliverPersonal(t *testing.T) {
	provider := NewMockProvider()
	sender := NewMockSender()
	d := NewDispatcher(provider, sender, fixedFormatter(), time.Second)

	out := d.Deliver(context.Background(), located(1, "Springfield"), OccasionPersonal, time.Monday)

	assert.Equal(t, metrics.StatusSuccess, out.Status)
	assert.True(t, out.Delivered())
	assert.NoError(t, out.Err)

	sent := sender.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, int64(1), sent[0].ChatID)
	assert.True(t, sent[0].Markdown)
	assert.Contains(t, sent[0].Text, "Sunny in Springfield")
	assert.Equal(t, []string{"Springfield"}, provider.Calls())
}

func TestDispatcher_PersonalFetchFailureSendsNotice(t *testing.T) {
	provider := NewMockProvider()
	provider.errs["Atlantis"] = weather.ErrCityNotFound
	sender := NewMockSender()
	d := NewDispatcher(provider, sender, fixedFormatter(), time.Second)

	out := d.Deliver(context.Background(), located(7, "Atlantis"), OccasionPersonal, time.Monday)

	assert.Equal(t, metrics.StatusNotice, out.Status)
	assert.ErrorIs(t, out.Err, weather.ErrCityNotFound)
	assert.False(t, out.Delivered())

	sent := sender.Sent()
	require.Len(t, sent, 1)
	assert.True(t, strings.HasPrefix(sent[0].Text, "❌ *Error*"))
}

func TestDispatcher_BroadcastFetchFailureIsSilent(t *testing.T) {
	provider := NewMockProvider()
	provider.errs["Atlantis"] = errors.New("upstream down")
	sender := NewMockSender()
	d := NewDispatcher(provider, sender, fixedFormatter(), time.Second)

	for _, occ := range []Occasion{OccasionMidday, OccasionEvening} {
		out := d.Deliver(context.Background(), located(7, "Atlantis"), occ, time.Monday)
		assert.Equal(t, metrics.StatusSkipped, out.Status)
		assert.Error(t, out.Err)
	}
	assert.Empty(t, sender.Sent())
}

func TestDispatcher_NoLocationIsSkipped(t *testing.T) {
	provider := NewMockProvider()
	sender := NewMockSender()
	d := NewDispatcher(provider, sender, fixedFormatter(), time.Second)

	out := d.Deliver(context.Background(), model.NewSubscriber(3), OccasionPersonal, time.Monday)

	assert.Equal(t, metrics.StatusSkipped, out.Status)
	assert.ErrorIs(t, out.Err, ErrNoLocation)
	assert.Empty(t, provider.Calls())
	assert.Empty(t, sender.Sent())
}

func TestDispatcher_SendFailureIsReported(t *testing.T) {
	provider := NewMockProvider()
	sender := NewMockSender()
	sender.failFor[9] = errors.New("bot was blocked by the user")
	d := NewDispatcher(provider, sender, fixedFormatter(), time.Second)

	out := d.Deliver(context.Background(), located(9, "Springfield"), OccasionMidday, time.Monday)

	assert.Equal(t, metrics.StatusFailed, out.Status)
	assert.EqualError(t, out.Err, "bot was blocked by the user")
}

func TestDispatcher_FetchTimeout(t *testing.T) {
	provider := NewMockProvider()
	provider.delay = 500 * time.Millisecond
	sender := NewMockSender()
	d := NewDispatcher(provider, sender, fixedFormatter(), 20*time.Millisecond)

	start := time.Now()
	out := d.Deliver(context.Background(), located(5, "Springfield"), OccasionPersonal, time.Monday)

	assert.Less(t, time.Since(start), 400*time.Millisecond, "the timeout bounds the fetch")
	assert.Equal(t, metrics.StatusNotice, out.Status)
	assert.ErrorIs(t, out.Err, context.DeadlineExceeded)

	sent := sender.Sent()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Text, "did not answer in time")
}

func TestDispatcher_AffectionateMode(t *testing.T) {
	provider := NewMockProvider()
	sender := NewMockSender()
	d := NewDispatcher(provider, sender, fixedFormatter(), time.Second)

	sub := located(2, "Springfield")
	sub.Mode = model.ModeAffectionate
	out := d.Deliver(context.Background(), sub, OccasionMidday, time.Wednesday)
	require.True(t, out.Delivered())

	sent := sender.Sent()
	require.Len(t, sent, 1)
	assert.True(t, strings.HasPrefix(sent[0].Text, Greeting(OccasionMidday, time.Wednesday)))
}
