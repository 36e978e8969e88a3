package push

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/user/weather-bot-go/internal/model"
	"github.com/user/weather-bot-go/internal/weather"
)

// Occasion says why a notification is sent
type Occasion string

const (
	OccasionPersonal Occasion = "personal"
	OccasionMidday   Occasion = "midday"
	OccasionEvening  Occasion = "evening"
)

// IsBroadcast reports whether the occasion is a fixed-time broadcast
func (o Occasion) IsBroadcast() bool {
	return o == OccasionMidday || o == OccasionEvening
}

// EscapeMarkdown escapes special characters for Telegram MarkdownV2 format
func EscapeMarkdown(text string) string {
	// Characters that need to be escaped in MarkdownV2:
	// \ _ * [ ] ( ) ~ ` > # + - = | { } . !
	// The backslash goes first so inserted escapes are not doubled.
	specialChars := []string{"\\", "_", "*", "[", "]", "(", ")", "~", "`", ">", "#", "+", "-", "=", "|", "{", "}", ".", "!"}
	result := text
	for _, char := range specialChars {
		result = strings.ReplaceAll(result, char, "\\"+char)
	}
	return result
}

type greeting struct {
	head  string
	emoji string
	body  string
}

func (g greeting) render() string {
	return fmt.Sprintf("*%s* %s\n%s", EscapeMarkdown(g.head), g.emoji, EscapeMarkdown(g.body))
}

var morningGreetings = map[time.Weekday]greeting{
	time.Monday:    {"Good morning, dear!", "✨", "A new week begins and I know you'll handle everything!"},
	time.Tuesday:   {"Morning, sunshine!", "🌸", "It's Tuesday already, a day for moving mountains!"},
	time.Wednesday: {"Good morning, sunshine!", "💫", "Midweek is the time for little joys!"},
	time.Thursday:  {"Good morning, gorgeous!", "🌿", "Thursday is almost Friday. You're doing great!"},
	time.Friday:    {"Rise and shine!", "🎉", "Friday is here and the weekend is ahead!"},
	time.Saturday:  {"Good morning!", "☀️", "Finally Saturday! Time to rest and do nice things!"},
	time.Sunday:    {"Morning, sweetheart!", "🌤️", "Sunday is the perfect day to treat yourself!"},
}

var middayGreetings = map[time.Weekday]greeting{
	time.Monday:    {"Good afternoon!", "🌤️", "I hope the first half of Monday went well!"},
	time.Tuesday:   {"Good afternoon!", "☀️", "Tuesday is in full swing! How is your day going?"},
	time.Wednesday: {"Good afternoon!", "🌈", "Midweek calls for a short break and a tasty lunch!"},
	time.Thursday:  {"Have a lovely day!", "🌻", "Thursday, almost Friday! Hang in there!"},
	time.Friday:    {"Good afternoon!", "🎉", "It's Friday! The weekend is close!"},
	time.Saturday:  {"Have a wonderful day!", "🍹", "I hope your Saturday is full of nice moments!"},
	time.Sunday:    {"Good afternoon!", "🌞", "Sunday is for resting and getting ready for the week!"},
}

var eveningGreetings = map[time.Weekday]greeting{
	time.Monday:    {"Good evening!", "🌙", "The first day of the week is almost done! Well done!"},
	time.Tuesday:   {"Good evening!", "🌆", "How was your Tuesday? Productive and full of smiles, I hope!"},
	time.Wednesday: {"Good evening!", "✨", "Midweek is behind you! The weekend is on its way!"},
	time.Thursday:  {"Have a pleasant evening!", "🌟", "Tomorrow is Friday! Not long now!"},
	time.Friday:    {"Have a lovely evening!", "🥂", "The weekend has started! Time to relax!"},
	time.Saturday:  {"Good evening!", "🎭", "I hope Saturday was full of good things!"},
	time.Sunday:    {"Have a calm evening!", "🌠", "A new week is ahead! Time to get in the mood!"},
}

var kindMessages = []string{
	"You are wonderful! Don't forget to smile today! 💕",
	"Your smile can brighten even the cloudiest day! 💖",
	"Don't let anyone spoil your mood today. You deserve only happiness! ✨",
	"Today is a great day to start something new! I believe in you! 🌟",
	"Remember that you are special and amazing! 💫",
	"Even an ordinary day has moments of happiness! 🌸",
	"Your energy lifts everyone around you! Keep it up! 💝",
	"I hope pleasant surprises are waiting for you today! 🎁",
	"May this day bring you lots of joy and success! 🌈",
	"You are stronger than you think! Today is full of new chances! ⭐",
}

var goodDayWishes = []string{
	"Have a wonderful day! 💫",
	"May only good things surround you today! 🌈",
	"Have a good and productive day! ✨",
	"I wish you a day full of pleasant moments! 💖",
	"May your day be as lovely as you are! 🌸",
	"I'm sure everything will work out today! 💪",
	"Good luck today and keep it light! 🍀",
	"May every hour of today bring something good! ⏰",
	"Have a great mood all day long! 🌞",
	"May everything go to plan today! 📝",
}

var standardTitles = map[Occasion]string{
	OccasionPersonal: "🌅 *Morning weather report*",
	OccasionMidday:   "🕛 *Midday weather report*",
	OccasionEvening:  "🌆 *Evening weather report*",
}

// Formatter renders notification text in Telegram MarkdownV2
type Formatter struct {
	// intn returns a number in [0, n); replaced in tests
	intn func(n int) int
}

// NewFormatter creates a formatter that picks messages at random
func NewFormatter() *Formatter {
	return &Formatter{intn: rand.IntN}
}

// Greeting returns the affectionate greeting for an occasion and weekday
func Greeting(occasion Occasion, day time.Weekday) string {
	table := morningGreetings
	switch occasion {
	case OccasionMidday:
		table = middayGreetings
	case OccasionEvening:
		table = eveningGreetings
	}
	return table[day].render()
}

// Title returns the standard-mode heading for an occasion
func Title(occasion Occasion) string {
	if t, ok := standardTitles[occasion]; ok {
		return t
	}
	return standardTitles[OccasionPersonal]
}

// daypart returns the occasion whose heading and greetings suit the
// notification. Personal deliveries follow the hour of the delivery time:
// 05-11 morning, 12-17 midday, otherwise evening. Without a valid time
// they default to morning.
func daypart(sub model.Subscriber, occasion Occasion) Occasion {
	if occasion.IsBroadcast() || !model.ValidTime(sub.DeliveryTime) {
		return occasion
	}
	hour, _ := strconv.Atoi(sub.DeliveryTime[:2])
	switch {
	case hour >= 5 && hour < 12:
		return OccasionPersonal
	case hour >= 12 && hour < 18:
		return OccasionMidday
	default:
		return OccasionEvening
	}
}

var noticeSalutations = map[Occasion]string{
	OccasionPersonal: "Good morning\\!",
	OccasionMidday:   "Good afternoon\\!",
	OccasionEvening:  "Good evening\\!",
}

func (f *Formatter) pick(list []string) string {
	return list[f.intn(len(list))]
}

// Weather renders a bare weather block for a location
func (f *Formatter) Weather(location, content string) string {
	return fmt.Sprintf("🌦 *Weather in %s*\n\n%s", EscapeMarkdown(location), EscapeMarkdown(content))
}

// Forecast renders a multi-day outlook for a location
func (f *Formatter) Forecast(location, content string) string {
	return fmt.Sprintf("📅 *Forecast for %s*\n\n%s", EscapeMarkdown(location), EscapeMarkdown(content))
}

// WeatherReply renders an on-demand /weather answer in the subscriber's mode
func (f *Formatter) WeatherReply(sub model.Subscriber, content string) string {
	if sub.Mode == model.ModeAffectionate {
		return fmt.Sprintf("💖 *Just for you, the weather in %s*\n\n%s", EscapeMarkdown(sub.Location), EscapeMarkdown(content))
	}
	return f.Weather(sub.Location, content)
}

// ForecastReply renders an on-demand /forecast answer in the subscriber's mode
func (f *Formatter) ForecastReply(sub model.Subscriber, content string) string {
	if sub.Mode == model.ModeAffectionate {
		return fmt.Sprintf("✨ *Forecast for %s*\n\nI put together a detailed outlook just for you:\n\n%s", EscapeMarkdown(sub.Location), EscapeMarkdown(content))
	}
	return f.Forecast(sub.Location, content)
}

// Notification renders a scheduled message for sub.
// Standard mode gets a plain heading matching the time of day. Affectionate mode gets a weekday
// greeting and a kind message, and on personal deliveries a good-day wish.
func (f *Formatter) Notification(sub model.Subscriber, occasion Occasion, day time.Weekday, content string) string {
	body := f.Weather(sub.Location, content)

	part := daypart(sub, occasion)
	if sub.Mode != model.ModeAffectionate {
		return Title(part) + "\n\n" + body
	}

	parts := []string{
		Greeting(part, day),
		body,
		EscapeMarkdown(f.pick(kindMessages)),
	}
	if !occasion.IsBroadcast() {
		parts = append(parts, EscapeMarkdown(f.pick(goodDayWishes)))
	}
	return strings.Join(parts, "\n\n")
}

// FetchErrorNotice renders the message sent when a personal delivery
// could not get weather data
func (f *Formatter) FetchErrorNotice(sub model.Subscriber, err error) string {
	reason := EscapeMarkdown(DescribeError(sub.Location, err))
	if sub.Mode == model.ModeAffectionate {
		return noticeSalutations[daypart(sub, OccasionPersonal)] + " Sorry, I couldn't get the weather for you: " + reason + " 💔"
	}
	return "❌ *Error*: could not get weather data: " + reason
}

// DescribeError turns a provider error into a short user-facing reason
func DescribeError(location string, err error) string {
	switch {
	case errors.Is(err, weather.ErrCityNotFound):
		return fmt.Sprintf("city %q was not found, check it with /city", location)
	case errors.Is(err, context.DeadlineExceeded):
		return "the weather service did not answer in time"
	default:
		return "the weather service is unavailable right now"
	}
}
