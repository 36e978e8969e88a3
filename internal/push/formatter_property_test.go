package push

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/user/weather-bot-go/internal/model"
	"github.com/user/weather-bot-go/internal/weather"
)

const markdownSpecials = "\\_*[]()~`>#+-=|{}.!"

// unescape reverses EscapeMarkdown and reports whether every special
// character in s was escaped
func unescape(s string) (string, bool) {
	var b strings.Builder
	escaped := false
	for _, r := range s {
		switch {
		case escaped:
			b.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case strings.ContainsRune(markdownSpecials, r):
			return "", false
		default:
			b.WriteRune(r)
		}
	}
	return b.String(), !escaped
}

func fixedFormatter() *Formatter {
	return &Formatter{intn: func(n int) int { return 0 }}
}

func TestProperty_EscapeMarkdown(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("escaping leaves no bare special character and is reversible", prop.ForAll(
		func(text string) bool {
			plain, ok := unescape(EscapeMarkdown(text))
			return ok && plain == text
		},
		gen.AnyString(),
	))

	properties.Property("special-only input is fully escaped", prop.ForAll(
		func(picks []int) bool {
			var b strings.Builder
			for _, p := range picks {
				b.WriteByte(markdownSpecials[p])
			}
			text := b.String()
			return len(EscapeMarkdown(text)) == 2*len(text)
		},
		gen.SliceOf(gen.IntRange(0, len(markdownSpecials)-1)),
	))

	properties.TestingRun(t)
}

// The location and content survive formatting in every mode and occasion.
func TestProperty_NotificationCarriesContent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	occasions := []Occasion{OccasionPersonal, OccasionMidday, OccasionEvening}
	f := NewFormatter()

	properties.Property("notification contains escaped location and content", prop.ForAll(
		func(location, content string, occ int, affectionate bool, day int) bool {
			sub := model.NewSubscriber(1)
			sub.Location = location
			if affectionate {
				sub.Mode = model.ModeAffectionate
			}

			msg := f.Notification(sub, occasions[occ], time.Weekday(day), content)
			if !strings.Contains(msg, EscapeMarkdown(location)) || !strings.Contains(msg, EscapeMarkdown(content)) {
				return false
			}
			_, ok := unescapeOutsideBold(msg)
			return ok
		},
		gen.AlphaString().SuchThat(func(s string) bool { return s != "" }),
		gen.AnyString(),
		gen.IntRange(0, 2),
		gen.Bool(),
		gen.IntRange(0, 6),
	))

	properties.TestingRun(t)
}

// unescapeOutsideBold drops the bold markers the formatter adds itself and
// then checks the rest is properly escaped
func unescapeOutsideBold(msg string) (string, bool) {
	var b strings.Builder
	escaped := false
	for _, r := range msg {
		if !escaped && r == '*' {
			continue
		}
		escaped = !escaped && r == '\\'
		b.WriteRune(r)
	}
	return unescape(b.String())
}

func TestFormatter_StandardTitles(t *testing.T) {
	f := fixedFormatter()
	sub := model.NewSubscriber(1)
	sub.Location = "Springfield"

	tests := []struct {
		occasion Occasion
		want     string
	}{
		{OccasionPersonal, "🌅 *Morning weather report*\n\n🌦 *Weather in Springfield*\n\nSunny"},
		{OccasionMidday, "🕛 *Midday weather report*\n\n🌦 *Weather in Springfield*\n\nSunny"},
		{OccasionEvening, "🌆 *Evening weather report*\n\n🌦 *Weather in Springfield*\n\nSunny"},
	}

	for _, tt := range tests {
		t.Run(string(tt.occasion), func(t *testing.T) {
			if got := f.Notification(sub, tt.occasion, time.Monday, "Sunny"); got != tt.want {
				t.Errorf("Notification() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatter_Affectionate(t *testing.T) {
	f := fixedFormatter()
	sub := model.NewSubscriber(1)
	sub.Location = "Springfield"
	sub.Mode = model.ModeAffectionate

	personal := f.Notification(sub, OccasionPersonal, time.Friday, "Sunny")
	if !strings.HasPrefix(personal, "*Rise and shine\\!* 🎉\n") {
		t.Errorf("personal message should open with the Friday morning greeting: %q", personal)
	}
	if !strings.Contains(personal, EscapeMarkdown(kindMessages[0])) {
		t.Error("personal message should contain a kind message")
	}
	if !strings.HasSuffix(personal, EscapeMarkdown(goodDayWishes[0])) {
		t.Error("personal message should end with a good-day wish")
	}

	evening := f.Notification(sub, OccasionEvening, time.Sunday, "Sunny")
	if !strings.HasPrefix(evening, "*Have a calm evening\\!* 🌠\n") {
		t.Errorf("evening message should open with the Sunday evening greeting: %q", evening)
	}
	if !strings.HasSuffix(evening, EscapeMarkdown(kindMessages[0])) {
		t.Error("broadcast message should end with the kind message, no wish")
	}
}

func TestGreeting_EveryDayHasOne(t *testing.T) {
	for _, occ := range []Occasion{OccasionPersonal, OccasionMidday, OccasionEvening} {
		seen := make(map[string]bool)
		for day := time.Sunday; day <= time.Saturday; day++ {
			g := Greeting(occ, day)
			if g == "" || strings.HasPrefix(g, "** ") {
				t.Errorf("missing greeting for %s on %s", occ, day)
			}
			seen[g] = true
		}
		if len(seen) != 7 {
			t.Errorf("%s greetings should differ per weekday, got %d distinct", occ, len(seen))
		}
	}
}

func TestFormatter_FetchErrorNotice(t *testing.T) {
	f := fixedFormatter()
	sub := model.NewSubscriber(1)
	sub.Location = "Atlantis"

	std := f.FetchErrorNotice(sub, weather.ErrCityNotFound)
	if !strings.HasPrefix(std, "❌ *Error*") || !strings.Contains(std, "Atlantis") {
		t.Errorf("unexpected standard notice: %q", std)
	}

	sub.Mode = model.ModeAffectionate
	cute := f.FetchErrorNotice(sub, errors.New("boom"))
	if !strings.HasPrefix(cute, "Good morning\\!") || !strings.Contains(cute, "unavailable") {
		t.Errorf("unexpected affectionate notice: %q", cute)
	}
	if strings.Contains(cute, "boom") {
		t.Error("raw errors are not shown to users")
	}
}

func TestFormatter_Replies(t *testing.T) {
	f := fixedFormatter()
	sub := model.NewSubscriber(1)
	sub.Location = "St. Louis"

	if got := f.WeatherReply(sub, "Rain."); got != f.Weather("St. Louis", "Rain.") {
		t.Errorf("standard reply should be the plain weather block: %q", got)
	}
	if got := f.ForecastReply(sub, "Dry."); !strings.HasPrefix(got, "📅 *Forecast for St\\. Louis*") {
		t.Errorf("unexpected standard forecast: %q", got)
	}

	sub.Mode = model.ModeAffectionate
	if got := f.WeatherReply(sub, "Rain."); !strings.HasPrefix(got, "💖 *Just for you, the weather in St\\. Louis*") || !strings.HasSuffix(got, "Rain\\.") {
		t.Errorf("unexpected affectionate reply: %q", got)
	}
	if got := f.ForecastReply(sub, "Dry."); !strings.HasPrefix(got, "✨ *Forecast for St\\. Louis*") {
		t.Errorf("unexpected affectionate forecast: %q", got)
	}
}

func TestFormatter_PersonalFollowsDeliveryHour(t *testing.T) {
	f := fixedFormatter()

	tests := []struct {
		at       string
		title    string
		greeting Occasion
		hello    string
	}{
		{"", "🌅 *Morning weather report*", OccasionPersonal, "Good morning\\!"},
		{"07:30", "🌅 *Morning weather report*", OccasionPersonal, "Good morning\\!"},
		{"13:00", "🕛 *Midday weather report*", OccasionMidday, "Good afternoon\\!"},
		{"21:00", "🌆 *Evening weather report*", OccasionEvening, "Good evening\\!"},
		{"02:15", "🌆 *Evening weather report*", OccasionEvening, "Good evening\\!"},
	}

	for _, tt := range tests {
		t.Run(tt.at, func(t *testing.T) {
			sub := model.NewSubscriber(1)
			sub.Location = "Springfield"
			sub.DeliveryTime = tt.at

			std := f.Notification(sub, OccasionPersonal, time.Tuesday, "Sunny")
			if !strings.HasPrefix(std, tt.title+"\n") {
				t.Errorf("standard heading for %q: %q", tt.at, std)
			}

			sub.Mode = model.ModeAffectionate
			cute := f.Notification(sub, OccasionPersonal, time.Tuesday, "Sunny")
			if !strings.HasPrefix(cute, Greeting(tt.greeting, time.Tuesday)) {
				t.Errorf("greeting for %q: %q", tt.at, cute)
			}
			if !strings.HasSuffix(cute, EscapeMarkdown(goodDayWishes[0])) {
				t.Error("personal deliveries keep the good-day wish")
			}

			notice := f.FetchErrorNotice(sub, errors.New("down"))
			if !strings.HasPrefix(notice, tt.hello) {
				t.Errorf("notice for %q: %q", tt.at, notice)
			}
		})
	}

	// Broadcasts keep their own heading whatever the personal time is
	sub := model.NewSubscriber(1)
	sub.Location = "Springfield"
	sub.DeliveryTime = "21:00"
	if got := f.Notification(sub, OccasionMidday, time.Tuesday, "Sunny"); !strings.HasPrefix(got, "🕛 *Midday weather report*") {
		t.Errorf("broadcast heading changed: %q", got)
	}
}
