package weather

import (
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

type conditions struct {
	Main        string `json:"main"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

type mainInfo struct {
	Temp      float64 `json:"temp"`
	FeelsLike float64 `json:"feels_like"`
	TempMin   float64 `json:"temp_min"`
	TempMax   float64 `json:"temp_max"`
	Humidity  int     `json:"humidity"`
	Pressure  int     `json:"pressure"`
}

type currentResponse struct {
	Name    string       `json:"name"`
	Main    mainInfo     `json:"main"`
	Weather []conditions `json:"weather"`
	Wind    struct {
		Speed float64 `json:"speed"`
		Deg   float64 `json:"deg"`
	} `json:"wind"`
	Clouds struct {
		All int `json:"all"`
	} `json:"clouds"`
	Visibility *int `json:"visibility"`
	Sys        struct {
		Country string `json:"country"`
		Sunrise int64  `json:"sunrise"`
		Sunset  int64  `json:"sunset"`
	} `json:"sys"`
	// Shift in seconds from UTC
	Timezone int `json:"timezone"`
}

type forecastItem struct {
	Dt      int64        `json:"dt"`
	Main    mainInfo     `json:"main"`
	Weather []conditions `json:"weather"`
}

type forecastResponse struct {
	List []forecastItem `json:"list"`
	City struct {
		Name     string `json:"name"`
		Timezone int    `json:"timezone"`
	} `json:"city"`
}

type units struct {
	temp  string
	speed string
}

func unitsFor(system string) units {
	switch system {
	case "imperial":
		return units{temp: "°F", speed: "mph"}
	case "standard":
		return units{temp: "K", speed: "m/s"}
	default:
		return units{temp: "°C", speed: "m/s"}
	}
}

// celsius converts a reading in the configured unit system for the advice table
func (u units) celsius(t float64) float64 {
	switch u.temp {
	case "°F":
		return (t - 32) * 5 / 9
	case "K":
		return t - 273.15
	default:
		return t
	}
}

func (u units) format(t float64) string {
	return fmt.Sprintf("%.1f%s", t, u.temp)
}

var iconEmoji = map[string]string{
	"01d": "☀️",
	"01n": "🌙",
	"02d": "🌤️",
	"02n": "🌙☁️",
	"03d": "☁️",
	"03n": "☁️",
	"04d": "☁️☁️",
	"04n": "☁️☁️",
	"09d": "🌧️",
	"09n": "🌧️",
	"10d": "🌦️",
	"10n": "🌧️🌙",
	"11d": "⛈️",
	"11n": "⛈️",
	"13d": "❄️",
	"13n": "❄️",
	"50d": "🌫️",
	"50n": "🌫️",
}

// Emoji returns the pictogram for an OpenWeather icon code
func Emoji(icon string) string {
	if e, ok := iconEmoji[icon]; ok {
		return e
	}
	return "🌡️"
}

var compass = [8]string{
	"northerly", "north-easterly", "easterly", "south-easterly",
	"southerly", "south-westerly", "westerly", "north-westerly",
}

// WindDirection names the 8-point compass sector a wind comes from
func WindDirection(deg float64) string {
	d := math.Mod(deg+22.5, 360)
	if d < 0 {
		d += 360
	}
	return compass[int(d/45)%8]
}

// ClothingAdvice suggests what to wear for a temperature in °C and an
// OpenWeather condition group such as "Rain" or "Snow".
func ClothingAdvice(celsius float64, group string) string {
	wet := group == "Rain" || group == "Drizzle" || group == "Thunderstorm"

	switch {
	case celsius < -25:
		return "🥶 Extremely cold! Layer up: thermal underwear, a warm sweater, a down jacket, insulated trousers, hat, scarf, mittens and winter boots."
	case celsius < -15:
		return "❄️ Very cold. Wear a winter jacket, insulated trousers, several layers, a warm hat, scarf, gloves and winter boots."
	case celsius < -5:
		return "🧣 Cold. A winter jacket, warm sweater, hat, gloves and scarf are a must."
	case celsius < 5:
		if wet {
			return "🌧️ Cold and wet. Wear a warm waterproof jacket with a hood, gloves and waterproof shoes. Take an umbrella."
		}
		if group == "Snow" {
			return "🌨️ Cold and snowy. A warm jacket, hat, gloves and boots with a good grip."
		}
		return "🧥 Chilly. A warm jacket, a sweater or hoodie, a light hat and gloves."
	case celsius < 10:
		if wet {
			return "🌂 Cool and rainy. A waterproof jacket or raincoat, an umbrella and waterproof shoes."
		}
		return "🧶 Cool. A light jacket or thick top with jeans. Take an extra layer for the evening."
	case celsius < 15:
		if wet {
			return "☔ Mild but rainy. Take an umbrella and a light waterproof jacket."
		}
		return "👕 Mild. A light jacket or cardigan is enough."
	case celsius < 20:
		if wet {
			return "🌦️ Warm with showers. A t-shirt, a light rain jacket and an umbrella."
		}
		return "👚 Warm. A t-shirt or shirt; take a light layer for the evening."
	case celsius < 25:
		if wet {
			return "🌤️ Quite warm but rainy. Light clothes and an umbrella."
		}
		return "👗 Quite warm. Light clothes: t-shirt, shorts or a skirt."
	case celsius < 30:
		if wet {
			return "🌞 Hot with rain. Light breathable clothes and an umbrella."
		}
		return "☀️ Hot. Light natural fabrics, a hat and sunscreen."
	default:
		if wet {
			return "🔥 Very hot, rain possible. Minimal light clothing and an umbrella for sun or rain."
		}
		return "🔥 Very hot! Minimal light-coloured clothing, a hat and sunscreen. Drink plenty of water and stay in the shade."
	}
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

func clock(unix int64, shift int) string {
	return time.Unix(unix, 0).UTC().Add(time.Duration(shift) * time.Second).Format("15:04")
}

// todayOutline picks the first morning (06-11), day (12-17) and evening
// (18-23) reading in the city's local time.
func todayOutline(fc *forecastResponse, u units) string {
	var morning, day, evening *float64
	for i := range fc.List {
		item := &fc.List[i]
		hour := time.Unix(item.Dt, 0).UTC().Add(time.Duration(fc.City.Timezone) * time.Second).Hour()
		t := item.Main.Temp
		switch {
		case hour >= 6 && hour < 12 && morning == nil:
			morning = &t
		case hour >= 12 && hour < 18 && day == nil:
			day = &t
		case hour >= 18 && evening == nil:
			evening = &t
		}
		if morning != nil && day != nil && evening != nil {
			break
		}
	}

	slot := func(t *float64) string {
		if t == nil {
			return "n/a"
		}
		return u.format(*t)
	}
	return fmt.Sprintf("🕒 Today: morning %s, day %s, evening %s", slot(morning), slot(day), slot(evening))
}

func formatCurrent(cur *currentResponse, today *forecastResponse, u units) string {
	w := cur.Weather[0]

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", Emoji(w.Icon), capitalize(w.Description))
	if cur.Name != "" {
		fmt.Fprintf(&b, "📍 %s\n", cur.Name)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "🌡 Temperature: %s (feels like %s)\n", u.format(cur.Main.Temp), u.format(cur.Main.FeelsLike))
	if today != nil && len(today.List) > 0 {
		b.WriteString(todayOutline(today, u) + "\n")
	}
	fmt.Fprintf(&b, "🔸 Min: %s, max: %s\n", u.format(cur.Main.TempMin), u.format(cur.Main.TempMax))
	fmt.Fprintf(&b, "💧 Humidity: %d%%\n", cur.Main.Humidity)
	fmt.Fprintf(&b, "🍃 Wind: %.1f %s, %s\n", cur.Wind.Speed, u.speed, WindDirection(cur.Wind.Deg))
	fmt.Fprintf(&b, "☁️ Clouds: %d%%\n", cur.Clouds.All)
	if cur.Visibility != nil {
		fmt.Fprintf(&b, "👁 Visibility: %d km\n", *cur.Visibility/1000)
	}
	if cur.Sys.Sunrise != 0 && cur.Sys.Sunset != 0 {
		fmt.Fprintf(&b, "🌅 Sunrise: %s\n", clock(cur.Sys.Sunrise, cur.Timezone))
		fmt.Fprintf(&b, "🌇 Sunset: %s\n", clock(cur.Sys.Sunset, cur.Timezone))
	}
	b.WriteString("\n")
	b.WriteString("Advice: " + ClothingAdvice(u.celsius(cur.Main.Temp), w.Main))

	return b.String()
}

type dailySummary struct {
	date         time.Time
	min, max     float64
	descriptions []string
}

// formatForecast groups 3-hour slots by local calendar day
func formatForecast(fc *forecastResponse, u units) string {
	if len(fc.List) == 0 {
		return "No forecast data available."
	}

	shift := time.Duration(fc.City.Timezone) * time.Second
	days := make(map[string]*dailySummary)
	var order []string

	for _, item := range fc.List {
		local := time.Unix(item.Dt, 0).UTC().Add(shift)
		key := local.Format("2006-01-02")

		d, ok := days[key]
		if !ok {
			d = &dailySummary{date: local, min: math.Inf(1), max: math.Inf(-1)}
			days[key] = d
			order = append(order, key)
		}
		d.min = math.Min(d.min, item.Main.TempMin)
		d.max = math.Max(d.max, item.Main.TempMax)
		if len(item.Weather) > 0 {
			desc := capitalize(item.Weather[0].Description)
			if !slices.Contains(d.descriptions, desc) {
				d.descriptions = append(d.descriptions, desc)
			}
		}
	}
	sort.Strings(order)

	var b strings.Builder
	if fc.City.Name != "" {
		fmt.Fprintf(&b, "📍 %s\n\n", fc.City.Name)
	}
	for i, key := range order {
		d := days[key]
		sort.Strings(d.descriptions)
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s, %s\n", d.date.Weekday(), d.date.Format("02.01"))
		fmt.Fprintf(&b, "🌡 %s to %s\n", u.format(d.min), u.format(d.max))
		if len(d.descriptions) > 0 {
			fmt.Fprintf(&b, "🌤 %s\n", strings.Join(d.descriptions, ", "))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
