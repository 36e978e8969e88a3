package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
	"github.com/user/weather-bot-go/internal/interaction"
	"github.com/user/weather-bot-go/internal/metrics"
	"github.com/user/weather-bot-go/internal/model"
	"github.com/user/weather-bot-go/internal/push"
	"github.com/user/weather-bot-go/internal/weather"
)

// Command is one entry of the bot's command menu
type Command struct {
	Name        string
	Description string
}

// Commands is the menu published with SetCommands
var Commands = []Command{
	{"start", "Start the bot"},
	{"help", "Show available commands"},
	{"city", "Set your city"},
	{"time", "Set the daily delivery time (HH:MM)"},
	{"weather", "Current weather"},
	{"forecast", "Five-day forecast"},
	{"stop", "Stop daily notifications"},
	{"status", "Show your settings"},
}

// WeatherSource serves the on-demand weather commands
type WeatherSource interface {
	weather.ContentProvider
	weather.ForecastProvider
}

// typingSender is implemented by senders that can show a chat action
type typingSender interface {
	SendTyping(chatID int64) error
}

// Handler handles Telegram bot commands and pending-input answers
type Handler struct {
	machine   *interaction.Machine
	weather   WeatherSource
	formatter *push.Formatter
	telegram  push.Sender
	timeout   time.Duration
	startTime time.Time
}

// NewHandler creates a new command handler.
// timeout bounds each on-demand weather lookup.
func NewHandler(machine *interaction.Machine, source WeatherSource, formatter *push.Formatter, telegram push.Sender, timeout time.Duration) *Handler {
	if formatter == nil {
		formatter = push.NewFormatter()
	}
	return &Handler{
		machine:   machine,
		weather:   source,
		formatter: formatter,
		telegram:  telegram,
		timeout:   timeout,
		startTime: time.Now(),
	}
}

// HandleUpdate processes an incoming Telegram update
func (h *Handler) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.Message == nil || update.Message.Chat == nil {
		return
	}

	msg := update.Message
	if msg.IsCommand() {
		h.handleCommand(ctx, msg)
		return
	}

	if msg.Text != "" {
		h.handleText(ctx, msg.Chat.ID, msg.Text)
	}
}

// handleCommand routes commands to their respective handlers
func (h *Handler) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	command := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())

	log.Info().
		Int64("chatID", chatID).
		Str("command", command).
		Str("args", args).
		Msg("Received command")

	switch command {
	case "start":
		h.handleStart(ctx, chatID)
	case "help":
		h.handleHelp(ctx, chatID)
	case "city":
		h.handleCity(ctx, chatID, args)
	case "time":
		h.handleTime(ctx, chatID, args)
	case "weather":
		h.handleWeather(ctx, chatID)
	case "forecast":
		h.handleForecast(ctx, chatID)
	case "cute":
		h.handleMode(ctx, chatID, model.ModeAffectionate)
	case "std":
		h.handleMode(ctx, chatID, model.ModeStandard)
	case "stop":
		h.handleStop(ctx, chatID)
	case "status":
		h.handleStatus(ctx, chatID)
	default:
		h.sendError(chatID, "Unknown command. Use /help to see available commands.")
	}
}

// handleText feeds free text to the pending-input state machine
func (h *Handler) handleText(ctx context.Context, chatID int64, text string) {
	result, handled, err := h.machine.HandleText(ctx, chatID, text)
	if err != nil {
		log.Error().Err(err).Int64("chatID", chatID).Msg("Failed to handle pending input")
		h.sendError(chatID, "Failed to save your settings. Please try again.")
		return
	}
	if !handled {
		h.send(chatID, "I only understand commands. Use /help to see the list.")
		return
	}

	sub := h.machine.Lookup(ctx, chatID)
	switch result {
	case interaction.ResultLocationSet:
		h.sendMarkdown(chatID, locationSetMessage(sub))
	case interaction.ResultTimeSet:
		h.sendMarkdown(chatID, timeSetMessage(sub))
	default:
		if sub.Pending == model.PendingTime {
			h.send(chatID, "⚠️ That is not a valid time. Send it as HH:MM, for example 08:00.")
		} else {
			h.send(chatID, "🚫 Please send the name of your city.")
		}
	}
}

// handleStart handles /start: resets the display mode and greets the user
func (h *Handler) handleStart(ctx context.Context, chatID int64) {
	if _, err := h.machine.Reset(ctx, chatID); err != nil {
		log.Error().Err(err).Int64("chatID", chatID).Msg("Failed to reset subscriber")
	}

	welcome := `📱 *Welcome to the weather bot\!*

Every day at the time you choose I will send you the weather for your city\.

*What I can do:*
• 🌦 Send a daily weather report for your city
• 🕒 Deliver it automatically at your chosen time
• 🔍 Show the weather on request at any time

*Getting started:*
1️⃣ Set your city with /city \[name\] \(for example: /city London\)
2️⃣ Set the delivery time with /time \[HH:MM\] \(for example: /time 08:00\)
3️⃣ Done\! The forecast will arrive on schedule

*Other commands:*
/weather \- current weather
/forecast \- five\-day forecast
/help \- list all commands`

	h.sendMarkdown(chatID, welcome)
	h.send(chatID, "👉 Start by setting your city:\n/city London\n(replace London with your city)")
}

// handleHelp handles /help
func (h *Handler) handleHelp(ctx context.Context, chatID int64) {
	header := "🌟 *Available commands:*"
	if h.machine.Lookup(ctx, chatID).Mode == model.ModeAffectionate {
		header = "✨ *Here is everything I can do for you:*"
	}

	body := `/start \- start the bot
/help \- show this message
/city \[name\] \- set your city \(for example: /city London\)
/time \[HH:MM\] \- set the daily delivery time \(for example: /time 08:00\)
/weather \- current weather
/forecast \- five\-day forecast
/stop \- stop daily notifications
/status \- show your settings`

	h.sendMarkdown(chatID, header+"\n\n"+body)
}

// handleCity handles /city. Without an argument it waits for the next message.
func (h *Handler) handleCity(ctx context.Context, chatID int64, args string) {
	if args == "" {
		if err := h.machine.BeginLocation(ctx, chatID); err != nil {
			log.Error().Err(err).Int64("chatID", chatID).Msg("Failed to await location")
			h.sendError(chatID, "Failed to save your settings. Please try again.")
			return
		}
		h.send(chatID, "🏙 Which city should I use? Send me its name.")
		return
	}

	sub, err := h.machine.SetLocation(ctx, chatID, args)
	if err != nil {
		log.Error().Err(err).Int64("chatID", chatID).Msg("Failed to set location")
		h.sendError(chatID, "Failed to save your city. Please try again.")
		return
	}

	log.Info().Int64("chatID", chatID).Str("location", sub.Location).Msg("Location set")
	h.sendMarkdown(chatID, locationSetMessage(sub))
}

// handleTime handles /time. Without an argument it waits for the next message.
func (h *Handler) handleTime(ctx context.Context, chatID int64, args string) {
	if args == "" {
		if err := h.machine.BeginTime(ctx, chatID); err != nil {
			log.Error().Err(err).Int64("chatID", chatID).Msg("Failed to await time")
			h.sendError(chatID, "Failed to save your settings. Please try again.")
			return
		}
		h.send(chatID, "⏰ What time should I send the weather? Reply with HH:MM, for example 08:00.")
		return
	}

	sub, err := h.machine.SetTime(ctx, chatID, args)
	if errors.Is(err, interaction.ErrInvalidTime) {
		log.Info().Int64("chatID", chatID).Str("time", args).Msg("Invalid time format")
		h.send(chatID, "⚠️ Invalid time format. Use HH:MM, for example: /time 08:00")
		return
	}
	if err != nil {
		log.Error().Err(err).Int64("chatID", chatID).Msg("Failed to set delivery time")
		h.sendError(chatID, "Failed to save your time. Please try again.")
		return
	}

	log.Info().Int64("chatID", chatID).Str("time", sub.DeliveryTime).Msg("Delivery time set")
	h.sendMarkdown(chatID, timeSetMessage(sub))
}

// handleWeather handles /weather
func (h *Handler) handleWeather(ctx context.Context, chatID int64) {
	sub, ok := h.located(ctx, chatID)
	if !ok {
		return
	}

	content, err := h.lookup(ctx, chatID, sub.Location, h.weather.Fetch)
	if err != nil {
		log.Error().Err(err).Int64("chatID", chatID).Str("location", sub.Location).Msg("Failed to get weather")
		h.sendMarkdown(chatID, fetchFailedMessage("Could not get the weather", sub.Location, err))
		return
	}
	h.sendMarkdown(chatID, h.formatter.WeatherReply(sub, content))
}

// handleForecast handles /forecast
func (h *Handler) handleForecast(ctx context.Context, chatID int64) {
	sub, ok := h.located(ctx, chatID)
	if !ok {
		return
	}

	content, err := h.lookup(ctx, chatID, sub.Location, h.weather.FetchForecast)
	if err != nil {
		log.Error().Err(err).Int64("chatID", chatID).Str("location", sub.Location).Msg("Failed to get forecast")
		h.sendMarkdown(chatID, fetchFailedMessage("Could not get the forecast", sub.Location, err))
		return
	}
	h.sendMarkdown(chatID, h.formatter.ForecastReply(sub, content))
}

// located returns the subscriber when a location is set and tells the
// user how to set one otherwise
func (h *Handler) located(ctx context.Context, chatID int64) (model.Subscriber, bool) {
	sub := h.machine.Lookup(ctx, chatID)
	if !sub.HasLocation() {
		log.Info().Int64("chatID", chatID).Msg("Weather requested without a location")
		h.sendMarkdown(chatID, "⚠️ *City not set*\n\nUse /city \\[name\\] so I can show you the weather\\.")
		return sub, false
	}
	return sub, true
}

func (h *Handler) lookup(ctx context.Context, chatID int64, location string, fetch func(context.Context, string) (string, error)) (string, error) {
	if t, ok := h.telegram.(typingSender); ok {
		if err := t.SendTyping(chatID); err != nil {
			log.Debug().Err(err).Int64("chatID", chatID).Msg("Failed to send typing action")
		}
	}

	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}
	return fetch(ctx, location)
}

// handleMode handles /cute and /std
func (h *Handler) handleMode(ctx context.Context, chatID int64, mode model.DisplayMode) {
	if _, err := h.machine.SetMode(ctx, chatID, mode); err != nil {
		log.Error().Err(err).Int64("chatID", chatID).Msg("Failed to set display mode")
		h.sendError(chatID, "Failed to save your settings. Please try again.")
		return
	}

	log.Info().Int64("chatID", chatID).Str("mode", string(mode)).Msg("Display mode changed")
	if mode == model.ModeAffectionate {
		h.sendMarkdown(chatID, "💕 *Affectionate mode is on\\!*\n\nFrom now on your weather comes with warm wishes\\. I am always here for you\\!")
		return
	}
	h.sendMarkdown(chatID, "🔄 Standard mode is on\\. You will get plain weather reports only\\.")
}

// handleStop handles /stop: both delivery paths are switched off
func (h *Handler) handleStop(ctx context.Context, chatID int64) {
	if _, err := h.machine.Stop(ctx, chatID); err != nil {
		log.Error().Err(err).Int64("chatID", chatID).Msg("Failed to stop notifications")
		h.sendError(chatID, "Failed to stop notifications. Please try again.")
		return
	}

	log.Info().Int64("chatID", chatID).Msg("Notifications stopped")
	h.send(chatID, "🔕 Notifications stopped. Your city and time are cleared; use /city and /time to start again.")
}

// handleStatus handles /status
func (h *Handler) handleStatus(ctx context.Context, chatID int64) {
	sub := h.machine.Lookup(ctx, chatID)

	location := "not set"
	if sub.HasLocation() {
		location = sub.Location
	}
	deliveryTime := "not set"
	if sub.DeliveryTime != "" {
		deliveryTime = sub.DeliveryTime
	}

	var lines []string
	lines = append(lines, "📊 *Your settings*\n")
	lines = append(lines, fmt.Sprintf("🏙 City: %s", push.EscapeMarkdown(location)))
	lines = append(lines, fmt.Sprintf("⏰ Delivery time: %s", push.EscapeMarkdown(deliveryTime)))
	lines = append(lines, fmt.Sprintf("🎨 Mode: %s", push.EscapeMarkdown(string(sub.Mode))))
	lines = append(lines, fmt.Sprintf("\n⏱ Bot uptime: %s", formatDuration(time.Since(h.startTime))))

	h.sendMarkdown(chatID, strings.Join(lines, "\n"))
}

func locationSetMessage(sub model.Subscriber) string {
	city := push.EscapeMarkdown(sub.Location)
	if sub.Mode == model.ModeAffectionate {
		return fmt.Sprintf("🌆 *City set:* %s\n\nNow you can:\n• check the weather with /weather\n• pick a time for your daily report with /time \\[HH:MM\\] 💖", city)
	}
	return fmt.Sprintf("🌆 *City set:* %s\n\nYou can:\n• check the weather with /weather\n• set a daily delivery time with /time \\[HH:MM\\]", city)
}

func timeSetMessage(sub model.Subscriber) string {
	at := push.EscapeMarkdown(sub.DeliveryTime)
	if sub.Mode == model.ModeAffectionate {
		return fmt.Sprintf("⏰ *Delivery time set:* %s\n\nEvery day at this time I will send you the weather and a kind word\\! 💖", at)
	}
	return fmt.Sprintf("⏰ *Delivery time set:* %s\n\nYou will get the weather every day at this time\\.", at)
}

func fetchFailedMessage(title, location string, err error) string {
	return fmt.Sprintf("❌ *%s:*\n%s\n\nCheck the city name or try again later\\.",
		title, push.EscapeMarkdown(push.DescribeError(location, err)))
}

func (h *Handler) send(chatID int64, text string) {
	if err := h.telegram.SendMessage(chatID, text); err != nil {
		metrics.RecordError("telegram_send")
		log.Error().Err(err).Int64("chatID", chatID).Msg("Failed to send message")
	}
}

func (h *Handler) sendMarkdown(chatID int64, text string) {
	if err := h.telegram.SendMarkdown(chatID, text); err != nil {
		metrics.RecordError("telegram_send")
		log.Error().Err(err).Int64("chatID", chatID).Msg("Failed to send markdown message")
	}
}

// sendError sends an error message to a chat
func (h *Handler) sendError(chatID int64, message string) {
	h.send(chatID, "❌ "+message)
}

// formatDuration formats a duration into a human-readable string
func formatDuration(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}
