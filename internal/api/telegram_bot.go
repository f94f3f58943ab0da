// Package api provides handlers for external APIs and interfaces
package api

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/abelzeko/water-monitor/internal/entities"
	"github.com/abelzeko/water-monitor/internal/log"
	"github.com/abelzeko/water-monitor/internal/repository"
	"github.com/abelzeko/water-monitor/internal/usecases"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// StoreFactory opens a fresh Parameter Store for a new chat
type StoreFactory func() (repository.SourceRepository, error)

// TelegramBot handles interactions with the Telegram API. Every chat gets its own session.
type TelegramBot struct {
	bot     *tgbotapi.BotAPI
	useCase *usecases.WaterUseCase

	openStore StoreFactory
	notify    func(chatID int64, text string)

	mu       sync.Mutex
	sessions map[int64]*usecases.Session
}

// NewTelegramBot creates a new Telegram bot handler
func NewTelegramBot(botToken string, useCase *usecases.WaterUseCase, openStore StoreFactory) (*TelegramBot, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	t := newChatHandler(useCase, openStore)
	t.bot = bot
	t.notify = t.send
	return t, nil
}

func newChatHandler(useCase *usecases.WaterUseCase, openStore StoreFactory) *TelegramBot {
	if openStore == nil {
		openStore = func() (repository.SourceRepository, error) {
			return repository.NewMemorySourceRepository(nil), nil
		}
	}
	return &TelegramBot{
		useCase:   useCase,
		openStore: openStore,
		notify:    func(int64, string) {},
		sessions:  make(map[int64]*usecases.Session),
	}
}

// Start begins listening for and handling Telegram messages until ctx is cancelled
func (t *TelegramBot) Start(ctx context.Context) {
	log.Infof("Authorized on Telegram account %s", t.bot.Self.UserName)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := t.bot.GetUpdatesChan(u)
	log.Info("Bot is now listening for messages...")

	for {
		select {
		case <-ctx.Done():
			t.bot.StopReceivingUpdates()
			t.closeSessions()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil {
				continue
			}

			log.Infof("Received message from %s (ID: %d): %s",
				update.Message.From.UserName,
				update.Message.From.ID,
				update.Message.Text)

			t.handleMessage(ctx, update)
		}
	}
}

func (t *TelegramBot) send(chatID int64, text string) {
	if _, err := t.bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		log.Errorf("Error sending message: %v", err)
	}
}

// session returns the chat's session, creating and seeding it on first use
func (t *TelegramBot) session(chatID int64) (*usecases.Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if sess, ok := t.sessions[chatID]; ok {
		return sess, nil
	}

	store, err := t.openStore()
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	sess, err := usecases.NewSeededSession(store, repository.DisplayStamp())
	if err != nil {
		store.Close()
		return nil, err
	}
	t.sessions[chatID] = sess
	return sess, nil
}

func (t *TelegramBot) closeSessions() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, sess := range t.sessions {
		if err := sess.Close(); err != nil {
			log.Warnf("Error closing session for chat %d: %v", id, err)
		}
	}
	t.sessions = make(map[int64]*usecases.Session)
}

// handleMessage processes a Telegram message update
func (t *TelegramBot) handleMessage(ctx context.Context, update tgbotapi.Update) {
	message := update.Message
	chatID := message.Chat.ID

	var text string
	switch {
	case message.IsCommand():
		text = t.reply(ctx, chatID, message.Command(), message.CommandArguments())
	case message.Location != nil:
		text = t.replyNearby(ctx, message.Location.Latitude, message.Location.Longitude)
	default:
		text = t.replyNonCommand(chatID, message.Text)
	}

	log.Infof("Sending response to user %s", message.From.UserName)
	t.send(chatID, text)
}

const helpText = "Available commands:\n" +
	"/start - Start the bot\n" +
	"/sources - Show the tracked water sources\n" +
	"/districts - Show the districts and their known sources\n" +
	"/source [name] - Show and select a water source\n" +
	"/status - Show the selected source\n" +
	"/predict - AI water-borne disease risk for the selected source\n" +
	"/lang [en|ta|hi] - Language of AI answers\n" +
	"/refresh - Sync the selected source with its sensors\n" +
	"/add [name] | [district] - Track a new manual source\n" +
	"/set ph=7.1 temp=26 turbidity=1.2 tds=300 - Enter a manual reading\n" +
	"/map - Show every source with its status\n" +
	"/nearby [lat] [lng] - Public water bodies near a place (or share a location)\n" +
	"/help - Show this help message"

// reply processes commands like /start, /help, etc. and returns the answer text
func (t *TelegramBot) reply(ctx context.Context, chatID int64, command, args string) string {
	args = strings.TrimSpace(args)
	log.Infof("Handling /%s command with args '%s' for chat %d", command, args, chatID)

	switch command {
	case "start":
		return "Welcome to the Water Quality Monitor! Use /sources to see the tracked water sources or /help for more information."
	case "help":
		return helpText
	case "districts":
		return t.districtsReply()
	case "nearby":
		return t.nearbyCommand(ctx, args)
	}

	sess, err := t.session(chatID)
	if err != nil {
		log.Errorf("Error opening session: %v", err)
		return "Error opening your session. Please try again later."
	}

	switch command {
	case "sources":
		return t.sourcesReply(sess)
	case "source":
		return t.sourceReply(sess, args)
	case "status":
		return t.sourceReply(sess, "")
	case "predict":
		return t.predictReply(ctx, sess)
	case "lang":
		return t.langReply(sess, args)
	case "refresh":
		return t.refreshReply(chatID, sess)
	case "add":
		return t.addReply(sess, args)
	case "set":
		return t.setReply(sess, args)
	case "map":
		return t.mapReply(sess)
	default:
		log.Infof("Received unknown command /%s from chat %d", command, chatID)
		return "Unknown command. Use /help to see available commands."
	}
}

func (t *TelegramBot) districtsReply() string {
	var b strings.Builder
	b.WriteString("Districts:\n\n")
	for _, d := range entities.Districts {
		sources := entities.SourcesByDistrict[d]
		if len(sources) == 0 {
			b.WriteString(fmt.Sprintf("• %s\n", d))
			continue
		}
		b.WriteString(fmt.Sprintf("• %s: %s\n", d, strings.Join(sources, ", ")))
	}
	return b.String()
}

func (t *TelegramBot) sourcesReply(sess *usecases.Session) string {
	statuses, err := t.useCase.ListStatuses(sess)
	if err != nil {
		log.Errorf("Error fetching sources: %v", err)
		return "Error fetching water sources. Please try again later."
	}

	active := sess.Active().Source
	var b strings.Builder
	b.WriteString("Tracked water sources:\n\n")
	for _, st := range statuses {
		marker := "•"
		if st.Source.Name == active {
			marker = "▶"
		}
		b.WriteString(fmt.Sprintf("%s %s (%s): %s\n", marker, st.Source.Name, st.Source.District, st.Level.Label()))
	}
	b.WriteString("\nUse /source [name] to get detailed information.")
	return b.String()
}

func (t *TelegramBot) sourceReply(sess *usecases.Session, name string) string {
	if name == "" {
		name = sess.Active().Source
	}
	st, err := t.useCase.GetSourceStatus(sess, name)
	if err != nil {
		log.Errorf("Error fetching source %s: %v", name, err)
		return "Error fetching water source. Please try again later."
	}
	sess.Select(st.Source.District, st.Source.Name)
	return t.useCase.FormatSourceInfo(st)
}

func (t *TelegramBot) predictReply(ctx context.Context, sess *usecases.Session) string {
	active := sess.Active()
	res, err := t.useCase.PredictForSource(ctx, sess, active.Source, active.Language)
	if err != nil {
		log.Errorf("Error predicting for %s: %v", active.Source, err)
		return "Error fetching water source. Please try again later."
	}
	text := fmt.Sprintf("%s\n\n%s", res.Source, t.useCase.FormatPrediction(res.Prediction))
	if !res.Current {
		text = "A newer analysis was requested meanwhile; this result may be outdated.\n\n" + text
	}
	return text
}

func (t *TelegramBot) langReply(sess *usecases.Session, args string) string {
	lang, err := entities.ParseLanguage(args)
	if err != nil {
		tags := make([]string, 0, len(entities.SupportedLanguages))
		for _, l := range entities.SupportedLanguages {
			tags = append(tags, fmt.Sprintf("%s (%s)", l, l.DisplayName()))
		}
		return "Please choose one of: " + strings.Join(tags, ", ")
	}
	sess.SetLanguage(lang)
	return fmt.Sprintf("AI answers will be in %s.", lang.DisplayName())
}

func (t *TelegramBot) refreshReply(chatID int64, sess *usecases.Session) string {
	name := sess.Active().Source
	t.useCase.ScheduleRefresh(sess, name, func(st usecases.SourceStatus, err error) {
		if err != nil {
			t.notify(chatID, "Sensor sync failed. Please try again later.")
			return
		}
		// the chat may have moved on to another source while syncing
		if sess.Active().Source != name {
			return
		}
		t.notify(chatID, t.useCase.FormatSourceInfo(st))
	})
	return fmt.Sprintf("Syncing %s with its sensors...", name)
}

func (t *TelegramBot) addReply(sess *usecases.Session, args string) string {
	name, district, _ := strings.Cut(args, "|")
	name = strings.TrimSpace(name)
	if name == "" {
		return "Please specify a source name. Example: /add Ward 12 Tank | Madurai"
	}
	district = strings.TrimSpace(district)
	if district == "" {
		district = sess.Active().District
	}

	st, err := t.useCase.RegisterSource(sess, name, district)
	if err != nil {
		log.Errorf("Error registering %s: %v", name, err)
		return "Error adding water source. Please try again later."
	}
	return "Added and selected:\n\n" + t.useCase.FormatSourceInfo(st)
}

// ParseAssignments reads "key=value" pairs separated by spaces or commas
func ParseAssignments(args string) (map[string]string, error) {
	fields := make(map[string]string)
	tokens := strings.FieldsFunc(args, func(r rune) bool { return r == ' ' || r == ',' })
	for _, tok := range tokens {
		key, value, ok := strings.Cut(tok, "=")
		if !ok {
			return nil, fmt.Errorf("expected key=value, got %q", tok)
		}
		key = strings.ToLower(strings.TrimSpace(key))
		switch key {
		case "ph", "temp", "turbidity", "tds":
			fields[key] = value
		default:
			return nil, fmt.Errorf("unknown parameter %q", key)
		}
	}
	return fields, nil
}

func (t *TelegramBot) setReply(sess *usecases.Session, args string) string {
	fields, err := ParseAssignments(args)
	if err != nil || len(fields) == 0 {
		return "Please give values like: /set ph=7.1 temp=26 turbidity=1.2 tds=300"
	}

	name := sess.Active().Source
	st, err := t.useCase.SaveManual(sess, name, usecases.ParseManualParameters(fields))
	if err != nil {
		log.Errorf("Error saving reading for %s: %v", name, err)
		return "Error saving the reading. Please try again later."
	}
	return "Saved.\n\n" + t.useCase.FormatSourceInfo(st)
}

func (t *TelegramBot) mapReply(sess *usecases.Session) string {
	markers, err := t.useCase.MapMarkers(sess)
	if err != nil {
		log.Errorf("Error fetching map markers: %v", err)
		return "Error fetching water sources. Please try again later."
	}

	var b strings.Builder
	b.WriteString("Water sources on the map:\n\n")
	for _, m := range markers {
		b.WriteString(fmt.Sprintf("📍 %s (%.4f, %.4f): %s\n", m.Name, m.Lat, m.Lng, m.Status.Label()))
	}
	return b.String()
}

func (t *TelegramBot) nearbyCommand(ctx context.Context, args string) string {
	parts := strings.Fields(strings.ReplaceAll(args, ",", " "))
	if len(parts) != 2 {
		return "Please share your location or give coordinates. Example: /nearby 13.08 80.27"
	}
	lat, errLat := strconv.ParseFloat(parts[0], 64)
	lng, errLng := strconv.ParseFloat(parts[1], 64)
	if errLat != nil || errLng != nil {
		return "Please share your location or give coordinates. Example: /nearby 13.08 80.27"
	}
	return t.replyNearby(ctx, lat, lng)
}

func (t *TelegramBot) replyNearby(ctx context.Context, lat, lng float64) string {
	insight := t.useCase.NearbyInsight(ctx, entities.Location{Lat: lat, Lng: lng})

	var b strings.Builder
	b.WriteString(insight.Narrative)
	if len(insight.Citations) > 0 {
		b.WriteString("\n\nSources:\n")
		for _, c := range insight.Citations {
			b.WriteString(fmt.Sprintf("• %s: %s\n", c.Title, c.URL))
		}
	}
	return b.String()
}

// replyNonCommand processes regular messages
func (t *TelegramBot) replyNonCommand(chatID int64, text string) string {
	log.Infof("Received non-command message from chat %d: %s", chatID, text)

	sess, err := t.session(chatID)
	if err != nil {
		return "I don't understand. Use /help to see available commands."
	}
	st, err := t.useCase.ActiveStatus(sess)
	if err != nil {
		log.Errorf("Error fetching active source: %v", err)
		return "I don't understand. Use /help to see available commands."
	}

	var response strings.Builder
	response.WriteString("I don't understand. Use /help to see available commands.\n\n")
	response.WriteString("For your information:\n")
	response.WriteString(t.useCase.FormatSourceInfo(st))
	return response.String()
}
