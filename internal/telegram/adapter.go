// Package telegram drives chat turns from a Telegram bot.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/user/wayfarer/internal/gateway"
	"github.com/user/wayfarer/internal/itinerary"
	"github.com/user/wayfarer/internal/types"
)

const (
	maxTelegramMessage = 4096
	maxCardsInReply    = 8
	maxVideosInReply   = 3
)

const errorReply = "Sorry, I encountered an error processing your message."

// Chat starts gateway turns.
type Chat interface {
	HandleTurn(ctx context.Context, req gateway.Request) (*gateway.Turn, error)
}

// Conversations is the part of the conversation index the bot commands use.
type Conversations interface {
	ResolveOrCreate(ctx context.Context, key types.ConversationKey) (*types.Conversation, error)
	Reset(ctx context.Context, key types.ConversationKey) (*types.Conversation, error)
	Update(ctx context.Context, conv *types.Conversation) error
}

// MessageCounter reports transcript sizes for /status.
type MessageCounter interface {
	Count(ctx context.Context, id types.ConversationID) (int, error)
}

// Sender is the subset of the bot API used for replies. *tgbotapi.BotAPI
// satisfies it.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Adapter bridges Telegram to the gateway.
type Adapter struct {
	bot           *tgbotapi.BotAPI
	sender        Sender
	chat          Chat
	conversations Conversations
	messages      MessageCounter
}

// New creates a Telegram adapter.
func New(token string, chat Chat, conversations Conversations, messages MessageCounter) (*Adapter, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	return &Adapter{
		bot:           bot,
		sender:        bot,
		chat:          chat,
		conversations: conversations,
		messages:      messages,
	}, nil
}

// Start begins long-polling for Telegram updates. Each message is handled
// on its own goroutine; the gateway serializes turns of the same chat.
func (a *Adapter) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := a.bot.GetUpdatesChan(u)
	slog.Info("telegram adapter started", "bot", a.bot.Self.UserName)

	for {
		select {
		case update := <-updates:
			if update.Message == nil || update.Message.Text == "" {
				continue
			}
			go a.handleMessage(ctx, update.Message)
		case <-ctx.Done():
			a.bot.StopReceivingUpdates()
			return
		}
	}
}

func (a *Adapter) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.IsCommand() {
		a.handleCommand(ctx, msg)
		return
	}
	a.runTurn(ctx, msg.Chat.ID, msg.Text, types.ModeAsk)
}

func (a *Adapter) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	key := buildConversationKey(chatID)
	args := strings.TrimSpace(msg.CommandArguments())

	switch msg.Command() {
	case "start":
		a.sendResponse(chatID, "Hi! I'm Wayfarer, your travel assistant. Ask me about places, weather, hotels or events.\n\n"+
			"/trip <destination> sets where you're going\n/plan <request> builds a day-by-day itinerary\n/new starts over\n/status shows this conversation")

	case "plan":
		if args == "" {
			a.sendResponse(chatID, "Usage: /plan <what you'd like planned>, for example /plan 3 days in Kyoto with kids")
			return
		}
		a.runTurn(ctx, chatID, args, types.ModeItinerary)

	case "trip":
		if args == "" {
			a.sendResponse(chatID, "Usage: /trip <destination>")
			return
		}
		conv, err := a.conversations.ResolveOrCreate(ctx, key)
		if err != nil {
			slog.Error("resolve conversation failed", "key", key, "error", err)
			a.sendResponse(chatID, errorReply)
			return
		}
		if conv.Trip == nil {
			conv.Trip = &types.TripContext{}
		}
		conv.Trip.Destination = args
		if err := a.conversations.Update(ctx, conv); err != nil {
			slog.Error("update trip failed", "key", key, "error", err)
			a.sendResponse(chatID, errorReply)
			return
		}
		a.sendResponse(chatID, fmt.Sprintf("Trip destination set to %s.", args))

	case "new":
		if _, err := a.conversations.Reset(ctx, key); err != nil {
			slog.Error("reset conversation failed", "key", key, "error", err)
			a.sendResponse(chatID, errorReply)
			return
		}
		a.sendResponse(chatID, "Starting a new conversation. Previous conversation has been archived.")

	case "status":
		conv, err := a.conversations.ResolveOrCreate(ctx, key)
		if err != nil {
			a.sendResponse(chatID, "Error fetching status.")
			return
		}
		count, err := a.messages.Count(ctx, conv.ID)
		if err != nil {
			a.sendResponse(chatID, "Error fetching status.")
			return
		}
		status := fmt.Sprintf("Conversation: %s\nMessages: %d", conv.ID, count)
		if dest := conv.Trip.DestinationName(); dest != "" {
			status += "\nDestination: " + dest
		}
		a.sendResponse(chatID, status)

	default:
		a.sendResponse(chatID, "Unknown command. Available: /start, /plan, /trip, /new, /status")
	}
}

func (a *Adapter) runTurn(ctx context.Context, chatID int64, text string, mode types.Mode) {
	if _, err := a.sender.Send(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
		slog.Debug("send chat action failed", "error", err)
	}

	turn, err := a.chat.HandleTurn(ctx, gateway.Request{
		Key:     buildConversationKey(chatID),
		Message: text,
		Mode:    mode,
	})
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			slog.Error("telegram turn failed", "chat_id", chatID, "mode", mode, "error", err)
			a.sendResponse(chatID, errorReply)
		}
		return
	}
	for range turn.Events {
	}
	reply, err := turn.Wait(ctx)
	if err != nil {
		return
	}
	a.sendResponse(chatID, formatReply(reply))
}

func (a *Adapter) sendResponse(chatID int64, text string) {
	for _, part := range splitMessage(text) {
		msg := tgbotapi.NewMessage(chatID, part)
		msg.ParseMode = tgbotapi.ModeMarkdown
		if _, err := a.sender.Send(msg); err != nil {
			// Model output is not always valid Markdown.
			msg.ParseMode = ""
			if _, err := a.sender.Send(msg); err != nil {
				slog.Error("send message failed", "chat_id", chatID, "error", err)
			}
		}
	}
}

// formatReply renders an assistant message as prose, then a compact card
// list, then video links.
func formatReply(m *types.Message) string {
	var b strings.Builder
	prose := m.Content
	if m.Itinerary != nil {
		prose = itinerary.Strip(prose)
	}
	b.WriteString(strings.TrimSpace(prose))

	if m.Itinerary != nil {
		b.WriteString("\n\n")
		writeItinerary(&b, m.Itinerary)
	}

	if len(m.Cards) > 0 {
		b.WriteString("\n\n")
		for i, c := range m.Cards {
			if i == maxCardsInReply {
				fmt.Fprintf(&b, "…and %d more\n", len(m.Cards)-maxCardsInReply)
				break
			}
			b.WriteString(formatCard(c))
			b.WriteByte('\n')
		}
	}

	if len(m.Videos) > 0 {
		b.WriteString("\n")
		for i, v := range m.Videos {
			if i == maxVideosInReply {
				break
			}
			fmt.Fprintf(&b, "▶ %s\n%s\n", v.Title, v.WatchURL())
		}
	}
	return strings.TrimSpace(b.String())
}

func formatCard(c types.PlaceCard) string {
	line := "• " + c.Name
	var details []string
	if c.Rating > 0 {
		details = append(details, fmt.Sprintf("★ %.1f", c.Rating))
	}
	switch {
	case c.Price != nil:
		details = append(details, strings.TrimSpace(fmt.Sprintf("%.0f %s", c.Price.Amount, c.Price.Currency)))
	case c.PriceLevel > 0:
		details = append(details, strings.Repeat("$", c.PriceLevel))
	}
	if c.Address != "" {
		details = append(details, c.Address)
	}
	if len(details) > 0 {
		line += " (" + strings.Join(details, ", ") + ")"
	}
	return line
}

func writeItinerary(b *strings.Builder, it *types.ItineraryResponse) {
	if it.TripSummary.Title != "" {
		fmt.Fprintf(b, "*%s*\n", it.TripSummary.Title)
	}
	for i, day := range it.Days {
		b.WriteString("\n" + day.Label(i+1))
		if day.Title != "" {
			b.WriteString(": " + day.Title)
		}
		b.WriteByte('\n')
		for _, act := range day.Activities {
			if act.Time != "" {
				fmt.Fprintf(b, "  %s %s\n", act.Time, act.Title)
			} else {
				fmt.Fprintf(b, "  %s\n", act.Title)
			}
		}
	}
}

// splitMessage cuts text into Telegram-sized parts, preferring line breaks
// and never splitting a UTF-8 sequence.
func splitMessage(text string) []string {
	if len(text) <= maxTelegramMessage {
		return []string{text}
	}
	var parts []string
	for len(text) > maxTelegramMessage {
		cut := strings.LastIndexByte(text[:maxTelegramMessage], '\n')
		if cut <= 0 {
			cut = maxTelegramMessage
			for cut > 0 && !isRuneStart(text[cut]) {
				cut--
			}
		}
		parts = append(parts, text[:cut])
		text = strings.TrimPrefix(text[cut:], "\n")
	}
	if text != "" {
		parts = append(parts, text)
	}
	return parts
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

func buildConversationKey(chatID int64) types.ConversationKey {
	return types.NewConversationKey("telegram", strconv.FormatInt(chatID, 10))
}
