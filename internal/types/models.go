// internal/types/models.go
package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Mode selects the conversation style of a turn.
type Mode string

const (
	ModeAsk       Mode = "ask"
	ModeItinerary Mode = "itinerary"
)

// ParseMode validates a caller-supplied mode. An empty string means ask.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeAsk:
		return ModeAsk, nil
	case ModeItinerary:
		return ModeItinerary, nil
	default:
		return "", fmt.Errorf("invalid mode %q (want ask or itinerary)", s)
	}
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of conversation. The assistant message of a turn is
// built up with Apply while the turn's events arrive.
type Message struct {
	ID             MessageID          `json:"id"`
	ConversationID ConversationID     `json:"conversationId,omitempty"`
	Role           Role               `json:"role"`
	Content        string             `json:"content"`
	ToolCalls      []ToolCall         `json:"toolCalls,omitempty"`
	Cards          []PlaceCard        `json:"cards,omitempty"`
	Citations      []Citation         `json:"citations,omitempty"`
	Videos         []Video            `json:"videos,omitempty"`
	Itinerary      *ItineraryResponse `json:"itinerary,omitempty"`
	Mode           Mode               `json:"mode,omitempty"`
	Error          string             `json:"error,omitempty"`
	CreatedAt      time.Time          `json:"createdAt"`
}

func NewUserMessage(conv ConversationID, content string) *Message {
	return &Message{
		ID:             NewMessageID(),
		ConversationID: conv,
		Role:           RoleUser,
		Content:        content,
		CreatedAt:      time.Now(),
	}
}

func NewAssistantMessage(conv ConversationID) *Message {
	return &Message{
		ID:             NewMessageID(),
		ConversationID: conv,
		Role:           RoleAssistant,
		CreatedAt:      time.Now(),
	}
}

// ToolCall records a single tool invocation: what the model asked for and
// what the executor returned. Result is nil only while the call is in flight.
type ToolCall struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	Input  json.RawMessage `json:"input"`
	Result *ToolResult     `json:"result,omitempty"`
}

// UnmarshalJSON decodes Result.Data into the payload variant for Name.
func (tc *ToolCall) UnmarshalJSON(data []byte) error {
	var aux struct {
		ID     string          `json:"id"`
		Name   string          `json:"name"`
		Input  json.RawMessage `json:"input"`
		Result *struct {
			Success   bool            `json:"success"`
			Data      json.RawMessage `json:"data"`
			Sources   []Citation      `json:"sources"`
			Error     string          `json:"error"`
			Timestamp time.Time       `json:"timestamp"`
		} `json:"result"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	tc.ID, tc.Name, tc.Input = aux.ID, aux.Name, aux.Input
	tc.Result = nil
	if aux.Result == nil {
		return nil
	}
	payload, err := DecodePayload(aux.Name, aux.Result.Data)
	if err != nil {
		return fmt.Errorf("decode %s result: %w", aux.Name, err)
	}
	tc.Result = &ToolResult{
		Success:   aux.Result.Success,
		Data:      payload,
		Sources:   aux.Result.Sources,
		Error:     aux.Result.Error,
		Timestamp: aux.Result.Timestamp,
	}
	return nil
}

// Citation is a source backing part of an answer.
type Citation struct {
	URL        string    `json:"url"`
	Title      string    `json:"title"`
	Snippet    string    `json:"snippet,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Confidence float64   `json:"confidence"`
}

// TripContext is advisory trip information supplied by the host application.
// Every field is optional.
type TripContext struct {
	Destination string   `json:"destination,omitempty"`
	Title       string   `json:"title,omitempty"`
	StartDate   string   `json:"startDate,omitempty"`
	EndDate     string   `json:"endDate,omitempty"`
	Party       *Party   `json:"party,omitempty"`
	Budget      *Budget  `json:"budget,omitempty"`
	Preferences []string `json:"preferences,omitempty"`
}

type Party struct {
	Adults       int    `json:"adults,omitempty"`
	Children     int    `json:"children,omitempty"`
	TravelerType string `json:"travelerType,omitempty"`
}

type Budget struct {
	Min      float64 `json:"min,omitempty"`
	Max      float64 `json:"max,omitempty"`
	Currency string  `json:"currency,omitempty"`
}

const dateLayout = "2006-01-02"

// Days returns the inclusive day count between StartDate and EndDate, or 0
// when either date is missing or unparseable.
func (t *TripContext) Days() int {
	if t == nil || t.StartDate == "" || t.EndDate == "" {
		return 0
	}
	start, err := time.Parse(dateLayout, t.StartDate)
	if err != nil {
		return 0
	}
	end, err := time.Parse(dateLayout, t.EndDate)
	if err != nil || end.Before(start) {
		return 0
	}
	return int(end.Sub(start).Hours()/24) + 1
}

// TravelerType returns the explicit traveler type or one derived from the
// party composition.
func (t *TripContext) TravelerType() string {
	if t == nil || t.Party == nil {
		return ""
	}
	p := t.Party
	switch {
	case p.TravelerType != "":
		return p.TravelerType
	case p.Children > 0:
		return "family"
	case p.Adults == 1:
		return "solo"
	case p.Adults == 2:
		return "couple"
	case p.Adults > 2:
		return "group"
	}
	return ""
}

// BudgetTier buckets the maximum budget per day into budget, moderate or luxury.
func (t *TripContext) BudgetTier() string {
	if t == nil || t.Budget == nil || t.Budget.Max <= 0 {
		return ""
	}
	perDay := t.Budget.Max
	if d := t.Days(); d > 0 {
		perDay = t.Budget.Max / float64(d)
	}
	switch {
	case perDay < 100:
		return "budget"
	case perDay < 300:
		return "moderate"
	default:
		return "luxury"
	}
}

// DestinationName returns the trimmed destination or "".
func (t *TripContext) DestinationName() string {
	if t == nil {
		return ""
	}
	return strings.TrimSpace(t.Destination)
}
