package types

// EventType discriminates the events of a turn.
type EventType string

const (
	EventToolCalls        EventType = "toolCalls"
	EventCards            EventType = "cards"
	EventVideos           EventType = "videos"
	EventVideoAnalysis    EventType = "videoAnalysis"
	EventSmartVideoResult EventType = "smartVideoResult"
	EventContent          EventType = "content"
	EventItinerary        EventType = "itinerary"
	EventDone             EventType = "done"
	EventError            EventType = "error"
)

// FallbackReply replaces the assistant text when the final stream fails.
const FallbackReply = "Sorry, I encountered an error while generating a response. Please try again."

// Event is one element of a turn's append-only event sequence. Only the
// fields matching Type are set. Done and Error are terminal.
type Event struct {
	Type             EventType          `json:"type"`
	ToolCalls        []ToolCall         `json:"toolCalls,omitempty"`
	Cards            []PlaceCard        `json:"cards,omitempty"`
	Videos           []Video            `json:"videos,omitempty"`
	VideoAnalysis    *VideoAnalysis     `json:"videoAnalysis,omitempty"`
	SmartVideoResult *SmartVideoResult  `json:"smartVideoResult,omitempty"`
	Content          string             `json:"content,omitempty"`
	Itinerary        *ItineraryResponse `json:"itinerary,omitempty"`
	Citations        []Citation         `json:"citations,omitempty"`
	ChatMode         Mode               `json:"chatMode,omitempty"`
	Error            string             `json:"error,omitempty"`
	Fallback         string             `json:"fallback,omitempty"`
}

func (e Event) Terminal() bool {
	return e.Type == EventDone || e.Type == EventError
}

func ToolCallsEvent(calls []ToolCall) Event {
	return Event{Type: EventToolCalls, ToolCalls: calls}
}

func CardsEvent(cards []PlaceCard) Event {
	return Event{Type: EventCards, Cards: cards}
}

func VideosEvent(videos []Video) Event {
	return Event{Type: EventVideos, Videos: videos}
}

func VideoAnalysisEvent(a *VideoAnalysis) Event {
	return Event{Type: EventVideoAnalysis, VideoAnalysis: a}
}

func SmartVideoEvent(r *SmartVideoResult) Event {
	return Event{Type: EventSmartVideoResult, SmartVideoResult: r}
}

func ContentEvent(chunk string) Event {
	return Event{Type: EventContent, Content: chunk}
}

func ItineraryEvent(it *ItineraryResponse) Event {
	return Event{Type: EventItinerary, Itinerary: it}
}

func DoneEvent(citations []Citation, mode Mode) Event {
	return Event{Type: EventDone, Citations: citations, ChatMode: mode}
}

// ErrorEvent reports a late failure. The fallback reply travels with it so
// consumers can substitute it for the partial answer.
func ErrorEvent(err error, mode Mode) Event {
	return Event{Type: EventError, Error: err.Error(), Fallback: FallbackReply, ChatMode: mode}
}

// Apply folds an event into the assistant message being built for a turn.
func (m *Message) Apply(e Event) {
	switch e.Type {
	case EventToolCalls:
		m.ToolCalls = append(m.ToolCalls, e.ToolCalls...)
	case EventCards:
		m.Cards = append(m.Cards, e.Cards...)
	case EventVideos:
		m.Videos = append(m.Videos, e.Videos...)
	case EventVideoAnalysis:
		if e.VideoAnalysis == nil {
			return
		}
		for i := range m.Videos {
			if m.Videos[i].ID == e.VideoAnalysis.VideoID {
				m.Videos[i].Analysis = e.VideoAnalysis
				return
			}
		}
	case EventSmartVideoResult:
		if e.SmartVideoResult == nil {
			return
		}
		m.Videos = append(m.Videos, e.SmartVideoResult.Videos...)
	case EventContent:
		m.Content += e.Content
	case EventItinerary:
		m.Itinerary = e.Itinerary
	case EventDone:
		m.Citations = append(m.Citations, e.Citations...)
		m.Mode = e.ChatMode
	case EventError:
		m.Content = e.Fallback
		if m.Content == "" {
			m.Content = FallbackReply
		}
		m.Error = e.Error
		m.Mode = e.ChatMode
	}
}
