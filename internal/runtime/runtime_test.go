package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	ctxengine "github.com/user/wayfarer/internal/context"
	"github.com/user/wayfarer/internal/types"
	"github.com/user/wayfarer/internal/video"
	"github.com/user/wayfarer/pkg/llm"
)

// mockProvider returns a scripted decision and a scripted stream.
type mockProvider struct {
	mu          sync.Mutex
	decision    *llm.Response
	decisionErr error
	deltas      []llm.Delta
	streamErr   error

	completeTools  []llm.Tool
	streamCalls    int
	streamMessages []llm.Message
}

func (m *mockProvider) Complete(_ context.Context, messages []llm.Message, tools []llm.Tool) (*llm.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completeTools = tools
	if m.decisionErr != nil {
		return nil, m.decisionErr
	}
	if m.decision == nil {
		return &llm.Response{}, nil
	}
	return m.decision, nil
}

func (m *mockProvider) Stream(ctx context.Context, messages []llm.Message, _ []llm.Tool) (<-chan llm.Delta, error) {
	m.mu.Lock()
	m.streamCalls++
	m.streamMessages = messages
	deltas, err := m.deltas, m.streamErr
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	ch := make(chan llm.Delta)
	go func() {
		defer close(ch)
		for _, d := range deltas {
			select {
			case ch <- d:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func (m *mockProvider) streams() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streamCalls
}

func textDeltas(parts ...string) []llm.Delta {
	out := make([]llm.Delta, len(parts))
	for i, p := range parts {
		out[i] = llm.Delta{Content: p}
	}
	return out
}

func toolCall(id, name, args string) llm.ToolCall {
	return llm.ToolCall{ID: id, Type: "function", Function: llm.FunctionCall{Name: name, Arguments: args}}
}

// fakeVideos records which enrichment paths ran.
type fakeVideos struct {
	smart    *types.SmartVideoResult
	single   []types.Video
	smartN   atomic.Int32
	singleN  atomic.Int32
	analyzeN atomic.Int32
}

func (f *fakeVideos) Smart(context.Context, video.Request) *types.SmartVideoResult {
	f.smartN.Add(1)
	return f.smart
}

func (f *fakeVideos) Single(context.Context, video.Request) []types.Video {
	f.singleN.Add(1)
	return f.single
}

func (f *fakeVideos) Analyze(_ context.Context, v types.Video, _ video.Request) *types.VideoAnalysis {
	f.analyzeN.Add(1)
	return &types.VideoAnalysis{VideoID: v.ID, Summary: "analysis of " + v.Title}
}

func (f *fakeVideos) calls() int32 {
	return f.smartN.Load() + f.singleN.Load() + f.analyzeN.Load()
}

func newTestRuntime(t *testing.T, p llm.Provider, videos VideoEnricher, tools ...Tool) *Runtime {
	t.Helper()
	engine, err := ctxengine.New("gpt-4o", 128000, 4096, 10)
	if err != nil {
		t.Fatal(err)
	}
	registry := NewRegistry()
	for _, tool := range tools {
		registry.Register(tool)
	}
	if videos == nil {
		videos = &fakeVideos{}
	}
	rt := New(p, engine, registry, videos, 5*time.Second)
	rt.now = func() time.Time { return time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC) }
	return rt
}

func collect(t *testing.T, ch <-chan types.Event) []types.Event {
	t.Helper()
	var events []types.Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, e)
		case <-timeout:
			t.Fatalf("timed out collecting events, got %d so far", len(events))
		}
	}
}

func runTurn(t *testing.T, rt *Runtime, req TurnRequest) []types.Event {
	t.Helper()
	ch, err := rt.StartTurn(context.Background(), req)
	if err != nil {
		t.Fatalf("StartTurn: %v", err)
	}
	return collect(t, ch)
}

func eventTypes(events []types.Event) []types.EventType {
	out := make([]types.EventType, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}

func indexOf(events []types.Event, typ types.EventType) int {
	for i, e := range events {
		if e.Type == typ {
			return i
		}
	}
	return -1
}

func contentOf(events []types.Event) string {
	var b strings.Builder
	for _, e := range events {
		if e.Type == types.EventContent {
			b.WriteString(e.Content)
		}
	}
	return b.String()
}

func hotelTool() *fakeTool {
	return &fakeTool{name: types.ToolSearchHotels, fn: func(context.Context, json.RawMessage) (*types.ToolResult, error) {
		return types.Succeeded(&types.HotelsResult{City: "Paris", Hotels: []types.HotelOffer{
			{ID: "H1", Name: "Hotel Lutetia", Price: &types.Money{Amount: 189, Currency: "EUR"}},
		}}, types.Citation{URL: "https://amadeus.example/H1", Title: "Hotel Lutetia", Confidence: 0.9}), nil
	}}
}

// hotelsFake is hotelTool with a schema that requires city, as the real tool does.
type hotelsFake struct{ *fakeTool }

func (h hotelsFake) Parameters() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"city":{"type":"string"}},"required":["city"]}`)
}

func TestHotelSearchAskTurn(t *testing.T) {
	p := &mockProvider{
		decision: &llm.Response{ToolCalls: []llm.ToolCall{toolCall("c1", types.ToolSearchHotels, `{"city":"Paris","max_price":200}`)}},
		deltas:   textDeltas("Hotel Lutetia ", "is a classic ", "Left Bank pick."),
	}
	videos := &fakeVideos{}
	rt := newTestRuntime(t, p, videos, hotelsFake{hotelTool()})

	events := runTurn(t, rt, TurnRequest{Message: "Find hotels in Paris under $200/night", Mode: types.ModeAsk})

	want := []types.EventType{
		types.EventToolCalls, types.EventCards,
		types.EventContent, types.EventContent, types.EventContent,
		types.EventDone,
	}
	got := eventTypes(events)
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v, want %v", got, want)
		}
	}

	calls := events[0].ToolCalls
	if len(calls) != 1 || !calls[0].Result.Success {
		t.Fatalf("unexpected tool calls %+v", calls)
	}
	cards := events[1].Cards
	if len(cards) != 1 || cards[0].Type != types.CardHotel {
		t.Errorf("expected one hotel card, got %+v", cards)
	}
	if contentOf(events) != "Hotel Lutetia is a classic Left Bank pick." {
		t.Errorf("content = %q", contentOf(events))
	}
	done := events[len(events)-1]
	if done.ChatMode != types.ModeAsk || len(done.Citations) != 1 {
		t.Errorf("unexpected done event %+v", done)
	}

	// Destination came from the tool arguments, so the fallback chain ran.
	if videos.smartN.Load() != 1 || videos.singleN.Load() != 1 {
		t.Errorf("expected smart then single video paths, got %d/%d", videos.smartN.Load(), videos.singleN.Load())
	}
	if indexOf(events, types.EventVideos) != -1 {
		t.Error("no videos event expected when both paths are empty")
	}
}

func TestToolResultsReplayedToModel(t *testing.T) {
	p := &mockProvider{
		decision: &llm.Response{ToolCalls: []llm.ToolCall{
			toolCall("", types.ToolSearchHotels, `{"city":"Paris"}`),
		}},
		deltas: textDeltas("ok"),
	}
	rt := newTestRuntime(t, p, nil, hotelsFake{hotelTool()})
	runTurn(t, rt, TurnRequest{Message: "hotels in paris", Mode: types.ModeAsk})

	if len(p.completeTools) != 1 || p.completeTools[0].Function.Name != types.ToolSearchHotels {
		t.Errorf("decision call should see the registry, got %+v", p.completeTools)
	}

	msgs := p.streamMessages
	if len(msgs) < 4 {
		t.Fatalf("expected system, user, assistant, tool messages, got %d", len(msgs))
	}
	assistant, tool := msgs[len(msgs)-2], msgs[len(msgs)-1]
	if assistant.Role != llm.RoleAssistant || len(assistant.Tools) != 1 {
		t.Fatalf("expected assistant tool-call message, got %+v", assistant)
	}
	if assistant.Tools[0].ID == "" {
		t.Error("missing tool call id should be synthesized")
	}
	if tool.Role != llm.RoleTool || tool.ToolCallID != assistant.Tools[0].ID || tool.Name != types.ToolSearchHotels {
		t.Errorf("tool result not correlated: %+v", tool)
	}
	if !strings.Contains(tool.Content, "Hotel Lutetia") {
		t.Errorf("tool result content missing payload: %s", tool.Content)
	}
}

func TestItineraryTurn(t *testing.T) {
	block := "```json\n" + `{"tripSummary":{"title":"Lisbon"},"days":[{"day":1,"activities":[]},{"day":2,"activities":[]},{"day":3,"activities":[]},{"day":4,"activities":[]}]}` + "\n```"
	p := &mockProvider{
		decision: &llm.Response{},
		deltas:   textDeltas("Here is your plan.\n\n", block[:30], block[30:], "\n\nEnjoy!"),
	}
	rt := newTestRuntime(t, p, nil)

	events := runTurn(t, rt, TurnRequest{
		Message: "Plan a 4-day trip to Lisbon",
		Mode:    types.ModeItinerary,
		Trip:    &types.TripContext{Destination: "Lisbon"},
	})

	i := indexOf(events, types.EventItinerary)
	if i == -1 {
		t.Fatalf("expected itinerary event, got %v", eventTypes(events))
	}
	if n := len(events[i].Itinerary.Days); n != 4 {
		t.Errorf("expected 4 days, got %d", n)
	}
	if i < indexOf(events, types.EventContent) {
		t.Error("itinerary must follow the streamed content")
	}
	last := events[len(events)-1]
	if last.Type != types.EventDone || last.ChatMode != types.ModeItinerary {
		t.Errorf("unexpected terminal event %+v", last)
	}
}

func TestItineraryTurnWithoutBlock(t *testing.T) {
	p := &mockProvider{decision: &llm.Response{}, deltas: textDeltas("Lisbon is great ", "in spring.")}
	rt := newTestRuntime(t, p, nil)

	events := runTurn(t, rt, TurnRequest{Message: "Plan a 4-day trip to Lisbon", Mode: types.ModeItinerary})
	if indexOf(events, types.EventItinerary) != -1 {
		t.Error("no itinerary event expected without a block")
	}
	if contentOf(events) != "Lisbon is great in spring." {
		t.Errorf("content = %q", contentOf(events))
	}
	if events[len(events)-1].Type != types.EventDone {
		t.Error("turn should still complete")
	}
}

func TestFailedToolDoesNotAbortTurn(t *testing.T) {
	weather := &fakeTool{name: types.ToolGetWeather, fn: func(context.Context, json.RawMessage) (*types.ToolResult, error) {
		return nil, errors.New("dial tcp api.open-meteo.com: i/o timeout")
	}}
	p := &mockProvider{
		decision: &llm.Response{ToolCalls: []llm.ToolCall{toolCall("w1", types.ToolGetWeather, `{"query":"Rome"}`)}},
		deltas:   textDeltas("I couldn't fetch the forecast, ", "but April in Rome is mild."),
	}
	rt := newTestRuntime(t, p, nil, weather)

	events := runTurn(t, rt, TurnRequest{Message: "weather in Rome next week?", Mode: types.ModeAsk})

	calls := events[0].ToolCalls
	if events[0].Type != types.EventToolCalls || len(calls) != 1 {
		t.Fatalf("expected toolCalls first, got %v", eventTypes(events))
	}
	if calls[0].Name != types.ToolGetWeather || calls[0].Result.Success {
		t.Errorf("expected failed get_weather result, got %+v", calls[0].Result)
	}
	if calls[0].Result.Error == "" {
		t.Error("failed result needs an error message")
	}
	if contentOf(events) == "" {
		t.Error("content should still stream")
	}
	if !strings.Contains(p.streamMessages[len(p.streamMessages)-1].Content, "this lookup failed") {
		t.Error("failure should be forwarded to the model as context")
	}
	if events[len(events)-1].Type != types.EventDone {
		t.Errorf("expected done, got %v", eventTypes(events))
	}
}

func TestNoDestinationSkipsVideoPipeline(t *testing.T) {
	search := &fakeTool{name: types.ToolWebSearch, fn: func(_ context.Context, args json.RawMessage) (*types.ToolResult, error) {
		return types.Succeeded(&types.WebSearchResult{Query: "carry-on"}), nil
	}}
	p := &mockProvider{
		decision: &llm.Response{ToolCalls: []llm.ToolCall{toolCall("s1", types.ToolWebSearch, `{"query":"best carry-on bag"}`)}},
		deltas:   textDeltas("Look for 40L bags."),
	}
	videos := &fakeVideos{single: []types.Video{{ID: "v"}}}
	rt := newTestRuntime(t, p, videos, search)

	events := runTurn(t, rt, TurnRequest{Message: "What's a good carry-on bag?", Mode: types.ModeAsk})

	if videos.calls() != 0 {
		t.Errorf("video pipeline should not run, ran %d steps", videos.calls())
	}
	for _, typ := range []types.EventType{types.EventVideos, types.EventVideoAnalysis, types.EventSmartVideoResult} {
		if indexOf(events, typ) != -1 {
			t.Errorf("unexpected %s event", typ)
		}
	}
}

func TestNoToolTurnWithoutDestinationSkipsVideos(t *testing.T) {
	p := &mockProvider{decision: &llm.Response{Content: "A 40L bag fits most airlines."}}
	videos := &fakeVideos{smart: &types.SmartVideoResult{Response: "x"}}
	rt := newTestRuntime(t, p, videos)

	events := runTurn(t, rt, TurnRequest{Message: "What's a good carry-on bag?", Mode: types.ModeAsk})
	if videos.calls() != 0 {
		t.Error("video pipeline should not run without a destination")
	}
	if contentOf(events) != "A 40L bag fits most airlines." {
		t.Errorf("content = %q", contentOf(events))
	}
	if p.streams() != 0 {
		t.Error("decision text should be replayed, not re-requested")
	}
	chunks := 0
	for _, e := range events {
		if e.Type == types.EventContent {
			chunks++
		}
	}
	if chunks < 3 {
		t.Errorf("replayed content should stay fine-grained, got %d chunks", chunks)
	}
}

func TestStreamFailureAfterCards(t *testing.T) {
	p := &mockProvider{
		decision: &llm.Response{ToolCalls: []llm.ToolCall{toolCall("c1", types.ToolSearchHotels, `{"city":"Paris"}`)}},
		deltas:   []llm.Delta{{Content: "Hotel Lut"}, {Err: errors.New("connection reset by peer")}},
	}
	rt := newTestRuntime(t, p, nil, hotelsFake{hotelTool()})

	events := runTurn(t, rt, TurnRequest{Message: "hotels in Paris", Mode: types.ModeAsk})

	if indexOf(events, types.EventToolCalls) != 0 || indexOf(events, types.EventCards) != 1 {
		t.Fatalf("earlier events must be kept, got %v", eventTypes(events))
	}
	last := events[len(events)-1]
	if last.Type != types.EventError {
		t.Fatalf("expected terminal error, got %v", eventTypes(events))
	}
	if !strings.Contains(last.Error, "connection reset") || last.Fallback != types.FallbackReply {
		t.Errorf("unexpected error event %+v", last)
	}
	if indexOf(events, types.EventDone) != -1 {
		t.Error("error replaces done")
	}

	msg := types.NewAssistantMessage("conv")
	for _, e := range events {
		msg.Apply(e)
	}
	if !strings.HasPrefix(msg.Content, "Sorry, I encountered an error") {
		t.Errorf("assistant text should be the fallback, got %q", msg.Content)
	}
}

func TestDecisionFailureIsFatal(t *testing.T) {
	p := &mockProvider{decisionErr: errors.New("401 invalid api key")}
	rt := newTestRuntime(t, p, nil)

	ch, err := rt.StartTurn(context.Background(), TurnRequest{Message: "hi", Mode: types.ModeAsk})
	if err == nil || !strings.Contains(err.Error(), "invalid api key") {
		t.Fatalf("expected decision error, got %v", err)
	}
	if ch != nil {
		t.Error("no event channel on decision failure")
	}
}

func TestStartTurnValidation(t *testing.T) {
	rt := newTestRuntime(t, &mockProvider{}, nil)
	if _, err := rt.StartTurn(context.Background(), TurnRequest{Message: "  "}); err == nil {
		t.Error("expected error for empty message")
	}
	if _, err := rt.StartTurn(context.Background(), TurnRequest{Message: "hi", Mode: "plan"}); err == nil {
		t.Error("expected error for unknown mode")
	}
}

// Both tools block until the other has started, so the turn only completes
// if they run concurrently.
func TestToolsRunConcurrentlyAndJoin(t *testing.T) {
	var started sync.WaitGroup
	started.Add(2)
	barrier := func(name string) *fakeTool {
		return &fakeTool{name: name, fn: func(ctx context.Context, _ json.RawMessage) (*types.ToolResult, error) {
			started.Done()
			waited := make(chan struct{})
			go func() { started.Wait(); close(waited) }()
			select {
			case <-waited:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			return types.Succeeded(&types.WebSearchResult{Query: name}), nil
		}}
	}
	p := &mockProvider{
		decision: &llm.Response{ToolCalls: []llm.ToolCall{
			toolCall("a", types.ToolWebSearch, `{"query":"a"}`),
			toolCall("b", types.ToolSearchReddit, `{"query":"b"}`),
		}},
		deltas: textDeltas("done"),
	}
	rt := newTestRuntime(t, p, nil, barrier(types.ToolWebSearch), barrier(types.ToolSearchReddit))

	events := runTurn(t, rt, TurnRequest{Message: "compare", Mode: types.ModeAsk})
	calls := events[0].ToolCalls
	if len(calls) != 2 {
		t.Fatalf("expected 2 settled calls, got %d", len(calls))
	}
	for i, id := range []string{"a", "b"} {
		if calls[i].ID != id || calls[i].Result == nil || !calls[i].Result.Success {
			t.Errorf("call %d: %+v", i, calls[i])
		}
	}
}

func TestModeEchoedOnEveryBranch(t *testing.T) {
	cases := []struct {
		name string
		mode types.Mode
		p    *mockProvider
	}{
		{"ask with tools", types.ModeAsk, &mockProvider{
			decision: &llm.Response{ToolCalls: []llm.ToolCall{toolCall("c", types.ToolSearchHotels, `{"city":"Oslo"}`)}},
			deltas:   textDeltas("x"),
		}},
		{"ask without tools", types.ModeAsk, &mockProvider{decision: &llm.Response{Content: "x"}}},
		{"itinerary", types.ModeItinerary, &mockProvider{decision: &llm.Response{}, deltas: textDeltas("x")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rt := newTestRuntime(t, tc.p, nil, hotelsFake{hotelTool()})
			events := runTurn(t, rt, TurnRequest{Message: "q", Mode: tc.mode})
			last := events[len(events)-1]
			if last.Type != types.EventDone || last.ChatMode != tc.mode {
				t.Errorf("terminal event %+v, want done with mode %s", last, tc.mode)
			}
		})
	}
}

func TestSmartPathReplacesModelAnswer(t *testing.T) {
	smart := &types.SmartVideoResult{
		Response:    "**Quick answer:** Go to Time Out Market.",
		Videos:      []types.Video{{ID: "v1", Analysis: &types.VideoAnalysis{VideoID: "v1", Summary: "s"}}},
		Synthesized: true,
	}
	p := &mockProvider{decision: &llm.Response{Content: "Lisbon has great food."}}
	videos := &fakeVideos{smart: smart}
	rt := newTestRuntime(t, p, videos)

	events := runTurn(t, rt, TurnRequest{
		Message: "Where should I eat?",
		Mode:    types.ModeAsk,
		Trip:    &types.TripContext{Destination: "Lisbon"},
	})

	if events[0].Type != types.EventSmartVideoResult {
		t.Fatalf("expected smartVideoResult first, got %v", eventTypes(events))
	}
	if contentOf(events) != smart.Response {
		t.Errorf("content should be the synthesized answer, got %q", contentOf(events))
	}
	if p.streams() != 0 {
		t.Error("model answer must not also be streamed")
	}
	if videos.analyzeN.Load() != 0 {
		t.Error("already-analyzed smart videos need no featured analysis")
	}
}

func TestSmartPathSkippedInItineraryMode(t *testing.T) {
	p := &mockProvider{decision: &llm.Response{}, deltas: textDeltas("plan")}
	videos := &fakeVideos{smart: &types.SmartVideoResult{Response: "x"}}
	rt := newTestRuntime(t, p, videos)

	runTurn(t, rt, TurnRequest{Message: "plan", Mode: types.ModeItinerary, Trip: &types.TripContext{Destination: "Rome"}})
	if videos.smartN.Load() != 0 {
		t.Error("itinerary turns should not short-circuit into the smart path")
	}
	if p.streams() != 1 {
		t.Error("itinerary turns should stream the model answer")
	}
}

func TestToolVideosGetFeaturedAnalysis(t *testing.T) {
	yt := &fakeTool{name: types.ToolSearchVideos, fn: func(context.Context, json.RawMessage) (*types.ToolResult, error) {
		return types.Succeeded(&types.VideoSearchResult{Videos: []types.Video{
			{ID: "v1", Title: "Kyoto in 4K"}, {ID: "v2", Title: "Kyoto food"}, {ID: "v1", Title: "Kyoto in 4K"},
		}}), nil
	}}
	p := &mockProvider{
		decision: &llm.Response{ToolCalls: []llm.ToolCall{toolCall("y", types.ToolSearchVideos, `{"query":"kyoto"}`)}},
		deltas:   textDeltas("Watch these."),
	}
	videos := &fakeVideos{}
	rt := newTestRuntime(t, p, videos, yt)

	events := runTurn(t, rt, TurnRequest{Message: "kyoto videos", Mode: types.ModeAsk, Trip: &types.TripContext{Destination: "Kyoto"}})

	vi := indexOf(events, types.EventVideos)
	ai := indexOf(events, types.EventVideoAnalysis)
	if vi == -1 || ai == -1 || ai < vi || ai > indexOf(events, types.EventContent) {
		t.Fatalf("expected videos then videoAnalysis before content, got %v", eventTypes(events))
	}
	if len(events[vi].Videos) != 3 {
		t.Errorf("tool videos are passed through as returned, got %d", len(events[vi].Videos))
	}
	if events[ai].VideoAnalysis.VideoID != "v1" || videos.analyzeN.Load() != 1 {
		t.Error("only the first video is analyzed")
	}
	if videos.smartN.Load() != 0 || videos.singleN.Load() != 0 {
		t.Error("model-chosen videos make the fallback chain unnecessary")
	}
}

func TestToolVideosNotDeduplicatedAcrossCalls(t *testing.T) {
	yt := &fakeTool{name: types.ToolSearchVideos, fn: func(context.Context, json.RawMessage) (*types.ToolResult, error) {
		return types.Succeeded(&types.VideoSearchResult{Videos: []types.Video{{ID: "abc", Title: "Porto walking tour"}}}), nil
	}}
	p := &mockProvider{
		decision: &llm.Response{ToolCalls: []llm.ToolCall{
			toolCall("y1", types.ToolSearchVideos, `{"query":"porto walk"}`),
			toolCall("y2", types.ToolSearchVideos, `{"query":"porto tour"}`),
		}},
		deltas: textDeltas("Two picks."),
	}
	rt := newTestRuntime(t, p, nil, yt)

	events := runTurn(t, rt, TurnRequest{Message: "porto videos", Mode: types.ModeAsk})

	vi := indexOf(events, types.EventVideos)
	if vi == -1 {
		t.Fatalf("expected videos event, got %v", eventTypes(events))
	}
	if n := len(events[vi].Videos); n != 2 {
		t.Errorf("expected both calls' videos, got %d", n)
	}
}

func TestSmartFallsBackToSingleQuery(t *testing.T) {
	p := &mockProvider{
		decision: &llm.Response{ToolCalls: []llm.ToolCall{toolCall("c", types.ToolSearchHotels, `{"city":"Oslo"}`)}},
		deltas:   textDeltas("x"),
	}
	videos := &fakeVideos{single: []types.Video{{ID: "s1", Title: "Oslo guide"}}}
	rt := newTestRuntime(t, p, videos, hotelsFake{hotelTool()})

	events := runTurn(t, rt, TurnRequest{Message: "hotels in oslo", Mode: types.ModeAsk})
	vi := indexOf(events, types.EventVideos)
	if vi == -1 || events[vi].Videos[0].ID != "s1" {
		t.Fatalf("expected single-query videos, got %v", eventTypes(events))
	}
	if indexOf(events, types.EventCards) > vi {
		t.Error("cards come before videos")
	}
	if indexOf(events, types.EventVideoAnalysis) == -1 {
		t.Error("featured video should be analyzed")
	}
}

func TestTurnTimeoutWhileWaitingForTools(t *testing.T) {
	slow := &fakeTool{name: types.ToolWebSearch, fn: func(ctx context.Context, _ json.RawMessage) (*types.ToolResult, error) {
		<-ctx.Done()
		time.Sleep(50 * time.Millisecond)
		return nil, ctx.Err()
	}}
	p := &mockProvider{decision: &llm.Response{ToolCalls: []llm.ToolCall{toolCall("s", types.ToolWebSearch, `{"query":"x"}`)}}}
	rt := newTestRuntime(t, p, nil, slow)
	rt.turnTimeout = 30 * time.Millisecond

	events := runTurn(t, rt, TurnRequest{Message: "slow", Mode: types.ModeAsk})
	if len(events) != 1 || events[0].Type != types.EventError {
		t.Fatalf("expected a single terminal error, got %v", eventTypes(events))
	}
	if !strings.Contains(events[0].Error, "deadline exceeded") {
		t.Errorf("unexpected error %q", events[0].Error)
	}
}

func TestHistoryWindowPassedToModel(t *testing.T) {
	history := make([]*types.Message, 14)
	for i := range history {
		history[i] = &types.Message{Role: types.RoleUser, Content: "earlier"}
	}
	p := &mockProvider{decision: &llm.Response{}, deltas: textDeltas("ok")}
	rt := newTestRuntime(t, p, nil)

	runTurn(t, rt, TurnRequest{History: history, Message: "now", Mode: types.ModeAsk})
	// system + 10 history + user
	if n := len(p.streamMessages); n != 12 {
		t.Errorf("expected 12 messages, got %d", n)
	}
}
