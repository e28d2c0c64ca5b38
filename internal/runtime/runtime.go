package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/user/wayfarer/internal/cards"
	ctxengine "github.com/user/wayfarer/internal/context"
	"github.com/user/wayfarer/internal/itinerary"
	"github.com/user/wayfarer/internal/metrics"
	"github.com/user/wayfarer/internal/types"
	"github.com/user/wayfarer/internal/video"
	"github.com/user/wayfarer/pkg/llm"
)

// DefaultTurnTimeout bounds a whole turn, tool calls and stream included.
const DefaultTurnTimeout = 120 * time.Second

// maxToolResultChars caps how much of one tool result is replayed to the model.
const maxToolResultChars = 12000

// VideoEnricher is the part of the video pipeline the orchestrator drives.
type VideoEnricher interface {
	Smart(ctx context.Context, req video.Request) *types.SmartVideoResult
	Single(ctx context.Context, req video.Request) []types.Video
	Analyze(ctx context.Context, v types.Video, req video.Request) *types.VideoAnalysis
}

// Runtime orchestrates chat turns. It holds no conversation state: history
// is passed in with every turn.
type Runtime struct {
	provider    llm.Provider
	engine      *ctxengine.Engine
	registry    *Registry
	videos      VideoEnricher
	turnTimeout time.Duration
	now         func() time.Time
}

// New creates a Runtime. videos may be nil to disable video enrichment.
func New(provider llm.Provider, engine *ctxengine.Engine, registry *Registry, videos VideoEnricher, turnTimeout time.Duration) *Runtime {
	if turnTimeout <= 0 {
		turnTimeout = DefaultTurnTimeout
	}
	return &Runtime{
		provider:    provider,
		engine:      engine,
		registry:    registry,
		videos:      videos,
		turnTimeout: turnTimeout,
		now:         time.Now,
	}
}

// Registry returns the tool registry the runtime exposes to the model.
func (rt *Runtime) Registry() *Registry {
	return rt.registry
}

// TurnRequest is the input of one turn.
type TurnRequest struct {
	History []*types.Message
	Message string
	Mode    types.Mode
	Trip    *types.TripContext
}

// turn carries the per-turn state shared by the steps of runTurn.
type turn struct {
	parent   context.Context
	out      chan types.Event
	req      TurnRequest
	mode     types.Mode
	messages []llm.Message
}

// send delivers e unless the caller has gone away. It deliberately ignores
// the turn deadline so a timeout can still be reported.
func (t *turn) send(e types.Event) bool {
	select {
	case t.out <- e:
		return true
	case <-t.parent.Done():
		return false
	}
}

// StartTurn runs the decision call synchronously and, if it succeeds,
// returns a channel carrying the rest of the turn's events. The channel is
// closed after the terminal done or error event. A decision-call failure is
// returned as an error and no events are produced.
func (rt *Runtime) StartTurn(ctx context.Context, req TurnRequest) (<-chan types.Event, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, errors.New("message is required")
	}
	mode, err := types.ParseMode(string(req.Mode))
	if err != nil {
		return nil, err
	}
	req.Mode = mode

	turnCtx, cancel := context.WithTimeout(ctx, rt.turnTimeout)

	system := ctxengine.BuildSystemPrompt(mode, req.Trip, rt.now())
	messages := rt.engine.BuildMessages(system, req.History, req.Message)

	resp, err := rt.provider.Complete(turnCtx, messages, rt.registry.AsLLMTools())
	if err != nil {
		cancel()
		metrics.TurnsTotal.WithLabelValues(string(mode), "decision_error").Inc()
		return nil, fmt.Errorf("decision call: %w", err)
	}

	t := &turn{
		parent:   ctx,
		out:      make(chan types.Event, 16),
		req:      req,
		mode:     mode,
		messages: messages,
	}
	go func() {
		defer cancel()
		defer close(t.out)
		rt.runTurn(turnCtx, t, resp)
	}()
	return t.out, nil
}

func (rt *Runtime) runTurn(ctx context.Context, t *turn, resp *llm.Response) {
	if len(resp.ToolCalls) == 0 {
		rt.answerDirectly(ctx, t, resp)
		return
	}

	calls, err := rt.executeTools(ctx, resp.ToolCalls)
	if err != nil {
		rt.fail(t, err)
		return
	}
	if !t.send(types.ToolCallsEvent(calls)) {
		return
	}

	// Enrichment runs while cards are extracted and emitted.
	videoReq := rt.videoRequest(t, calls)
	enriched := make(chan []types.Event, 1)
	go func() {
		enriched <- rt.enrichVideos(ctx, calls, videoReq)
	}()

	if cs := cards.Extract(calls); len(cs) > 0 {
		if !t.send(types.CardsEvent(cs)) {
			return
		}
	}

	select {
	case events := <-enriched:
		for _, e := range events {
			if !t.send(e) {
				return
			}
		}
	case <-ctx.Done():
		rt.fail(t, ctx.Err())
		return
	}

	t.messages = append(t.messages, llm.Message{Role: llm.RoleAssistant, Content: resp.Content, Tools: resp.ToolCalls})
	for _, c := range calls {
		t.messages = append(t.messages, llm.ToolResultMessage(c.ID, c.Name, toolResultContent(c.Result)))
	}

	text, err := rt.stream(ctx, t)
	if err != nil {
		rt.fail(t, err)
		return
	}
	rt.finish(t, text, pooledCitations(calls))
}

// answerDirectly handles a decision call that requested no tools.
func (rt *Runtime) answerDirectly(ctx context.Context, t *turn, resp *llm.Response) {
	dest := t.req.Trip.DestinationName()
	if t.mode == types.ModeAsk && dest != "" && rt.videos != nil {
		if smart := rt.videos.Smart(ctx, rt.videoRequestFor(t, dest)); smart != nil {
			if !t.send(types.SmartVideoEvent(smart)) {
				return
			}
			if !rt.replay(t, smart.Response) {
				return
			}
			rt.finish(t, smart.Response, nil)
			return
		}
	}

	text := resp.Content
	if strings.TrimSpace(text) != "" {
		if !rt.replay(t, text) {
			return
		}
	} else {
		var err error
		if text, err = rt.stream(ctx, t); err != nil {
			rt.fail(t, err)
			return
		}
	}
	rt.finish(t, text, nil)
}

// executeTools runs every requested call concurrently and returns the
// records in request order once all have settled. It returns early only when
// the turn deadline passes.
func (rt *Runtime) executeTools(ctx context.Context, requested []llm.ToolCall) ([]types.ToolCall, error) {
	calls := make([]types.ToolCall, len(requested))
	for i := range requested {
		if requested[i].ID == "" {
			requested[i].ID = types.NewToolCallID()
		}
		args := strings.TrimSpace(requested[i].Function.Arguments)
		if args == "" {
			args = "{}"
		}
		calls[i] = types.ToolCall{
			ID:    requested[i].ID,
			Name:  requested[i].Function.Name,
			Input: json.RawMessage(args),
		}
	}

	var g errgroup.Group
	for i := range calls {
		g.Go(func() error {
			calls[i].Result = rt.registry.Execute(ctx, calls[i].Name, calls[i].Input)
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()
	select {
	case <-done:
		return calls, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for tools: %w", ctx.Err())
	}
}

func (rt *Runtime) videoRequest(t *turn, calls []types.ToolCall) video.Request {
	dest := t.req.Trip.DestinationName()
	if dest == "" {
		dest = destinationFromCalls(calls)
	}
	return rt.videoRequestFor(t, dest)
}

func (rt *Runtime) videoRequestFor(t *turn, dest string) video.Request {
	return video.Request{
		Question:     t.req.Message,
		Destination:  dest,
		TravelerType: t.req.Trip.TravelerType(),
	}
}

// destinationFromCalls returns the first location-like argument the model
// passed to any tool.
func destinationFromCalls(calls []types.ToolCall) string {
	for _, c := range calls {
		var args map[string]any
		if err := json.Unmarshal(c.Input, &args); err != nil {
			continue
		}
		for _, key := range []string{"location", "city", "destination"} {
			if s, ok := args[key].(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

// enrichVideos returns the video events for a turn that used tools: videos
// the model already searched for, else the smart path, else a single query.
// A featured-video analysis follows when no video carries one yet.
func (rt *Runtime) enrichVideos(ctx context.Context, calls []types.ToolCall, req video.Request) []types.Event {
	var events []types.Event

	videos := videosFromCalls(calls)
	if len(videos) > 0 {
		metrics.ObserveVideo("tool", len(videos))
		events = append(events, types.VideosEvent(videos))
	} else if req.Destination != "" && rt.videos != nil {
		if smart := rt.videos.Smart(ctx, req); smart != nil {
			videos = smart.Videos
			events = append(events, types.SmartVideoEvent(smart))
		} else if single := rt.videos.Single(ctx, req); len(single) > 0 {
			videos = single
			events = append(events, types.VideosEvent(single))
		}
	}

	if len(videos) > 0 && rt.videos != nil {
		analyzed := lo.SomeBy(videos, func(v types.Video) bool { return v.Analysis != nil })
		if !analyzed {
			if a := rt.videos.Analyze(ctx, videos[0], req); a != nil {
				events = append(events, types.VideoAnalysisEvent(a))
			}
		}
	}
	return events
}

func videosFromCalls(calls []types.ToolCall) []types.Video {
	var videos []types.Video
	for _, c := range calls {
		if c.Result == nil || !c.Result.Success {
			continue
		}
		if res, ok := c.Result.Data.(*types.VideoSearchResult); ok {
			videos = append(videos, res.Videos...)
		}
	}
	return videos
}

// stream runs the final streaming call, forwarding each delta as it arrives.
func (rt *Runtime) stream(ctx context.Context, t *turn) (string, error) {
	deltas, err := rt.provider.Stream(ctx, t.messages, nil)
	if err != nil {
		return "", fmt.Errorf("start stream: %w", err)
	}

	var buf strings.Builder
	for {
		select {
		case d, ok := <-deltas:
			if !ok {
				if err := ctx.Err(); err != nil {
					return buf.String(), fmt.Errorf("stream: %w", err)
				}
				return buf.String(), nil
			}
			if d.Err != nil {
				return buf.String(), fmt.Errorf("stream: %w", d.Err)
			}
			if d.Content == "" {
				continue
			}
			buf.WriteString(d.Content)
			if !t.send(types.ContentEvent(d.Content)) {
				return buf.String(), t.parent.Err()
			}
		case <-ctx.Done():
			return buf.String(), fmt.Errorf("stream: %w", ctx.Err())
		}
	}
}

var chunkPattern = regexp.MustCompile(`^\s+|\S+\s*`)

// replay emits already-complete text as word-sized content events.
func (rt *Runtime) replay(t *turn, text string) bool {
	for _, chunk := range chunkPattern.FindAllString(text, -1) {
		if !t.send(types.ContentEvent(chunk)) {
			return false
		}
	}
	return true
}

func (rt *Runtime) finish(t *turn, text string, citations []types.Citation) {
	if t.mode == types.ModeItinerary {
		if it := itinerary.Parse(text); it != nil {
			if !t.send(types.ItineraryEvent(it)) {
				return
			}
		}
	}
	metrics.TurnsTotal.WithLabelValues(string(t.mode), "ok").Inc()
	t.send(types.DoneEvent(citations, t.mode))
}

func (rt *Runtime) fail(t *turn, err error) {
	outcome := "stream_error"
	if errors.Is(err, context.DeadlineExceeded) {
		outcome = "timeout"
	}
	metrics.TurnsTotal.WithLabelValues(string(t.mode), outcome).Inc()
	slog.Warn("turn failed after events were emitted", "mode", t.mode, "outcome", outcome, "error", err)
	t.send(types.ErrorEvent(err, t.mode))
}

// pooledCitations gathers the sources of every tool result. Duplicates
// across tools are kept.
func pooledCitations(calls []types.ToolCall) []types.Citation {
	return lo.FlatMap(calls, func(c types.ToolCall, _ int) []types.Citation {
		if c.Result == nil {
			return nil
		}
		return c.Result.Sources
	})
}

// toolResultContent is the JSON replayed to the model for one call.
func toolResultContent(res *types.ToolResult) string {
	if res == nil {
		return `{"success":false,"error":"no result"}`
	}
	if !res.Success {
		data, _ := json.Marshal(map[string]any{"success": false, "error": "this lookup failed: " + res.Error})
		return string(data)
	}
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Sprintf(`{"success":false,"error":%q}`, err.Error())
	}
	if len(data) > maxToolResultChars {
		return string(data[:maxToolResultChars]) + "\n[truncated]"
	}
	return string(data)
}
