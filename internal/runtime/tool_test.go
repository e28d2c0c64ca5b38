package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/user/wayfarer/internal/types"
)

type searchParams struct {
	Query string `json:"query"`
}

func (p *searchParams) Validate() error {
	if strings.TrimSpace(p.Query) == "" {
		return errors.New("query must not be empty")
	}
	return nil
}

// fakeTool runs fn for every call and counts invocations.
type fakeTool struct {
	name  string
	calls atomic.Int32
	fn    func(ctx context.Context, args json.RawMessage) (*types.ToolResult, error)
}

func (f *fakeTool) Name() string { return f.name }
func (f *fakeTool) Description() string { return "test tool " + f.name }
func (f *fakeTool) Parameters() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"query":{"type":"string"}},"required":["query"]}`)
}
func (f *fakeTool) Execute(ctx context.Context, args json.RawMessage) (*types.ToolResult, error) {
	f.calls.Add(1)
	return f.fn(ctx, args)
}

func webSearchTool() *fakeTool {
	return &fakeTool{name: types.ToolWebSearch, fn: func(_ context.Context, args json.RawMessage) (*types.ToolResult, error) {
		var p searchParams
		if err := DecodeParams(args, &p); err != nil {
			return nil, err
		}
		return types.Succeeded(&types.WebSearchResult{Query: p.Query},
			types.Citation{URL: "https://example.com", Title: p.Query, Confidence: 0.8}), nil
	}}
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	r.Register(webSearchTool())

	tool, ok := r.Get(types.ToolWebSearch)
	if !ok {
		t.Fatal("expected to find web_search tool")
	}
	if tool.Name() != types.ToolWebSearch {
		t.Errorf("expected name web_search, got %s", tool.Name())
	}
	if _, ok := r.Get("nonexistent"); ok {
		t.Error("expected not to find nonexistent tool")
	}
}

func TestRegistryAsLLMToolsSorted(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeTool{name: "search_places"})
	r.Register(&fakeTool{name: "get_weather"})

	tools := r.AsLLMTools()
	if len(tools) != 2 {
		t.Fatalf("expected 2 tools, got %d", len(tools))
	}
	if tools[0].Function.Name != "get_weather" || tools[1].Function.Name != "search_places" {
		t.Errorf("expected lexical order, got %s, %s", tools[0].Function.Name, tools[1].Function.Name)
	}
	if tools[0].Type != "function" {
		t.Errorf("expected type function, got %s", tools[0].Type)
	}
	if len(tools[0].Function.Parameters) == 0 {
		t.Error("expected parameters schema")
	}
}

func TestExecuteSuccess(t *testing.T) {
	r := NewRegistry()
	r.Register(webSearchTool())

	res := r.Execute(context.Background(), types.ToolWebSearch, json.RawMessage(`{"query":"lisbon trams"}`))
	if !res.Success {
		t.Fatalf("expected success, got error %q", res.Error)
	}
	data, ok := res.Data.(*types.WebSearchResult)
	if !ok || data.Query != "lisbon trams" {
		t.Errorf("unexpected payload %#v", res.Data)
	}
	if len(res.Sources) != 1 || res.Timestamp.IsZero() {
		t.Errorf("expected sources and timestamp, got %+v", res)
	}
}

func TestExecuteUnknownTool(t *testing.T) {
	r := NewRegistry()
	res := r.Execute(context.Background(), "book_flight", json.RawMessage(`{}`))
	if res.Success || !strings.Contains(res.Error, "unknown tool") {
		t.Errorf("expected unknown tool failure, got %+v", res)
	}
}

func TestExecuteMissingRequiredSkipsTool(t *testing.T) {
	r := NewRegistry()
	tool := webSearchTool()
	r.Register(tool)

	for _, args := range []string{`{}`, `{"query":null}`, `[1,2]`, ``} {
		res := r.Execute(context.Background(), types.ToolWebSearch, json.RawMessage(args))
		if res.Success || !strings.Contains(res.Error, "invalid parameters") {
			t.Errorf("args %q: expected invalid parameters, got %+v", args, res)
		}
	}
	if n := tool.calls.Load(); n != 0 {
		t.Errorf("tool should not run on invalid parameters, ran %d times", n)
	}
}

func TestExecuteTypedValidation(t *testing.T) {
	r := NewRegistry()
	r.Register(webSearchTool())

	res := r.Execute(context.Background(), types.ToolWebSearch, json.RawMessage(`{"query":"   "}`))
	if res.Success || !strings.Contains(res.Error, "query must not be empty") {
		t.Errorf("expected typed validation failure, got %+v", res)
	}
}

// Whatever the tool does, Execute returns a failed result with a message.
func TestExecuteIsolatesFailures(t *testing.T) {
	cases := map[string]func(context.Context, json.RawMessage) (*types.ToolResult, error){
		"error": func(context.Context, json.RawMessage) (*types.ToolResult, error) {
			return nil, errors.New("dial tcp: connection refused")
		},
		"panic": func(context.Context, json.RawMessage) (*types.ToolResult, error) {
			panic("nil map write")
		},
		"nil": func(context.Context, json.RawMessage) (*types.ToolResult, error) {
			return nil, nil
		},
		"failed-with-data": func(context.Context, json.RawMessage) (*types.ToolResult, error) {
			return &types.ToolResult{Success: false, Data: &types.WeatherResult{}}, nil
		},
		"success-without-data": func(context.Context, json.RawMessage) (*types.ToolResult, error) {
			return &types.ToolResult{Success: true}, nil
		},
	}
	for name, fn := range cases {
		t.Run(name, func(t *testing.T) {
			r := NewRegistry()
			r.Register(&fakeTool{name: types.ToolGetWeather, fn: fn})

			res := r.Execute(context.Background(), types.ToolGetWeather, json.RawMessage(`{"query":"x"}`))
			if res == nil {
				t.Fatal("expected a result")
			}
			if res.Success {
				t.Error("expected failure")
			}
			if res.Error == "" {
				t.Error("expected non-empty error")
			}
			if res.Data != nil {
				t.Error("failed result must not carry data")
			}
		})
	}
}
