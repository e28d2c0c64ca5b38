package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/user/wayfarer/internal/metrics"
	"github.com/user/wayfarer/internal/types"
	"github.com/user/wayfarer/pkg/llm"
)

var (
	ErrUnknownTool       = errors.New("unknown tool")
	ErrInvalidParameters = errors.New("invalid parameters")
)

// Tool defines the interface for an executable tool. Execute may return a
// failed ToolResult or an error; the executor normalizes both.
type Tool interface {
	Name() string
	Description() string
	Parameters() json.RawMessage
	Execute(ctx context.Context, args json.RawMessage) (*types.ToolResult, error)
}

// Params is implemented by typed tool parameter structs.
type Params interface {
	Validate() error
}

// DecodeParams unmarshals args into a typed parameter struct and validates
// it. Failures wrap ErrInvalidParameters.
func DecodeParams(args json.RawMessage, p Params) error {
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	if err := json.Unmarshal(args, p); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParameters, err)
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParameters, err)
	}
	return nil
}

// Registry holds registered tools and provides lookup.
type Registry struct {
	tools    map[string]Tool
	required map[string][]string
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:    make(map[string]Tool),
		required: make(map[string][]string),
	}
}

// Register adds a tool to the registry.
func (r *Registry) Register(t Tool) {
	r.tools[t.Name()] = t
	r.required[t.Name()] = requiredKeys(t.Parameters())
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the registered tool names in lexical order.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.tools))
	for name := range r.tools {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// All returns all registered tools ordered by name.
func (r *Registry) All() []Tool {
	out := make([]Tool, 0, len(r.tools))
	for _, name := range r.Names() {
		out = append(out, r.tools[name])
	}
	return out
}

// AsLLMTools converts registered tools to the LLM provider format.
func (r *Registry) AsLLMTools() []llm.Tool {
	out := make([]llm.Tool, 0, len(r.tools))
	for _, t := range r.All() {
		out = append(out, llm.Tool{
			Type: "function",
			Function: llm.Function{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return out
}

func requiredKeys(schema json.RawMessage) []string {
	var s struct {
		Required []string `json:"required"`
	}
	if err := json.Unmarshal(schema, &s); err != nil {
		return nil
	}
	return s.Required
}

// checkRequired reports the first required key missing or null in args.
func checkRequired(args json.RawMessage, required []string) error {
	obj := map[string]json.RawMessage{}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &obj); err != nil {
			return fmt.Errorf("%w: arguments must be a JSON object", ErrInvalidParameters)
		}
	}
	for _, key := range required {
		v, ok := obj[key]
		if !ok || string(v) == "null" {
			return fmt.Errorf("%w: missing required parameter %q", ErrInvalidParameters, key)
		}
	}
	return nil
}

// Execute runs the named tool and always returns a result. Unknown tools,
// invalid parameters, returned errors and panics all become failed results;
// nothing a tool does propagates as an error to the caller.
func (r *Registry) Execute(ctx context.Context, name string, args json.RawMessage) (result *types.ToolResult) {
	started := time.Now()
	status := "ok"
	defer func() {
		if rec := recover(); rec != nil {
			status = "panic"
			slog.Error("tool panicked", "tool", name, "args", string(args), "panic", rec)
			result = types.Failed("tool %s failed: %v", name, rec)
		}
		metrics.ObserveTool(name, status, started)
	}()

	tool, ok := r.Get(name)
	if !ok {
		status = "unknown"
		slog.Warn("unknown tool requested", "tool", name)
		return types.Failed("%v: %s", ErrUnknownTool, name)
	}
	if err := checkRequired(args, r.required[name]); err != nil {
		status = "invalid"
		slog.Warn("tool parameters rejected", "tool", name, "args", string(args), "error", err)
		return types.Failed("%v", err)
	}

	res, err := tool.Execute(ctx, args)
	switch {
	case err != nil:
		status = "error"
		if errors.Is(err, ErrInvalidParameters) {
			status = "invalid"
		}
		slog.Warn("tool failed", "tool", name, "args", string(args), "error", err)
		return types.Failed("%v", err)
	case res == nil:
		status = "error"
		return types.Failed("tool %s returned no result", name)
	case !res.Success:
		status = "error"
		if res.Error == "" {
			res.Error = fmt.Sprintf("tool %s failed", name)
		}
		res.Data = nil
		slog.Warn("tool reported failure", "tool", name, "args", string(args), "error", res.Error)
	case res.Data == nil:
		status = "error"
		return types.Failed("tool %s succeeded without data", name)
	}
	if res.Timestamp.IsZero() {
		res.Timestamp = time.Now()
	}
	return res
}
