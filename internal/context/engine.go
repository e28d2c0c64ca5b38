// internal/context/engine.go
package context

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"github.com/user/wayfarer/internal/types"
	"github.com/user/wayfarer/pkg/llm"
)

// DefaultHistoryLimit is how many prior turns a turn replays to the model.
// A turn is a user message and the replies that follow it.
const DefaultHistoryLimit = 10

// Engine assembles token-budgeted conversation context for the model.
type Engine struct {
	tokenizer    *tiktoken.Tiktoken
	maxTokens    int
	reserve      int
	historyLimit int
}

// New creates a context engine with the specified token budget.
// model selects the tokenizer (e.g. "gpt-4o"); maxTokens is the context
// window and reserve the share kept free for the response.
func New(model string, maxTokens, reserve, historyLimit int) (*Engine, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		// Fallback to cl100k_base for unknown models
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("get tokenizer: %w", err)
		}
	}
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &Engine{
		tokenizer:    enc,
		maxTokens:    maxTokens,
		reserve:      reserve,
		historyLimit: historyLimit,
	}, nil
}

func (e *Engine) countTokens(text string) int {
	return len(e.tokenizer.Encode(text, nil, nil))
}

// HistoryLimit returns the number of prior turns replayed.
func (e *Engine) HistoryLimit() int {
	return e.historyLimit
}

// BuildMessages returns system + the most recent prior messages + the new
// user message. At most historyLimit prior turns are kept, and older messages
// are dropped first when the input budget would be exceeded. The system
// prompt and the user message are always included.
func (e *Engine) BuildMessages(system string, history []*types.Message, userMessage string) []llm.Message {
	budget := e.maxTokens - e.reserve - e.countTokens(system) - e.countTokens(userMessage)

	recent := Window(history, e.historyLimit)
	kept := make([]llm.Message, 0, len(recent))
	used := 0
	for i := len(recent) - 1; i >= 0; i-- {
		msg := historyMessage(recent[i])
		n := e.countTokens(msg.Content)
		if used+n > budget {
			break
		}
		kept = append(kept, msg)
		used += n
	}

	messages := make([]llm.Message, 0, len(kept)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: system})
	for i := len(kept) - 1; i >= 0; i-- {
		messages = append(messages, kept[i])
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: userMessage})
	return messages
}

// Window returns the text-carrying messages of the last limit turns, oldest
// first. Each user message opens a turn.
func Window(history []*types.Message, limit int) []*types.Message {
	var out []*types.Message
	turns := 0
	for i := len(history) - 1; i >= 0 && turns < limit; i-- {
		m := history[i]
		if m == nil || m.Content == "" {
			continue
		}
		if m.Role != types.RoleUser && m.Role != types.RoleAssistant {
			continue
		}
		out = append(out, m)
		if m.Role == types.RoleUser {
			turns++
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// historyMessage replays a stored message as plain text. Tool results from
// earlier turns are not replayed; the answer that used them already is.
func historyMessage(m *types.Message) llm.Message {
	role := llm.RoleUser
	if m.Role == types.RoleAssistant {
		role = llm.RoleAssistant
	}
	return llm.Message{Role: role, Content: m.Content}
}
