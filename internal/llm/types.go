package llm

import "context"

// Role values for conversation messages.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one role/content pair in a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage reports token consumption for one call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Total returns combined input and output tokens.
func (u Usage) Total() int {
	return u.InputTokens + u.OutputTokens
}

// Summarizer produces a short summary of one source file.
type Summarizer interface {
	Summarize(ctx context.Context, content, language string) (string, error)
}

// Scorer returns the raw newline-delimited "path,score" response for a
// query over labeled summaries.
type Scorer interface {
	Score(ctx context.Context, query string, entries []string) (string, error)
}

// Generator produces the final answer from conversation messages.
type Generator interface {
	Generate(ctx context.Context, messages []Message, system string) (string, error)
}

// Admitter gates every outbound call. Implemented by ratelimit.Limiter.
type Admitter interface {
	Admit(estimatedTokens int) error
}

// CallLog describes one completed (or failed) upstream call.
type CallLog struct {
	Endpoint  string
	Operation string
	Status    int
	ElapsedMs int64
}

// CallObserver receives a CallLog after every upstream call attempt.
type CallObserver func(CallLog)

// request is the wire shape of a messages-API call.
type request struct {
	Model     string    `json:"model"`
	Messages  []Message `json:"messages"`
	System    string    `json:"system,omitempty"`
	MaxTokens int       `json:"max_tokens"`
}

// response is the wire shape of a messages-API reply.
type response struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      Usage  `json:"usage"`
}
