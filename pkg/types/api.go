package types

import "time"

// Roles accepted in chat messages.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Done reasons reported on the final record of a generation.
const (
	DoneStop    = "stop"
	DoneLength  = "length"
	DoneTimeout = "timeout"
	DoneError   = "error"
)

// Options carries per-request sampling overrides. Nil fields keep the server defaults.
type Options struct {
	// Sampling temperature (higher = more random).
	// example: 0.7
	Temperature *float64 `json:"temperature,omitempty" example:"0.7"`
	// Nucleus sampling probability.
	// example: 0.9
	TopP *float64 `json:"top_p,omitempty" example:"0.9"`
	// Top-K sampling: limit candidates to top K tokens.
	// example: 40
	TopK *int `json:"top_k,omitempty" example:"40"`
	// Maximum number of new tokens to generate.
	// example: 128
	NumPredict *int `json:"num_predict,omitempty" example:"128"`
	// Penalty applied to tokens already generated.
	// example: 1.1
	RepeatPenalty *float64 `json:"repeat_penalty,omitempty" example:"1.1"`
	// Random seed for reproducibility; omitted means entropy seeded.
	// example: 42
	Seed *int64 `json:"seed,omitempty" example:"42"`
}

// GenerateRequest is the payload of POST /api/generate.
type GenerateRequest struct {
	// Required model identifier.
	// example: tinyllama-q4
	Model string `json:"model" example:"tinyllama-q4"`
	// Prompt text to generate a completion for.
	// example: Write a haiku about the ocean.
	Prompt string `json:"prompt" example:"Write a haiku about the ocean."`
	// Optional system text prepended to the prompt.
	System string `json:"system,omitempty"`
	// Context returned by a previous response, used to continue a conversation.
	Context []int `json:"context,omitempty"`
	// Stream NDJSON records; defaults to true when omitted.
	// example: true
	Stream *bool `json:"stream,omitempty" example:"true"`
	// Optional output format hint ("json").
	Format string `json:"format,omitempty"`
	// Sampling overrides.
	Options *Options `json:"options,omitempty"`
}

// Message is a single chat turn.
type Message struct {
	// One of system, user, assistant.
	// example: user
	Role string `json:"role" example:"user"`
	// example: Why is the sky blue?
	Content string `json:"content" example:"Why is the sky blue?"`
}

// ChatRequest is the payload of POST /api/chat.
type ChatRequest struct {
	// example: tinyllama-q4
	Model    string    `json:"model" example:"tinyllama-q4"`
	Messages []Message `json:"messages"`
	// Stream NDJSON records; defaults to true when omitted.
	Stream  *bool    `json:"stream,omitempty"`
	Options *Options `json:"options,omitempty"`
}

// IsStreaming reports whether the caller asked for incremental output.
func (r GenerateRequest) IsStreaming() bool { return r.Stream == nil || *r.Stream }

// IsStreaming reports whether the caller asked for incremental output.
func (r ChatRequest) IsStreaming() bool { return r.Stream == nil || *r.Stream }

// Metrics are the timing and usage counters of a finished generation. All durations
// are nanoseconds. PromptEvalDuration and EvalDuration are estimates derived from the
// total duration by a fixed split, not backend measurements.
type Metrics struct {
	TotalDuration      time.Duration `json:"total_duration,omitempty"`
	LoadDuration       time.Duration `json:"load_duration,omitempty"`
	PromptEvalCount    int           `json:"prompt_eval_count,omitempty"`
	PromptEvalDuration time.Duration `json:"prompt_eval_duration,omitempty"`
	EvalCount          int           `json:"eval_count,omitempty"`
	EvalDuration       time.Duration `json:"eval_duration,omitempty"`
}

// GenerateResponse is a streamed or final record of /api/generate.
type GenerateResponse struct {
	// example: tinyllama-q4
	Model     string    `json:"model" example:"tinyllama-q4"`
	CreatedAt time.Time `json:"created_at"`
	// Generated text (a delta when streaming).
	Response string `json:"response"`
	Done     bool   `json:"done"`
	// example: stop
	DoneReason string `json:"done_reason,omitempty" example:"stop"`
	// Token history to pass back as context for continuation.
	Context []int `json:"context,omitempty"`
	// Set when generation aborted after producing partial output.
	Error string `json:"error,omitempty"`
	Metrics
}

// ChatResponse is a streamed or final record of /api/chat.
type ChatResponse struct {
	Model      string    `json:"model"`
	CreatedAt  time.Time `json:"created_at"`
	Message    Message   `json:"message"`
	Done       bool      `json:"done"`
	DoneReason string    `json:"done_reason,omitempty"`
	Error      string    `json:"error,omitempty"`
	Metrics
}

// ModelsResponse wraps the list of models returned by GET /api/tags and /api/search.
type ModelsResponse struct {
	// List of available models.
	Models []Model `json:"models"`
}

// ModelRequest names a model for /api/unload and /api/delete.
type ModelRequest struct {
	// example: tinyllama-q4
	Model string `json:"model" example:"tinyllama-q4"`
}

// UnloadResponse reports whether an unload or delete removed anything.
type UnloadResponse struct {
	Model   string `json:"model"`
	Removed bool   `json:"removed"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// Error kind (bad_request, not_found, busy, inference_failure, ...).
	// example: bad_request
	Kind string `json:"kind,omitempty" example:"bad_request"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}

// RunningModel summarizes a loaded instance for /api/ps.
type RunningModel struct {
	// ID of the model this instance serves.
	// example: tinyllama-q4
	Model string `json:"model" example:"tinyllama-q4"`
	// Session identifier of the current load epoch.
	Session  string    `json:"session"`
	LoadedAt time.Time `json:"loaded_at"`
	LastUsed time.Time `json:"last_used"`
	// example: 668788096
	SizeBytes int64 `json:"size" example:"668788096"`
	// Current queue length for incoming requests.
	// example: 0
	QueueLen int `json:"queue_len" example:"0"`
	// Number of in-flight generations (0 or 1).
	// example: 1
	Inflight int `json:"inflight" example:"1"`
	// Maximum queued requests allowed before backpressure triggers.
	// example: 32
	MaxQueueDepth int `json:"max_queue_depth" example:"32"`
}

// ProcessResponse is returned by GET /api/ps.
type ProcessResponse struct {
	Models []RunningModel `json:"models"`
	// Uptime of the server in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Last error observed by the manager (if any).
	LastError string `json:"last_error,omitempty"`
}
