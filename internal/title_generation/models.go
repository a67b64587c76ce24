package title_generation

import "github.com/eternisai/titlegen/internal/vault"

// Message is a single chat message of a completion request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionRequest is the JSON body sent to the completions endpoint.
type ChatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
}

// GenerationRequest is everything needed to issue one completion call.
type GenerationRequest struct {
	URL     string
	Headers map[string]string
	Body    ChatCompletionRequest
}

// GenerationResult holds the title extracted from a completion response.
type GenerationResult struct {
	Title string
}

// Outcome reports what happened to one document.
type Outcome struct {
	Document vault.Document
	RunID    string
	Title    string
	NewPath  string
	// Skipped is set when the document never started because the caller's
	// context was done first. Skipped documents are not reported to the user.
	Skipped bool
	Err     error
}

// Stage is the step a document is in while being processed.
type Stage string

const (
	StageIdle         Stage = "idle"
	StageReading      Stage = "reading"
	StageRequesting   Stage = "requesting"
	StageInterpreting Stage = "interpreting"
	StageRenaming     Stage = "renaming"
	StageDone         Stage = "done"
	StageFailed       Stage = "failed"
)
