package title_generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/eternisai/titlegen/internal/config"
)

const (
	completionsPath = "/chat/completions"
	maxTokens       = 50
	temperature     = 0.7
	maxBodySnippet  = 512

	systemPrompt = "You are a helpful assistant that generates concise, descriptive titles for text content. " +
		"Respond with only the title, without quotes or extra punctuation."
	userPromptTemplate = "Given the following text:\n###\n%s\n###\n\nGenerate a succinct, descriptive title:"
)

// CompletionsURL resolves the endpoint to POST to. Both a provider root like
// https://api.openai.com/v1 and a full .../chat/completions URL are accepted.
func CompletionsURL(baseURL string) string {
	if strings.HasSuffix(baseURL, completionsPath) {
		return baseURL
	}
	return baseURL + completionsPath
}

// NewGenerationRequest builds the request for text. The text is embedded
// verbatim, whatever its size.
func NewGenerationRequest(settings config.Settings, text string) GenerationRequest {
	return GenerationRequest{
		URL: CompletionsURL(settings.BaseURL),
		Headers: map[string]string{
			"Content-Type":  "application/json",
			"Authorization": "Bearer " + settings.APIKey,
		},
		Body: ChatCompletionRequest{
			Model: settings.Model,
			Messages: []Message{
				{Role: "system", Content: systemPrompt},
				{Role: "user", Content: fmt.Sprintf(userPromptTemplate, text)},
			},
			MaxTokens:   maxTokens,
			Temperature: temperature,
		},
	}
}

// HTTPRequest turns r into a POST request bound to ctx.
func (r GenerationRequest) HTTPRequest(ctx context.Context) (*http.Request, error) {
	body, err := json.Marshal(r.Body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

// BuildRequest is NewGenerationRequest followed by HTTPRequest.
func BuildRequest(ctx context.Context, settings config.Settings, text string) (*http.Request, error) {
	return NewGenerationRequest(settings, text).HTTPRequest(ctx)
}

type completionResponse struct {
	Choices []struct {
		Message *struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Interpret extracts the title from a completion response. It does not close
// resp.Body.
func Interpret(resp *http.Response, settings config.Settings) (GenerationResult, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return GenerationResult{}, newError(KindTransportError, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return GenerationResult{}, newError(KindTransportError,
			fmt.Errorf("request failed, status %d: %s", resp.StatusCode, snippet(body)))
	}

	return InterpretBody(body, settings)
}

// InterpretBody is Interpret for an already read, successful response body.
func InterpretBody(body []byte, settings config.Settings) (GenerationResult, error) {
	var parsed completionResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return GenerationResult{}, newError(KindMalformedResponse,
			fmt.Errorf("decode response: %w (body: %s)", err, snippet(body)))
	}

	if len(parsed.Choices) == 0 {
		return GenerationResult{}, newError(KindMalformedResponse,
			fmt.Errorf("no choices in response (body: %s)", snippet(body)))
	}

	msg := parsed.Choices[0].Message
	if msg == nil || msg.Content == nil {
		return GenerationResult{}, newError(KindMalformedResponse,
			fmt.Errorf("first choice has no message content (body: %s)", snippet(body)))
	}

	title := strings.TrimSpace(*msg.Content)
	if settings.LowerCaseTitles {
		title = strings.ToLower(title)
	}
	if title == "" {
		return GenerationResult{}, newError(KindEmptyTitle, errors.New("generated title is empty"))
	}

	return GenerationResult{Title: title}, nil
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxBodySnippet {
		return s[:maxBodySnippet] + "..."
	}
	return s
}
