package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	errwrap "github.com/pkg/errors"

	"github.com/rahmatrdn/go-query-insight/entity"
)

const openAISystemPrompt = `You are a database performance expert. Given a slow SQL query, its
execution plan and duration, respond with a single JSON object:
{"insights": [string], "suggestions": [{"type": string, "priority": string,
"description": string, "sql": string}], "confidence": number}`

// OpenAIProvider talks to any OpenAI-compatible chat-completions
// endpoint (cloud or local). All failures surface as errors for the
// analyzer to swallow.
type OpenAIProvider struct {
	endpoint string
	apiKey   string
	model    string
	client   *http.Client
}

func NewOpenAIProvider(cfg Config) *OpenAIProvider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &OpenAIProvider{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		client:   &http.Client{Timeout: timeout},
	}
}

func (p *OpenAIProvider) Name() string {
	return "openai"
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type modelPayload struct {
	Insights    []string            `json:"insights"`
	Suggestions []entity.Suggestion `json:"suggestions"`
	Confidence  float64             `json:"confidence"`
}

func (p *OpenAIProvider) AnalyzeWithModel(ctx context.Context, req *Request) (*Response, error) {
	funcName := "OpenAIProvider.AnalyzeWithModel"

	planJSON := "(no plan available)"
	if req.Plan != nil {
		if b, err := json.Marshal(req.Plan); err == nil {
			planJSON = string(b)
		}
	}

	body, err := json.Marshal(chatRequest{
		Model: p.model,
		Messages: []chatMessage{
			{Role: "system", Content: openAISystemPrompt},
			{Role: "user", Content: fmt.Sprintf(
				"Database: %s\nDuration: %.1fms\nQuery:\n%s\n\nExecution plan:\n%s",
				req.DBType, req.DurationMs, req.SQL, planJSON)},
		},
	})
	if err != nil {
		return nil, errwrap.Wrap(err, funcName)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errwrap.Wrap(err, funcName)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, errwrap.Wrap(err, funcName)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, errwrap.Errorf("%s: unexpected status %d", funcName, httpResp.StatusCode)
	}

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
	if err != nil {
		return nil, errwrap.Wrap(err, funcName)
	}

	var chat chatResponse
	if err := json.Unmarshal(respBody, &chat); err != nil {
		return nil, errwrap.Wrap(err, funcName)
	}
	if len(chat.Choices) == 0 {
		return nil, errwrap.Errorf("%s: empty completion", funcName)
	}

	var payload modelPayload
	if err := json.Unmarshal([]byte(chat.Choices[0].Message.Content), &payload); err != nil {
		return nil, errwrap.Wrap(err, funcName)
	}

	confidence := payload.Confidence
	if confidence <= 0 || confidence > 1 {
		confidence = 0.75
	}

	return &Response{
		Insights:     payload.Insights,
		Suggestions:  payload.Suggestions,
		Confidence:   confidence,
		ProviderName: p.Name(),
	}, nil
}
