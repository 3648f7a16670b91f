// Package ai calls an OpenAI-compatible chat completions endpoint to
// generate debugging advice.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// FallbackAdvice is returned by callers when the model is unreachable.
const FallbackAdvice = "Quack! I'm having trouble connecting to my AI brain right now, but that doesn't stop a good rubber duck session! Try explaining your problem step by step - sometimes talking through it reveals the solution!"

// EmptyAdvice is returned by callers when the model replies with no content.
const EmptyAdvice = "Quack! I couldn't generate a response right now, but don't worry - every duck faces challenges! Try breaking down your problem into smaller parts."

const systemPrompt = `You are a helpful rubber duck debugging assistant with a friendly, encouraging duck personality. Provide clear, step-by-step debugging advice with duck-themed expressions like "Quack!", "Let's dive in!", and "You've got this, fellow developer!". Include practical solutions and explain the reasoning behind your suggestions. Keep responses concise but helpful.`

var ErrNotConfigured = errors.New("ai advisor not configured")

type Advisor struct {
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	HTTP        *http.Client
	Log         zerolog.Logger
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
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

func (a Advisor) client() *http.Client {
	if a.HTTP != nil {
		return a.HTTP
	}
	return &http.Client{Timeout: 5 * time.Second}
}

// Advise asks the model for debugging advice on a problem statement.
func (a Advisor) Advise(ctx context.Context, problem string) (string, error) {
	if a.BaseURL == "" || a.APIKey == "" {
		return "", ErrNotConfigured
	}
	maxTokens := a.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 512
	}
	temperature := a.Temperature
	if temperature == 0 {
		temperature = 0.7
	}
	body, err := json.Marshal(chatRequest{
		Model: a.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: "Help me debug this problem: " + problem},
		},
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.APIKey)

	resp, err := a.client().Do(req)
	if err != nil {
		return "", fmt.Errorf("chat completions request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		slurp, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		a.Log.Warn().Int("status", resp.StatusCode).Msg("ai request failed")
		return "", fmt.Errorf("chat completions status %d: %s", resp.StatusCode, slurp)
	}
	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode chat completions response: %w", err)
	}
	if len(out.Choices) == 0 || out.Choices[0].Message.Content == "" {
		return EmptyAdvice, nil
	}
	return out.Choices[0].Message.Content, nil
}
