// SPDX-License-Identifier: GPL-3.0-or-later
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/CrawX/go-imap-triage/domain"

	"github.com/sashabaranov/go-openai"
)

const DefaultModel = openai.GPT4oMini

const systemPrompt = `You triage replies to sales outreach. Assign exactly one category to the mail:
%s.
Answer with a JSON object {"category": string, "confidence": number between 0 and 1, "rationale": string}.`

// Classifier asks a chat completion model for the category of a mail.
type Classifier struct {
	client *openai.Client
	model  string
}

// NewClassifier talks to the OpenAI platform, baseURL may point to any compatible API.
func NewClassifier(apiKey, model, baseURL string) (*Classifier, error) {
	if len(apiKey) == 0 {
		return nil, fmt.Errorf("no OpenAI api key configured")
	}
	if len(model) == 0 {
		model = DefaultModel
	}

	config := openai.DefaultConfig(apiKey)
	if len(baseURL) > 0 {
		config.BaseURL = baseURL
	}

	return &Classifier{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}, nil
}

type classification struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale"`
}

func (c *Classifier) Classify(ctx context.Context, input domain.ClassifyInput) (domain.ClassificationResult, error) {
	categories := []string{}
	for _, category := range domain.Categories {
		if category != domain.Unclassified {
			categories = append(categories, string(category))
		}
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: fmt.Sprintf(systemPrompt, strings.Join(categories, ", "))},
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf("From: %s\nSubject: %s\n\n%s", input.From, input.Subject, input.Body)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return domain.ClassificationResult{}, fmt.Errorf("could not create chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return domain.ClassificationResult{}, fmt.Errorf("chat completion returned no choices")
	}

	out := &classification{}
	err = json.Unmarshal([]byte(resp.Choices[0].Message.Content), out)
	if err != nil {
		return domain.ClassificationResult{}, fmt.Errorf("could not deserialize classification: %w", err)
	}

	category, ok := domain.ParseCategory(out.Category)
	if !ok {
		return domain.UnclassifiedResult(fmt.Sprintf("model answered unknown category %q", out.Category)), nil
	}

	confidence := out.Confidence
	if confidence < 0 {
		confidence = 0
	} else if confidence > 1 {
		confidence = 1
	}

	return domain.ClassificationResult{
		Category:   category,
		Confidence: confidence,
		Rationale:  out.Rationale,
	}, nil
}
