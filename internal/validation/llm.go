package validation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// Verdict is the LLM's judgement for one requirement.
type Verdict struct {
	Status    string `json:"status"`
	Reasoning string `json:"reasoning"`
}

// GeneratedQuestion is a remediation question with its benchmark answer.
type GeneratedQuestion struct {
	Question        string `json:"question"`
	BenchmarkAnswer string `json:"benchmark_answer"`
}

// Judge abstracts the LLM so tests can stub it.
type Judge interface {
	JudgeRequirement(ctx context.Context, prompt string) (Verdict, error)
	GenerateQuestion(ctx context.Context, prompt string) (GeneratedQuestion, error)
}

// azureJudge wraps an Azure OpenAI deployment.
type azureJudge struct {
	client     *openai.Client
	deployment string
}

// NewAzureJudge builds the Azure OpenAI client for the configured deployment.
func NewAzureJudge(baseURL, apiKey, deployment string) (Judge, error) {
	if baseURL == "" || apiKey == "" {
		return nil, fmt.Errorf("azure openai base URL and key are required")
	}
	if deployment == "" {
		deployment = "gpt-4o"
	}
	cfg := openai.DefaultAzureConfig(apiKey, baseURL)
	return &azureJudge{
		client:     openai.NewClientWithConfig(cfg),
		deployment: deployment,
	}, nil
}

func (j *azureJudge) complete(ctx context.Context, system, prompt string) (string, error) {
	resp, err := j.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: j.deployment,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0.1,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// stripFences removes a markdown code fence if the model wrapped its JSON.
func stripFences(content string) string {
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	}
	return strings.TrimSpace(trimmed)
}

func (j *azureJudge) JudgeRequirement(ctx context.Context, prompt string) (Verdict, error) {
	content, err := j.complete(ctx, verdictSystemPrompt, prompt)
	if err != nil {
		return Verdict{}, err
	}
	var verdict Verdict
	if err := json.Unmarshal([]byte(stripFences(content)), &verdict); err != nil {
		return Verdict{}, fmt.Errorf("parse verdict %q: %w", content, err)
	}
	switch verdict.Status {
	case "met", "partial", "not_met":
	default:
		return Verdict{}, fmt.Errorf("unexpected verdict status %q", verdict.Status)
	}
	return verdict, nil
}

func (j *azureJudge) GenerateQuestion(ctx context.Context, prompt string) (GeneratedQuestion, error) {
	content, err := j.complete(ctx, questionSystemPrompt, prompt)
	if err != nil {
		return GeneratedQuestion{}, err
	}
	var question GeneratedQuestion
	if err := json.Unmarshal([]byte(stripFences(content)), &question); err != nil {
		return GeneratedQuestion{}, fmt.Errorf("parse question %q: %w", content, err)
	}
	if question.Question == "" {
		return GeneratedQuestion{}, fmt.Errorf("model returned an empty question")
	}
	return question, nil
}
