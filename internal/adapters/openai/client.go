package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/mikey/ta-triage/internal/config"
	"github.com/mikey/ta-triage/internal/core"
	"github.com/mikey/ta-triage/internal/utils"
)

// Client implements the Classifier and Responder ports using OpenAI
type Client struct {
	client        *openai.Client
	modelName     string
	maxTokens     int
	temperature   float32
	topP          float32
	maxBodySize   int
	course        config.CourseConfig
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// intentResponse represents the structured classification response from the LLM
type intentResponse struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

const classifyPromptFormat = `You are a teaching-assistant triage system. Classify the following student email into exactly one of these categories:
- assignment_question: Questions about homework, projects, or assignments
- grade_inquiry: Questions about grades, scoring, or feedback
- conceptual_question: Questions about course concepts or material
- administrative: Questions about course logistics, scheduling, or policies
- technical_issue: Problems with course technology or systems
- personal_circumstance: Student sharing personal situations that affect coursework
- other: Anything that doesn't fit the above categories

Respond with a JSON object containing:
- intent: string (one of the category names above)
- confidence: number between 0 and 1 (how certain you are of the classification)
- reasoning: string (brief explanation of your choice)

Email:
Subject: %s
Body:
%s

Respond only with the JSON object and nothing else.`

const respondPromptFormat = `You are a helpful teaching assistant for %s (%s), taught by %s, responding to student emails on behalf of %s, the course TA.

STUDENT: %s <%s>

RECENT CONVERSATION HISTORY:
%s

CLASSIFIED INTENT: %s

RESPONDING TO EMAIL:
Subject: %s
Content:
%s

Respond in a helpful, concise, and professional manner. If you don't know the answer or the question requires TA judgment, indicate that the message will be forwarded to the human TA. Sign off as %s.`

// NewClient creates a new OpenAI client
func NewClient(
	cfg config.OpenAIConfig,
	course config.CourseConfig,
	logger *zap.Logger,
	textProcessor *utils.TextProcessor,
) *Client {
	return &Client{
		client:        openai.NewClient(cfg.APIKey),
		modelName:     cfg.ModelName,
		maxTokens:     cfg.MaxTokens,
		temperature:   cfg.Temperature,
		topP:          cfg.TopP,
		maxBodySize:   cfg.MaxBodySize,
		course:        course,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// Classify maps an email's subject and body to an intent and confidence
func (c *Client) Classify(ctx context.Context, subject, body string) (*core.Classification, error) {
	processedBody := c.textProcessor.ProcessText(body, c.maxBodySize)
	prompt := fmt.Sprintf(classifyPromptFormat, subject, processedBody)

	responseText, err := c.complete(ctx, "You are an email triage system. Respond only with JSON.", prompt)
	if err != nil {
		return nil, err
	}

	var parsed intentResponse
	if err := unmarshalLenient(responseText, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse classification response: %w", err)
	}

	confidence := parsed.Confidence
	if confidence < 0 {
		confidence = 0
	} else if confidence > 1 {
		confidence = 1
	}

	c.logger.Debug("Classified email intent",
		zap.String("intent", parsed.Intent),
		zap.Float64("confidence", confidence),
		zap.String("reasoning", parsed.Reasoning))

	return &core.Classification{
		Intent:     core.NormalizeIntent(strings.ToLower(strings.TrimSpace(parsed.Intent))),
		Confidence: confidence,
	}, nil
}

// Generate produces reply text for a student email
func (c *Client) Generate(ctx context.Context, msg *core.Message, sender *core.Sender, intent core.Intent) (string, error) {
	processedBody := c.textProcessor.ProcessText(msg.Body, c.maxBodySize)
	prompt := fmt.Sprintf(respondPromptFormat,
		c.course.Name, c.course.Term, c.course.Professor, c.course.TAName,
		sender.Name, sender.Identity,
		formatHistory(sender.RecentHistory(c.course.HistoryLimit)),
		intent,
		msg.Subject, processedBody,
		c.course.TAName)

	responseText, err := c.complete(ctx, "You are a helpful teaching assistant. Respond with the email body only.", prompt)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(responseText), nil
}

func (c *Client) complete(ctx context.Context, system, prompt string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: c.modelName,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: system,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		TopP:        c.topP,
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to create chat completion with OpenAI: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty response from OpenAI")
	}
	return resp.Choices[0].Message.Content, nil
}

// unmarshalLenient parses the payload as JSON, falling back to the first
// {...} span when the model wrapped the object in prose.
func unmarshalLenient(text string, v interface{}) error {
	if err := json.Unmarshal([]byte(text), v); err == nil {
		return nil
	}

	jsonStart := strings.Index(text, "{")
	jsonEnd := strings.LastIndex(text, "}")
	if jsonStart < 0 || jsonEnd < jsonStart {
		return fmt.Errorf("no JSON object in LLM response")
	}
	if err := json.Unmarshal([]byte(text[jsonStart:jsonEnd+1]), v); err != nil {
		return fmt.Errorf("failed to parse LLM response as JSON: %w", err)
	}
	return nil
}

func formatHistory(history []core.Interaction) string {
	if len(history) == 0 {
		return "(no previous interactions)"
	}

	var b strings.Builder
	for _, interaction := range history {
		fmt.Fprintf(&b, "[%s] Student asked (%s): %s\n",
			interaction.Timestamp.Format(time.RFC822),
			interaction.Intent,
			interaction.Subject)
		fmt.Fprintf(&b, "Response sent: %s\n\n", interaction.Response)
	}
	return b.String()
}
