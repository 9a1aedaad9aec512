package bedrock

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"go.uber.org/zap"

	"github.com/mikey/ta-triage/internal/config"
	"github.com/mikey/ta-triage/internal/core"
	"github.com/mikey/ta-triage/internal/utils"
)

// Client implements the Classifier and Responder ports using Amazon Bedrock
type Client struct {
	client        *bedrockruntime.Client
	modelID       string
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

// NewClient creates a Bedrock-backed client using the default AWS
// credential chain.
func NewClient(
	cfg config.BedrockConfig,
	course config.CourseConfig,
	logger *zap.Logger,
	textProcessor *utils.TextProcessor,
) (*Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	return &Client{
		client:        bedrockruntime.NewFromConfig(awsCfg),
		modelID:       cfg.ModelID,
		maxTokens:     cfg.MaxTokens,
		temperature:   cfg.Temperature,
		topP:          cfg.TopP,
		maxBodySize:   cfg.MaxBodySize,
		course:        course,
		logger:        logger,
		textProcessor: textProcessor,
	}, nil
}

// Classify maps an email's subject and body to an intent and confidence
func (c *Client) Classify(ctx context.Context, subject, body string) (*core.Classification, error) {
	processedBody := c.textProcessor.ProcessText(body, c.maxBodySize)
	prompt := fmt.Sprintf(classifyPromptFormat, subject, processedBody)

	responseText, err := c.invoke(ctx, prompt)
	if err != nil {
		return nil, err
	}

	var parsed intentResponse
	if err := extractJSON(responseText, &parsed); err != nil {
		return nil, err
	}

	confidence := parsed.Confidence
	if confidence < 0 {
		confidence = 0
	} else if confidence > 1 {
		confidence = 1
	}

	c.logger.Debug("Classified email intent",
		zap.String("intent", parsed.Intent),
		zap.Float64("confidence", confidence))

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

	responseText, err := c.invoke(ctx, prompt)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(responseText), nil
}

// invoke calls the Bedrock runtime with a model-appropriate payload and
// returns the raw completion text.
func (c *Client) invoke(ctx context.Context, prompt string) (string, error) {
	var payload []byte
	var err error

	if c.isAnthropicModel() {
		payload, err = json.Marshal(map[string]interface{}{
			"prompt":               fmt.Sprintf("\n\nHuman: %s\n\nAssistant:", prompt),
			"max_tokens_to_sample": c.maxTokens,
			"temperature":          c.temperature,
			"top_p":                c.topP,
		})
	} else if c.isAmazonTitanModel() {
		payload, err = json.Marshal(map[string]interface{}{
			"inputText": prompt,
			"textGenerationConfig": map[string]interface{}{
				"maxTokenCount": c.maxTokens,
				"temperature":   c.temperature,
				"topP":          c.topP,
			},
		})
	} else {
		payload, err = json.Marshal(map[string]interface{}{
			"prompt":      prompt,
			"max_tokens":  c.maxTokens,
			"temperature": c.temperature,
			"top_p":       c.topP,
		})
	}
	if err != nil {
		return "", fmt.Errorf("failed to marshal request payload: %w", err)
	}

	resp, err := c.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     &c.modelID,
		Body:        payload,
		Accept:      aws.String("application/json"),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to invoke Bedrock model: %w", err)
	}

	if c.isAnthropicModel() {
		var claudeResp struct {
			Completion string `json:"completion"`
		}
		if err := json.Unmarshal(resp.Body, &claudeResp); err != nil {
			return "", fmt.Errorf("failed to unmarshal Claude response: %w", err)
		}
		return claudeResp.Completion, nil
	}

	if c.isAmazonTitanModel() {
		var titanResp struct {
			Results []struct {
				OutputText string `json:"outputText"`
			} `json:"results"`
		}
		if err := json.Unmarshal(resp.Body, &titanResp); err != nil {
			return "", fmt.Errorf("failed to unmarshal Titan response: %w", err)
		}
		if len(titanResp.Results) == 0 {
			return "", fmt.Errorf("empty response from Titan model")
		}
		return titanResp.Results[0].OutputText, nil
	}

	var genericResp struct {
		Output   string `json:"output"`
		Text     string `json:"text"`
		Response string `json:"response"`
	}
	if err := json.Unmarshal(resp.Body, &genericResp); err != nil {
		return "", fmt.Errorf("failed to unmarshal generic response: %w", err)
	}
	switch {
	case genericResp.Output != "":
		return genericResp.Output, nil
	case genericResp.Text != "":
		return genericResp.Text, nil
	case genericResp.Response != "":
		return genericResp.Response, nil
	default:
		return string(resp.Body), nil
	}
}

// isAnthropicModel checks if the model is an Anthropic Claude model
func (c *Client) isAnthropicModel() bool {
	return strings.HasPrefix(c.modelID, "anthropic.claude")
}

// isAmazonTitanModel checks if the model is an Amazon Titan model
func (c *Client) isAmazonTitanModel() bool {
	return strings.HasPrefix(c.modelID, "amazon.titan")
}

// extractJSON parses the payload as JSON, falling back to the first {...}
// span when the model wrapped the object in prose.
func extractJSON(text string, v interface{}) error {
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
