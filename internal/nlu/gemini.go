package nlu

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/clinicdesk/appointmentbot/pkg/logging"
)

const systemInstruction = `You are the intake assistant of a clinic front desk.
Classify the user's request into exactly one intent and extract any details
mentioned. Respond with JSON only, no prose, in this shape:
{
  "intent": "<intent>",
  "data": {
    "doctor": "doctor name",
    "specialization": "doctor specialization",
    "clinic": "clinic name",
    "date": "YYYY-MM-DD",
    "time": "HH:MM"
  }
}
Omit data keys that are not present in the request. <intent> must be one of:
"book_appointment", "view_appointments", "reschedule_appointment",
"cancel_appointment". Watch for obvious mistakes such as a requested date in
the past; the current date and time are provided with every request. If the
intent is unclear or none of the above, respond with:
{"intent": "unknown", "reason": "why the request could not be understood"}`

// GeminiClassifier implements Classifier using Google's Gemini API.
type GeminiClassifier struct {
	client  *genai.Client
	modelID string
	logger  *logging.Logger
	now     func() time.Time
}

// NewGeminiClassifier creates a Gemini-backed classifier.
func NewGeminiClassifier(ctx context.Context, apiKey, modelID string, logger *logging.Logger) (*GeminiClassifier, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("nlu: gemini api key is required")
	}
	if strings.TrimSpace(modelID) == "" {
		modelID = "gemini-2.5-flash"
	}
	if logger == nil {
		logger = logging.Default()
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("nlu: failed to create gemini client: %w", err)
	}

	return &GeminiClassifier{
		client:  client,
		modelID: modelID,
		logger:  logger,
		now:     time.Now,
	}, nil
}

// Classify sends the text to Gemini with the fixed classification instruction
// and parses the response defensively. Transport failures map to
// ErrUnavailable; malformed responses map to an unrecognized result.
func (c *GeminiClassifier) Classify(ctx context.Context, text string) (Result, error) {
	model := c.client.GenerativeModel(c.modelID)
	model.SetTemperature(0)
	model.SystemInstruction = genai.NewUserContent(genai.Text(systemInstruction))

	now := c.now()
	prompt := fmt.Sprintf("User request: (%s). Today is %s, the time is %s.",
		text, now.Format("2006-01-02"), now.Format("15:04"))

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return Result{Intent: IntentUnknown}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	body := extractText(resp)
	if body == "" {
		c.logger.Warn("gemini returned empty classification response")
		return Result{Intent: IntentUnknown, Reason: "empty response"}, nil
	}

	result := parseClassification(body)
	c.logger.Debug("classified message",
		"intent", string(result.Intent),
		"recognized", result.Recognized,
		"slots", len(result.Slots),
	)
	return result, nil
}

// Close releases resources held by the Gemini client.
func (c *GeminiClassifier) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	return strings.TrimSpace(sb.String())
}
