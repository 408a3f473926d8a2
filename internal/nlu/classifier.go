package nlu

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
)

// ErrUnavailable indicates the language-understanding service could not be
// reached or answered with a transport-level failure. Callers treat it as an
// unknown intent but may surface a degraded-service notice.
var ErrUnavailable = errors.New("nlu: classifier unavailable")

// Intent names the user goal the classifier recognized.
type Intent string

const (
	IntentUnknown    Intent = "unknown"
	IntentBook       Intent = "book_appointment"
	IntentView       Intent = "view_appointments"
	IntentReschedule Intent = "reschedule_appointment"
	IntentCancel     Intent = "cancel_appointment"
)

// Slot keys the classifier may extract alongside an intent.
const (
	SlotClinic         = "clinic"
	SlotSpecialization = "specialization"
	SlotDoctor         = "doctor"
	SlotDate           = "date"
	SlotTime           = "time"
)

// Result is the classifier output. Recognized is false for unknown intents,
// low-confidence answers, and every malformed model response.
type Result struct {
	Recognized bool
	Intent     Intent
	Slots      map[string]string
	Reason     string
}

// Classifier turns free text into an intent plus extracted slot values.
type Classifier interface {
	Classify(ctx context.Context, text string) (Result, error)
}

// rawClassification mirrors the JSON body the model is instructed to emit.
// Every field is untrusted.
type rawClassification struct {
	Intent string            `json:"intent"`
	Data   map[string]string `json:"data"`
	Reason string            `json:"reason"`
}

var knownIntents = map[Intent]bool{
	IntentBook:       true,
	IntentView:       true,
	IntentReschedule: true,
	IntentCancel:     true,
}

var knownSlots = map[string]bool{
	SlotClinic:         true,
	SlotSpecialization: true,
	SlotDoctor:         true,
	SlotDate:           true,
	SlotTime:           true,
}

// parseClassification decodes a model response defensively. Anything that does
// not conform maps to an unrecognized result instead of an error.
func parseClassification(text string) Result {
	body := stripCodeFence(text)

	var raw rawClassification
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return Result{Intent: IntentUnknown, Reason: "unparseable response"}
	}

	intent := Intent(strings.TrimSpace(raw.Intent))
	if !knownIntents[intent] {
		reason := strings.TrimSpace(raw.Reason)
		if reason == "" {
			reason = "intent not recognized"
		}
		return Result{Intent: IntentUnknown, Reason: reason}
	}

	slots := make(map[string]string)
	for key, value := range raw.Data {
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		if knownSlots[key] && value != "" {
			slots[key] = value
		}
	}

	return Result{Recognized: true, Intent: intent, Slots: slots}
}

// stripCodeFence removes a surrounding markdown fence if the model wrapped its
// JSON in one.
func stripCodeFence(text string) string {
	body := strings.TrimSpace(text)
	if !strings.HasPrefix(body, "```") {
		return body
	}
	body = strings.TrimPrefix(body, "```json")
	body = strings.TrimPrefix(body, "```")
	body = strings.TrimSuffix(strings.TrimSpace(body), "```")
	return strings.TrimSpace(body)
}
