package ai

import (
	"encoding/json"
	"strings"
)

// Summary is the structured result of a full_extraction job. When the
// model returns something that is not the expected JSON object, only
// Summary and RawResponse are set, holding the raw text.
type Summary struct {
	Summary       string   `json:"summary"`
	MainIssue     string   `json:"main_issue,omitempty"`
	KeyPoints     []string `json:"key_points,omitempty"`
	ActionItems   []string `json:"action_items,omitempty"`
	Promises      []string `json:"promises,omitempty"`
	NextSteps     string   `json:"next_steps,omitempty"`
	Urgency       string   `json:"urgency,omitempty"`
	Sentiment     string   `json:"sentiment,omitempty"`
	SuggestedTags []string `json:"suggested_tags,omitempty"`
	RawResponse   string   `json:"raw_response,omitempty"`
}

// ParseSummary interprets model output. Valid JSON objects decode into
// the structured form; anything else degrades to a raw-text summary.
// It never fails on malformed model output.
func ParseSummary(content string) *Summary {
	text := strings.TrimSpace(content)

	// Strip markdown fencing if present
	if strings.HasPrefix(text, "```") {
		lines := strings.SplitN(text, "\n", 2)
		if len(lines) > 1 {
			text = lines[1]
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}

	if strings.HasPrefix(text, "{") {
		var sum Summary
		if err := json.Unmarshal([]byte(text), &sum); err == nil {
			return &sum
		}
	}

	return &Summary{Summary: content, RawResponse: content}
}

// Encode marshals the summary for storage in job output and event
// metadata.
func (s *Summary) Encode() string {
	data, err := json.Marshal(s)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// DecodeSummary reads a stored summary back. Returns nil for empty or
// unparseable payloads.
func DecodeSummary(output string) *Summary {
	if output == "" {
		return nil
	}
	var sum Summary
	if err := json.Unmarshal([]byte(output), &sum); err != nil {
		return nil
	}
	return &sum
}

// errorPayload encodes a job failure in the stored output format.
func errorPayload(msg string) string {
	data, _ := json.Marshal(map[string]string{"error": msg})
	return string(data)
}
