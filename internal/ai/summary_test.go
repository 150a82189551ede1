package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSummary_JSON(t *testing.T) {
	content := `{"summary":"user cannot log in","main_issue":"login failure","key_points":["500 on submit"],"urgency":"high"}`

	sum := ParseSummary(content)
	assert.Equal(t, "user cannot log in", sum.Summary)
	assert.Equal(t, "login failure", sum.MainIssue)
	assert.Equal(t, []string{"500 on submit"}, sum.KeyPoints)
	assert.Equal(t, "high", sum.Urgency)
	assert.Empty(t, sum.RawResponse)
}

func TestParseSummary_FencedJSON(t *testing.T) {
	content := "```json\n{\"summary\":\"fenced\"}\n```"

	sum := ParseSummary(content)
	assert.Equal(t, "fenced", sum.Summary)
	assert.Empty(t, sum.RawResponse)
}

func TestParseSummary_PlainTextFallback(t *testing.T) {
	content := "The user is having trouble with the login page."

	sum := ParseSummary(content)
	assert.Equal(t, content, sum.Summary)
	assert.Equal(t, content, sum.RawResponse)
	assert.Empty(t, sum.MainIssue)
}

func TestParseSummary_MalformedJSONFallback(t *testing.T) {
	content := `{"summary": "broken`

	sum := ParseSummary(content)
	assert.Equal(t, content, sum.Summary)
	assert.Equal(t, content, sum.RawResponse)
}

func TestEncodeDecodeSummary(t *testing.T) {
	sum := &Summary{Summary: "s", MainIssue: "m", KeyPoints: []string{"a", "b"}}

	encoded := sum.Encode()
	decoded := DecodeSummary(encoded)
	require.NotNil(t, decoded)
	assert.Equal(t, sum, decoded)
}

func TestDecodeSummary_Invalid(t *testing.T) {
	assert.Nil(t, DecodeSummary(""))
	assert.Nil(t, DecodeSummary("not json"))
}

func TestErrorPayload(t *testing.T) {
	assert.JSONEq(t, `{"error":"Event not found"}`, errorPayload("Event not found"))
}
