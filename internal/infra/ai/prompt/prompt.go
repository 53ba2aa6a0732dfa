package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/memelens/memelens/internal/domain/meme"
)

// Field names the model is asked to produce.
const (
	FieldEmotion           = "所代表情绪"
	FieldUsageScenario     = "使用场景"
	FieldDesignInspiration = "设计灵感"
)

// ParseAnalysis extracts the three labeled fields from a model answer.
// Models wrap JSON in markdown fences or prose more often than not, so the
// parser locates the outermost JSON object before decoding. Returns an error
// when the fields cannot be confidently located.
func ParseAnalysis(content string) (meme.AnalysisResult, error) {
	var out meme.AnalysisResult

	raw := extractJSON(content)
	if raw == "" {
		return out, fmt.Errorf("no JSON object in model answer")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return out, fmt.Errorf("model answer is not valid JSON: %w", err)
	}

	out.Emotion = fieldString(fields, FieldEmotion)
	out.UsageScenario = fieldString(fields, FieldUsageScenario)
	out.DesignInspiration = fieldString(fields, FieldDesignInspiration)

	if !out.Complete() {
		return meme.AnalysisResult{}, fmt.Errorf("model answer missing required fields: %s", missingFields(out))
	}
	return out, nil
}

// extractJSON strips markdown fences and surrounding prose, returning the
// outermost {...} span or "".
func extractJSON(content string) string {
	s := strings.TrimSpace(content)
	if i := strings.Index(s, "```"); i >= 0 {
		s = s[i+3:]
		s = strings.TrimPrefix(s, "json")
		if j := strings.Index(s, "```"); j >= 0 {
			s = s[:j]
		}
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

// fieldString accepts a string value or a list of strings joined with "、".
func fieldString(fields map[string]json.RawMessage, key string) string {
	raw, ok := fields[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return strings.TrimSpace(strings.Join(list, "、"))
	}
	return ""
}

func missingFields(a meme.AnalysisResult) string {
	var missing []string
	if a.Emotion == "" {
		missing = append(missing, FieldEmotion)
	}
	if a.UsageScenario == "" {
		missing = append(missing, FieldUsageScenario)
	}
	if a.DesignInspiration == "" {
		missing = append(missing, FieldDesignInspiration)
	}
	return strings.Join(missing, ", ")
}
