package meme

// Record is one input meme entry to analyze. Name is the identity used for
// checkpointing and must be unique within a batch. Image content comes from
// either URL or inline Data (base64 in JSON).
type Record struct {
	Name     string `json:"name"`
	URL      string `json:"url,omitempty"`
	Data     []byte `json:"data,omitempty"`
	Category string `json:"category,omitempty"`
}

// HasImage reports whether the record carries any image reference at all.
func (r Record) HasImage() bool {
	return r.URL != "" || len(r.Data) > 0
}

// AnalysisResult is the structured judgment returned by the vision model.
// The JSON keys are the Chinese field names the model is prompted for.
type AnalysisResult struct {
	Emotion           string `json:"所代表情绪"`
	UsageScenario     string `json:"使用场景"`
	DesignInspiration string `json:"设计灵感"`
}

// Complete reports whether all three fields were extracted.
func (a AnalysisResult) Complete() bool {
	return a.Emotion != "" && a.UsageScenario != "" && a.DesignInspiration != ""
}

// AnalyzedRecord is the output row for one record. A nil Analysis marks a
// terminal failure; the record is still emitted so output names always match
// input names. Error carries the failure reason in that case.
type AnalyzedRecord struct {
	Name     string          `json:"name"`
	URL      string          `json:"url,omitempty"`
	Category string          `json:"category,omitempty"`
	Analysis *AnalysisResult `json:"analysis"`
	Error    string          `json:"error,omitempty"`
}

// Analyzed builds the output row for a successful analysis.
func (r Record) Analyzed(result AnalysisResult) AnalyzedRecord {
	return AnalyzedRecord{
		Name:     r.Name,
		URL:      r.URL,
		Category: r.Category,
		Analysis: &result,
	}
}

// Failed builds the output row for a terminal failure.
func (r Record) Failed(reason string) AnalyzedRecord {
	return AnalyzedRecord{
		Name:     r.Name,
		URL:      r.URL,
		Category: r.Category,
		Error:    reason,
	}
}
