package model

import (
	"time"

	"github.com/google/uuid"
)

// RecordID identifies a persisted analysis outcome.
type RecordID string

// NewRecordID generates a new unique RecordID
func NewRecordID() RecordID {
	return RecordID(uuid.New().String())
}

const previewLimit = 80

// NewRecord assembles a Record from a completed pipeline run.
func NewRecord(inputText string, snapshot RiskSnapshot, report Report) *Record {
	return &Record{
		ID:           NewRecordID(),
		CreatedAt:    time.Now().UTC(),
		InputText:    inputText,
		InputPreview: Preview(inputText),
		Snapshot:     snapshot,
		Report:       report,
	}
}

// Record is the persisted outcome of a completed analyze run. It is created
// once by the pipeline and never mutated afterwards.
type Record struct {
	ID           RecordID     `json:"id" firestore:"id"`
	CreatedAt    time.Time    `json:"created_at" firestore:"created_at"`
	InputText    string       `json:"input_text" firestore:"input_text"`
	InputPreview string       `json:"input_preview" firestore:"input_preview"`
	Snapshot     RiskSnapshot `json:"snapshot" firestore:"snapshot"`
	Report       Report       `json:"report" firestore:"report"`
}

// Summary projects the record into its list representation.
func (r *Record) Summary() *RecordSummary {
	return &RecordSummary{
		ID:           r.ID,
		CreatedAt:    r.CreatedAt,
		InputPreview: r.InputPreview,
		RiskLabel:    r.Report.RiskLabel,
		RiskScore:    r.Report.RiskScore,
	}
}

// Preview truncates input text for list display.
func Preview(text string) string {
	runes := []rune(text)
	if len(runes) <= previewLimit {
		return text
	}
	return string(runes[:previewLimit]) + "…"
}

// RecordSummary is the listing projection of a record.
type RecordSummary struct {
	ID           RecordID  `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	InputPreview string    `json:"input_preview"`
	RiskLabel    string    `json:"risk_label"`
	RiskScore    float64   `json:"risk_score"`
}
