package model

// Stage names in pipeline order.
const (
	StageNameRiskSnapshot   = "risk_snapshot"
	StageNameClaims         = "claims"
	StageNameEvidenceSearch = "evidence_search"
	StageNameEvidenceAlign  = "evidence_align"
	StageNameReport         = "report"
)

// RiskSnapshot is the cheap first-pass risk estimate that also selects the
// strategy used by the remaining stages.
type RiskSnapshot struct {
	Label      string   `json:"label" firestore:"label"`
	Score      float64  `json:"score" firestore:"score"`
	Confidence float64  `json:"confidence" firestore:"confidence"`
	Reasons    []string `json:"reasons" firestore:"reasons"`
	Strategy   string   `json:"strategy" firestore:"strategy"`
}

// Claim is a single checkworthy assertion extracted from the input text.
type Claim struct {
	Text string `json:"claim_text" firestore:"claim_text"`
}

// Evidence is one retrieved candidate document.
type Evidence struct {
	Title   string `json:"title" firestore:"title"`
	URL     string `json:"url" firestore:"url"`
	Snippet string `json:"snippet,omitempty" firestore:"snippet"`
	Source  string `json:"source,omitempty" firestore:"source"`
}

// AlignedEvidence is an evidence item attributed to a claim with a stance.
type AlignedEvidence struct {
	Evidence
	Stance              string  `json:"stance" firestore:"stance"`
	AlignmentConfidence float64 `json:"alignment_confidence" firestore:"alignment_confidence"`
	ClaimIndex          int     `json:"claim_index" firestore:"claim_index"`
}

// ClaimReport pairs one claim with its verdict and supporting evidences.
type ClaimReport struct {
	Claim     Claim             `json:"claim" firestore:"claim"`
	Verdict   string            `json:"verdict" firestore:"verdict"`
	Evidences []AlignedEvidence `json:"evidences" firestore:"evidences"`
}

// Report is the synthesized final stage output.
type Report struct {
	RiskLabel        string        `json:"risk_label" firestore:"risk_label"`
	RiskScore        float64       `json:"risk_score" firestore:"risk_score"`
	DetectedScenario string        `json:"detected_scenario,omitempty" firestore:"detected_scenario"`
	Summary          string        `json:"summary,omitempty" firestore:"summary"`
	SuspiciousPoints []string      `json:"suspicious_points" firestore:"suspicious_points"`
	ClaimReports     []ClaimReport `json:"claim_reports" firestore:"claim_reports"`
}
