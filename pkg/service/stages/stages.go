// Package stages implements the analyze pipeline stages on top of Gemini,
// optionally supplemented by a BigQuery evidence knowledge base.
package stages

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/truthcast/pkg/adapter"
	"github.com/m-mizutani/truthcast/pkg/model"
	"google.golang.org/genai"
)

// Pipeline is the stage contract consumed by the chat coordinator. Each
// method is one expensive external call; callers are responsible for
// admission control and caching.
type Pipeline interface {
	// RiskSnapshot estimates risk and selects the strategy for later stages
	RiskSnapshot(ctx context.Context, text string) (*model.RiskSnapshot, error)

	// RunClaims extracts checkworthy claims from the text
	RunClaims(ctx context.Context, text, strategy string) ([]model.Claim, error)

	// RunEvidence retrieves candidate evidence for the claims
	RunEvidence(ctx context.Context, text string, claims []model.Claim, strategy string) ([]model.Evidence, error)

	// AlignEvidences attributes evidences to claims with stances
	AlignEvidences(ctx context.Context, claims []model.Claim, evidences []model.Evidence, strategy string) ([]model.AlignedEvidence, error)

	// RunReport synthesizes the final report
	RunReport(ctx context.Context, text string, claims []model.Claim, aligned []model.AlignedEvidence, strategy string) (*model.Report, error)
}

//go:embed prompt/risk_snapshot.md
var riskSnapshotPrompt string

//go:embed prompt/claims.md
var claimsPrompt string

//go:embed prompt/evidence.md
var evidencePrompt string

//go:embed prompt/align.md
var alignPrompt string

//go:embed prompt/report.md
var reportPrompt string

const kbRowsPerClaim = 3

// GeminiPipeline implements Pipeline over the Gemini adapter. When kb is
// non-nil, evidence search merges knowledge-base rows with web grounding.
type GeminiPipeline struct {
	gemini adapter.Gemini
	kb     adapter.EvidenceKB
}

type Option func(*GeminiPipeline)

// WithEvidenceKB attaches a local evidence knowledge base.
func WithEvidenceKB(kb adapter.EvidenceKB) Option {
	return func(p *GeminiPipeline) {
		p.kb = kb
	}
}

// New creates a Gemini-backed pipeline.
func New(gemini adapter.Gemini, opts ...Option) *GeminiPipeline {
	p := &GeminiPipeline{gemini: gemini}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *GeminiPipeline) RiskSnapshot(ctx context.Context, text string) (*model.RiskSnapshot, error) {
	var snapshot model.RiskSnapshot
	if err := p.generateJSON(ctx, riskSnapshotPrompt, map[string]any{"text": text}, &snapshot); err != nil {
		return nil, goerr.Wrap(err, "risk snapshot stage failed")
	}
	return &snapshot, nil
}

func (p *GeminiPipeline) RunClaims(ctx context.Context, text, strategy string) ([]model.Claim, error) {
	var claims []model.Claim
	input := map[string]any{"text": text, "strategy": strategy}
	if err := p.generateJSON(ctx, claimsPrompt, input, &claims); err != nil {
		return nil, goerr.Wrap(err, "claim extraction stage failed")
	}
	return claims, nil
}

func (p *GeminiPipeline) RunEvidence(ctx context.Context, text string, claims []model.Claim, strategy string) ([]model.Evidence, error) {
	input := map[string]any{"text": text, "claims": claims, "strategy": strategy}
	prompt, err := renderPrompt(evidencePrompt, input)
	if err != nil {
		return nil, err
	}

	// Web grounding and JSON response mode are mutually exclusive, so this
	// stage parses JSON out of the grounded text response.
	config := &genai.GenerateContentConfig{
		Tools: []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}},
	}
	resp, err := p.gemini.GenerateContent(ctx, genai.Text(prompt), config)
	if err != nil {
		return nil, goerr.Wrap(err, "evidence search stage failed")
	}

	var evidences []model.Evidence
	if err := decodeResponse(resp, &evidences); err != nil {
		return nil, goerr.Wrap(err, "failed to decode evidence response")
	}
	for i := range evidences {
		if evidences[i].Source == "" {
			evidences[i].Source = "web_live"
		}
	}

	if p.kb != nil {
		for _, claim := range claims {
			rows, err := p.kb.SearchEvidence(ctx, claim.Text, kbRowsPerClaim)
			if err != nil {
				return nil, goerr.Wrap(err, "knowledge base lookup failed")
			}
			evidences = append(evidences, rows...)
		}
	}

	return evidences, nil
}

func (p *GeminiPipeline) AlignEvidences(ctx context.Context, claims []model.Claim, evidences []model.Evidence, strategy string) ([]model.AlignedEvidence, error) {
	var aligned []model.AlignedEvidence
	input := map[string]any{"claims": claims, "evidences": evidences, "strategy": strategy}
	if err := p.generateJSON(ctx, alignPrompt, input, &aligned); err != nil {
		return nil, goerr.Wrap(err, "evidence alignment stage failed")
	}
	return aligned, nil
}

func (p *GeminiPipeline) RunReport(ctx context.Context, text string, claims []model.Claim, aligned []model.AlignedEvidence, strategy string) (*model.Report, error) {
	var report model.Report
	input := map[string]any{"text": text, "claims": claims, "aligned_evidences": aligned, "strategy": strategy}
	if err := p.generateJSON(ctx, reportPrompt, input, &report); err != nil {
		return nil, goerr.Wrap(err, "report stage failed")
	}
	return &report, nil
}

// generateJSON renders the prompt, requests a JSON response, and unmarshals
// it into out.
func (p *GeminiPipeline) generateJSON(ctx context.Context, promptTmpl string, input map[string]any, out any) error {
	return GenerateJSON(ctx, p.gemini, promptTmpl, input, out)
}

// GenerateJSON renders promptTmpl with input, requests a JSON response from
// gemini, and unmarshals it into out. The content generators share it with
// the pipeline stages.
func GenerateJSON(ctx context.Context, gemini adapter.Gemini, promptTmpl string, input map[string]any, out any) error {
	prompt, err := renderPrompt(promptTmpl, input)
	if err != nil {
		return err
	}

	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	}
	resp, err := gemini.GenerateContent(ctx, genai.Text(prompt), config)
	if err != nil {
		return err
	}

	return decodeResponse(resp, out)
}

// renderPrompt appends the JSON-encoded input to the prompt template.
func renderPrompt(tmpl string, input map[string]any) (string, error) {
	data, err := json.MarshalIndent(input, "", "  ")
	if err != nil {
		return "", goerr.Wrap(err, "failed to marshal stage input")
	}
	return fmt.Sprintf("%s\n\nInput:\n```json\n%s\n```\n", tmpl, string(data)), nil
}

// decodeResponse extracts the first text part and unmarshals it as JSON,
// tolerating markdown code fences around the body.
func decodeResponse(resp *genai.GenerateContentResponse, out any) error {
	text := firstText(resp)
	if text == "" {
		return goerr.New("empty response from model")
	}

	if err := json.Unmarshal([]byte(stripFences(text)), out); err != nil {
		return goerr.Wrap(err, "failed to unmarshal model response", goerr.V("head", head(text, 200)))
	}
	return nil
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.Text != "" {
				return part.Text
			}
		}
	}
	return ""
}

// stripFences removes a surrounding markdown code fence, if present.
func stripFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

func head(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
