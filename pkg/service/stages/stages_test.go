package stages_test

import (
	"context"
	"errors"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/truthcast/pkg/model"
	"github.com/m-mizutani/truthcast/pkg/service/stages"
	"google.golang.org/genai"
)

// mockGemini is a mock implementation of adapter.Gemini for testing
type mockGemini struct {
	generateFunc func(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

func (m *mockGemini) GenerateContent(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	if m.generateFunc != nil {
		return m.generateFunc(ctx, contents, config)
	}
	return nil, errors.New("not implemented")
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Parts: []*genai.Part{{Text: text}}}},
		},
	}
}

type mockKB struct {
	rows []model.Evidence
}

func (m *mockKB) SearchEvidence(ctx context.Context, claimText string, limit int) ([]model.Evidence, error) {
	return m.rows, nil
}

func TestRiskSnapshot(t *testing.T) {
	gemini := &mockGemini{
		generateFunc: func(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			gt.Equal(t, config.ResponseMIMEType, "application/json")
			return textResponse(`{"label":"suspicious","score":0.7,"confidence":0.85,"reasons":["anonymous source"],"strategy":"standard"}`), nil
		},
	}

	p := stages.New(gemini)
	snapshot, err := p.RiskSnapshot(context.Background(), "some viral text")
	gt.NoError(t, err)
	gt.Equal(t, snapshot.Label, "suspicious")
	gt.Equal(t, snapshot.Strategy, "standard")
	gt.A(t, snapshot.Reasons).Length(1)
}

func TestClaimsWithFencedResponse(t *testing.T) {
	gemini := &mockGemini{
		generateFunc: func(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			return textResponse("```json\n[{\"claim_text\":\"X happened on Monday\"}]\n```"), nil
		},
	}

	p := stages.New(gemini)
	claims, err := p.RunClaims(context.Background(), "text", "standard")
	gt.NoError(t, err)
	gt.A(t, claims).Length(1)
	gt.Equal(t, claims[0].Text, "X happened on Monday")
}

func TestEvidenceMergesKnowledgeBase(t *testing.T) {
	gemini := &mockGemini{
		generateFunc: func(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			// The evidence stage uses search grounding, not JSON mode.
			gt.A(t, config.Tools).Length(1)
			return textResponse(`[{"title":"news","url":"https://example.com/a","snippet":"..."}]`), nil
		},
	}
	kb := &mockKB{rows: []model.Evidence{
		{Title: "kb row", URL: "https://kb.example.com/1", Source: "local_kb"},
	}}

	p := stages.New(gemini, stages.WithEvidenceKB(kb))
	claims := []model.Claim{{Text: "claim one"}}
	evidences, err := p.RunEvidence(context.Background(), "text", claims, "standard")
	gt.NoError(t, err)
	gt.A(t, evidences).Length(2)
	gt.Equal(t, evidences[0].Source, "web_live")
	gt.Equal(t, evidences[1].Source, "local_kb")
}

func TestMalformedResponse(t *testing.T) {
	gemini := &mockGemini{
		generateFunc: func(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			return textResponse("Sorry, I cannot help with that."), nil
		},
	}

	p := stages.New(gemini)
	_, err := p.RiskSnapshot(context.Background(), "text")
	gt.Error(t, err)
}

func TestUpstreamError(t *testing.T) {
	wantErr := errors.New("quota exceeded")
	gemini := &mockGemini{
		generateFunc: func(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			return nil, wantErr
		},
	}

	p := stages.New(gemini)
	_, err := p.RunReport(context.Background(), "text", nil, nil, "standard")
	gt.Error(t, err)
	gt.True(t, errors.Is(err, wantErr))
}
