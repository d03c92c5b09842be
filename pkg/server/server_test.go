package server_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/truthcast/pkg/model"
	"github.com/m-mizutani/truthcast/pkg/repository"
	"github.com/m-mizutani/truthcast/pkg/server"
	"github.com/m-mizutani/truthcast/pkg/service/content"
	"github.com/m-mizutani/truthcast/pkg/usecase/chat"
	"github.com/m-mizutani/truthcast/pkg/usecase/generate"
)

type stubPipeline struct{}

func (p *stubPipeline) RiskSnapshot(ctx context.Context, text string) (*model.RiskSnapshot, error) {
	return &model.RiskSnapshot{Label: "low", Score: 0.1, Strategy: "default"}, nil
}

func (p *stubPipeline) RunClaims(ctx context.Context, text, strategy string) ([]model.Claim, error) {
	return []model.Claim{{Text: "a claim"}}, nil
}

func (p *stubPipeline) RunEvidence(ctx context.Context, text string, claims []model.Claim, strategy string) ([]model.Evidence, error) {
	return []model.Evidence{{Title: "src", URL: "https://example.com/src"}}, nil
}

func (p *stubPipeline) AlignEvidences(ctx context.Context, claims []model.Claim, evidences []model.Evidence, strategy string) ([]model.AlignedEvidence, error) {
	return []model.AlignedEvidence{{Evidence: evidences[0], Stance: "support", AlignmentConfidence: 0.7}}, nil
}

func (p *stubPipeline) RunReport(ctx context.Context, text string, claims []model.Claim, aligned []model.AlignedEvidence, strategy string) (*model.Report, error) {
	return &model.Report{RiskLabel: "low", RiskScore: 0.1, Summary: "looks fine"}, nil
}

func newTestServer(t *testing.T) (*httptest.Server, repository.Repository) {
	t.Helper()
	repo := repository.NewMemory()
	svc := chat.New(chat.NewInput{Repo: repo, Pipeline: &stubPipeline{}})
	gen := generate.New(repo, content.New(nil), nil)
	ts := httptest.NewServer(server.New(svc, repo, server.WithContent(gen)).Handler())
	t.Cleanup(ts.Close)
	return ts, repo
}

func TestHealth(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	gt.NoError(t, err)
	defer resp.Body.Close()
	gt.Equal(t, resp.StatusCode, http.StatusOK)
}

func TestGetRecordNotFound(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/records/no-such-id")
	gt.NoError(t, err)
	defer resp.Body.Close()
	gt.Equal(t, resp.StatusCode, http.StatusNotFound)
}

func TestListRecords(t *testing.T) {
	ts, repo := newTestServer(t)
	record := model.NewRecord("input", model.RiskSnapshot{Label: "low"}, model.Report{RiskLabel: "low"})
	gt.NoError(t, repo.PutRecord(context.Background(), record))

	resp, err := http.Get(ts.URL + "/api/records?limit=5")
	gt.NoError(t, err)
	defer resp.Body.Close()
	gt.Equal(t, resp.StatusCode, http.StatusOK)
	gt.S(t, resp.Header.Get("Content-Type")).Contains("application/json")
}

func TestChatStreamBadBody(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/chat/stream", "application/json", strings.NewReader("not json"))
	gt.NoError(t, err)
	defer resp.Body.Close()
	gt.Equal(t, resp.StatusCode, http.StatusBadRequest)
}

func TestChatStream(t *testing.T) {
	ts, repo := newTestServer(t)

	body := `{"text": "analyze a claim worth checking"}`
	resp, err := http.Post(ts.URL+"/api/chat/stream", "application/json", strings.NewReader(body))
	gt.NoError(t, err)
	defer resp.Body.Close()
	gt.Equal(t, resp.StatusCode, http.StatusOK)
	gt.S(t, resp.Header.Get("Content-Type")).Contains("text/event-stream")

	var events []*model.StreamEvent
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		if ev, ok := chat.ParseLine(scanner.Text()); ok {
			events = append(events, ev)
		}
	}
	gt.NoError(t, scanner.Err())

	gt.True(t, len(events) > 2)
	gt.Equal(t, events[len(events)-1].Type, model.EventDone)

	var messages int
	for _, ev := range events {
		if ev.Type == model.EventMessage {
			messages++
		}
	}
	gt.Equal(t, messages, 1)

	// The run persisted a record.
	rows, err := repo.ListRecords(context.Background(), 10)
	gt.NoError(t, err)
	gt.A(t, rows).Length(1)
}

func seedContentRecord(t *testing.T, repo repository.Repository) *model.Record {
	t.Helper()
	record := model.NewRecord("a miracle cure goes viral",
		model.RiskSnapshot{Label: "high", Score: 0.82},
		model.Report{
			RiskLabel:        "high",
			RiskScore:        0.8,
			Summary:          "Contradicted by official sources.",
			SuspiciousPoints: []string{"absolute effectiveness claim"},
		})
	gt.NoError(t, repo.PutRecord(context.Background(), record))
	return record
}

func TestContentGenerate(t *testing.T) {
	ts, repo := newTestServer(t)
	record := seedContentRecord(t, repo)

	body := `{"record_id":"` + string(record.ID) + `","style":"formal","platforms":["weibo","official"],"include_faq":true,"faq_count":3}`
	resp, err := http.Post(ts.URL+"/api/content/generate", "application/json", strings.NewReader(body))
	gt.NoError(t, err)
	defer resp.Body.Close()
	gt.Equal(t, resp.StatusCode, http.StatusOK)

	var bundle model.ContentBundle
	gt.NoError(t, json.NewDecoder(resp.Body).Decode(&bundle))
	gt.True(t, bundle.Clarification.Short != "")
	gt.A(t, bundle.FAQ).Length(3)
	gt.A(t, bundle.Scripts).Length(2)
	gt.Equal(t, bundle.BasedOn.RecordID, record.ID)
	gt.Equal(t, bundle.BasedOn.Style, model.StyleFormal)
}

func TestContentGenerateUnknownRecord(t *testing.T) {
	ts, _ := newTestServer(t)

	body := `{"record_id":"no-such-id"}`
	resp, err := http.Post(ts.URL+"/api/content/generate", "application/json", strings.NewReader(body))
	gt.NoError(t, err)
	defer resp.Body.Close()
	gt.Equal(t, resp.StatusCode, http.StatusNotFound)
}

func TestContentGenerateBadPlatform(t *testing.T) {
	ts, repo := newTestServer(t)
	record := seedContentRecord(t, repo)

	body := `{"record_id":"` + string(record.ID) + `","platforms":["myspace"]}`
	resp, err := http.Post(ts.URL+"/api/content/generate", "application/json", strings.NewReader(body))
	gt.NoError(t, err)
	defer resp.Body.Close()
	gt.Equal(t, resp.StatusCode, http.StatusBadRequest)
}

func TestContentGenerateMissingRecordID(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/content/generate", "application/json", strings.NewReader(`{}`))
	gt.NoError(t, err)
	defer resp.Body.Close()
	gt.Equal(t, resp.StatusCode, http.StatusBadRequest)
}

func TestContentClarificationRoute(t *testing.T) {
	ts, repo := newTestServer(t)
	record := seedContentRecord(t, repo)

	body := `{"record_id":"` + string(record.ID) + `","style":"friendly"}`
	resp, err := http.Post(ts.URL+"/api/content/clarification", "application/json", strings.NewReader(body))
	gt.NoError(t, err)
	defer resp.Body.Close()
	gt.Equal(t, resp.StatusCode, http.StatusOK)

	var clarification model.Clarification
	gt.NoError(t, json.NewDecoder(resp.Body).Decode(&clarification))
	gt.True(t, clarification.Short != "")
	gt.True(t, clarification.Long != "")
}

func TestContentPlatformScriptsRoute(t *testing.T) {
	ts, repo := newTestServer(t)
	record := seedContentRecord(t, repo)

	// A clarification supplied by the caller is reused, not regenerated.
	body := `{"record_id":"` + string(record.ID) + `","platforms":["weibo"],"clarification":{"short":"already drafted","medium":"m","long":"l"}}`
	resp, err := http.Post(ts.URL+"/api/content/platform-scripts", "application/json", strings.NewReader(body))
	gt.NoError(t, err)
	defer resp.Body.Close()
	gt.Equal(t, resp.StatusCode, http.StatusOK)

	var out struct {
		Scripts []model.PlatformScript `json:"platform_scripts"`
	}
	gt.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	gt.A(t, out.Scripts).Length(1)
	gt.S(t, out.Scripts[0].Content).Contains("already drafted")
}

func TestContentFAQRoute(t *testing.T) {
	ts, repo := newTestServer(t)
	record := seedContentRecord(t, repo)

	body := `{"record_id":"` + string(record.ID) + `","faq_count":2}`
	resp, err := http.Post(ts.URL+"/api/content/faq", "application/json", strings.NewReader(body))
	gt.NoError(t, err)
	defer resp.Body.Close()
	gt.Equal(t, resp.StatusCode, http.StatusOK)

	var out struct {
		FAQ []model.FAQItem `json:"faq"`
	}
	gt.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	gt.A(t, out.FAQ).Length(2)
}
