package chat_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/truthcast/pkg/model"
	"github.com/m-mizutani/truthcast/pkg/repository"
	"github.com/m-mizutani/truthcast/pkg/service/admission"
	"github.com/m-mizutani/truthcast/pkg/service/policy"
	"github.com/m-mizutani/truthcast/pkg/usecase/chat"
)

type mockPipeline struct {
	mu            sync.Mutex
	snapshotCalls int
	claimsCalls   int
	evidenceCalls int
	alignCalls    int
	reportCalls   int

	failStage string
}

var errStageBoom = goerr.New("stage exploded")

func (p *mockPipeline) RiskSnapshot(ctx context.Context, text string) (*model.RiskSnapshot, error) {
	p.mu.Lock()
	p.snapshotCalls++
	p.mu.Unlock()
	if p.failStage == model.StageNameRiskSnapshot {
		return nil, errStageBoom
	}
	return &model.RiskSnapshot{
		Label:      "high",
		Score:      0.82,
		Confidence: 0.9,
		Reasons:    []string{"urgency framing", "anonymous insider source"},
		Strategy:   "default",
	}, nil
}

func (p *mockPipeline) RunClaims(ctx context.Context, text, strategy string) ([]model.Claim, error) {
	p.mu.Lock()
	p.claimsCalls++
	p.mu.Unlock()
	if p.failStage == model.StageNameClaims {
		return nil, errStageBoom
	}
	return []model.Claim{{Text: "the cure is 100% effective"}}, nil
}

func (p *mockPipeline) RunEvidence(ctx context.Context, text string, claims []model.Claim, strategy string) ([]model.Evidence, error) {
	p.mu.Lock()
	p.evidenceCalls++
	p.mu.Unlock()
	if p.failStage == model.StageNameEvidenceSearch {
		return nil, errStageBoom
	}
	return []model.Evidence{
		{Title: "Health authority statement", URL: "https://example.com/statement", Source: "web_live"},
		{Title: "Local KB note", URL: "kb://note/1", Source: "local_kb"},
	}, nil
}

func (p *mockPipeline) AlignEvidences(ctx context.Context, claims []model.Claim, evidences []model.Evidence, strategy string) ([]model.AlignedEvidence, error) {
	p.mu.Lock()
	p.alignCalls++
	p.mu.Unlock()
	if p.failStage == model.StageNameEvidenceAlign {
		return nil, errStageBoom
	}
	return []model.AlignedEvidence{
		{Evidence: evidences[0], Stance: "refute", AlignmentConfidence: 0.85, ClaimIndex: 0},
	}, nil
}

func (p *mockPipeline) RunReport(ctx context.Context, text string, claims []model.Claim, aligned []model.AlignedEvidence, strategy string) (*model.Report, error) {
	p.mu.Lock()
	p.reportCalls++
	p.mu.Unlock()
	if p.failStage == model.StageNameReport {
		return nil, errStageBoom
	}
	return &model.Report{
		RiskLabel:        "high",
		RiskScore:        0.8,
		DetectedScenario: "miracle cure",
		Summary:          "The claim is contradicted by official sources.",
		SuspiciousPoints: []string{"absolute effectiveness claim"},
		ClaimReports: []model.ClaimReport{
			{
				Claim:     claims[0],
				Verdict:   "refuted",
				Evidences: aligned,
			},
		},
	}, nil
}

func newTestService(p *mockPipeline, gate *policy.Gate) (*chat.Service, repository.Repository) {
	repo := repository.NewMemory()
	svc := chat.New(chat.NewInput{
		Repo:     repo,
		Pipeline: p,
		Gate:     gate,
	})
	return svc, repo
}

func collect(svc *chat.Service, text, contextID string) []model.StreamEvent {
	ctx := context.Background()
	emitter := chat.NewEmitter(ctx, 4)
	go svc.HandleText(ctx, text, contextID, emitter)

	var events []model.StreamEvent
	for ev := range emitter.Events() {
		events = append(events, ev)
	}
	return events
}

func eventsOfType(events []model.StreamEvent, typ model.EventType) []model.StreamEvent {
	var out []model.StreamEvent
	for _, ev := range events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func messageOf(t *testing.T, events []model.StreamEvent) *model.ChatMessage {
	t.Helper()
	messages := eventsOfType(events, model.EventMessage)
	gt.A(t, messages).Length(1)
	msg, ok := messages[0].Data["message"].(*model.ChatMessage)
	gt.True(t, ok)
	return msg
}

func TestAnalyzeStream(t *testing.T) {
	p := &mockPipeline{}
	svc, repo := newTestService(p, nil)

	events := collect(svc, "analyze a miracle cure goes viral", "")

	gt.True(t, len(events) > 0)
	gt.Equal(t, events[len(events)-1].Type, model.EventDone)
	gt.A(t, eventsOfType(events, model.EventError)).Length(0)

	// All five stages report running and done.
	stageEvents := eventsOfType(events, model.EventStage)
	gt.A(t, stageEvents).Length(10)
	gt.Equal(t, stageEvents[0].Data["stage"], model.StageNameRiskSnapshot)
	gt.V(t, stageEvents[0].Data["status"]).Equal(string(model.StageRunning))
	gt.Equal(t, stageEvents[9].Data["stage"], model.StageNameReport)
	gt.V(t, stageEvents[9].Data["status"]).Equal(string(model.StageDone))

	msg := messageOf(t, events)
	gt.S(t, msg.Content).Contains("Analysis complete")
	gt.S(t, msg.Content).Contains("high")

	recordID, ok := msg.Meta["record_id"].(string)
	gt.True(t, ok)
	record, err := repo.GetRecord(context.Background(), model.RecordID(recordID))
	gt.NoError(t, err)
	gt.Equal(t, record.Report.RiskLabel, "high")

	// Self-reference first, then only http(s) evidence links.
	gt.True(t, len(msg.References) >= 2)
	gt.Equal(t, msg.References[0].Href, "/history")
	gt.Equal(t, msg.References[1].Href, "https://example.com/statement")
}

func TestAnalyzeStageFailure(t *testing.T) {
	p := &mockPipeline{failStage: model.StageNameClaims}
	svc, repo := newTestService(p, nil)

	events := collect(svc, "analyze something doomed to fail", "")

	gt.Equal(t, events[len(events)-1].Type, model.EventDone)
	gt.A(t, eventsOfType(events, model.EventMessage)).Length(0)

	errEvents := eventsOfType(events, model.EventError)
	gt.A(t, errEvents).Length(1)
	gt.S(t, errEvents[0].Data["message"].(string)).Contains(model.StageNameClaims)

	var failed bool
	for _, ev := range eventsOfType(events, model.EventStage) {
		if ev.Data["stage"] == model.StageNameClaims && ev.Data["status"] == string(model.StageFailed) {
			failed = true
		}
	}
	gt.True(t, failed)

	// Later stages never ran, nothing was persisted.
	gt.Equal(t, p.evidenceCalls, 0)
	gt.Equal(t, p.reportCalls, 0)
	rows, err := repo.ListRecords(context.Background(), 10)
	gt.NoError(t, err)
	gt.A(t, rows).Length(0)
}

func TestAnalyzeEmptyPayload(t *testing.T) {
	p := &mockPipeline{}
	svc, _ := newTestService(p, nil)

	events := collect(svc, "analyze", "")

	gt.A(t, eventsOfType(events, model.EventStage)).Length(0)
	msg := messageOf(t, events)
	gt.S(t, msg.Content).Contains("Usage: analyze")
	gt.Equal(t, p.snapshotCalls, 0)
}

func TestAnalyzeCacheReuse(t *testing.T) {
	p := &mockPipeline{}
	svc, repo := newTestService(p, nil)

	text := "analyze the same viral text twice"
	first := collect(svc, text, "")
	second := collect(svc, text, "")
	gt.A(t, eventsOfType(first, model.EventError)).Length(0)
	gt.A(t, eventsOfType(second, model.EventError)).Length(0)

	// Snapshot and generation stages are served from cache on the second
	// run; evidence retrieval is live and always re-runs.
	gt.Equal(t, p.snapshotCalls, 1)
	gt.Equal(t, p.claimsCalls, 1)
	gt.Equal(t, p.alignCalls, 1)
	gt.Equal(t, p.reportCalls, 1)
	gt.Equal(t, p.evidenceCalls, 2)

	// Each completed run persists its own record.
	rows, err := repo.ListRecords(context.Background(), 10)
	gt.NoError(t, err)
	gt.A(t, rows).Length(2)
}

func TestAnalyzePolicyDeny(t *testing.T) {
	ctx := context.Background()
	gate, err := policy.NewFromModule(ctx, "intake.rego", `package intake

deny contains msg if {
	contains(input.text, "forbidden")
	msg := "input contains forbidden content"
}
`)
	gt.NoError(t, err)

	p := &mockPipeline{}
	svc, _ := newTestService(p, gate)

	events := collect(svc, "analyze this forbidden pamphlet", "")

	msg := messageOf(t, events)
	gt.S(t, msg.Content).Contains("declined")
	gt.S(t, msg.Content).Contains("forbidden")
	gt.Equal(t, p.snapshotCalls, 0)
	gt.A(t, eventsOfType(events, model.EventStage)).Length(0)
}

func TestHelpForUnknownInput(t *testing.T) {
	p := &mockPipeline{}
	svc, _ := newTestService(p, nil)

	events := collect(svc, "what can you do?", "")
	msg := messageOf(t, events)
	gt.S(t, msg.Content).Contains("Available commands")
	gt.S(t, strings.ToLower(msg.Content)).Contains("load_history")
}

// blockingPipeline parks the first risk snapshot call until released, so a
// test can hold an admission slot for a controlled window.
type blockingPipeline struct {
	mockPipeline
	startOnce sync.Once
	started   chan struct{}
	release   chan struct{}
}

func (p *blockingPipeline) RiskSnapshot(ctx context.Context, text string) (*model.RiskSnapshot, error) {
	p.startOnce.Do(func() { close(p.started) })
	<-p.release
	return p.mockPipeline.RiskSnapshot(ctx, text)
}

func TestRunTextKeepsErrorTags(t *testing.T) {
	svc, _ := newTestService(&mockPipeline{failStage: model.StageNameClaims}, nil)

	_, err := svc.RunText(context.Background(), "analyze something went viral today", "")
	gt.Error(t, err)
	gt.True(t, errors.Is(err, errStageBoom))
	gt.S(t, err.Error()).Contains("analysis failed at claims")
}

func TestRunTextKeepsOverloadTag(t *testing.T) {
	p := &blockingPipeline{started: make(chan struct{}), release: make(chan struct{})}
	svc := chat.New(chat.NewInput{
		Repo:      repository.NewMemory(),
		Pipeline:  p,
		Admission: admission.New(1, admission.WithWait(30*time.Millisecond)),
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = svc.RunText(context.Background(), "analyze the first viral post", "")
	}()
	<-p.started

	// The only slot is held, so this turn times out waiting for admission.
	_, err := svc.RunText(context.Background(), "analyze the second viral post", "")
	gt.Error(t, err)
	gt.True(t, errors.Is(err, admission.ErrOverloaded))

	close(p.release)
	<-done
}
