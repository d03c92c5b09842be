package chat_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/truthcast/pkg/model"
	"github.com/m-mizutani/truthcast/pkg/repository"
	"github.com/m-mizutani/truthcast/pkg/usecase/chat"
)

// seedRecord persists a record with three claim reports of three http
// evidences each, enough to exercise the reference cap.
func seedRecord(t *testing.T, repo repository.Repository) *model.Record {
	t.Helper()

	snapshot := model.RiskSnapshot{
		Label:      "high",
		Score:      0.82,
		Confidence: 0.9,
		Reasons:    []string{"urgency framing", "anonymous source", "cure-all claim", "no citations", "emotive language", "extra reason"},
		Strategy:   "default",
	}

	var claimReports []model.ClaimReport
	for c := range 3 {
		var evidences []model.AlignedEvidence
		for e := range 3 {
			evidences = append(evidences, model.AlignedEvidence{
				Evidence: model.Evidence{
					Title:  fmt.Sprintf("Source %d-%d", c, e),
					URL:    fmt.Sprintf("https://example.com/%d/%d", c, e),
					Source: "web_live",
				},
				Stance:              "refute",
				AlignmentConfidence: 0.8,
				ClaimIndex:          c,
			})
		}
		claimReports = append(claimReports, model.ClaimReport{
			Claim:     model.Claim{Text: fmt.Sprintf("claim number %d stating the miracle cure works instantly for everyone everywhere", c)},
			Verdict:   "refuted",
			Evidences: evidences,
		})
	}

	report := model.Report{
		RiskLabel:        "high",
		RiskScore:        0.8,
		Summary:          "Contradicted by official sources.",
		SuspiciousPoints: []string{"p1", "p2", "p3", "p4", "p5", "p6", "p7"},
		ClaimReports:     claimReports,
	}

	record := model.NewRecord("some viral input text", snapshot, report)
	gt.NoError(t, repo.PutRecord(context.Background(), record))
	return record
}

func newRespondService(t *testing.T) (*chat.Service, repository.Repository) {
	t.Helper()
	repo := repository.NewMemory()
	svc := chat.New(chat.NewInput{Repo: repo, Pipeline: &mockPipeline{}})
	return svc, repo
}

func TestRespondNotFound(t *testing.T) {
	svc, _ := newRespondService(t)
	ctx := context.Background()

	for _, inv := range []model.ToolInvocation{
		{Name: model.ToolWhy, RecordID: "no-such-id"},
		{Name: model.ToolLoadHistory, RecordID: "no-such-id"},
	} {
		msg, err := svc.Respond(ctx, inv, "")
		gt.NoError(t, err)
		gt.Equal(t, msg.Content, "record not found: no-such-id")
	}
}

func TestRespondWhy(t *testing.T) {
	svc, repo := newRespondService(t)
	record := seedRecord(t, repo)

	msg, err := svc.Respond(context.Background(), model.ToolInvocation{
		Name:     model.ToolWhy,
		RecordID: string(record.ID),
	}, "")
	gt.NoError(t, err)

	// Slot 0 is the record's own reference; evidence links fill the rest up
	// to the cap of eight.
	gt.A(t, msg.References).Length(8)
	gt.Equal(t, msg.References[0].Href, "/history")
	for _, ref := range msg.References[1:] {
		gt.S(t, ref.Href).Contains("https://example.com/")
	}

	gt.S(t, msg.Content).Contains("Risk snapshot: high")
	gt.S(t, msg.Content).Contains("Report: high")

	gt.V(t, msg.Meta["record_id"]).Equal(string(record.ID))
	blocks, ok := msg.Meta["blocks"].([]model.Block)
	gt.True(t, ok)
	gt.True(t, len(blocks) >= 3)

	// Reason and suspicious-point excerpts cap at five entries.
	gt.A(t, blocks[0].Items).Length(5)
	gt.A(t, blocks[1].Items).Length(5)
}

func TestRespondRewrite(t *testing.T) {
	svc, repo := newRespondService(t)
	record := seedRecord(t, repo)
	ctx := context.Background()

	short, err := svc.Respond(ctx, model.ToolInvocation{Name: model.ToolRewrite, Style: "short"}, string(record.ID))
	gt.NoError(t, err)
	gt.Equal(t, short.Meta["style"], "short")
	gt.S(t, short.Content).Contains("Short rewrite")

	friendly, err := svc.Respond(ctx, model.ToolInvocation{Name: model.ToolRewrite, Style: "friendly"}, string(record.ID))
	gt.NoError(t, err)
	gt.Equal(t, friendly.Meta["style"], "friendly")
	gt.True(t, friendly.Content != short.Content)

	// Unknown styles normalize to short.
	bogus, err := svc.Respond(ctx, model.ToolInvocation{Name: model.ToolRewrite, Style: "sarcastic"}, string(record.ID))
	gt.NoError(t, err)
	gt.Equal(t, bogus.Meta["style"], "short")
}

func TestRespondListEmpty(t *testing.T) {
	svc, _ := newRespondService(t)

	msg, err := svc.Respond(context.Background(), model.ToolInvocation{Name: model.ToolList, Limit: 10}, "")
	gt.NoError(t, err)
	gt.S(t, msg.Content).Contains("No records yet")
	gt.A(t, msg.References).Length(0)

	// The hint carries a runnable example analysis.
	var hasExample bool
	for _, action := range msg.Actions {
		if action.Kind == model.ActionCommand {
			gt.S(t, action.Command).Contains("analyze ")
			hasExample = true
		}
	}
	gt.True(t, hasExample)
}

func TestRespondList(t *testing.T) {
	svc, repo := newRespondService(t)
	record := seedRecord(t, repo)

	msg, err := svc.Respond(context.Background(), model.ToolInvocation{Name: model.ToolList, Limit: 10}, "")
	gt.NoError(t, err)
	gt.S(t, msg.Content).Contains(string(record.ID))
	gt.S(t, msg.Content).Contains("load_history")

	var hasLoad bool
	for _, action := range msg.Actions {
		if action.Kind == model.ActionCommand {
			gt.Equal(t, action.Command, fmt.Sprintf("load_history %s", record.ID))
			hasLoad = true
		}
	}
	gt.True(t, hasLoad)
}

func TestRespondMoreEvidence(t *testing.T) {
	svc, repo := newRespondService(t)
	record := seedRecord(t, repo)
	ctx := context.Background()

	msg, err := svc.Respond(ctx, model.ToolInvocation{Name: model.ToolMoreEvidence}, string(record.ID))
	gt.NoError(t, err)
	gt.V(t, msg.Meta["record_id"]).Equal(string(record.ID))

	var commands []string
	for _, action := range msg.Actions {
		if action.Kind == model.ActionCommand {
			commands = append(commands, action.Command)
		}
	}
	gt.A(t, commands).Length(2)

	// Without a loaded record the tool reports not-found.
	msg, err = svc.Respond(ctx, model.ToolInvocation{Name: model.ToolMoreEvidence}, "")
	gt.NoError(t, err)
	gt.S(t, msg.Content).Contains("record not found")
}

func TestRespondLoadHistory(t *testing.T) {
	svc, repo := newRespondService(t)
	record := seedRecord(t, repo)

	msg, err := svc.Respond(context.Background(), model.ToolInvocation{
		Name:     model.ToolLoadHistory,
		RecordID: string(record.ID),
	}, "")
	gt.NoError(t, err)
	gt.V(t, msg.Meta["record_id"]).Equal(string(record.ID))
	gt.A(t, msg.References).Length(1)
}
