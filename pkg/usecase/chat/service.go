// Package chat interprets free-text commands and orchestrates the analyze
// pipeline, streaming progress to the caller and assembling replies for
// everything else.
package chat

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/truthcast/pkg/model"
	"github.com/m-mizutani/truthcast/pkg/repository"
	"github.com/m-mizutani/truthcast/pkg/service/admission"
	"github.com/m-mizutani/truthcast/pkg/service/cache"
	"github.com/m-mizutani/truthcast/pkg/service/policy"
	"github.com/m-mizutani/truthcast/pkg/service/stages"
)

// Service routes interpreted commands to the pipeline coordinator or the
// response assembler. One instance serves all sessions; the admission
// controller and caches it holds are process-wide.
type Service struct {
	repo      repository.Repository
	pipeline  stages.Pipeline
	admission *admission.Controller
	gate      *policy.Gate

	snapshotCache   *cache.Cache
	generationCache *cache.Cache
}

// NewInput bundles the dependencies of a Service.
type NewInput struct {
	Repo      repository.Repository
	Pipeline  stages.Pipeline
	Admission *admission.Controller
	Gate      *policy.Gate

	SnapshotCache   *cache.Cache
	GenerationCache *cache.Cache
}

// New creates a chat Service. Missing admission/caches fall back to
// defaults so callers only configure what they tune.
func New(input NewInput) *Service {
	s := &Service{
		repo:            input.Repo,
		pipeline:        input.Pipeline,
		admission:       input.Admission,
		gate:            input.Gate,
		snapshotCache:   input.SnapshotCache,
		generationCache: input.GenerationCache,
	}
	if s.admission == nil {
		s.admission = admission.New(admission.DefaultSlots)
	}
	if s.snapshotCache == nil {
		s.snapshotCache = cache.New("snapshot", cache.DefaultMaxSize, cache.DefaultTTL)
	}
	if s.generationCache == nil {
		s.generationCache = cache.New("generation", cache.DefaultMaxSize, cache.DefaultTTL)
	}
	return s
}

// HandleText interprets one user turn and streams the reply through emitter.
// It always terminates the stream: emitter.Close is called on every path.
// contextRecordID is the record currently loaded in the caller's session,
// used by context-bound tools (why without ID, more_evidence, rewrite).
func (s *Service) HandleText(ctx context.Context, text, contextRecordID string, emitter *Emitter) {
	defer emitter.Close()

	inv := Interpret(text)

	if inv.Name == model.ToolAnalyze {
		s.runAnalyze(ctx, inv.Text, emitter)
		return
	}

	if inv.Name == model.ToolWhy && inv.RecordID == "" {
		inv.RecordID = contextRecordID
	}
	if inv.Name == model.ToolLoadHistory && inv.RecordID == "" {
		inv.RecordID = contextRecordID
	}

	msg, err := s.Respond(ctx, inv, contextRecordID)
	if err != nil {
		emitter.Fail(err)
		return
	}
	emitter.Emit(model.NewMessageEvent(msg))
}

// RunText executes one turn to completion and returns only the final
// message, for non-streaming callers. An in-band failure becomes a returned
// error, keeping its tags so callers can match sentinels such as
// admission.ErrOverloaded with errors.Is.
func (s *Service) RunText(ctx context.Context, text, contextRecordID string) (*model.ChatMessage, error) {
	emitter := NewEmitter(ctx, DefaultStreamBuffer)
	go s.HandleText(ctx, text, contextRecordID, emitter)

	var msg *model.ChatMessage
	var failure string
	for ev := range emitter.Events() {
		switch ev.Type {
		case model.EventMessage:
			if m, ok := ev.Data["message"].(*model.ChatMessage); ok {
				msg = m
			}
		case model.EventError:
			if m, ok := ev.Data["message"].(string); ok {
				failure = m
			}
		}
	}

	if err := emitter.Err(); err != nil {
		return nil, err
	}
	if failure != "" {
		return nil, goerr.New(failure)
	}
	if msg == nil {
		return nil, goerr.New("turn produced no message")
	}
	return msg, nil
}
