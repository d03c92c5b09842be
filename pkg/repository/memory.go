package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/truthcast/pkg/model"
)

// memoryRepo is an in-memory Repository, used as the zero-config fallback
// and by tests.
type memoryRepo struct {
	mu      sync.RWMutex
	records map[model.RecordID]*model.Record
}

// NewMemory creates an in-memory repository.
func NewMemory() Repository {
	return &memoryRepo{
		records: make(map[model.RecordID]*model.Record),
	}
}

func (r *memoryRepo) PutRecord(ctx context.Context, record *model.Record) error {
	if record.ID == "" {
		return goerr.New("record ID is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *record
	r.records[record.ID] = &copied
	return nil
}

func (r *memoryRepo) GetRecord(ctx context.Context, id model.RecordID) (*model.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.records[id]
	if !ok {
		return nil, goerr.Wrap(ErrRecordNotFound, "no such record", goerr.V("id", id))
	}

	copied := *record
	return &copied, nil
}

func (r *memoryRepo) ListRecords(ctx context.Context, limit int) ([]*model.RecordSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*model.Record, 0, len(r.records))
	for _, record := range r.records {
		all = append(all, record)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	if limit < 0 {
		limit = 0
	}
	if limit > len(all) {
		limit = len(all)
	}

	summaries := make([]*model.RecordSummary, 0, limit)
	for _, record := range all[:limit] {
		summaries = append(summaries, record.Summary())
	}
	return summaries, nil
}

func (r *memoryRepo) Close() error {
	return nil
}
