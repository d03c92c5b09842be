package repository

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/truthcast/pkg/model"
)

// ErrRecordNotFound is returned by GetRecord for unknown record IDs.
var ErrRecordNotFound = goerr.New("record not found")

// Repository defines the interface for analysis record persistence. Records
// are written once on pipeline completion and never mutated.
type Repository interface {
	// PutRecord saves a completed analysis record
	PutRecord(ctx context.Context, record *model.Record) error

	// GetRecord retrieves a record by ID, ErrRecordNotFound if absent
	GetRecord(ctx context.Context, id model.RecordID) (*model.Record, error)

	// ListRecords retrieves up to limit record summaries, newest first
	ListRecords(ctx context.Context, limit int) ([]*model.RecordSummary, error)

	// Close releases underlying resources
	Close() error
}
