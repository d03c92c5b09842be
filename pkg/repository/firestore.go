package repository

import (
	"context"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/truthcast/pkg/model"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const recordCollection = "records"

// firestoreRepo implements Repository using Firestore
type firestoreRepo struct {
	client *firestore.Client
}

// NewFirestore creates a Firestore-backed repository
func NewFirestore(ctx context.Context, projectID, databaseID string) (Repository, error) {
	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("project", projectID), goerr.V("database", databaseID))
	}

	return &firestoreRepo{client: client}, nil
}

func (r *firestoreRepo) PutRecord(ctx context.Context, record *model.Record) error {
	doc := r.client.Collection(recordCollection).Doc(string(record.ID))
	if _, err := doc.Set(ctx, record); err != nil {
		return goerr.Wrap(err, "failed to save record", goerr.V("id", record.ID))
	}
	return nil
}

func (r *firestoreRepo) GetRecord(ctx context.Context, id model.RecordID) (*model.Record, error) {
	snap, err := r.client.Collection(recordCollection).Doc(string(id)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(ErrRecordNotFound, "no such record", goerr.V("id", id))
		}
		return nil, goerr.Wrap(err, "failed to get record", goerr.V("id", id))
	}

	var record model.Record
	if err := snap.DataTo(&record); err != nil {
		return nil, goerr.Wrap(err, "failed to decode record", goerr.V("id", id))
	}
	return &record, nil
}

func (r *firestoreRepo) ListRecords(ctx context.Context, limit int) ([]*model.RecordSummary, error) {
	if limit <= 0 {
		return []*model.RecordSummary{}, nil
	}

	iter := r.client.Collection(recordCollection).
		OrderBy("created_at", firestore.Desc).
		Limit(limit).
		Documents(ctx)
	defer iter.Stop()

	summaries := []*model.RecordSummary{}
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate records")
		}

		var record model.Record
		if err := snap.DataTo(&record); err != nil {
			return nil, goerr.Wrap(err, "failed to decode record", goerr.V("doc", snap.Ref.ID))
		}
		summaries = append(summaries, record.Summary())
	}

	return summaries, nil
}

func (r *firestoreRepo) Close() error {
	return r.client.Close()
}
