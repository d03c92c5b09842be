package adapter

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/truthcast/pkg/model"
	"google.golang.org/api/iterator"
)

// EvidenceKB looks up curated evidence from a local knowledge base, used to
// supplement live web retrieval during the evidence_search stage.
type EvidenceKB interface {
	// SearchEvidence returns up to limit knowledge-base rows matching the claim text
	SearchEvidence(ctx context.Context, claimText string, limit int) ([]model.Evidence, error)
}

type bigqueryKB struct {
	client  *bigquery.Client
	dataset string
	table   string
}

// NewBigQueryKB creates an EvidenceKB backed by a BigQuery table. The table
// is expected to carry title, url and snippet columns plus a searchable
// content column.
func NewBigQueryKB(ctx context.Context, projectID, dataset, table string) (EvidenceKB, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create BigQuery client", goerr.V("project", projectID))
	}

	return &bigqueryKB{
		client:  client,
		dataset: dataset,
		table:   table,
	}, nil
}

func (bq *bigqueryKB) SearchEvidence(ctx context.Context, claimText string, limit int) ([]model.Evidence, error) {
	if limit <= 0 {
		limit = 5
	}

	query := bq.client.Query(fmt.Sprintf(
		"SELECT title, url, snippet FROM `%s.%s` WHERE SEARCH(content, @claim) LIMIT @limit",
		bq.dataset, bq.table,
	))
	query.Parameters = []bigquery.QueryParameter{
		{Name: "claim", Value: claimText},
		{Name: "limit", Value: int64(limit)},
	}

	job, err := query.Run(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to run evidence query")
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to wait for evidence query")
	}
	if err := status.Err(); err != nil {
		return nil, goerr.Wrap(err, "evidence query failed")
	}

	it, err := job.Read(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read evidence query result")
	}

	var results []model.Evidence
	for {
		var row struct {
			Title   string `bigquery:"title"`
			URL     string `bigquery:"url"`
			Snippet string `bigquery:"snippet"`
		}
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate evidence rows")
		}

		results = append(results, model.Evidence{
			Title:   row.Title,
			URL:     row.URL,
			Snippet: row.Snippet,
			Source:  "local_kb",
		})
	}

	return results, nil
}
