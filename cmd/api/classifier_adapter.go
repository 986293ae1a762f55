package main

import (
	"context"

	"github.com/caseledger/bankfeed/internal/domain/categorization"
	"github.com/caseledger/bankfeed/internal/domain/ingestion"
)

// classifierAdapter adapts categorization.Service to ingestion's Classifier interface
type classifierAdapter struct {
	svc *categorization.Service
}

// newClassifierAdapter creates a new adapter
func newClassifierAdapter(svc *categorization.Service) ingestion.Classifier {
	return &classifierAdapter{svc: svc}
}

// ClassifyBatch implements ingestion.Classifier
func (a *classifierAdapter) ClassifyBatch(ctx context.Context, items []ingestion.ClassifyInput) ([]ingestion.ClassifyOutcome, error) {
	inputs := make([]categorization.Input, len(items))
	for i, item := range items {
		inputs[i] = categorization.Input{
			Description: item.Description,
			Amount:      item.Amount,
			Date:        item.Date,
			Direction:   categorization.Direction(item.Direction),
		}
	}

	results, err := a.svc.ClassifyBatch(ctx, inputs)
	if err != nil {
		return nil, err
	}

	outcomes := make([]ingestion.ClassifyOutcome, len(results))
	for i, r := range results {
		if r.Err != nil {
			outcomes[i] = ingestion.ClassifyOutcome{Err: r.Err}
			continue
		}
		outcomes[i] = ingestion.ClassifyOutcome{
			Categorization: &ingestion.Categorization{
				CategoryID: r.Result.CategoryID,
				Confidence: r.Result.Confidence,
			},
		}
	}

	return outcomes, nil
}
