// Package categorization assigns a category to each ingested bank
// transaction. The external classifier is treated as an untrusted black box:
// every call is bounded by retries and backed by a deterministic fallback,
// so classification can only fail when the taxonomy itself has no category
// for the transaction's type.
package categorization

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
)

const (
	// maxAttempts bounds calls to the external classifier per transaction.
	maxAttempts = 3
	// batchSize bounds concurrent outbound classifier calls.
	batchSize = 10

	// Fallback confidences mark results that did not come from the
	// classifier: 0.5 when an "other" category existed, 0.3 otherwise.
	fallbackConfidenceOther = 0.5
	fallbackConfidenceFirst = 0.3

	fallbackReasoning = "Fallback categorization (AI unavailable)"
)

// ErrNoCategoriesAvailable means the taxonomy has no category for the
// transaction's type. This is the one classification failure that cannot be
// masked by the fallback.
var ErrNoCategoriesAvailable = errors.New("no categories available for transaction type")

// Direction mirrors the ledger direction of the transaction being classified.
type Direction string

const (
	DirectionDebit  Direction = "debit"
	DirectionCredit Direction = "credit"
)

// Input describes one transaction to classify
type Input struct {
	Description string
	Amount      decimal.Decimal
	Date        time.Time
	Direction   Direction
}

// Result is a category assignment. Confidence is in [0,1]; exactly 0.5 or
// 0.3 signals a fallback-sourced result.
type Result struct {
	CategoryID   uuid.UUID `json:"category_id"`
	CategoryName string    `json:"category_name"`
	Confidence   float64   `json:"confidence"`
	Reasoning    string    `json:"reasoning"`
}

// Outcome pairs a batch entry with its per-transaction error, if any.
type Outcome struct {
	Result *Result
	Err    error
}

// CategoryLister provides the category taxonomy
type CategoryLister interface {
	ListCategories(ctx context.Context) ([]Category, error)
}

// Completer is the external text classifier: prompt in, JSON text out.
// Implementations may fail or time out freely; the service absorbs that.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Service orchestrates classification with retry, fallback and batching
type Service struct {
	repo   CategoryLister
	client Completer // nil when the classifier is not configured
	logger *slog.Logger

	// backoffUnit scales retry delays; overridden in tests.
	backoffUnit time.Duration
}

// NewService creates a categorization service without a classifier wired in;
// all results then come from the deterministic fallback.
func NewService(repo CategoryLister, logger *slog.Logger) *Service {
	return &Service{
		repo:        repo,
		logger:      logger,
		backoffUnit: time.Second,
	}
}

// WithClient wires in the external classifier
func (s *Service) WithClient(client Completer) *Service {
	s.client = client
	return s
}

// Classify assigns a category to a single transaction. It returns an error
// only when the taxonomy cannot be fetched or has no category of the
// matching type; classifier failures degrade to the fallback instead.
func (s *Service) Classify(ctx context.Context, in Input) (*Result, error) {
	categories, err := s.repo.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch categories: %w", err)
	}
	return s.classifyWith(ctx, categories, in)
}

// ClassifyBatch classifies transactions in groups of batchSize. Calls within
// a group run concurrently; groups run sequentially, bounding peak load on
// the external API. Outcomes are positionally aligned with the input.
func (s *Service) ClassifyBatch(ctx context.Context, items []Input) ([]Outcome, error) {
	categories, err := s.repo.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch categories: %w", err)
	}

	outcomes := make([]Outcome, len(items))

	for start := 0; start < len(items); start += batchSize {
		end := min(start+batchSize, len(items))

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				result, err := s.classifyWith(ctx, categories, items[i])
				outcomes[i] = Outcome{Result: result, Err: err}
			}(i)
		}
		wg.Wait()
	}

	return outcomes, nil
}

func (s *Service) classifyWith(ctx context.Context, categories []Category, in Input) (*Result, error) {
	kind := CategoryTypeExpense
	if in.Direction == DirectionCredit {
		kind = CategoryTypeIncome
	}

	relevant := filterByType(categories, kind)
	if s.client == nil || len(relevant) == 0 {
		return s.fallback(categories, kind)
	}

	prompt := buildPrompt(relevant, in)

	var result *Result
	err := retry.Do(ctx, s.linearBackoff(), func(ctx context.Context) error {
		r, err := s.attempt(ctx, prompt, relevant)
		if err != nil {
			return retry.RetryableError(err)
		}
		result = r
		return nil
	})
	if err != nil {
		s.logger.Warn("classifier failed after retries, using fallback",
			"description", in.Description,
			"error", err,
		)
		return s.fallback(categories, kind)
	}

	return result, nil
}

// attempt makes one classifier call and validates the response against the
// set of categories valid for this transaction.
func (s *Service) attempt(ctx context.Context, prompt string, relevant []Category) (*Result, error) {
	text, err := s.client.Complete(ctx, prompt)
	if err != nil {
		return nil, err
	}

	var resp struct {
		CategoryID   string   `json:"category_id"`
		CategoryName string   `json:"category_name"`
		Confidence   *float64 `json:"confidence"`
		Reasoning    string   `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(cleanModelJSON(text)), &resp); err != nil {
		return nil, fmt.Errorf("invalid JSON from classifier: %w", err)
	}

	if resp.CategoryID == "" || resp.CategoryName == "" || resp.Confidence == nil {
		return nil, errors.New("invalid response structure from classifier")
	}
	if *resp.Confidence < 0 || *resp.Confidence > 1 {
		return nil, fmt.Errorf("confidence out of range: %v", *resp.Confidence)
	}

	var matched *Category
	for i := range relevant {
		if relevant[i].ID.String() == resp.CategoryID {
			matched = &relevant[i]
			break
		}
	}
	if matched == nil {
		return nil, fmt.Errorf("unknown category_id returned: %s", resp.CategoryID)
	}

	reasoning := resp.Reasoning
	if reasoning == "" {
		reasoning = "AI categorization"
	}

	return &Result{
		CategoryID:   matched.ID,
		CategoryName: resp.CategoryName,
		Confidence:   *resp.Confidence,
		Reasoning:    reasoning,
	}, nil
}

// fallback picks the "other" category of the matching type, then the first
// category of that type, and fails only when neither exists.
func (s *Service) fallback(categories []Category, kind CategoryType) (*Result, error) {
	var first *Category
	for i := range categories {
		c := &categories[i]
		if c.Type != kind {
			continue
		}
		if strings.Contains(strings.ToLower(c.Name), "other") {
			return &Result{
				CategoryID:   c.ID,
				CategoryName: c.Name,
				Confidence:   fallbackConfidenceOther,
				Reasoning:    fallbackReasoning,
			}, nil
		}
		if first == nil {
			first = c
		}
	}

	if first != nil {
		return &Result{
			CategoryID:   first.ID,
			CategoryName: first.Name,
			Confidence:   fallbackConfidenceFirst,
			Reasoning:    fallbackReasoning,
		}, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrNoCategoriesAvailable, kind)
}

// linearBackoff reproduces the upstream retry cadence: after the first
// failed attempt wait 2 units, after the second wait 3, then stop.
func (s *Service) linearBackoff() retry.Backoff {
	retriesLeft := maxAttempts
	return retry.BackoffFunc(func() (time.Duration, bool) {
		retriesLeft--
		if retriesLeft <= 0 {
			return 0, true
		}
		return s.backoffUnit * time.Duration(maxAttempts+1-retriesLeft), false
	})
}

func filterByType(categories []Category, kind CategoryType) []Category {
	out := make([]Category, 0, len(categories))
	for _, c := range categories {
		if c.Type == kind {
			out = append(out, c)
		}
	}
	return out
}
