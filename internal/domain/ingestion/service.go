// Package ingestion coordinates the bank statement import pipeline: account
// verification, parsing, duplicate filtering, classification, and per-row
// persistence. The uploaded file is always deleted before Ingest returns,
// success or failure.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/caseledger/bankfeed/internal/domain/ingestion/parser"
)

const (
	// duplicateWindowDays is the trailing window for exact-match duplicate
	// detection.
	duplicateWindowDays = 30

	// maxRowErrorRate aborts the import when more than this fraction of data
	// rows fail to parse. At or below the threshold the import proceeds with
	// the valid rows.
	maxRowErrorRate = 0.10
)

var (
	ErrAccountNotFound    = errors.New("bank account not found")
	ErrEmptyFile          = errors.New("no valid transactions found in file")
	ErrTooManyParseErrors = errors.New("too many parse errors")
	ErrCategoryNotFound   = errors.New("category not found")
	ErrTransactionNotFound = errors.New("transaction not found")
)

// Transaction is a persisted ledger entry. Amount is always non-negative;
// Direction carries the sign. AIConfidence is nil once a human has
// overridden the category.
type Transaction struct {
	ID           uuid.UUID        `json:"id"`
	AccountID    uuid.UUID        `json:"account_id"`
	Date         time.Time        `json:"date"`
	Description  string           `json:"description"`
	Amount       decimal.Decimal  `json:"amount"`
	Direction    parser.Direction `json:"type"`
	CategoryID   *uuid.UUID       `json:"category_id,omitempty"`
	AIConfidence *float64         `json:"ai_confidence,omitempty"`
	Notes        *string          `json:"notes,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
}

// ProcessingResult summarizes one import. successful + failed + duplicates
// never exceeds total_processed.
type ProcessingResult struct {
	TotalProcessed int               `json:"total_processed"`
	Successful     int               `json:"successful"`
	Failed         int               `json:"failed"`
	Duplicates     int               `json:"duplicates"`
	Transactions   []*Transaction    `json:"transactions"`
	Errors         []parser.RowError `json:"errors"`
}

// Options narrows or overrides format detection for one import. A non-nil
// Mapping wins over Format; an empty Format means auto-detect.
type Options struct {
	Format  parser.Format
	Mapping *parser.Mapping
}

// Categorization is the classifier's verdict for one transaction.
type Categorization struct {
	CategoryID uuid.UUID
	Confidence float64
}

// ClassifyInput describes one transaction for the classifier.
type ClassifyInput struct {
	Description string
	Amount      decimal.Decimal
	Date        time.Time
	Direction   parser.Direction
}

// ClassifyOutcome pairs a batch entry with its per-transaction error.
type ClassifyOutcome struct {
	Categorization *Categorization
	Err            error
}

// AccountChecker verifies the target bank account exists
type AccountChecker interface {
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

// TransactionRepository persists and queries ledger transactions
type TransactionRepository interface {
	Insert(ctx context.Context, tx *Transaction) (*Transaction, error)
	HasRecentDuplicate(ctx context.Context, accountID uuid.UUID, date time.Time, description string, amount decimal.Decimal, withinDays int) (bool, error)
	CategoryExists(ctx context.Context, id uuid.UUID) (bool, error)
	UpdateCategory(ctx context.Context, id uuid.UUID, categoryID uuid.UUID, notes *string) (*Transaction, error)
}

// Classifier assigns categories to parsed transactions. Outcomes are
// positionally aligned with the input; a batch-level error aborts the import.
type Classifier interface {
	ClassifyBatch(ctx context.Context, items []ClassifyInput) ([]ClassifyOutcome, error)
}

// Service coordinates statement imports end to end
type Service struct {
	accounts   AccountChecker
	repo       TransactionRepository
	classifier Classifier
	logger     *slog.Logger
	tracer     trace.Tracer

	// removeFile is swapped out in tests to observe cleanup.
	removeFile func(string) error
}

// NewService creates the ingestion coordinator
func NewService(accounts AccountChecker, repo TransactionRepository, classifier Classifier, logger *slog.Logger) *Service {
	return &Service{
		accounts:   accounts,
		repo:       repo,
		classifier: classifier,
		logger:     logger,
		tracer:     otel.Tracer("bankfeed/ingestion"),
		removeFile: os.Remove,
	}
}

// Ingest imports one uploaded statement file into the given account. The
// file at filePath is deleted before returning on every path, including
// errors; cleanup failures are logged, never propagated.
func (s *Service) Ingest(ctx context.Context, filePath string, accountID uuid.UUID, opts Options) (*ProcessingResult, error) {
	ctx, span := s.tracer.Start(ctx, "ingestion.Ingest",
		trace.WithAttributes(attribute.String("account_id", accountID.String())),
	)
	defer span.End()

	defer s.cleanup(filePath)

	exists, err := s.accounts.Exists(ctx, accountID)
	if err != nil {
		ingestRuns.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to verify account: %w", err)
	}
	if !exists {
		ingestRuns.WithLabelValues("error").Inc()
		return nil, ErrAccountNotFound
	}

	content, err := os.ReadFile(filePath)
	if err != nil {
		ingestRuns.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to read uploaded file: %w", err)
	}

	parsed, err := s.parse(filePath, content, opts)
	if err != nil {
		ingestRuns.WithLabelValues("error").Inc()
		return nil, err
	}

	if parsed.TotalRows > 0 {
		errRate := float64(len(parsed.Errors)) / float64(parsed.TotalRows)
		if errRate > maxRowErrorRate {
			ingestRuns.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("%w: %d of %d rows failed", ErrTooManyParseErrors, len(parsed.Errors), parsed.TotalRows)
		}
	}
	if len(parsed.Transactions) == 0 {
		ingestRuns.WithLabelValues("error").Inc()
		return nil, ErrEmptyFile
	}
	rowsProcessed.WithLabelValues(outcomeParseError).Add(float64(len(parsed.Errors)))

	newTxs, duplicates := s.partitionDuplicates(ctx, accountID, parsed.Transactions)
	rowsProcessed.WithLabelValues(outcomeDuplicate).Add(float64(duplicates))

	result := &ProcessingResult{
		TotalProcessed: parsed.TotalRows,
		Duplicates:     duplicates,
		Transactions:   make([]*Transaction, 0, len(newTxs)),
		Errors:         append([]parser.RowError(nil), parsed.Errors...),
	}

	if len(newTxs) > 0 {
		inputs := make([]ClassifyInput, len(newTxs))
		for i, tx := range newTxs {
			inputs[i] = ClassifyInput{
				Description: tx.Description,
				Amount:      tx.Amount,
				Date:        tx.Date,
				Direction:   tx.Direction,
			}
		}

		outcomes, err := s.classifier.ClassifyBatch(ctx, inputs)
		if err != nil {
			ingestRuns.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("classification failed: %w", err)
		}

		for i, tx := range newTxs {
			// +2: row numbers in the new-transactions list include the
			// header line and are 1-based, same as parse errors.
			row := i + 2

			outcome := outcomes[i]
			if outcome.Err != nil {
				rowsProcessed.WithLabelValues(outcomeFailed).Inc()
				result.Errors = append(result.Errors, parser.RowError{Row: row, Message: outcome.Err.Error()})
				continue
			}

			record := &Transaction{
				AccountID:    accountID,
				Date:         tx.Date,
				Description:  tx.Description,
				Amount:       tx.Amount,
				Direction:    tx.Direction,
				CategoryID:   &outcome.Categorization.CategoryID,
				AIConfidence: &outcome.Categorization.Confidence,
			}

			saved, err := s.repo.Insert(ctx, record)
			if err != nil {
				s.logger.Warn("failed to persist transaction",
					"account_id", accountID,
					"row", row,
					"error", err,
				)
				rowsProcessed.WithLabelValues(outcomeFailed).Inc()
				result.Errors = append(result.Errors, parser.RowError{Row: row, Message: fmt.Sprintf("failed to save transaction: %v", err)})
				continue
			}

			rowsProcessed.WithLabelValues(outcomePersisted).Inc()
			result.Transactions = append(result.Transactions, saved)
		}
	}

	result.Successful = len(result.Transactions)
	result.Failed = len(result.Errors)

	span.SetAttributes(
		attribute.Int("rows.total", result.TotalProcessed),
		attribute.Int("rows.successful", result.Successful),
		attribute.Int("rows.failed", result.Failed),
		attribute.Int("rows.duplicates", result.Duplicates),
	)
	ingestRuns.WithLabelValues("ok").Inc()

	s.logger.Info("statement import completed",
		"account_id", accountID,
		"total", result.TotalProcessed,
		"successful", result.Successful,
		"failed", result.Failed,
		"duplicates", result.Duplicates,
	)

	return result, nil
}

// OverrideCategory records a human category decision on a transaction and
// clears the classifier's confidence.
func (s *Service) OverrideCategory(ctx context.Context, txID, categoryID uuid.UUID, notes *string) (*Transaction, error) {
	ctx, span := s.tracer.Start(ctx, "ingestion.OverrideCategory")
	defer span.End()

	exists, err := s.repo.CategoryExists(ctx, categoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to verify category: %w", err)
	}
	if !exists {
		return nil, ErrCategoryNotFound
	}

	tx, err := s.repo.UpdateCategory(ctx, txID, categoryID, notes)
	if err != nil {
		return nil, fmt.Errorf("failed to update transaction: %w", err)
	}
	if tx == nil {
		return nil, ErrTransactionNotFound
	}

	return tx, nil
}

// parse resolves the column mapping and runs the file through the matching
// parser. XLSX uploads reuse CSV format detection via their header row.
func (s *Service) parse(filePath string, content []byte, opts Options) (*parser.Result, error) {
	if strings.EqualFold(filepath.Ext(filePath), ".xlsx") {
		mapping := opts.Mapping
		if mapping == nil {
			header, err := parser.XLSXHeaderLine(content)
			if err != nil {
				return nil, err
			}
			m := s.resolveMapping(opts.Format, header)
			mapping = &m
		}
		return parser.ParseXLSX(content, *mapping)
	}

	mapping := opts.Mapping
	if mapping == nil {
		m := s.resolveMapping(opts.Format, string(content))
		mapping = &m
	}
	return parser.Parse(content, *mapping)
}

func (s *Service) resolveMapping(format parser.Format, headerContent string) parser.Mapping {
	if format == "" {
		format = parser.DetectFormat(headerContent)
		s.logger.Debug("detected statement format", "format", format)
	}
	return parser.MappingFor(format)
}

// partitionDuplicates splits parsed rows into new and already-seen. A failed
// duplicate lookup treats the row as new: importing a duplicate is
// recoverable, silently dropping a real transaction is not.
func (s *Service) partitionDuplicates(ctx context.Context, accountID uuid.UUID, txs []parser.Transaction) ([]parser.Transaction, int) {
	newTxs := make([]parser.Transaction, 0, len(txs))
	duplicates := 0

	for _, tx := range txs {
		isDup, err := s.repo.HasRecentDuplicate(ctx, accountID, tx.Date, tx.Description, tx.Amount, duplicateWindowDays)
		if err != nil {
			s.logger.Warn("duplicate check failed, importing row anyway",
				"account_id", accountID,
				"description", tx.Description,
				"error", err,
			)
			newTxs = append(newTxs, tx)
			continue
		}
		if isDup {
			duplicates++
			continue
		}
		newTxs = append(newTxs, tx)
	}

	return newTxs, duplicates
}

func (s *Service) cleanup(path string) {
	if err := s.removeFile(path); err != nil && !os.IsNotExist(err) {
		cleanupFailures.Inc()
		s.logger.Warn("failed to delete uploaded file", "path", path, "error", err)
	}
}
