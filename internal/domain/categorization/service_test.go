package categorization

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	officeSuppliesID = uuid.New()
	otherExpensesID  = uuid.New()
	clientPaymentsID = uuid.New()
)

func testCategories() []Category {
	return []Category{
		{ID: officeSuppliesID, Name: "Office Supplies", Type: CategoryTypeExpense},
		{ID: otherExpensesID, Name: "Other Expenses", Type: CategoryTypeExpense},
		{ID: clientPaymentsID, Name: "Client Payments", Type: CategoryTypeIncome},
	}
}

type fakeLister struct {
	categories []Category
	err        error
}

func (f *fakeLister) ListCategories(ctx context.Context) ([]Category, error) {
	return f.categories, f.err
}

type fakeCompleter struct {
	calls    atomic.Int32
	complete func(prompt string) (string, error)
}

func (f *fakeCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	f.calls.Add(1)
	return f.complete(prompt)
}

func newTestService(t *testing.T, client Completer) *Service {
	t.Helper()
	svc := NewService(&fakeLister{categories: testCategories()}, slog.Default())
	svc.backoffUnit = time.Millisecond
	if client != nil {
		svc.WithClient(client)
	}
	return svc
}

func debitInput(description string) Input {
	return Input{
		Description: description,
		Amount:      decimal.NewFromFloat(42.50),
		Date:        time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		Direction:   DirectionDebit,
	}
}

func TestClassifySuccess(t *testing.T) {
	client := &fakeCompleter{complete: func(prompt string) (string, error) {
		return fmt.Sprintf(`{"category_id":%q,"category_name":"Office Supplies","confidence":0.92,"reasoning":"hardware store purchase"}`, officeSuppliesID), nil
	}}

	result, err := newTestService(t, client).Classify(context.Background(), debitInput("ACME HARDWARE"))
	require.NoError(t, err)

	assert.Equal(t, officeSuppliesID, result.CategoryID)
	assert.Equal(t, "Office Supplies", result.CategoryName)
	assert.Equal(t, 0.92, result.Confidence)
	assert.Equal(t, "hardware store purchase", result.Reasoning)
	assert.Equal(t, int32(1), client.calls.Load())
}

func TestClassifyFencedResponse(t *testing.T) {
	client := &fakeCompleter{complete: func(prompt string) (string, error) {
		return "```json\n" + fmt.Sprintf(`{"category_id":%q,"category_name":"Office Supplies","confidence":0.8}`, officeSuppliesID) + "\n```", nil
	}}

	result, err := newTestService(t, client).Classify(context.Background(), debitInput("ACME HARDWARE"))
	require.NoError(t, err)

	assert.Equal(t, officeSuppliesID, result.CategoryID)
	// Missing reasoning gets the default.
	assert.Equal(t, "AI categorization", result.Reasoning)
}

func TestClassifyRetriesThenFallback(t *testing.T) {
	client := &fakeCompleter{complete: func(prompt string) (string, error) {
		return "", errors.New("upstream unavailable")
	}}

	result, err := newTestService(t, client).Classify(context.Background(), debitInput("ACME HARDWARE"))
	require.NoError(t, err)

	assert.Equal(t, int32(3), client.calls.Load())
	assert.Equal(t, otherExpensesID, result.CategoryID)
	assert.Equal(t, fallbackConfidenceOther, result.Confidence)
	assert.Equal(t, fallbackReasoning, result.Reasoning)
}

func TestClassifyRejectsBadResponses(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{"not json", "I think this is office supplies"},
		{"missing fields", `{"category_name":"Office Supplies"}`},
		{"confidence out of range", fmt.Sprintf(`{"category_id":%q,"category_name":"Office Supplies","confidence":1.5}`, officeSuppliesID)},
		{"unknown category id", fmt.Sprintf(`{"category_id":%q,"category_name":"Made Up","confidence":0.9}`, uuid.New())},
		{"income category for a debit", fmt.Sprintf(`{"category_id":%q,"category_name":"Client Payments","confidence":0.9}`, clientPaymentsID)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeCompleter{complete: func(prompt string) (string, error) {
				return tt.response, nil
			}}

			result, err := newTestService(t, client).Classify(context.Background(), debitInput("ACME HARDWARE"))
			require.NoError(t, err)

			// Every attempt is rejected, so classification lands on the fallback.
			assert.Equal(t, int32(3), client.calls.Load())
			assert.Equal(t, otherExpensesID, result.CategoryID)
			assert.Equal(t, fallbackConfidenceOther, result.Confidence)
		})
	}
}

func TestClassifyRecoversOnRetry(t *testing.T) {
	client := &fakeCompleter{}
	client.complete = func(prompt string) (string, error) {
		if client.calls.Load() < 2 {
			return "", errors.New("transient")
		}
		return fmt.Sprintf(`{"category_id":%q,"category_name":"Office Supplies","confidence":0.7}`, officeSuppliesID), nil
	}

	result, err := newTestService(t, client).Classify(context.Background(), debitInput("ACME HARDWARE"))
	require.NoError(t, err)

	assert.Equal(t, int32(2), client.calls.Load())
	assert.Equal(t, officeSuppliesID, result.CategoryID)
	assert.Equal(t, 0.7, result.Confidence)
}

func TestClassifyWithoutClientUsesFallback(t *testing.T) {
	result, err := newTestService(t, nil).Classify(context.Background(), debitInput("ACME HARDWARE"))
	require.NoError(t, err)

	assert.Equal(t, otherExpensesID, result.CategoryID)
	assert.Equal(t, fallbackConfidenceOther, result.Confidence)
}

func TestFallbackWithoutOtherCategory(t *testing.T) {
	svc := NewService(&fakeLister{categories: []Category{
		{ID: clientPaymentsID, Name: "Client Payments", Type: CategoryTypeIncome},
	}}, slog.Default())

	result, err := svc.Classify(context.Background(), Input{
		Description: "WIRE TRANSFER IN",
		Amount:      decimal.NewFromInt(1000),
		Date:        time.Now(),
		Direction:   DirectionCredit,
	})
	require.NoError(t, err)

	assert.Equal(t, clientPaymentsID, result.CategoryID)
	assert.Equal(t, fallbackConfidenceFirst, result.Confidence)
}

func TestClassifyNoCategoriesForType(t *testing.T) {
	svc := NewService(&fakeLister{categories: []Category{
		{ID: otherExpensesID, Name: "Other Expenses", Type: CategoryTypeExpense},
	}}, slog.Default())

	_, err := svc.Classify(context.Background(), Input{
		Description: "WIRE TRANSFER IN",
		Amount:      decimal.NewFromInt(1000),
		Date:        time.Now(),
		Direction:   DirectionCredit,
	})
	require.ErrorIs(t, err, ErrNoCategoriesAvailable)
}

func TestClassifyListerError(t *testing.T) {
	svc := NewService(&fakeLister{err: errors.New("connection refused")}, slog.Default())

	_, err := svc.Classify(context.Background(), debitInput("ACME HARDWARE"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to fetch categories")
}

func TestClassifyBatchAlignment(t *testing.T) {
	client := &fakeCompleter{complete: func(prompt string) (string, error) {
		// Answer per transaction so positional alignment is observable.
		if strings.Contains(prompt, "ACME HARDWARE") {
			return fmt.Sprintf(`{"category_id":%q,"category_name":"Office Supplies","confidence":0.9}`, officeSuppliesID), nil
		}
		return "", errors.New("unknown merchant")
	}}

	svc := newTestService(t, client)

	inputs := []Input{
		debitInput("ACME HARDWARE"),
		debitInput("MYSTERY VENDOR"),
		debitInput("ACME HARDWARE"),
	}

	outcomes, err := svc.ClassifyBatch(context.Background(), inputs)
	require.NoError(t, err)
	require.Len(t, outcomes, 3)

	require.NoError(t, outcomes[0].Err)
	assert.Equal(t, officeSuppliesID, outcomes[0].Result.CategoryID)
	assert.Equal(t, 0.9, outcomes[0].Result.Confidence)

	// The unknown merchant exhausts retries and falls back.
	require.NoError(t, outcomes[1].Err)
	assert.Equal(t, otherExpensesID, outcomes[1].Result.CategoryID)
	assert.Equal(t, fallbackConfidenceOther, outcomes[1].Result.Confidence)

	require.NoError(t, outcomes[2].Err)
	assert.Equal(t, officeSuppliesID, outcomes[2].Result.CategoryID)
}

func TestClassifyBatchLargeInput(t *testing.T) {
	client := &fakeCompleter{complete: func(prompt string) (string, error) {
		return fmt.Sprintf(`{"category_id":%q,"category_name":"Office Supplies","confidence":0.9}`, officeSuppliesID), nil
	}}

	svc := newTestService(t, client)

	inputs := make([]Input, 23)
	for i := range inputs {
		inputs[i] = debitInput(fmt.Sprintf("VENDOR %d", i))
	}

	outcomes, err := svc.ClassifyBatch(context.Background(), inputs)
	require.NoError(t, err)
	require.Len(t, outcomes, 23)

	for i, o := range outcomes {
		require.NoError(t, o.Err, "outcome %d", i)
		require.NotNil(t, o.Result, "outcome %d", i)
		assert.Equal(t, officeSuppliesID, o.Result.CategoryID)
	}
	assert.Equal(t, int32(23), client.calls.Load())
}

func TestLinearBackoffCadence(t *testing.T) {
	svc := NewService(&fakeLister{}, slog.Default())
	svc.backoffUnit = time.Second
	b := svc.linearBackoff()

	d, stop := b.Next()
	assert.False(t, stop)
	assert.Equal(t, 2*time.Second, d)

	d, stop = b.Next()
	assert.False(t, stop)
	assert.Equal(t, 3*time.Second, d)

	_, stop = b.Next()
	assert.True(t, stop)
}

func TestCleanModelJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"fenced without language", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"prose around object", "Here you go: {\"a\":1} hope that helps", `{"a":1}`},
		{"leading whitespace", "  \n{\"a\":1}", `{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanModelJSON(tt.in))
		})
	}
}

func TestBuildPrompt(t *testing.T) {
	prompt := buildPrompt(testCategories()[:2], debitInput("ACME HARDWARE"))

	assert.Contains(t, prompt, "ACME HARDWARE")
	assert.Contains(t, prompt, "2024-01-15")
	assert.Contains(t, prompt, "42.5")
	assert.Contains(t, prompt, "debit")
	assert.Contains(t, prompt, fmt.Sprintf("Office Supplies (ID: %s, Type: expense)", officeSuppliesID))
	assert.Contains(t, prompt, "Return ONLY valid JSON")
}
