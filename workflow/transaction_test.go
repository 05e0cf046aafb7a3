package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func comp(stepID string, record func(string)) *Compensation {
	return &Compensation{
		StepID: stepID,
		Run: func(context.Context) error {
			record(stepID)
			return nil
		},
	}
}

func TestTransactionCommitRequiresAllMembers(t *testing.T) {
	t.Parallel()

	tx := NewTransaction("tx1", []string{"s1", "s2"}, zap.NewNop())
	assert.True(t, tx.Contains("s1"))
	assert.False(t, tx.Contains("s3"))

	tx.RecordCompletion("s1", nil)
	assert.False(t, tx.Commit())
	assert.False(t, tx.Committed())

	tx.RecordCompletion("s2", nil)
	assert.True(t, tx.Commit())
	assert.True(t, tx.Committed())

	// A committed transaction never rolls back.
	assert.Nil(t, tx.Rollback(context.Background()))
	assert.False(t, tx.RolledBack())
}

func TestTransactionRollbackReverseOrder(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var ran []string
	record := func(id string) {
		mu.Lock()
		ran = append(ran, id)
		mu.Unlock()
	}

	tx := NewTransaction("tx1", []string{"s1", "s2", "s3"}, zap.NewNop())
	tx.RecordCompletion("s1", comp("s1", record))
	tx.RecordCompletion("s2", comp("s2", record))

	compensated := tx.Rollback(context.Background())
	assert.Equal(t, []string{"s2", "s1"}, compensated)
	assert.Equal(t, []string{"s2", "s1"}, ran)
	assert.True(t, tx.RolledBack())

	// Rollback is one-shot.
	assert.Nil(t, tx.Rollback(context.Background()))
}

func TestTransactionRollbackSkipsFailedCompensation(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var ran []string
	record := func(id string) {
		mu.Lock()
		ran = append(ran, id)
		mu.Unlock()
	}

	tx := NewTransaction("tx1", []string{"s1", "s2"}, zap.NewNop())
	tx.RecordCompletion("s1", comp("s1", record))
	tx.RecordCompletion("s2", &Compensation{
		StepID: "s2",
		Run:    func(context.Context) error { return errors.New("cannot undo") },
	})

	compensated := tx.Rollback(context.Background())
	// The failed compensation is skipped, the rest still run.
	assert.Equal(t, []string{"s1"}, compensated)
	assert.Equal(t, []string{"s1"}, ran)
}

func TestTransactionIgnoresLates(t *testing.T) {
	t.Parallel()

	tx := NewTransaction("tx1", []string{"s1"}, zap.NewNop())
	require.NotNil(t, tx)

	// Unknown members are ignored.
	tx.RecordCompletion("ghost", nil)
	assert.False(t, tx.Commit())

	tx.RecordCompletion("s1", nil)
	require.True(t, tx.Commit())

	// Completions after commit are ignored.
	called := false
	tx.RecordCompletion("s1", &Compensation{StepID: "s1", Run: func(context.Context) error {
		called = true
		return nil
	}})
	tx.Rollback(context.Background())
	assert.False(t, called)
}
