package workflow

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Compensation undoes the side effects of one completed step, best effort:
// external effects of a capability invocation cannot always be undone.
type Compensation struct {
	StepID string
	Run    func(ctx context.Context) error
}

// Transaction groups step executions that commit or roll back together.
// It commits only when every member step completed; any failed member
// triggers rollback of the whole group's recorded side effects in reverse
// completion order.
type Transaction struct {
	id     string
	logger *zap.Logger

	mu            sync.Mutex
	members       map[string]bool // step id -> completed
	compensations []Compensation
	committed     bool
	rolledBack    bool
}

// NewTransaction creates a transaction over the given step ids.
func NewTransaction(id string, stepIDs []string, logger *zap.Logger) *Transaction {
	members := make(map[string]bool, len(stepIDs))
	for _, sid := range stepIDs {
		members[sid] = false
	}
	return &Transaction{
		id:      id,
		logger:  logger.With(zap.String("transaction_id", id)),
		members: members,
	}
}

// Contains reports whether the step belongs to this transaction.
func (t *Transaction) Contains(stepID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.members[stepID]
	return ok
}

// RecordCompletion marks a member step completed and registers its
// compensation for a potential rollback.
func (t *Transaction) RecordCompletion(stepID string, comp *Compensation) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.committed || t.rolledBack {
		return
	}
	if _, ok := t.members[stepID]; !ok {
		return
	}
	t.members[stepID] = true
	if comp != nil {
		t.compensations = append(t.compensations, *comp)
	}
}

// Commit finalizes the transaction. It succeeds only if every member step
// completed; otherwise the transaction stays open.
func (t *Transaction) Commit() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.committed || t.rolledBack {
		return t.committed
	}
	for _, done := range t.members {
		if !done {
			return false
		}
	}
	t.committed = true
	t.compensations = nil
	t.logger.Debug("transaction committed", zap.Int("members", len(t.members)))
	return true
}

// Rollback runs recorded compensations in reverse completion order.
// Compensation failures are logged and skipped: rollback is best-effort.
// It returns the ids of the steps whose effects were compensated.
func (t *Transaction) Rollback(ctx context.Context) []string {
	t.mu.Lock()
	if t.committed || t.rolledBack {
		t.mu.Unlock()
		return nil
	}
	t.rolledBack = true
	comps := t.compensations
	t.compensations = nil
	t.mu.Unlock()

	var compensated []string
	for i := len(comps) - 1; i >= 0; i-- {
		c := comps[i]
		if err := c.Run(ctx); err != nil {
			t.logger.Warn("compensation failed",
				zap.String("step_id", c.StepID),
				zap.Error(err),
			)
			continue
		}
		compensated = append(compensated, c.StepID)
	}
	t.logger.Info("transaction rolled back",
		zap.Int("compensated", len(compensated)),
		zap.Int("total", len(comps)),
	)
	return compensated
}

// Committed reports whether the transaction committed.
func (t *Transaction) Committed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.committed
}

// RolledBack reports whether the transaction rolled back.
func (t *Transaction) RolledBack() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rolledBack
}
