package order

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// journal records the compensation for every write that succeeded during a
// multi-document operation running without a transaction.
type journal struct {
	operation string
	orderID   string
	steps     []Repair
}

func newJournal(operation, orderID string) *journal {
	return &journal{operation: operation, orderID: orderID}
}

// record is a no-op on a nil journal, which is what transactional runs pass.
func (j *journal) record(r Repair) {
	if j == nil {
		return
	}
	r.Operation = j.operation
	r.OrderID = j.orderID
	j.steps = append(j.steps, r)
}

// unwind applies the recorded compensations newest first. Compensations
// that fail are persisted as repairs so they can be retried later.
func (s *Service) unwind(ctx context.Context, j *journal) {
	ctx = context.WithoutCancel(ctx)
	lg := zctx.From(ctx)

	for i := len(j.steps) - 1; i >= 0; i-- {
		r := j.steps[i]
		err := apply(ctx, s.store, &r)
		if err == nil {
			s.metrics.compensation(ctx, &r, "applied")
			continue
		}

		s.metrics.compensation(ctx, &r, "failed")
		r.ID = s.newID()
		r.Error = err.Error()
		r.CreatedAt = s.now().UTC()
		lg.Error("Compensation failed",
			zap.String("operation", r.Operation),
			zap.String("order_id", r.OrderID),
			zap.String("target", string(r.Target)),
			zap.String("document_id", r.DocumentID),
			zap.Error(err),
		)
		if err := s.repairs.Create(ctx, &r); err != nil {
			lg.Error("Persist repair", zap.String("document_id", r.DocumentID), zap.Error(err))
		}
	}
}

// apply performs one compensating write. A write whose effect is already
// present counts as applied.
func apply(ctx context.Context, st Store, r *Repair) error {
	var err error
	switch {
	case r.Target == TargetOrder && r.Action == ActionDelete:
		err = st.DeleteOrder(ctx, r.DocumentID)
	case r.Target == TargetOrderItem && r.Action == ActionDelete:
		err = st.DeleteItem(ctx, r.DocumentID)
	case r.Target == TargetOrderItem && r.Action == ActionRestore:
		if r.Item == nil {
			return errors.Errorf("restore %s: missing payload", r.DocumentID)
		}
		err = st.CreateItem(ctx, r.Item)
		if errors.Is(err, ErrAlreadyExists) {
			return nil
		}
		return err
	default:
		return errors.Errorf("unsupported compensation %s %s", r.Action, r.Target)
	}
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}
