package executor

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/corvidlabs/helmsman/internal/session"
	"github.com/corvidlabs/helmsman/internal/types"
)

const defaultBatchConcurrency = 4

// Batch runs a sequence of operations against a single session, either one
// at a time in order or with up to MaxConcurrent running together. A
// per-op failure never aborts the batch; it's recorded in that op's
// result and the batch continues.
func (e *Executor) Batch(ctx context.Context, sess *session.Session, req types.BatchRequest) (*types.BatchResult, error) {
	if len(req.Ops) == 0 {
		return nil, types.NewValidationError("ops", "at least one operation is required")
	}

	results := make([]types.BatchOpResult, len(req.Ops))

	if req.Parallel {
		concurrency := req.MaxConcurrent
		if concurrency <= 0 {
			concurrency = defaultBatchConcurrency
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(concurrency)

		for i, op := range req.Ops {
			i, op := i, op
			g.Go(func() error {
				results[i] = e.runBatchOp(gctx, sess, op)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i, op := range req.Ops {
			results[i] = e.runBatchOp(ctx, sess, op)
		}
	}

	result := &types.BatchResult{Results: results}
	for _, r := range results {
		if r.Success {
			result.SuccessCount++
		} else {
			result.FailureCount++
		}
	}

	return result, nil
}

func (e *Executor) runBatchOp(ctx context.Context, sess *session.Session, op types.BatchOp) types.BatchOpResult {
	var data interface{}
	var err error

	switch op.Operation {
	case "navigate":
		if op.Navigate == nil {
			err = types.NewValidationError("navigate", "navigate request is required for a navigate op")
		} else {
			data, err = e.Navigate(ctx, sess, *op.Navigate)
		}

	case "extract":
		if op.Extract == nil {
			err = types.NewValidationError("extract", "extract request is required for an extract op")
		} else {
			data, err = e.Extract(ctx, sess, *op.Extract)
		}

	case "interact":
		if op.Interact == nil {
			err = types.NewValidationError("interact", "interact request is required for an interact op")
		} else {
			data, err = e.Interact(ctx, sess, *op.Interact)
		}

	case "screenshot":
		if op.Screenshot == nil {
			err = types.NewValidationError("screenshot", "screenshot request is required for a screenshot op")
		} else {
			data, err = e.Screenshot(ctx, sess, *op.Screenshot)
		}

	default:
		err = types.NewValidationError("operation", fmt.Sprintf("unsupported batch operation: %q", op.Operation))
	}

	if err != nil {
		return types.BatchOpResult{Operation: op.Operation, Success: false, Error: err.Error()}
	}
	return types.BatchOpResult{Operation: op.Operation, Success: true, Data: data}
}
