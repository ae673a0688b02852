package operator

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/google/uuid"
)

// Metrics tracks basic operator-level metrics.
type Metrics struct {
	BatchesEmitted         atomic.Int64
	RowsCopied             atomic.Int64
	FastPathForwards       atomic.Int64
	PunctuationsSuppressed atomic.Int64
	Errors                 atomic.Int64
}

// Context provides the execution environment for an operator.
type Context struct {
	// Go context for cancellation and shutdown.
	Ctx context.Context

	// Logger scoped to this operator.
	Logger *slog.Logger

	// Metrics for this operator instance.
	Metrics *Metrics

	// Alloc is the Arrow memory allocator backing pool bitmap storage and
	// Arrow exports.
	Alloc memory.Allocator

	// OperatorID is the unique identifier for this operator in the plan.
	OperatorID string

	// OperatorName is the human-readable name of this operator.
	OperatorName string
}

// NewContext creates a new operator context with defaults. An empty
// operatorID gets a generated one.
func NewContext(ctx context.Context, alloc memory.Allocator, operatorID, operatorName string) *Context {
	if operatorID == "" {
		operatorID = uuid.NewString()
	}
	return &Context{
		Ctx:          ctx,
		Logger:       slog.Default().With("operator", operatorID, "name", operatorName),
		Metrics:      &Metrics{},
		Alloc:        alloc,
		OperatorID:   operatorID,
		OperatorName: operatorName,
	}
}

// Done returns the context's Done channel for shutdown signaling.
func (c *Context) Done() <-chan struct{} {
	return c.Ctx.Done()
}
