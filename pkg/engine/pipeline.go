package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/sandboxws/chronon/pkg/operator"
	"github.com/sandboxws/chronon/pkg/stream"
)

const defaultChannelBuffer = 16

// UnionPipeline wires two sources through a binary operator into a sink:
// each source runs in its own goroutine, the driver feeds the operator, and
// the sink drains forwarded batches and returns them to the pool.
//
// The operator must be constructed with the consumer returned by
// NewDownstream as its downstream.
type UnionPipeline[K comparable, P any] struct {
	Name  string
	Left  operator.Source[K, P]
	Right operator.Source[K, P]
	Op    operator.BinaryOperator[K, P]
	Sink  operator.Sink[K, P]
	Pool  stream.Pool[K, P]
	Alloc memory.Allocator

	downstream *chanConsumer[K, P]
	logger     *slog.Logger
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// NewDownstream creates the consumer the pipeline's operator forwards to.
// Call once, before Run, and hand the result to the operator's constructor.
func (p *UnionPipeline[K, P]) NewDownstream() operator.Consumer[K, P] {
	p.downstream = &chanConsumer[K, P]{
		ch: make(chan *stream.Batch[K, P], defaultChannelBuffer),
	}
	return p.downstream
}

// Run starts the sources, the driver, and the sink, and blocks until the
// streams drain or ctx is cancelled.
func (p *UnionPipeline[K, P]) Run(ctx context.Context) error {
	if p.downstream == nil {
		return fmt.Errorf("pipeline %s: NewDownstream was not called", p.Name)
	}

	ctx, p.cancel = context.WithCancel(ctx)
	defer p.cancel()

	p.logger = slog.Default().With("pipeline", p.Name)

	leftCh := make(chan *stream.Batch[K, P], defaultChannelBuffer)
	rightCh := make(chan *stream.Batch[K, P], defaultChannelBuffer)

	errs := make(chan error, 4)

	p.startSource(ctx, "left", p.Left, leftCh, errs)
	p.startSource(ctx, "right", p.Right, rightCh, errs)

	// Driver goroutine. Once it returns the operator has flushed, so the
	// downstream channel can close and the sink drains out.
	driver := NewBinaryDriver(p.Op, p.Pool)
	driverCtx := operator.NewContext(ctx, p.Alloc, "", p.Name+"/union")
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.downstream.Close()
		if err := driver.Run(driverCtx, leftCh, rightCh); err != nil {
			errs <- fmt.Errorf("driver: %w", err)
		}
	}()

	// Sink goroutine.
	sinkCtx := operator.NewContext(ctx, p.Alloc, "", p.Name+"/sink")
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.Sink.Open(sinkCtx); err != nil {
			errs <- fmt.Errorf("sink open: %w", err)
			for batch := range p.downstream.ch {
				p.Pool.Put(batch)
			}
			return
		}
		defer p.Sink.Close()
		for batch := range p.downstream.ch {
			if err := p.Sink.WriteBatch(batch); err != nil {
				p.logger.Error("sink write failed", "error", err)
				sinkCtx.Metrics.Errors.Add(1)
			}
			p.Pool.Put(batch)
		}
	}()

	p.wg.Wait()
	select {
	case err := <-errs:
		return err
	default:
		return nil
	}
}

// Stop triggers a graceful shutdown.
func (p *UnionPipeline[K, P]) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
}

func (p *UnionPipeline[K, P]) startSource(ctx context.Context, side string, src operator.Source[K, P], out chan<- *stream.Batch[K, P], errs chan<- error) {
	srcCtx := operator.NewContext(ctx, p.Alloc, "", p.Name+"/"+side)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := src.Open(srcCtx); err != nil {
			errs <- fmt.Errorf("%s source open: %w", side, err)
			close(out)
			return
		}
		defer src.Close()
		if err := src.Run(srcCtx, out); err != nil {
			errs <- fmt.Errorf("%s source run: %w", side, err)
		}
	}()
}

// chanConsumer bridges an operator's downstream to a channel.
type chanConsumer[K comparable, P any] struct {
	ch chan *stream.Batch[K, P]
}

// OnNext forwards the batch; blocks when the sink is behind, which is how
// backpressure propagates into the merge step.
func (c *chanConsumer[K, P]) OnNext(batch *stream.Batch[K, P]) {
	c.ch <- batch
}

// Close signals the sink that no more batches will arrive.
func (c *chanConsumer[K, P]) Close() {
	close(c.ch)
}
