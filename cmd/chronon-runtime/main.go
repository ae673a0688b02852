// Command chronon-runtime loads a JSON pipeline plan and runs it.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/sandboxws/chronon/pkg/connectors"
	"github.com/sandboxws/chronon/pkg/engine"
	"github.com/sandboxws/chronon/pkg/metrics"
	"github.com/sandboxws/chronon/pkg/operator"
	"github.com/sandboxws/chronon/pkg/operators"
	"github.com/sandboxws/chronon/pkg/stream"
)

func main() {
	metricsAddr := flag.String("metrics", "", "address to serve Prometheus metrics on (empty = disabled)")
	explain := flag.Bool("explain", false, "print the operator plan tree and exit")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "usage: chronon-runtime [flags] <plan.json>\n")
		os.Exit(1)
	}
	planPath := flag.Arg(0)

	// Load and validate the plan.
	plan, err := engine.LoadPlan(planPath)
	if err != nil {
		slog.Error("failed to load plan", "path", planPath, "error", err)
		os.Exit(1)
	}
	if err := engine.ValidatePlan(plan); err != nil {
		slog.Error("invalid plan", "path", planPath, "error", err)
		os.Exit(1)
	}

	slog.Info("loaded plan",
		"pipeline", plan.PipelineName,
		"operators", len(plan.Operators),
		"edges", len(plan.Edges),
	)

	pipeline, union, err := buildPipeline(plan)
	if err != nil {
		slog.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}

	if *explain {
		data, err := operator.MarshalPlan(union.PlanNode())
		if err != nil {
			slog.Error("failed to marshal plan", "error", err)
			os.Exit(1)
		}
		fmt.Println(string(data))
		return
	}

	if *metricsAddr != "" {
		metrics.ServeMetrics(*metricsAddr)
		slog.Info("serving metrics", "addr", *metricsAddr)
	}

	if err := engine.RunWithGracefulShutdown(context.Background(), pipeline, 30*time.Second); err != nil {
		slog.Error("pipeline failed", "error", err)
		os.Exit(1)
	}
}

// buildPipeline assembles a string-keyed, float64-payload union pipeline
// from a validated plan.
func buildPipeline(plan *engine.Plan) (*engine.UnionPipeline[string, float64], *operators.Union[string, float64], error) {
	var unionOp *engine.PlanOp
	ops := make(map[string]*engine.PlanOp)
	for _, op := range plan.Operators {
		ops[op.ID] = op
		if op.Type == engine.OpUnion {
			unionOp = op
		}
	}
	if unionOp == nil {
		return nil, nil, fmt.Errorf("plan has no union operator")
	}

	var leftOp, rightOp, sinkOp *engine.PlanOp
	for _, edge := range plan.Edges {
		switch {
		case edge.ToOperator == unionOp.ID && edge.Side == "left":
			leftOp = ops[edge.FromOperator]
		case edge.ToOperator == unionOp.ID && edge.Side == "right":
			rightOp = ops[edge.FromOperator]
		case edge.FromOperator == unionOp.ID:
			sinkOp = ops[edge.ToOperator]
		}
	}
	if leftOp == nil || rightOp == nil {
		return nil, nil, fmt.Errorf("union %q is missing an input", unionOp.ID)
	}
	if sinkOp == nil {
		return nil, nil, fmt.Errorf("union %q has no sink", unionOp.ID)
	}

	alloc := memory.DefaultAllocator
	pool := stream.NewColumnPool[string, float64](alloc, stream.BatchSize)

	pipeline := &engine.UnionPipeline[string, float64]{
		Name:  plan.PipelineName,
		Pool:  pool,
		Alloc: alloc,
	}

	union := operators.NewUnion(pool, pipeline.NewDownstream(), "union:"+plan.PipelineName)

	left, err := buildSource(leftOp, pool)
	if err != nil {
		return nil, nil, err
	}
	right, err := buildSource(rightOp, pool)
	if err != nil {
		return nil, nil, err
	}
	sink, err := buildSink(sinkOp)
	if err != nil {
		return nil, nil, err
	}

	union.AddUpstream(&operator.PlanNode{Kind: leftOp.Type, KeyType: "string", PayloadType: "float64"})
	union.AddUpstream(&operator.PlanNode{Kind: rightOp.Type, KeyType: "string", PayloadType: "float64"})

	pipeline.Left = left
	pipeline.Right = right
	pipeline.Op = union
	pipeline.Sink = sink
	return pipeline, union, nil
}

func buildSource(op *engine.PlanOp, pool stream.Pool[string, float64]) (operator.Source[string, float64], error) {
	switch op.Type {
	case engine.OpGeneratorSource:
		rps := configInt(op.Config, "rows_per_second", 10000)
		maxRows := configInt(op.Config, "max_rows", 0)
		punctEvery := configInt(op.Config, "punctuation_every", 1000)
		step := configInt(op.Config, "step", 1)
		prefix := op.Config["key_prefix"]
		if prefix == "" {
			prefix = op.ID
		}
		makeEvent := func(seq int64) (int64, string, float64) {
			return seq * step, fmt.Sprintf("%s-%d", prefix, seq%100), float64(seq)
		}
		return connectors.NewGenerator(pool, makeEvent, rps, maxRows, punctEvery), nil
	case engine.OpKafkaSource:
		return connectors.NewKafkaSource(pool,
			op.Config["topic"],
			op.Config["bootstrap_servers"],
			op.Config["startup_mode"],
			op.Config["consumer_group"],
		), nil
	default:
		return nil, fmt.Errorf("operator %q: unsupported source type %q", op.ID, op.Type)
	}
}

func buildSink(op *engine.PlanOp) (operator.Sink[string, float64], error) {
	switch op.Type {
	case engine.OpConsoleSink:
		maxRows := configInt(op.Config, "max_rows", 20)
		return connectors.NewConsole[string, float64](int32(maxRows)), nil
	case engine.OpKafkaSink:
		return connectors.NewKafkaSink[string, float64](
			op.Config["topic"],
			op.Config["bootstrap_servers"],
		), nil
	default:
		return nil, fmt.Errorf("operator %q: unsupported sink type %q", op.ID, op.Type)
	}
}

func configInt(config map[string]string, key string, fallback int64) int64 {
	if s, ok := config[key]; ok {
		if v, err := strconv.ParseInt(s, 10, 64); err == nil {
			return v
		}
	}
	return fallback
}
