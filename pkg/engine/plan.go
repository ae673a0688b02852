package engine

import (
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-json"
)

// Operator types understood by the plan loader.
const (
	OpGeneratorSource = "generator_source"
	OpKafkaSource     = "kafka_source"
	OpUnion           = "union"
	OpConsoleSink     = "console_sink"
	OpKafkaSink       = "kafka_sink"
)

// Plan describes a pipeline: operator nodes and the edges connecting them.
type Plan struct {
	PipelineName string      `json:"pipeline_name"`
	Operators    []*PlanOp   `json:"operators"`
	Edges        []*PlanEdge `json:"edges"`
}

// PlanOp is one operator node in a plan.
type PlanOp struct {
	ID     string            `json:"id"`
	Name   string            `json:"name"`
	Type   string            `json:"type"`
	Config map[string]string `json:"config,omitempty"`
}

// PlanEdge connects two operator nodes. Side distinguishes a union's inputs.
type PlanEdge struct {
	FromOperator string `json:"from_operator"`
	ToOperator   string `json:"to_operator"`
	Side         string `json:"side,omitempty"` // "left" or "right" into a union
}

// LoadPlan reads a JSON Plan from a file path.
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan file %s: %w", path, err)
	}
	return DeserializePlan(data)
}

// DeserializePlan parses a serialized Plan from bytes.
func DeserializePlan(data []byte) (*Plan, error) {
	plan := &Plan{}
	if err := json.Unmarshal(data, plan); err != nil {
		return nil, fmt.Errorf("unmarshal plan: %w", err)
	}
	return plan, nil
}

// ValidatePlan checks the plan for structural integrity.
func ValidatePlan(plan *Plan) error {
	if plan.PipelineName == "" {
		return fmt.Errorf("pipeline_name is required")
	}

	if len(plan.Operators) == 0 {
		return fmt.Errorf("plan must contain at least one operator")
	}

	// Build operator lookup.
	operatorIDs := make(map[string]*PlanOp, len(plan.Operators))
	for _, op := range plan.Operators {
		if op.ID == "" {
			return fmt.Errorf("operator has empty id")
		}
		if _, exists := operatorIDs[op.ID]; exists {
			return fmt.Errorf("duplicate operator id: %s", op.ID)
		}
		operatorIDs[op.ID] = op
	}

	// Validate edges reference existing operators.
	inDegree := make(map[string]int)
	outDegree := make(map[string]int)
	unionSides := make(map[string]map[string]bool)
	for i, edge := range plan.Edges {
		if _, ok := operatorIDs[edge.FromOperator]; !ok {
			return fmt.Errorf("edge[%d]: from_operator %q does not exist", i, edge.FromOperator)
		}
		to, ok := operatorIDs[edge.ToOperator]
		if !ok {
			return fmt.Errorf("edge[%d]: to_operator %q does not exist", i, edge.ToOperator)
		}
		if edge.FromOperator == edge.ToOperator {
			return fmt.Errorf("edge[%d]: self-loop on operator %q", i, edge.FromOperator)
		}
		inDegree[edge.ToOperator]++
		outDegree[edge.FromOperator]++

		if to.Type == OpUnion {
			if edge.Side != "left" && edge.Side != "right" {
				return fmt.Errorf("edge[%d]: edge into union %q must declare side left or right", i, edge.ToOperator)
			}
			if unionSides[to.ID] == nil {
				unionSides[to.ID] = make(map[string]bool)
			}
			if unionSides[to.ID][edge.Side] {
				return fmt.Errorf("edge[%d]: union %q already has a %s input", i, to.ID, edge.Side)
			}
			unionSides[to.ID][edge.Side] = true
		}
	}

	// Degree constraints per operator type.
	for _, op := range plan.Operators {
		switch op.Type {
		case OpGeneratorSource, OpKafkaSource:
			if inDegree[op.ID] != 0 {
				return fmt.Errorf("source %q must have no inputs", op.ID)
			}
		case OpUnion:
			if inDegree[op.ID] != 2 {
				return fmt.Errorf("union %q must have exactly two inputs, got %d", op.ID, inDegree[op.ID])
			}
		case OpConsoleSink, OpKafkaSink:
			if outDegree[op.ID] != 0 {
				return fmt.Errorf("sink %q must have no outputs", op.ID)
			}
		default:
			return fmt.Errorf("operator %q has unknown type %q", op.ID, op.Type)
		}
	}

	return detectCycles(plan)
}

// detectCycles performs a DFS-based cycle check on the operator DAG.
func detectCycles(plan *Plan) error {
	adj := make(map[string][]string)
	for _, edge := range plan.Edges {
		adj[edge.FromOperator] = append(adj[edge.FromOperator], edge.ToOperator)
	}

	const (
		white = 0 // unvisited
		gray  = 1 // visiting (in current path)
		black = 2 // done
	)

	color := make(map[string]int)
	var path []string

	var dfs func(node string) error
	dfs = func(node string) error {
		color[node] = gray
		path = append(path, node)

		for _, next := range adj[node] {
			switch color[next] {
			case gray:
				// Found a cycle; locate its start in the current path.
				cycleStart := -1
				for i, n := range path {
					if n == next {
						cycleStart = i
						break
					}
				}
				cycle := append(path[cycleStart:], next)
				return fmt.Errorf("cycle detected: %s", strings.Join(cycle, " -> "))
			case white:
				if err := dfs(next); err != nil {
					return err
				}
			}
		}

		path = path[:len(path)-1]
		color[node] = black
		return nil
	}

	for _, op := range plan.Operators {
		if color[op.ID] == white {
			if err := dfs(op.ID); err != nil {
				return err
			}
		}
	}

	return nil
}
