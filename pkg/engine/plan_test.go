package engine

import (
	"strings"
	"testing"
)

func validPlan() *Plan {
	return &Plan{
		PipelineName: "clicks-and-views",
		Operators: []*PlanOp{
			{ID: "gen1", Name: "clicks", Type: OpGeneratorSource},
			{ID: "gen2", Name: "views", Type: OpGeneratorSource},
			{ID: "u", Name: "merge", Type: OpUnion},
			{ID: "out", Name: "console", Type: OpConsoleSink},
		},
		Edges: []*PlanEdge{
			{FromOperator: "gen1", ToOperator: "u", Side: "left"},
			{FromOperator: "gen2", ToOperator: "u", Side: "right"},
			{FromOperator: "u", ToOperator: "out"},
		},
	}
}

func TestValidatePlanAccepts(t *testing.T) {
	if err := ValidatePlan(validPlan()); err != nil {
		t.Fatalf("expected valid plan, got %v", err)
	}
}

func TestValidatePlanRejects(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Plan)
		wantErr string
	}{
		{
			name:    "missing pipeline name",
			mutate:  func(p *Plan) { p.PipelineName = "" },
			wantErr: "pipeline_name",
		},
		{
			name:    "no operators",
			mutate:  func(p *Plan) { p.Operators = nil; p.Edges = nil },
			wantErr: "at least one operator",
		},
		{
			name:    "duplicate operator id",
			mutate:  func(p *Plan) { p.Operators[1].ID = "gen1" },
			wantErr: "duplicate operator id",
		},
		{
			name:    "unknown operator type",
			mutate:  func(p *Plan) { p.Operators[3].Type = "teleport_sink" },
			wantErr: "unknown type",
		},
		{
			name:    "edge to missing operator",
			mutate:  func(p *Plan) { p.Edges[2].ToOperator = "ghost" },
			wantErr: "does not exist",
		},
		{
			name:    "self loop",
			mutate:  func(p *Plan) { p.Edges[2].ToOperator = "u" },
			wantErr: "self-loop",
		},
		{
			name:    "union edge without side",
			mutate:  func(p *Plan) { p.Edges[0].Side = "" },
			wantErr: "must declare side",
		},
		{
			name:    "union with two left inputs",
			mutate:  func(p *Plan) { p.Edges[1].Side = "left" },
			wantErr: "already has a left input",
		},
		{
			name: "union with one input",
			mutate: func(p *Plan) {
				p.Edges = p.Edges[1:]
				p.Operators = p.Operators[1:]
			},
			wantErr: "exactly two inputs",
		},
		{
			name: "source with input",
			mutate: func(p *Plan) {
				p.Edges = append(p.Edges, &PlanEdge{FromOperator: "gen2", ToOperator: "gen1"})
			},
			wantErr: "must have no inputs",
		},
		{
			name: "sink with output",
			mutate: func(p *Plan) {
				p.Edges = append(p.Edges, &PlanEdge{FromOperator: "out", ToOperator: "gen1"})
			},
			wantErr: "must have no",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := validPlan()
			tt.mutate(plan)
			err := ValidatePlan(plan)
			if err == nil {
				t.Fatal("expected validation to fail")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %q", tt.wantErr, err)
			}
		})
	}
}

func TestValidatePlanDetectsCycles(t *testing.T) {
	plan := &Plan{
		PipelineName: "cyclic",
		Operators: []*PlanOp{
			{ID: "gen1", Type: OpGeneratorSource},
			{ID: "gen2", Type: OpGeneratorSource},
			{ID: "u1", Type: OpUnion},
			{ID: "u2", Type: OpUnion},
		},
		Edges: []*PlanEdge{
			{FromOperator: "gen1", ToOperator: "u1", Side: "left"},
			{FromOperator: "u2", ToOperator: "u1", Side: "right"},
			{FromOperator: "gen2", ToOperator: "u2", Side: "left"},
			{FromOperator: "u1", ToOperator: "u2", Side: "right"},
		},
	}
	err := ValidatePlan(plan)
	if err == nil {
		t.Fatal("expected cycle detection to fail the plan")
	}
	if !strings.Contains(err.Error(), "cycle detected") {
		t.Errorf("expected cycle error, got %q", err)
	}
}

func TestDeserializePlan(t *testing.T) {
	data := []byte(`{
		"pipeline_name": "wire",
		"operators": [
			{"id": "g", "type": "generator_source", "config": {"rows_per_second": "100"}},
			{"id": "g2", "type": "generator_source"},
			{"id": "u", "type": "union"},
			{"id": "s", "type": "console_sink"}
		],
		"edges": [
			{"from_operator": "g", "to_operator": "u", "side": "left"},
			{"from_operator": "g2", "to_operator": "u", "side": "right"},
			{"from_operator": "u", "to_operator": "s"}
		]
	}`)
	plan, err := DeserializePlan(data)
	if err != nil {
		t.Fatalf("deserialize failed: %v", err)
	}
	if plan.PipelineName != "wire" || len(plan.Operators) != 4 || len(plan.Edges) != 3 {
		t.Fatalf("plan did not round-trip: %+v", plan)
	}
	if plan.Operators[0].Config["rows_per_second"] != "100" {
		t.Error("operator config lost in deserialization")
	}
	if err := ValidatePlan(plan); err != nil {
		t.Errorf("expected deserialized plan to validate, got %v", err)
	}

	if _, err := DeserializePlan([]byte("{broken")); err == nil {
		t.Error("expected malformed JSON to fail")
	}
}
