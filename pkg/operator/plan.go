package operator

import (
	"github.com/goccy/go-json"
)

// PlanNode describes an operator's static shape for query-plan
// introspection: its kind, the key and payload types flowing through it,
// the error-context string recorded at construction, and its upstream
// nodes. Building a node has no merge-time side effects.
type PlanNode struct {
	Kind         string      `json:"kind"`
	KeyType      string      `json:"key_type"`
	PayloadType  string      `json:"payload_type"`
	ErrorContext string      `json:"error_context,omitempty"`
	Upstreams    []*PlanNode `json:"upstreams,omitempty"`
}

// PlanSink receives plan nodes reported by operators in a pipeline.
type PlanSink interface {
	OnPlan(node *PlanNode)
}

// MarshalPlan renders a plan tree as indented JSON for display.
func MarshalPlan(node *PlanNode) ([]byte, error) {
	return json.MarshalIndent(node, "", "  ")
}

// PlanCollector is a PlanSink that accumulates reported nodes.
type PlanCollector struct {
	Nodes []*PlanNode
}

// OnPlan records the node.
func (c *PlanCollector) OnPlan(node *PlanNode) {
	c.Nodes = append(c.Nodes, node)
}
