package onnx

import (
	"context"
)

// Session is a loaded model bound to one execution provider. Input and
// output names are reported in model declaration order.
type Session interface {
	InputNames() []string
	OutputNames() []string
	Run(ctx context.Context, feeds map[string]*Tensor) (map[string]*Tensor, error)
	Close() error
}

// NodeInfo describes one graph input or output. Dynamic dimensions are -1.
// DType and Shape are empty when the engine cannot report them.
type NodeInfo struct {
	Name  string  `json:"name"`
	DType string  `json:"dtype,omitempty"`
	Shape []int64 `json:"shape,omitempty"`
}

// ModelInfo is the graph signature of a model as the runtime loads it.
type ModelInfo struct {
	Producer string     `json:"producer,omitempty"`
	Version  int64      `json:"version"`
	Inputs   []NodeInfo `json:"inputs"`
	Outputs  []NodeInfo `json:"outputs"`
}

func (m ModelInfo) InputNames() []string {
	return names(m.Inputs)
}

func (m ModelInfo) OutputNames() []string {
	return names(m.Outputs)
}

func names(nodes []NodeInfo) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.Name)
	}
	return out
}
