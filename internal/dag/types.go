package dag

import (
	"sync"
	"sync/atomic"

	"github.com/vk/pagegrid/internal/config"
	"github.com/vk/pagegrid/internal/registry"
	"github.com/vk/pagegrid/internal/site"
	"github.com/zclconf/go-cty/cty"
)

// NodeState is the lifecycle state of a node during a run.
type NodeState int32

const (
	Pending NodeState = iota
	Running
	Done
	Failed
)

func (s NodeState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Done:
		return "done"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Graph is the dependency graph of one pipeline.
type Graph struct {
	// mutex protects the nodes map while the graph is being assembled.
	mutex sync.RWMutex
	Nodes map[string]*Node
}

// Node is one task in the graph.
type Node struct {
	ID   string
	Task *config.Task
	// Deps are the nodes this node waits for.
	Deps map[string]*Node
	// Dependents are the nodes waiting for this node.
	Dependents map[string]*Node

	State atomic.Int32
	// Output is the runner's output as a cty object, visible to dependents.
	Output cty.Value
	// Result is the runner's output struct.
	Result any
	Error  error

	depCount atomic.Int32
	skipOnce sync.Once
}

// GetState returns the node's current state.
func (n *Node) GetState() NodeState {
	return NodeState(n.State.Load())
}

// Executor runs a graph.
type Executor struct {
	Graph      *Graph
	numWorkers int
	registry   *registry.Registry
	site       *site.Site
	wg         sync.WaitGroup
}

// NewExecutor creates an executor with numWorkers concurrent tasks.
func NewExecutor(graph *Graph, numWorkers int, r *registry.Registry, s *site.Site) *Executor {
	if numWorkers < 1 {
		numWorkers = 1
	}
	return &Executor{
		Graph:      graph,
		numWorkers: numWorkers,
		registry:   r,
		site:       s,
	}
}
