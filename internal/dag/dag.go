package dag

import (
	"fmt"
	"sort"

	"github.com/vk/pagegrid/internal/config"
)

// New creates and returns an initialized, empty Graph.
func New() *Graph {
	return &Graph{
		Nodes: make(map[string]*Node),
	}
}

// AddNode adds the node for a task. Adding a second task with the same ID
// is an error.
func (g *Graph) AddNode(task *config.Task) (*Node, error) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	id := task.ID()
	if _, ok := g.Nodes[id]; ok {
		return nil, fmt.Errorf("duplicate task '%s'", id)
	}
	n := &Node{
		ID:         id,
		Task:       task,
		Deps:       make(map[string]*Node),
		Dependents: make(map[string]*Node),
	}
	g.Nodes[id] = n
	return n, nil
}

// AddEdge records that toID depends on fromID. Repeated edges are ignored.
func (g *Graph) AddEdge(fromID, toID string) error {
	if fromID == toID {
		return fmt.Errorf("task '%s' cannot depend on itself", fromID)
	}

	g.mutex.Lock()
	defer g.mutex.Unlock()

	fromNode, ok := g.Nodes[fromID]
	if !ok {
		return fmt.Errorf("source node not found: %s", fromID)
	}
	toNode, ok := g.Nodes[toID]
	if !ok {
		return fmt.Errorf("destination node not found: %s", toID)
	}

	toNode.Deps[fromID] = fromNode
	fromNode.Dependents[toID] = toNode
	return nil
}

// Dependencies returns the sorted IDs the given node depends on.
func (g *Graph) Dependencies(id string) ([]string, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	n, ok := g.Nodes[id]
	if !ok {
		return nil, fmt.Errorf("node not found: %s", id)
	}
	return sortedIDs(n.Deps), nil
}

// Dependents returns the sorted IDs of the nodes depending on the given node.
func (g *Graph) Dependents(id string) ([]string, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	n, ok := g.Nodes[id]
	if !ok {
		return nil, fmt.Errorf("node not found: %s", id)
	}
	return sortedIDs(n.Dependents), nil
}

// IDs returns every node ID in sorted order.
func (g *Graph) IDs() []string {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return sortedIDs(g.Nodes)
}

// DetectCycles returns an error naming a node on a cycle, if there is one.
func (g *Graph) DetectCycles() error {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	// permanent: fully visited, not on a cycle.
	// temporary: on the current DFS path.
	permanent := make(map[string]bool)
	temporary := make(map[string]bool)

	var visit func(n *Node) error
	visit = func(n *Node) error {
		if permanent[n.ID] {
			return nil
		}
		if temporary[n.ID] {
			return fmt.Errorf("cycle detected involving task '%s'", n.ID)
		}
		temporary[n.ID] = true
		for _, id := range sortedIDs(n.Dependents) {
			if err := visit(n.Dependents[id]); err != nil {
				return err
			}
		}
		delete(temporary, n.ID)
		permanent[n.ID] = true
		return nil
	}

	for _, id := range sortedIDs(g.Nodes) {
		if err := visit(g.Nodes[id]); err != nil {
			return err
		}
	}
	return nil
}

func sortedIDs(nodes map[string]*Node) []string {
	ids := make([]string, 0, len(nodes))
	for id := range nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
