package energysystem

import (
	"errors"
	"fmt"
)

// graph is an adjacency list over node labels, kept in insertion order in
// both directions.
type graph struct {
	adjacencyList map[string][]string
	reverseList   map[string][]string
}

func newGraph() graph {
	return graph{
		adjacencyList: make(map[string][]string),
		reverseList:   make(map[string][]string),
	}
}

func (g *graph) addNode(label string) error {
	if _, exists := g.adjacencyList[label]; exists {
		err := fmt.Sprintf("node %q already exists in graph", label)
		return errors.New(err)
	}
	g.adjacencyList[label] = make([]string, 0)
	g.reverseList[label] = make([]string, 0)
	return nil
}

func (g *graph) addDirectedEdge(from string, to string) error {
	edges, exists := g.adjacencyList[from]
	if !exists {
		err := fmt.Sprintf("start node %q does not exist in graph", from)
		return errors.New(err)
	}

	if _, exists := g.adjacencyList[to]; !exists {
		err := fmt.Sprintf("end node %q does not exist in graph", to)
		return errors.New(err)
	}

	g.adjacencyList[from] = append(edges, to)
	g.reverseList[to] = append(g.reverseList[to], from)
	return nil
}

func (g graph) edges(label string) []string {
	if edges, exists := g.adjacencyList[label]; exists {
		return edges
	}
	return make([]string, 0)
}

func (g graph) reverseEdges(label string) []string {
	if edges, exists := g.reverseList[label]; exists {
		return edges
	}
	return make([]string, 0)
}
