// Package story models branching story graphs and loads them from their
// manifests.
//
// A graph is a set of nodes keyed by identifier, each carrying an ordered
// list of choices that point at other nodes by identifier. Graphs may contain
// cycles, unreachable nodes and choices whose target does not exist; every
// routine in this package tolerates all three. Node text is not part of the
// graph: it lives in the content store and is located through TextRef.
package story

// DefaultRoot is the identifier of the node every story starts from.
const DefaultRoot = "start"

// DefaultMaxDepth bounds traversals and tree building on pathological input.
const DefaultMaxDepth = 100

// Choice is a reader option leading to another node.
type Choice struct {
	Text     string `json:"text"`
	NextNode string `json:"nextNode"`
}

// Node is one passage of a story. A node without choices is an ending.
type Node struct {
	ID      string   `json:"-"`
	TextRef string   `json:"textFile,omitempty"`
	Choices []Choice `json:"choices"`
	Image   string   `json:"image,omitempty"`
}

// IsEnding reports whether the node is terminal.
func (n *Node) IsEnding() bool {
	return len(n.Choices) == 0
}

// Metadata is the descriptive header of a story manifest.
type Metadata struct {
	Title       string
	Description string
	Author      string
	Created     string
	Categories  []string

	// Raw holds every metadata key as it appeared in the manifest.
	Raw map[string]any
}

// Graph is a story's structure: nodes, choice edges and the designated root.
type Graph struct {
	StoryID  string
	Root     string
	Metadata Metadata
	Nodes    map[string]*Node

	// Order lists node identifiers in manifest declaration order.
	Order []string
}

// NewGraph creates an empty graph rooted at DefaultRoot.
func NewGraph(storyID string) *Graph {
	return &Graph{
		StoryID: storyID,
		Root:    DefaultRoot,
		Nodes:   make(map[string]*Node),
	}
}

// AddNode inserts or replaces a node, keeping first-declaration order.
func (g *Graph) AddNode(n *Node) {
	if _, exists := g.Nodes[n.ID]; !exists {
		g.Order = append(g.Order, n.ID)
	}
	g.Nodes[n.ID] = n
}

// Node returns the node with the given identifier.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.Nodes[id]
	return n, ok
}

// Has reports whether id names a node of the graph.
func (g *Graph) Has(id string) bool {
	_, ok := g.Nodes[id]
	return ok
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.Nodes)
}

// TextRefs maps node identifiers to their declared text locators.
// Nodes without a locator are omitted.
func (g *Graph) TextRefs() map[string]string {
	refs := make(map[string]string, len(g.Nodes))
	for id, n := range g.Nodes {
		if n.TextRef != "" {
			refs[id] = n.TextRef
		}
	}
	return refs
}

// Endings returns terminal node identifiers in declaration order.
func (g *Graph) Endings() []string {
	var out []string
	for _, id := range g.Order {
		if g.Nodes[id].IsEnding() {
			out = append(out, id)
		}
	}
	return out
}
