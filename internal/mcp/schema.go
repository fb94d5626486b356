package mcp

// StoryInput selects a story.
type StoryInput struct {
	Story string `json:"story" jsonschema:"Story id, the directory name under the stories directory"`
}

// ReviewOrderOutput defines the output for the review_order tool.
type ReviewOrderOutput struct {
	Story string   `json:"story" jsonschema:"Story id"`
	Order []string `json:"order,omitempty" jsonschema:"Node ids in breadth-first review order from the root"`
	Count int      `json:"count" jsonschema:"Number of nodes in the review order"`
}

// ReviewNodeInput defines the input for the review_node tool.
type ReviewNodeInput struct {
	Story string `json:"story" jsonschema:"Story id"`
	Node  string `json:"node" jsonschema:"Node id to read"`
}

// NodeChoice is one reader option of a node.
type NodeChoice struct {
	Text     string `json:"text" jsonschema:"Choice label shown to the reader"`
	Next     string `json:"next" jsonschema:"Node id the choice leads to"`
	Dangling bool   `json:"dangling,omitempty" jsonschema:"The target node is not defined"`
}

// ReviewNodeOutput defines the output for the review_node tool.
type ReviewNodeOutput struct {
	Story   string       `json:"story" jsonschema:"Story id"`
	Node    string       `json:"node" jsonschema:"Node id"`
	Text    string       `json:"text" jsonschema:"Current node text with markup and control sequences removed"`
	Missing bool         `json:"missing,omitempty" jsonschema:"The node has no text"`
	Ending  bool         `json:"ending" jsonschema:"The node has no choices"`
	Choices []NodeChoice `json:"choices,omitempty" jsonschema:"Choices in manifest order"`
	Label   string       `json:"label" jsonschema:"Review status label"`
}

// ReviewStatusInput defines the input for the review_status tool.
type ReviewStatusInput struct {
	Story string `json:"story" jsonschema:"Story id"`
	Node  string `json:"node,omitempty" jsonschema:"Node id; omit to report every node the story declares"`
}

// NodeStatus is the review state of one node.
type NodeStatus struct {
	Node           string `json:"node" jsonschema:"Node id"`
	Label          string `json:"label" jsonschema:"One of approved, stale, rejected, unreviewed or missing"`
	Approved       bool   `json:"approved" jsonschema:"Approved for its current text"`
	Stale          bool   `json:"stale" jsonschema:"Text changed since the last decision"`
	Reviewed       bool   `json:"reviewed" jsonschema:"A decision is on record"`
	ContentMissing bool   `json:"content_missing" jsonschema:"The node has no text"`
}

// ReviewStatusOutput defines the output for the review_status tool.
type ReviewStatusOutput struct {
	Story string       `json:"story" jsonschema:"Story id"`
	Nodes []NodeStatus `json:"nodes,omitempty" jsonschema:"Per-node review state"`
}

// ReviewDecisionInput defines the input for the review_accept and
// review_reject tools.
type ReviewDecisionInput struct {
	Story   string `json:"story" jsonschema:"Story id"`
	Node    string `json:"node" jsonschema:"Node id to decide on"`
	Subtree bool   `json:"subtree,omitempty" jsonschema:"Also decide every node reachable from this one"`
}

// ReviewDecisionOutput defines the output for the review_accept and
// review_reject tools.
type ReviewDecisionOutput struct {
	Story    string   `json:"story" jsonschema:"Story id"`
	Nodes    []string `json:"nodes,omitempty" jsonschema:"Node ids the decision was recorded for"`
	Count    int      `json:"count" jsonschema:"Number of nodes decided"`
	Approved bool     `json:"approved" jsonschema:"The decision recorded"`
	Message  string   `json:"message" jsonschema:"Human-readable result message"`
}

// ReviewSummaryInput defines the input for the review_summary tool.
type ReviewSummaryInput struct {
	Story string `json:"story,omitempty" jsonschema:"Story id; omit to summarize every story"`
}

// ReviewSummaryOutput defines the output for the review_summary tool.
type ReviewSummaryOutput struct {
	Story      string `json:"story,omitempty" jsonschema:"Story id when a single story was summarized"`
	Stories    int    `json:"stories" jsonschema:"Number of stories counted"`
	Total      int    `json:"total" jsonschema:"Nodes declared"`
	Approved   int    `json:"approved" jsonschema:"Nodes approved for their current text"`
	Unapproved int    `json:"unapproved" jsonschema:"Nodes not approved"`
	Stale      int    `json:"stale" jsonschema:"Nodes whose text changed since the last decision"`
	Missing    int    `json:"missing" jsonschema:"Nodes without text"`
	Message    string `json:"message" jsonschema:"Human-readable summary"`
}

// ValidationIssue describes one structural issue in a story graph.
type ValidationIssue struct {
	Kind        string `json:"kind" jsonschema:"missing-root, dangling, self-reference, cycle or unreachable"`
	Node        string `json:"node" jsonschema:"Node the issue was found at"`
	Ref         string `json:"ref,omitempty" jsonschema:"Choice target involved, if any"`
	Description string `json:"description" jsonschema:"Human-readable description"`
}

// ReviewValidateOutput defines the output for the review_validate tool.
type ReviewValidateOutput struct {
	Story   string            `json:"story" jsonschema:"Story id"`
	Issues  []ValidationIssue `json:"issues,omitempty" jsonschema:"Structural issues in declaration order"`
	Count   int               `json:"count" jsonschema:"Number of issues"`
	Message string            `json:"message" jsonschema:"Human-readable summary"`
}

// TreeLine is one row of the flattened review tree.
type TreeLine struct {
	Depth     int    `json:"depth" jsonschema:"Distance from the tree root"`
	Node      string `json:"node" jsonschema:"Node id"`
	Label     string `json:"label" jsonschema:"Review status label"`
	Dangling  bool   `json:"dangling,omitempty" jsonschema:"The choice target does not exist"`
	Cycle     bool   `json:"cycle,omitempty" jsonschema:"The node repeats an ancestor and is not expanded"`
	Truncated bool   `json:"truncated,omitempty" jsonschema:"Expansion stopped at the depth or size bound"`
}

// ReviewTreeOutput defines the output for the review_tree tool.
type ReviewTreeOutput struct {
	Story string     `json:"story" jsonschema:"Story id"`
	Lines []TreeLine `json:"lines,omitempty" jsonschema:"Pre-order tree rows: the root tree first, then one tree per orphan"`
}
