package harness

import (
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/bwmarrin/snowflake"
)

var localRuns atomic.Int64

// RunIDs hands out sortable run identifiers.
type RunIDs struct {
	node *snowflake.Node
}

// NewRunIDs creates a generator for node, which must be within 0..1023.
func NewRunIDs(node int64) (*RunIDs, error) {
	n, err := snowflake.NewNode(node)
	if err != nil {
		return nil, fmt.Errorf("harness: run id node: %w", err)
	}
	return &RunIDs{node: n}, nil
}

// Next returns a fresh id. Without a node it falls back to a process-local
// counter.
func (g *RunIDs) Next() string {
	if g == nil || g.node == nil {
		return "run-" + strconv.FormatInt(localRuns.Add(1), 10)
	}
	return g.node.Generate().String()
}
