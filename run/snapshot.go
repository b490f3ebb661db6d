// Snapshot and restore for Human-In-The-Loop suspension.
//
// A run suspended on a clarification question is serialized to JSON,
// persisted, and later restored into an identical context so the scheduler
// can re-enter the loop where it left off.
package run

import (
	"encoding/json"
	"fmt"

	"github.com/richinex/theseus/model"
)

// Snapshot serializes the full run state. The caller must hold the
// single-writer turn boundary: no tool batch may be in flight.
func (c *Context) Snapshot() ([]byte, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("snapshot run %s: %w", c.RunID, err)
	}
	return data, nil
}

// Restore rebuilds a run context from a snapshot. Plan, history, and
// failure counters round-trip exactly.
func Restore(data []byte) (*Context, error) {
	c := &Context{}
	if err := json.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("restore run context: %w", err)
	}
	if c.TurnFragments == nil {
		c.TurnFragments = make(map[uint32][]model.Fragment)
	}
	if c.ImagesByTurn == nil {
		c.ImagesByTurn = make(map[uint32][]model.ImageArtifact)
	}
	if c.SeenDocuments == nil {
		c.SeenDocuments = make(map[string]struct{})
	}
	if c.FailedTools == nil {
		c.FailedTools = make(map[string]*ToolFailureInfo)
	}
	return c, nil
}
