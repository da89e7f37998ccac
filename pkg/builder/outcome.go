// Package builder executes a build plan: it invokes recipe build entry
// points in dependency order, installs what they produce, and accounts
// for every planned node exactly once.
package builder

import (
	"time"

	"github.com/jmarlow/cookery/pkg/recipe"
)

// Status is the terminal state of one planned node.
type Status string

const (
	// StatusSatisfied means the identity was already installed and no
	// entry point was invoked.
	StatusSatisfied Status = "satisfied"

	// StatusPlanned is the dry-run stand-in for a build that would run.
	StatusPlanned Status = "planned"

	// StatusSuccess means the entry point succeeded and the artifacts
	// were installed.
	StatusSuccess Status = "success"

	// StatusFailed means the entry point or the install step failed.
	StatusFailed Status = "failed"

	// StatusSkipped means an upstream dependency failed, so the entry
	// point was never invoked.
	StatusSkipped Status = "skipped"
)

// Outcome is the result of one planned node.
type Outcome struct {
	Status   Status
	Err      error           // set for failed and skipped
	Upstream recipe.Identity // for skipped: the failed dependency
	LogPath  string          // build log location, when one was kept
	Duration time.Duration
}

// Outcomes maps every planned identity to its outcome. Execution
// guarantees exactly one entry per plan node.
type Outcomes map[recipe.Identity]Outcome

// Count returns how many nodes ended in the given status.
func (o Outcomes) Count(s Status) int {
	n := 0
	for _, out := range o {
		if out.Status == s {
			n++
		}
	}
	return n
}

// Failed reports whether any node failed or was skipped.
func (o Outcomes) Failed() bool {
	return o.Count(StatusFailed) > 0 || o.Count(StatusSkipped) > 0
}
