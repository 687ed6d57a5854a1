// Package llm provides the LLM arbitration step of the clustering pipeline:
// a strict, conservative same-incident judgment over two free-text
// complaints (spec §4.4). It logs through logrus directly, matching the
// teacher's own AI-subsystem logging choice, distinct from the zap/logr
// data-plane packages.
package llm

import "context"

// Arbiter decides whether two complaint descriptions describe the same
// real-world incident. Any answer other than an exact "YES" — including a
// transient call failure — is treated as NO, biasing the system toward
// creating a new incident rather than merging incorrectly (spec §4.4, §7).
type Arbiter interface {
	SameIncident(ctx context.Context, a, b string) (bool, error)
}
