// Package tasks implements the durable task runtime of spec.md §4.8: two
// job kinds — Cluster and RecomputeSeverity — carried on separate Redis
// Streams queues, consumed by a worker pool with fixed-backoff retries and
// a follow-up dispatch pattern (a successful Cluster job enqueues a
// RecomputeSeverity job). Jobs are self-contained (spec §6): no references
// to in-memory state cross the wire.
package tasks

import "time"

// Kind tags which of the two job payloads a job carries (SPEC_FULL's
// "tagged variants" replacement for the source's dynamic dict-typed job
// payloads, spec.md §9). The payload type follows from the stream a job is
// queued on; Kind labels metrics and dead-letter entries.
type Kind string

const (
	KindCluster  Kind = "cluster"
	KindSeverity Kind = "severity"
)

// StreamCluster and StreamSeverity are the two logical queues of spec.md
// §4.8 / §6.
const (
	StreamCluster  = "ucrs:tasks:cluster"
	StreamSeverity = "ucrs:tasks:severity"
	streamDead     = "ucrs:tasks:dead"
	consumerGroup  = "ucrs-workers"
)

// ClusterJob is the self-contained payload of spec.md §4.8: everything the
// clustering use case needs, with the category config already resolved by
// the enqueuing caller (spec.md §6's ClusterInput, plus the resolved
// window_hours/base_weight/threshold).
type ClusterJob struct {
	ComplaintID int64     `json:"complaint_id"`
	UserID      int64     `json:"user_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	BarangayID  int64     `json:"barangay_id"`
	CategoryID  int64     `json:"category_id"`
	WindowHours float64   `json:"window_hours"`
	BaseWeight  float64   `json:"base_weight"`
	Threshold   float64   `json:"threshold"`
	CreatedAt   time.Time `json:"created_at"`
}

// SeverityJob is the self-contained payload for a severity recompute,
// enqueued as the follow-up to a successful Cluster job (spec.md §4.8).
type SeverityJob struct {
	IncidentID int64 `json:"incident_id"`
}
