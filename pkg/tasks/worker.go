package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/redis/go-redis/v9"

	"github.com/edrvcesms/Unified-Complaints-and-Response-System/pkg/ucrserrors"
)

// ClusterHandler runs the clustering use case for a Cluster job, returning
// the incident id to seed the follow-up RecomputeSeverity job.
type ClusterHandler func(ctx context.Context, job ClusterJob) (incidentID int64, err error)

// SeverityHandler runs the severity use case for a RecomputeSeverity job.
type SeverityHandler func(ctx context.Context, job SeverityJob) error

// RetryPolicy is the fixed-backoff retry policy of spec.md §4.8: at most a
// small constant number of attempts, with a fixed (not exponential) delay
// between them — distinct from pkg/retry's exponential backoff, which
// governs individual outbound calls rather than whole-job redelivery.
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
}

// DefaultClusterRetryPolicy matches spec.md §4.8's stated default: 3
// retries, 10s fixed backoff.
func DefaultClusterRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, Backoff: 10 * time.Second}
}

// DefaultSeverityRetryPolicy matches spec.md §4.8's stated default: 3
// retries, 5s fixed backoff.
func DefaultSeverityRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, Backoff: 5 * time.Second}
}

// RunnerConfig bundles everything the worker pool needs beyond the queue
// and handlers: concurrency, retry policies, and per-job timeouts (spec.md
// §5's suggested deadlines).
type RunnerConfig struct {
	ClusterConcurrency  int
	SeverityConcurrency int
	ClusterRetry        RetryPolicy
	SeverityRetry       RetryPolicy
	JobTimeout          time.Duration // spec.md §5: suggested 30s wall-clock cap
	ConsumerName        string
}

// DefaultRunnerConfig returns the spec-mandated defaults (3 retries each,
// 10s/5s backoff, 30s per-job cap) with a modest worker count.
func DefaultRunnerConfig(consumerName string) RunnerConfig {
	return RunnerConfig{
		ClusterConcurrency:  4,
		SeverityConcurrency: 4,
		ClusterRetry:        DefaultClusterRetryPolicy(),
		SeverityRetry:       DefaultSeverityRetryPolicy(),
		JobTimeout:          30 * time.Second,
		ConsumerName:        consumerName,
	}
}

// Runner is the task runtime's worker pool (spec.md §2 item 8, §4.8): a
// fixed number of goroutines per queue, each running one job to completion
// before pulling the next, glued to the cluster and severity use cases
// through ClusterHandler/SeverityHandler so this package has no dependency
// on their internals.
type Runner struct {
	queue    *Queue
	cluster  ClusterHandler
	severity SeverityHandler
	cfg      RunnerConfig
	metrics  *Metrics
	logger   logr.Logger

	wg sync.WaitGroup
}

// NewRunner builds a Runner. cfg.ConsumerName should be unique per worker
// process (e.g. hostname+pid) so Redis Streams pending-entry accounting can
// tell consumers apart. metrics may be nil to disable instrumentation.
func NewRunner(queue *Queue, cluster ClusterHandler, severity SeverityHandler, cfg RunnerConfig, metrics *Metrics, logger logr.Logger) *Runner {
	return &Runner{queue: queue, cluster: cluster, severity: severity, cfg: cfg, metrics: metrics, logger: logger}
}

// Run starts the configured number of consumer goroutines on each stream
// and blocks until ctx is cancelled. Run itself returns as soon as ctx is
// done, without waiting for in-flight jobs; call Wait or WaitTimeout
// afterward to block for drain.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.queue.EnsureGroups(ctx); err != nil {
		return err
	}

	for i := 0; i < r.cfg.ClusterConcurrency; i++ {
		r.startConsumer(ctx, StreamCluster, fmt.Sprintf("%s-cluster-%d", r.cfg.ConsumerName, i), r.processClusterMessage)
	}
	for i := 0; i < r.cfg.SeverityConcurrency; i++ {
		r.startConsumer(ctx, StreamSeverity, fmt.Sprintf("%s-severity-%d", r.cfg.ConsumerName, i), r.processSeverityMessage)
	}

	<-ctx.Done()
	return nil
}

// Wait blocks until every in-flight job started before ctx was cancelled
// has finished, implementing the graceful-shutdown drain the teacher's DLQ
// drain test exercises: a worker killed mid-job must not silently lose it.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// WaitTimeout is Wait bounded by timeout, reporting whether the drain
// completed within it.
func (r *Runner) WaitTimeout(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

type messageHandler func(ctx context.Context, stream, consumer string, msg redis.XMessage)

// staleClaimAge is how long an entry may sit unacknowledged in a consumer's
// pending list before another consumer assumes it died mid-job and claims
// it for a fresh attempt (spec.md §5: bounded worst-case occupancy).
const staleClaimAge = 2 * time.Minute

func (r *Runner) startConsumer(ctx context.Context, stream, consumer string, handle messageHandler) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			reclaimed, err := r.queue.reclaimStale(ctx, stream, consumer, staleClaimAge, 10)
			if err != nil && ctx.Err() == nil {
				r.logger.Error(err, "failed to reclaim stale entries", "stream", stream, "consumer", consumer)
			}
			for _, msg := range reclaimed {
				handle(ctx, stream, consumer, msg)
			}

			msgs, err := r.queue.read(ctx, stream, consumer, 10, 2*time.Second)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				r.logger.Error(err, "failed to read task stream", "stream", stream, "consumer", consumer)
				time.Sleep(time.Second)
				continue
			}
			for _, msg := range msgs {
				handle(ctx, stream, consumer, msg)
			}
		}
	}()
}

func (r *Runner) processClusterMessage(ctx context.Context, stream, consumer string, xmsg redis.XMessage) {
	msg, err := parseMessage(xmsg)
	if err != nil {
		r.logger.Error(err, "malformed cluster message, dropping", "id", xmsg.ID)
		_ = r.queue.ack(ctx, stream, xmsg.ID)
		return
	}

	var job ClusterJob
	if err := json.Unmarshal(msg.Payload, &job); err != nil {
		r.logger.Error(err, "failed to decode cluster job, dropping", "id", xmsg.ID)
		_ = r.queue.ack(ctx, stream, xmsg.ID)
		return
	}

	jobCtx, cancel := context.WithTimeout(ctx, r.cfg.JobTimeout)
	start := time.Now()
	incidentID, runErr := r.cluster(jobCtx, job)
	elapsed := time.Since(start)
	cancel()

	if runErr == nil {
		r.metrics.observe(KindCluster, OutcomeSuccess, elapsed)
		_ = r.queue.ack(ctx, stream, xmsg.ID)
		if _, err := r.queue.EnqueueSeverity(ctx, SeverityJob{IncidentID: incidentID}); err != nil {
			r.logger.Error(err, "failed to enqueue follow-up severity job", "incident_id", incidentID)
		}
		return
	}

	r.finishFailedAttempt(ctx, stream, KindCluster, xmsg.ID, msg, runErr, r.cfg.ClusterRetry)
}

func (r *Runner) processSeverityMessage(ctx context.Context, stream, consumer string, xmsg redis.XMessage) {
	msg, err := parseMessage(xmsg)
	if err != nil {
		r.logger.Error(err, "malformed severity message, dropping", "id", xmsg.ID)
		_ = r.queue.ack(ctx, stream, xmsg.ID)
		return
	}

	var job SeverityJob
	if err := json.Unmarshal(msg.Payload, &job); err != nil {
		r.logger.Error(err, "failed to decode severity job, dropping", "id", xmsg.ID)
		_ = r.queue.ack(ctx, stream, xmsg.ID)
		return
	}

	jobCtx, cancel := context.WithTimeout(ctx, r.cfg.JobTimeout)
	start := time.Now()
	runErr := r.severity(jobCtx, job)
	elapsed := time.Since(start)
	cancel()

	if runErr == nil {
		r.metrics.observe(KindSeverity, OutcomeSuccess, elapsed)
		_ = r.queue.ack(ctx, stream, xmsg.ID)
		return
	}

	policy := r.cfg.SeverityRetry
	if ucrserrors.IsNotFound(runErr) {
		// spec.md §7: NotFound on severity recompute is retried once then
		// failed — the enqueuing cluster job might still be in-flight.
		policy = RetryPolicy{MaxRetries: 1, Backoff: policy.Backoff}
	}
	r.finishFailedAttempt(ctx, stream, KindSeverity, xmsg.ID, msg, runErr, policy)
}

// finishFailedAttempt applies spec.md §7's retry taxonomy to a failed
// attempt: InvalidInput/PermanentExternal (and Conflict) are dead-lettered
// without a retry, everything else retries up to policy.MaxRetries with a
// fixed backoff delay before requeueing, and exhausted retries are
// dead-lettered.
func (r *Runner) finishFailedAttempt(ctx context.Context, stream string, kind Kind, id string, msg message, cause error, policy RetryPolicy) {
	defer func() { _ = r.queue.ack(ctx, stream, id) }()

	if !isRetryableJobError(cause) {
		r.logger.Error(cause, "job failed with non-retryable error", "kind", kind, "stream", stream, "job_id", msg.JobID)
		r.deadLetterAndObserve(ctx, kind, msg, cause)
		return
	}

	if msg.Attempt >= policy.MaxRetries {
		r.logger.Error(cause, "job exhausted retries", "kind", kind, "stream", stream, "attempts", msg.Attempt+1, "job_id", msg.JobID)
		r.deadLetterAndObserve(ctx, kind, msg, cause)
		return
	}

	r.logger.V(1).Info("job failed, will retry", "kind", kind, "stream", stream, "attempt", msg.Attempt+1, "job_id", msg.JobID, "error", cause.Error())
	r.metrics.observe(kind, OutcomeRetry, 0)

	select {
	case <-ctx.Done():
		return
	case <-time.After(policy.Backoff):
	}

	if _, err := r.queue.requeue(ctx, stream, msg); err != nil {
		r.logger.Error(err, "failed to requeue job after backoff", "kind", kind, "stream", stream)
		r.deadLetterAndObserve(ctx, kind, msg, cause)
	}
}

// deadLetterAndObserve writes msg to the dead-letter stream and, when
// metrics are enabled, refreshes the dead-letter depth gauge from the
// stream's actual length rather than a locally-tracked counter, so it stays
// correct across multiple worker processes sharing one queue.
func (r *Runner) deadLetterAndObserve(ctx context.Context, kind Kind, msg message, cause error) {
	_ = r.queue.deadLetter(ctx, kind, msg, cause)
	r.metrics.observe(kind, OutcomeDeadLetter, 0)
	if depth, err := r.queue.DeadLetterDepth(ctx); err == nil {
		r.metrics.setDeadLetterDepth(float64(depth))
	}
}

// isRetryableJobError applies spec.md §7's taxonomy: InvalidInput and
// PermanentExternal are never retried; Conflict is not an error the use
// cases return to the runtime (it's swallowed as a successful no-op
// upstream); everything else — TransientExternal and any error the use
// cases didn't classify — defaults to retryable.
func isRetryableJobError(err error) bool {
	if err == nil {
		return false
	}
	if ucrserrors.IsConflict(err) {
		return false
	}
	var invalidInput *ucrserrors.InvalidInputError
	if errors.As(err, &invalidInput) {
		return false
	}
	var permanent *ucrserrors.PermanentExternalError
	if errors.As(err, &permanent) {
		return false
	}
	return true
}
