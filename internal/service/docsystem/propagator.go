package docsystem

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"jokernotes/internal/changefeed"
	"jokernotes/internal/domain/models"
	"jokernotes/internal/domain/repositories"
	"jokernotes/internal/domain/services"
	"jokernotes/internal/metrics"
)

// PropagatorConfig sizes the worker pool. QueueSize is the backlog per
// worker above which enqueues are logged as a warning; it never blocks.
type PropagatorConfig struct {
	Workers   int
	QueueSize int
}

// Propagator applies a root's archived flag to every descendant on a
// background worker pool. The root write has already committed when a job
// is enqueued; descendants converge afterwards.
//
// Jobs are routed to a worker by owner, and each worker runs its jobs in
// enqueue order. A walk only touches its owner's documents, so an archive
// followed by a restore of the same subtree always lands in that order.
type Propagator struct {
	docRepo   repositories.DocumentRepository
	publisher services.ChangePublisher
	logger    *slog.Logger
	queueSize int

	shards  []*shard
	pending sync.WaitGroup

	mu      sync.RWMutex
	stopped bool
}

// shard is one worker's FIFO backlog
type shard struct {
	mu   sync.Mutex
	jobs []models.PropagationJob
	wake chan struct{}
}

func (s *shard) push(job models.PropagationJob) int {
	s.mu.Lock()
	s.jobs = append(s.jobs, job)
	n := len(s.jobs)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return n
}

func (s *shard) pop() (models.PropagationJob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.jobs) == 0 {
		return models.PropagationJob{}, false
	}
	job := s.jobs[0]
	s.jobs[0] = models.PropagationJob{}
	s.jobs = s.jobs[1:]
	return job, true
}

// NewPropagator creates a propagator. Call Run to start its workers.
func NewPropagator(
	docRepo repositories.DocumentRepository,
	publisher services.ChangePublisher,
	cfg PropagatorConfig,
	logger *slog.Logger,
) *Propagator {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 0 {
		cfg.QueueSize = 0
	}
	shards := make([]*shard, cfg.Workers)
	for i := range shards {
		shards[i] = &shard{wake: make(chan struct{}, 1)}
	}
	return &Propagator{
		docRepo:   docRepo,
		publisher: publisher,
		logger:    logger,
		queueSize: cfg.QueueSize,
		shards:    shards,
	}
}

var _ services.TreePropagator = (*Propagator)(nil)

func (p *Propagator) shardFor(ownerID string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(ownerID))
	return p.shards[h.Sum32()%uint32(len(p.shards))]
}

// Enqueue schedules a subtree walk and returns its job ID without waiting
func (p *Propagator) Enqueue(_ context.Context, rootID, ownerID string, archived bool) string {
	job := models.PropagationJob{
		ID:       uuid.NewString(),
		RootID:   rootID,
		OwnerID:  ownerID,
		Archived: archived,
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		metrics.PropagationJobs.WithLabelValues("discarded").Inc()
		p.logger.Warn("propagator stopped, job discarded", "job_id", job.ID, "root_id", rootID)
		return job.ID
	}

	p.pending.Add(1)
	metrics.PropagationQueueDepth.Inc()

	if n := p.shardFor(ownerID).push(job); p.queueSize > 0 && n > p.queueSize {
		p.logger.Warn("propagation backlog above limit", "job_id", job.ID, "owner_id", ownerID, "backlog", n)
	}

	p.logger.Debug("propagation enqueued",
		"job_id", job.ID,
		"root_id", rootID,
		"archived", archived,
	)
	return job.ID
}

// Run starts the workers and blocks until ctx is cancelled. Jobs already
// being walked finish; jobs still queued are discarded.
func (p *Propagator) Run(ctx context.Context) {
	var workers sync.WaitGroup
	for _, s := range p.shards {
		workers.Add(1)
		go func() {
			defer workers.Done()
			p.work(ctx, s)
		}()
	}
	workers.Wait()

	// no push can start once stopped is set under the write lock
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()

	for _, s := range p.shards {
		for {
			job, ok := s.pop()
			if !ok {
				break
			}
			p.discard(job)
		}
	}
}

// Wait blocks until every enqueued job has finished or been discarded
func (p *Propagator) Wait() {
	p.pending.Wait()
}

func (p *Propagator) work(ctx context.Context, s *shard) {
	for {
		if ctx.Err() != nil {
			return
		}
		if job, ok := s.pop(); ok {
			// a started walk is not interrupted by shutdown
			p.process(context.WithoutCancel(ctx), job)
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-s.wake:
		}
	}
}

func (p *Propagator) discard(job models.PropagationJob) {
	metrics.PropagationQueueDepth.Dec()
	metrics.PropagationJobs.WithLabelValues("discarded").Inc()
	p.logger.Warn("propagation job discarded", "job_id", job.ID, "root_id", job.RootID)
	p.pending.Done()
}

func (p *Propagator) process(ctx context.Context, job models.PropagationJob) {
	defer p.pending.Done()
	metrics.PropagationQueueDepth.Dec()

	start := time.Now()
	patched, failures := p.Walk(ctx, job)

	outcome := "ok"
	if failures > 0 {
		outcome = "partial"
	}
	metrics.PropagationJobs.WithLabelValues(outcome).Inc()

	p.logger.Info("propagation completed",
		"job_id", job.ID,
		"root_id", job.RootID,
		"archived", job.Archived,
		"nodes_patched", patched,
		"failures", failures,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	p.publish(ctx, models.ChangeEvent{
		Type:         models.ChangePropagationCompleted,
		DocumentID:   job.RootID,
		OwnerID:      job.OwnerID,
		IsArchived:   job.Archived,
		Topics:       []string{changefeed.ByOwner(job.OwnerID), changefeed.Document(job.RootID)},
		At:           time.Now().UTC(),
		JobID:        job.ID,
		NodesPatched: patched,
		Failures:     failures,
	})
}

// Walk patches every descendant of job.RootID depth-first, parents before
// children. A node that fails is counted and skipped; its own descendants
// are still visited.
func (p *Propagator) Walk(ctx context.Context, job models.PropagationJob) (patched, failures int) {
	visited := map[string]struct{}{job.RootID: {}}
	archived := job.Archived

	var visit func(parentID string)
	visit = func(parentID string) {
		children, err := p.docRepo.ListByOwnerParent(ctx, job.OwnerID, &parentID, nil)
		if err != nil {
			failures++
			metrics.PropagationFailures.Inc()
			p.logger.Warn("propagation: list children failed",
				"job_id", job.ID,
				"parent_id", parentID,
				"error", err,
			)
			return
		}

		for _, child := range children {
			if _, seen := visited[child.ID]; seen {
				continue
			}
			visited[child.ID] = struct{}{}

			updated, err := p.docRepo.Patch(ctx, child.ID, &models.DocumentPatch{IsArchived: &archived})
			if err != nil {
				failures++
				metrics.PropagationFailures.Inc()
				p.logger.Warn("propagation: patch failed",
					"job_id", job.ID,
					"document_id", child.ID,
					"error", err,
				)
			} else {
				patched++
				metrics.PropagationNodes.Inc()
				p.publish(ctx, changefeed.NewEvent(lifecycleChange(archived), updated))
			}

			visit(child.ID)
		}
	}
	visit(job.RootID)

	return patched, failures
}

func (p *Propagator) publish(ctx context.Context, evt models.ChangeEvent) {
	if err := p.publisher.Publish(ctx, evt); err != nil {
		p.logger.Warn("publish change event failed", "type", evt.Type, "document_id", evt.DocumentID, "error", err)
	}
}

func lifecycleChange(archived bool) models.ChangeType {
	if archived {
		return models.ChangeArchived
	}
	return models.ChangeRestored
}
