package queue

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/orbitalworks/constel/pkg/observability"
)

// Revoker applies a queued revocation. Satisfied by the access package's
// reconciler; declared here so the queue stays independent of it.
type Revoker interface {
	Revoke(ctx context.Context, userID, projectID string) error
}

const sweepBatchSize = 100

// Sweeper periodically drains due revocations through the Revoker.
type Sweeper struct {
	store   *Store
	revoker Revoker
	policy  *RetryPolicy
	metrics *observability.Metrics
	log     *logrus.Entry
	cron    *cron.Cron
	timeout time.Duration
}

// NewSweeper creates a sweeper. A nil policy uses the defaults.
func NewSweeper(store *Store, revoker Revoker, policy *RetryPolicy) *Sweeper {
	if policy == nil {
		policy = NewRetryPolicy(DefaultRetryConfig())
	}
	return &Sweeper{
		store:   store,
		revoker: revoker,
		policy:  policy,
		log:     logrus.WithField("component", "revocation-sweeper"),
		timeout: time.Minute,
	}
}

// WithMetrics attaches optional Prometheus metrics.
func (s *Sweeper) WithMetrics(m *observability.Metrics) *Sweeper {
	s.metrics = m
	return s
}

// Start schedules sweeps on the given cron spec (e.g. "@every 30s") and
// runs them until Stop is called.
func (s *Sweeper) Start(spec string) error {
	s.cron = cron.New()
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		s.Sweep(ctx)
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	s.log.WithField("schedule", spec).Info("revocation sweeper started")
	return nil
}

// Stop halts scheduling and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// Sweep delivers every due item once. Failures are rescheduled with
// backoff; items out of attempts are parked dead.
func (s *Sweeper) Sweep(ctx context.Context) {
	if s.metrics != nil {
		s.metrics.QueueSweepsTotal.Inc()
	}

	items, err := s.store.Due(ctx, sweepBatchSize)
	if err != nil {
		s.log.WithError(err).Error("failed to list due revocations")
		return
	}

	for _, item := range items {
		s.deliver(ctx, item)
	}

	if s.metrics != nil {
		if pending, err := s.store.PendingCount(ctx); err == nil {
			s.metrics.QueueDepth.Set(float64(pending))
		}
	}
}

func (s *Sweeper) deliver(ctx context.Context, item *Item) {
	log := s.log.WithFields(logrus.Fields{
		"user_id":    item.UserID,
		"project_id": item.ProjectID,
		"attempts":   item.Attempts,
	})

	err := s.revoker.Revoke(ctx, item.UserID, item.ProjectID)
	if err == nil {
		if mErr := s.store.MarkSucceeded(ctx, item.ID); mErr != nil {
			log.WithError(mErr).Error("failed to finalize revocation")
			return
		}
		log.Info("queued revocation delivered")
		return
	}

	attempts := item.Attempts + 1
	if !s.policy.ShouldRetry(attempts) {
		if mErr := s.store.MarkDead(ctx, item.ID, attempts, err.Error()); mErr != nil {
			log.WithError(mErr).Error("failed to park revocation")
			return
		}
		log.WithError(err).Error("revocation exhausted attempts, parked dead")
		return
	}

	next := s.policy.NextRetryTime(attempts)
	if mErr := s.store.MarkFailed(ctx, item.ID, attempts, err.Error(), next); mErr != nil {
		log.WithError(mErr).Error("failed to reschedule revocation")
		return
	}
	log.WithError(err).WithField("next_attempt_at", next).Warn("revocation failed, rescheduled")
}
