// Package gateway wires the admission, flow-control, upstream, and
// caching layers into the single request-processing pipeline
// described by the system's control-flow: quota, cache, queue,
// breaker, limiter, upstream driver, classifier, cache write.
package gateway

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"go.uber.org/zap"

	"lookup-gateway/internal/audit"
	"lookup-gateway/internal/breaker"
	"lookup-gateway/internal/cache"
	"lookup-gateway/internal/classifier"
	"lookup-gateway/internal/observability"
	"lookup-gateway/internal/queue"
	"lookup-gateway/internal/quota"
	"lookup-gateway/internal/rate"
	"lookup-gateway/internal/upstream"
)

// Config carries the tunables the gateway needs beyond its
// collaborators' own construction.
type Config struct {
	SendDelayMin      time.Duration
	SendDelayMax      time.Duration
	FloodWaitBuffer   time.Duration
	PeerFloodCooldown time.Duration
	DefaultTimeout    time.Duration
}

// Gateway is the fully wired pipeline: a queue whose single worker
// processes Jobs by consulting the cache, then (on miss) driving the
// upstream exchange and classifying the result.
type Gateway struct {
	cfg Config

	cache   *cache.Cache
	quota   *quota.Quota
	breaker *breaker.Breaker
	limiter *rate.Limiter
	driver  *upstream.Driver
	audit   *audit.Trail
	metrics *observability.Metrics
	logger  *zap.Logger

	queue *queue.Queue

	mask classifier.MaskFunc
}

// New builds a Gateway from its already-constructed collaborators.
func New(
	cfg Config,
	q *queue.Queue,
	c *cache.Cache,
	quotaGate *quota.Quota,
	br *breaker.Breaker,
	limiter *rate.Limiter,
	driver *upstream.Driver,
	trail *audit.Trail,
	metrics *observability.Metrics,
	mask classifier.MaskFunc,
	logger *zap.Logger,
) *Gateway {
	if mask == nil {
		mask = classifier.IdentityMask
	}
	return &Gateway{
		cfg:     cfg,
		cache:   c,
		quota:   quotaGate,
		breaker: br,
		limiter: limiter,
		driver:  driver,
		audit:   trail,
		metrics: metrics,
		mask:    mask,
		queue:   q,
		logger:  logger,
	}
}

// Start launches the queue's worker against this gateway's process
// function.
func (g *Gateway) Start(ctx context.Context) {
	g.queue.Start(ctx, g.process)
}

// Stop drains the worker.
func (g *Gateway) Stop() {
	g.queue.Stop()
}

// AllowUser applies the per-user quota gate. Callers must check this
// before admitting a Job.
func (g *Gateway) AllowUser(userID int64) (ok bool, retryAfter time.Duration) {
	ok, retryAfter = g.quota.Allow(userID)
	if !ok {
		g.metrics.QuotaRejectedTotal.Inc()
	}
	return ok, retryAfter
}

// Submit admits a Job: a cache hit resolves it immediately without
// touching the queue or the upstream; a miss is enqueued
// non-blockingly. It returns false if the queue is full.
func (g *Gateway) Submit(job *queue.Job) bool {
	key := cacheKey(job.INN, job.FIO)
	if value, _, ok, err := g.cache.Get(key); err == nil && ok {
		g.metrics.CacheHitsTotal.Inc()
		if g.audit != nil {
			g.audit.Record(context.Background(), job.INN, job.FIO, classifier.StatusOK)
		}
		fio, phone, email := splitProjection(value)
		job.Complete(queue.JobResult{
			INN: job.INN, FIO: fio, Phone: phone, Email: email,
			Status: classifier.StatusOK, SafeText: value,
		})
		return true
	}

	g.metrics.CacheMissesTotal.Inc()
	return g.queue.TryEnqueue(job)
}

// QueueDepth reports how many jobs are waiting.
func (g *Gateway) QueueDepth() int {
	return g.queue.Depth()
}

func cacheKey(inn, fio string) string {
	return fmt.Sprintf("inn:%s|fio:%s", inn, strings.ToLower(strings.Join(strings.Fields(fio), " ")))
}

// splitProjection recovers fio/phone/email from a previously cached
// safe_text blob for the OK cache-hit path.
func splitProjection(text string) (fio, phone, email string) {
	for _, line := range strings.Split(text, "\n") {
		switch {
		case strings.HasPrefix(line, "ФИО: "):
			fio = strings.TrimPrefix(line, "ФИО: ")
		case strings.HasPrefix(line, "Телефон: "):
			phone = strings.TrimPrefix(line, "Телефон: ")
		case strings.HasPrefix(line, "Email: "):
			email = strings.TrimPrefix(line, "Email: ")
		}
	}
	return fio, phone, email
}

// process is the queue.Processor: it re-checks the cache, and on a miss
// runs the full path through the upstream driver and classifier, per
// the control-flow diagram.
func (g *Gateway) process(ctx context.Context, job *queue.Job) queue.JobResult {
	if value, _, ok, err := g.cache.Get(cacheKey(job.INN, job.FIO)); err == nil && ok {
		if g.audit != nil {
			g.audit.Record(ctx, job.INN, job.FIO, classifier.StatusOK)
		}
		fio, phone, email := splitProjection(value)
		return queue.JobResult{
			INN: job.INN, FIO: fio, Phone: phone, Email: email,
			Status: classifier.StatusOK, SafeText: value,
		}
	}

	start := time.Now()
	result := g.runExchange(ctx, job)

	g.metrics.JobsProcessedTotal.WithLabelValues(string(result.Status)).Inc()
	g.metrics.JobDuration.WithLabelValues(string(result.Status)).Observe(time.Since(start).Seconds())
	g.metrics.BreakerOpenSeconds.Set(g.breaker.Remaining().Seconds())
	g.metrics.QueueDepth.Set(float64(g.queue.Depth()))

	if g.audit != nil {
		g.audit.Record(ctx, job.INN, job.FIO, result.Status)
	}

	if result.Status == classifier.StatusOK {
		key := cacheKey(job.INN, job.FIO)
		if err := g.cache.Set(key, result.SafeText); err != nil {
			g.logger.Warn("cache write failed", zap.Error(err))
		}
	}

	return result
}

func (g *Gateway) runExchange(ctx context.Context, job *queue.Job) queue.JobResult {
	if err := g.preActionGate(ctx); err != nil {
		return errResult(job, err)
	}

	firstText, firstMsgID, firstControls, err := g.driver.SendAndWait(ctx, "/inn "+job.INN)
	if err != nil {
		return g.mapUpstreamErr(job, err)
	}

	_, controls, err := g.driver.WaitEdit(ctx, firstMsgID, firstText, firstControls)
	if err != nil {
		return g.mapUpstreamErr(job, err)
	}

	control, found := upstream.FindControl(controls, job.FIO)
	if !found {
		return queue.JobResult{
			INN: job.INN, FIO: job.FIO,
			Status:   classifier.StatusNotFound,
			SafeText: notFoundMessage(controls),
		}
	}

	if err := g.preActionGate(ctx); err != nil {
		return errResult(job, err)
	}

	collected, err := g.driver.ClickAndCollect(ctx, firstMsgID, control)
	if err != nil {
		return g.mapUpstreamErr(job, err)
	}

	cr := classifier.Classify(firstText, collected, g.mask)
	return queue.JobResult{
		INN: job.INN, FIO: cr.FIO, Phone: cr.Phone, Email: cr.Email,
		Status: cr.Status, SafeText: cr.SafeText,
	}
}

// preActionGate executes breaker wait, limiter acquire, and jitter
// sleep in exactly that order, as required before every upstream
// call.
func (g *Gateway) preActionGate(ctx context.Context) error {
	g.breaker.WaitIfOpen()

	if err := g.limiter.Acquire(ctx); err != nil {
		return err
	}

	if g.cfg.SendDelayMax > 0 {
		jitter := g.cfg.SendDelayMin
		if span := g.cfg.SendDelayMax - g.cfg.SendDelayMin; span > 0 {
			jitter += time.Duration(rand.Int63n(int64(span)))
		}
		select {
		case <-time.After(jitter):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return nil
}

func (g *Gateway) mapUpstreamErr(job *queue.Job, err error) queue.JobResult {
	var upErr *upstream.Error
	if e, ok := err.(*upstream.Error); ok {
		upErr = e
	}

	if upErr == nil {
		return queue.JobResult{INN: job.INN, FIO: job.FIO, Status: classifier.StatusError, SafeText: "Ошибка: " + err.Error()}
	}

	switch upErr.Signal {
	case upstream.SignalFloodWait, upstream.SignalSlowMode:
		g.breaker.OpenFor(upErr.Wait + g.cfg.FloodWaitBuffer)
		return queue.JobResult{
			INN: job.INN, FIO: job.FIO, Status: classifier.StatusFlood,
			SafeText: fmt.Sprintf("⏳ Источник попросил подождать ~%d сек.", int(upErr.Wait.Seconds())),
		}
	case upstream.SignalAccountFlood:
		g.breaker.OpenFor(g.cfg.PeerFloodCooldown)
		return queue.JobResult{INN: job.INN, FIO: job.FIO, Status: classifier.StatusFlood, SafeText: "⚠️ На аккаунт наложены антиспам-ограничения."}
	case upstream.SignalForbidden:
		return queue.JobResult{INN: job.INN, FIO: job.FIO, Status: classifier.StatusForbidden, SafeText: "⛔ Источник отклонил обращение."}
	default:
		return queue.JobResult{INN: job.INN, FIO: job.FIO, Status: classifier.StatusError, SafeText: "❌ Ошибка обращения к источнику."}
	}
}

func errResult(job *queue.Job, err error) queue.JobResult {
	return queue.JobResult{INN: job.INN, FIO: job.FIO, Status: classifier.StatusError, SafeText: "Ошибка: " + err.Error()}
}

const maxListedLabels = 30

func notFoundMessage(controls []upstream.Control) string {
	if len(controls) == 0 {
		return "По вашему запросу ничего не найдено."
	}

	labels := make([]string, 0, len(controls))
	for i, c := range controls {
		if i >= maxListedLabels {
			break
		}
		labels = append(labels, c.Label)
	}
	return "Не найдено. Доступные варианты:\n" + strings.Join(labels, "\n")
}
