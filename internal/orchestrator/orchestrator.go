// Package orchestrator runs single-flight crawl jobs: it admits a job through
// the guard, partitions targets into batches, rotates accounts across batches,
// delegates each batch to the platform crawler and aggregates the results.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/creator-crawler/internal/aggregate"
	"github.com/JakeFAU/creator-crawler/internal/batch"
	"github.com/JakeFAU/creator-crawler/internal/credential"
	"github.com/JakeFAU/creator-crawler/internal/crawler"
	"github.com/JakeFAU/creator-crawler/internal/guard"
	"github.com/JakeFAU/creator-crawler/internal/metrics"
	"github.com/JakeFAU/creator-crawler/internal/rotation"
	"github.com/JakeFAU/creator-crawler/internal/telemetry"
)

// Config controls Orchestrator behavior.
type Config struct {
	BatchSize     int
	BatchInterval time.Duration
	Location      *time.Location
	Topic         string
}

// Orchestrator composes the guard, planner, rotator, crawler and aggregator.
type Orchestrator struct {
	guard     *guard.Guard
	pool      *credential.Pool
	crawler   crawler.Crawler
	jobStore  crawler.JobStore
	publisher crawler.Publisher
	clock     crawler.Clock
	idGen     crawler.IDGenerator
	limiter   *rate.Limiter
	cfg       Config
	logger    *zap.Logger
}

// New constructs an Orchestrator. jobStore and publisher are optional.
func New(
	g *guard.Guard,
	pool *credential.Pool,
	c crawler.Crawler,
	jobStore crawler.JobStore,
	publisher crawler.Publisher,
	clock crawler.Clock,
	idGen crawler.IDGenerator,
	cfg Config,
	logger *zap.Logger,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = batch.DefaultSize
	}
	var limiter *rate.Limiter
	if cfg.BatchInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(cfg.BatchInterval), 1)
	}
	return &Orchestrator{
		guard:     g,
		pool:      pool,
		crawler:   c,
		jobStore:  jobStore,
		publisher: publisher,
		clock:     clock,
		idGen:     idGen,
		limiter:   limiter,
		cfg:       cfg,
		logger:    logger,
	}
}

// State reports the guard's current run state.
func (o *Orchestrator) State() crawler.RunState {
	return o.guard.State()
}

// Submit runs a job to completion. Rejections return an error matching
// crawler.ErrRejected; unexpected failures return one matching crawler.ErrFault.
// Individual batch failures do not fail the job and are reported in ErrorInfos.
func (o *Orchestrator) Submit(ctx context.Context, req crawler.JobRequest) (crawler.Report, error) {
	if len(req.Targets) == 0 {
		return o.reject(req, &crawler.AdmissionError{Reason: crawler.ReasonNoTargets})
	}
	if active := o.guard.State(); active.Running {
		return o.rejectBusy(req, active)
	}
	// Checked before admission so this rejection never publishes a run state.
	if len(o.pool.SnapshotValid()) == 0 {
		return o.reject(req, &crawler.AdmissionError{Reason: crawler.ReasonNoAccounts})
	}
	active, ok := o.guard.TryAdmit(req.JobID)
	if !ok {
		return o.rejectBusy(req, active)
	}
	metrics.SetJobRunning(true)
	defer func() {
		o.guard.Release()
		metrics.SetJobRunning(false)
	}()

	// The last valid account can expire between the check and admission.
	if len(o.pool.SnapshotValid()) == 0 {
		return o.reject(req, &crawler.AdmissionError{Reason: crawler.ReasonNoAccounts})
	}

	return o.run(ctx, req)
}

func (o *Orchestrator) rejectBusy(req crawler.JobRequest, active crawler.RunState) (crawler.Report, error) {
	return o.reject(req, &crawler.AdmissionError{
		Reason:        crawler.ReasonBusy,
		ActiveJobID:   active.JobID,
		ActiveAccount: active.Account,
	})
}

func (o *Orchestrator) reject(req crawler.JobRequest, err *crawler.AdmissionError) (crawler.Report, error) {
	o.logger.Warn("job rejected",
		zap.String("job_id", req.JobID),
		zap.String("reason", err.Reason),
		zap.String("active_job_id", err.ActiveJobID),
		zap.String("active_account", err.ActiveAccount),
	)
	metrics.ObserveJob(string(crawler.JobStatusRejected), 0)
	return crawler.Report{}, err
}

func (o *Orchestrator) run(ctx context.Context, req crawler.JobRequest) (crawler.Report, error) {
	start := o.now()
	runID := o.newRunID()
	logger := o.logger.With(zap.String("run_id", runID), zap.String("job_id", req.JobID))

	ctx, span := telemetry.Tracer().Start(ctx, "orchestrator.job", trace.WithAttributes(
		attribute.String("run_id", runID),
		attribute.String("job_id", req.JobID),
		attribute.Int("targets", len(req.Targets)),
	))
	defer span.End()

	record := crawler.JobRecord{
		RunID:   runID,
		JobID:   req.JobID,
		Status:  crawler.JobStatusRunning,
		Targets: len(req.Targets),
		Batches: batch.Count(len(req.Targets), o.cfg.BatchSize),
		Started: start,
	}
	o.saveJob(ctx, record, logger)
	logger.Info("job admitted", zap.Int("targets", record.Targets), zap.Int("batches", record.Batches))

	agg := aggregate.New(o.cfg.Location)
	if err := o.executeBatches(ctx, req, agg, logger); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return crawler.Report{}, o.fault(ctx, record, agg, err, logger)
	}

	records, errorInfos := agg.Finalize()
	elapsed := o.now().Sub(start)
	report := crawler.Report{
		RunID:      runID,
		Total:      len(records),
		List:       records,
		ErrorInfos: errorInfos,
		Elapsed:    elapsed,
		ElapsedMs:  elapsed.Milliseconds(),
	}

	status := crawler.JobStatusSucceeded
	if len(errorInfos) > 0 {
		status = crawler.JobStatusPartial
	}
	record.Status = status
	record.Total = report.Total
	record.ErrorInfos = errorInfos
	o.finish(ctx, record, logger)
	metrics.ObserveJob(string(status), elapsed)
	span.SetAttributes(attribute.Int("total", report.Total), attribute.Int("errors", len(errorInfos)))

	logger.Info("job completed",
		zap.String("status", string(status)),
		zap.Int("total", report.Total),
		zap.Int("errors", len(errorInfos)),
		zap.Duration("elapsed", elapsed),
	)
	return report, nil
}

// executeBatches folds every planned batch into agg. Batch-scoped crawl
// failures are recorded and skipped, keeping the notes of targets that
// succeeded. Faults abort the job.
func (o *Orchestrator) executeBatches(
	ctx context.Context,
	req crawler.JobRequest,
	agg *aggregate.Aggregator,
	logger *zap.Logger,
) error {
	previous := ""
	for b := range batch.Plan(req.Targets, o.cfg.BatchSize) {
		if err := ctx.Err(); err != nil {
			return &crawler.FaultError{Stage: "execute", Err: err}
		}
		if err := o.pace(ctx); err != nil {
			return &crawler.FaultError{Stage: "pace", Err: err}
		}

		account, err := rotation.SelectNext(o.pool.SnapshotValid(), previous)
		if err != nil {
			return &crawler.FaultError{Stage: "select account", Err: err}
		}
		previous = account
		o.guard.SetAccount(account)

		notes, err := o.runBatch(ctx, b, account, req.Headless)
		if err != nil {
			var fault *crawler.FaultError
			if errors.As(err, &fault) {
				return err
			}
			var failed crawler.TargetErrors
			if errors.As(err, &failed) && len(failed) < len(b.Targets) {
				metrics.ObserveBatch("partial")
				logger.Warn("batch partially failed",
					zap.Int("batch", b.Sequence),
					zap.String("account", account),
					zap.Int("failed_targets", len(failed)),
					zap.Error(err),
				)
				recordTargetErrors(agg, failed)
				o.ingest(agg, b, account, notes, logger)
				continue
			}
			metrics.ObserveBatch("error")
			logger.Error("batch failed",
				zap.Int("batch", b.Sequence),
				zap.String("account", account),
				zap.Strings("targets", b.Targets),
				zap.Error(err),
			)
			recordBatchError(agg, b, account, err)
			continue
		}

		metrics.ObserveBatch("ok")
		o.ingest(agg, b, account, notes, logger)
	}
	return nil
}

func (o *Orchestrator) ingest(agg *aggregate.Aggregator, b crawler.Batch, account string, notes []crawler.RawNote, logger *zap.Logger) {
	accepted, skipped := agg.Ingest(notes)
	metrics.ObserveNotes(accepted, skipped)
	logger.Info("batch completed",
		zap.Int("batch", b.Sequence),
		zap.String("account", account),
		zap.Int("raw", len(notes)),
		zap.Int("accepted", accepted),
		zap.Int("duplicates", skipped),
	)
}

// runBatch invokes the crawler for one batch. A panic is unexpected and is
// surfaced as a fault rather than a batch error.
func (o *Orchestrator) runBatch(
	ctx context.Context,
	b crawler.Batch,
	account string,
	headless bool,
) (notes []crawler.RawNote, err error) {
	ctx, span := telemetry.Tracer().Start(ctx, "orchestrator.batch", trace.WithAttributes(
		attribute.Int("batch", b.Sequence),
		attribute.String("account", account),
		attribute.Int("targets", len(b.Targets)),
	))
	defer span.End()
	defer func() {
		if rec := recover(); rec != nil {
			notes = nil
			err = &crawler.FaultError{Stage: "crawl", Err: fmt.Errorf("crawler panic: %v", rec)}
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	notes, err = o.crawler.Crawl(ctx, crawler.CrawlRequest{
		Account:  account,
		Targets:  b.Targets,
		Headless: headless,
	})
	if err != nil {
		// Notes are kept: a crawler may report failed targets next to partial results.
		return notes, fmt.Errorf("crawl batch %d: %w", b.Sequence, err)
	}
	return notes, nil
}

// recordBatchError files a batch that produced nothing under the batch key and
// under every target, using a target's own error when the crawler reported one.
func recordBatchError(agg *aggregate.Aggregator, b crawler.Batch, account string, err error) {
	msg := err.Error()
	agg.RecordError(BatchErrorKey(b.Sequence, account), msg)
	var failed crawler.TargetErrors
	errors.As(err, &failed)
	for _, target := range b.Targets {
		if targetErr, ok := failed[target]; ok {
			agg.RecordError(target, targetErr.Error())
			continue
		}
		agg.RecordError(target, msg)
	}
}

func recordTargetErrors(agg *aggregate.Aggregator, failed crawler.TargetErrors) {
	for target, err := range failed {
		agg.RecordError(target, err.Error())
	}
}

// BatchErrorKey is the error-map key for a failed batch.
func BatchErrorKey(sequence int, account string) string {
	return fmt.Sprintf("batch-%d:%s", sequence, account)
}

func (o *Orchestrator) fault(
	ctx context.Context,
	record crawler.JobRecord,
	agg *aggregate.Aggregator,
	err error,
	logger *zap.Logger,
) error {
	var fault *crawler.FaultError
	if !errors.As(err, &fault) {
		fault = &crawler.FaultError{Stage: "execute", Err: err}
	}
	_, errorInfos := agg.Finalize()
	record.Status = crawler.JobStatusFaulted
	record.Total = agg.Len()
	record.ErrorInfos = errorInfos
	record.ErrorText = fault.Error()
	// The job context may already be canceled; history and events still need a window.
	o.finish(context.WithoutCancel(ctx), record, logger)
	metrics.ObserveJob(string(crawler.JobStatusFaulted), o.now().Sub(record.Started))
	logger.Error("job faulted", zap.String("stage", fault.Stage), zap.Error(fault.Err))
	return fault
}

func (o *Orchestrator) finish(ctx context.Context, record crawler.JobRecord, logger *zap.Logger) {
	finished := o.now()
	record.Finished = &finished
	o.saveJob(ctx, record, logger)
	o.publish(ctx, record, logger)
}

func (o *Orchestrator) saveJob(ctx context.Context, record crawler.JobRecord, logger *zap.Logger) {
	if o.jobStore == nil {
		return
	}
	if err := o.jobStore.SaveJob(ctx, record); err != nil {
		logger.Warn("save job record failed", zap.Error(err))
	}
}

func (o *Orchestrator) publish(ctx context.Context, record crawler.JobRecord, logger *zap.Logger) {
	if o.cfg.Topic == "" || o.publisher == nil {
		return
	}
	payload := map[string]any{
		"run_id":      record.RunID,
		"job_id":      record.JobID,
		"status":      record.Status,
		"targets":     record.Targets,
		"batches":     record.Batches,
		"total":       record.Total,
		"error_count": len(record.ErrorInfos),
		"error_text":  record.ErrorText,
		"started_at":  record.Started.Format(time.RFC3339),
	}
	if record.Finished != nil {
		payload["finished_at"] = record.Finished.Format(time.RFC3339)
	}
	id, err := o.publisher.Publish(ctx, o.cfg.Topic, payload)
	if err != nil {
		logger.Warn("publish job event failed", zap.Error(err))
		return
	}
	logger.Debug("job event published", zap.String("message_id", id))
}

func (o *Orchestrator) pace(ctx context.Context) error {
	if o.limiter == nil {
		return nil
	}
	if err := o.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("batch pacing wait: %w", err)
	}
	return nil
}

func (o *Orchestrator) newRunID() string {
	if o.idGen != nil {
		if id, err := o.idGen.NewID(); err == nil {
			return id
		}
	}
	return fmt.Sprintf("run-%d", o.now().UnixNano())
}

func (o *Orchestrator) now() time.Time {
	if o.clock == nil {
		return time.Now().UTC()
	}
	return o.clock.Now()
}
