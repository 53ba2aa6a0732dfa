package batch

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/google/uuid"

	"github.com/memelens/memelens/internal/domain/analysis"
	"github.com/memelens/memelens/internal/domain/meme"
	"github.com/memelens/memelens/internal/infra/checkpoint"
)

// Options controls one batch run.
type Options struct {
	// Concurrency bounds in-flight analysis calls. Default 4.
	Concurrency int
	// MaxAttempts per record for retryable failures. Default 3.
	MaxAttempts int
	// BaseDelay is the first backoff delay, doubling per attempt up to
	// MaxDelay, plus jitter. Defaults 500ms / 8s.
	BaseDelay time.Duration
	MaxDelay  time.Duration
	// Resume loads the checkpoint and skips names with accepted results.
	Resume bool
	// Limit caps newly submitted records; checkpointed records never
	// count against it.
	Limit int
	// FlushEvery persists the checkpoint every N completions. Default 8.
	// A crash loses at most the last unflushed batch.
	FlushEvery int
	// Progress receives incremental snapshots. Nil means log lines.
	Progress ProgressSink
}

func (o Options) withDefaults() Options {
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = 500 * time.Millisecond
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = 8 * time.Second
	}
	if o.FlushEvery <= 0 {
		o.FlushEvery = 8
	}
	if o.Progress == nil {
		o.Progress = LogSink{}
	}
	return o
}

// Summary is the final accounting of one run.
type Summary struct {
	Succeeded int
	Failed    int
	Skipped   int
}

// Scheduler drives a record batch through the analysis client under a
// bounded worker pool, checkpointing progress as it goes.
type Scheduler struct {
	Client analysis.Client
	Store  *checkpoint.Store
	Opts   Options

	// Sleep is the backoff suspension seam; tests replace it. Nil means
	// context-aware real sleeping.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Run analyzes records and returns completed rows in input order. Rows for
// records that never completed (cancellation, abort) are absent; rows whose
// retries were exhausted are present with a nil analysis. A non-nil error
// means the run aborted (bad credential) or was cancelled; whatever finished
// first is already flushed.
func (s *Scheduler) Run(ctx context.Context, records []meme.Record) ([]meme.AnalyzedRecord, Summary, error) {
	opts := s.Opts.withDefaults()

	if err := meme.ValidateNames(records); err != nil {
		return nil, Summary{}, err
	}
	if opts.Resume {
		if err := s.Store.Load(); err != nil {
			return nil, Summary{}, err
		}
	}

	order := make([]string, len(records))
	for i, r := range records {
		order[i] = r.Name
	}

	var pending []meme.Record
	skipped := 0
	for _, r := range records {
		if opts.Resume && s.Store.Contains(r.Name) {
			skipped++
			continue
		}
		pending = append(pending, r)
	}
	if opts.Limit > 0 && len(pending) > opts.Limit {
		pending = pending[:opts.Limit]
	}

	runID := uuid.NewString()[:8]
	log.WithFields(log.Fields{
		"run":         runID,
		"pending":     len(pending),
		"skipped":     skipped,
		"concurrency": opts.Concurrency,
	}).Info("batch run starting")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		abortOnce sync.Once
		abortErr  error
	)
	abort := func(err error) {
		abortOnce.Do(func() {
			abortErr = err
			cancel()
		})
	}

	jobs := make(chan meme.Record)
	results := make(chan meme.AnalyzedRecord)

	var wg sync.WaitGroup
	for i := 0; i < opts.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for r := range jobs {
				row, err := s.analyzeWithRetry(ctx, r, opts)
				if err != nil {
					if analysis.IsAuth(err) {
						log.WithField("run", runID).WithError(err).Error("credential rejected, aborting run")
						abort(err)
					}
					// Cancelled mid-record: nothing completed to report.
					return
				}
				// Unconditional send: the collector drains results until
				// every worker has exited, so this cannot block forever.
				// A call that finished after cancellation still cost quota
				// and must reach the store before the final flush.
				results <- row
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, r := range pending {
			select {
			case jobs <- r:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	// Single collector owns all store writes and flushes.
	processed, failed := 0, 0
	for row := range results {
		s.Store.Record(row)
		processed++
		if row.Analysis == nil {
			failed++
			log.WithFields(log.Fields{"run": runID, "name": row.Name, "reason": row.Error}).
				Warn("record failed terminally")
		}
		opts.Progress.Report(Progress{
			RunID:     runID,
			Total:     len(pending),
			Processed: processed,
			Failed:    failed,
			Remaining: len(pending) - processed,
		})
		if processed%opts.FlushEvery == 0 {
			if err := s.Store.Flush(order); err != nil {
				log.WithField("run", runID).WithError(err).Error("checkpoint flush failed")
			}
		}
	}

	// Final flush covers success, abort and cancellation alike: completed
	// results must never be dropped.
	if err := s.Store.Flush(order); err != nil && abortErr == nil {
		abortErr = err
	}

	out, summary := s.assemble(records)
	summary.Skipped = skipped

	if abortErr != nil {
		return out, summary, abortErr
	}
	if err := ctx.Err(); err != nil {
		return out, summary, err
	}
	log.WithFields(log.Fields{
		"run":       runID,
		"succeeded": summary.Succeeded,
		"failed":    summary.Failed,
		"skipped":   summary.Skipped,
	}).Info("batch run complete")
	return out, summary, nil
}

// analyzeWithRetry runs one record to an accepted result or a terminal
// failure row. The only error returns are the fatal auth case and
// cancellation; everything retryable is contained here.
func (s *Scheduler) analyzeWithRetry(ctx context.Context, r meme.Record, opts Options) (meme.AnalyzedRecord, error) {
	var lastErr error
	delay := opts.BaseDelay

	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		result, err := s.Client.Analyze(ctx, r)
		if err == nil {
			return r.Analyzed(result), nil
		}
		if analysis.IsAuth(err) {
			return meme.AnalyzedRecord{}, err
		}
		if ctx.Err() != nil {
			return meme.AnalyzedRecord{}, ctx.Err()
		}
		lastErr = err
		if !analysis.IsRetryable(err) || attempt == opts.MaxAttempts {
			break
		}
		if err := s.sleep(ctx, jittered(delay)); err != nil {
			return meme.AnalyzedRecord{}, err
		}
		if delay *= 2; delay > opts.MaxDelay {
			delay = opts.MaxDelay
		}
	}
	return r.Failed(lastErr.Error()), nil
}

func (s *Scheduler) sleep(ctx context.Context, d time.Duration) error {
	if s.Sleep != nil {
		return s.Sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// jittered adds up to half the delay again, desynchronizing workers that
// got rate-limited at the same instant.
func jittered(d time.Duration) time.Duration {
	return d + time.Duration(rand.Int63n(int64(d)/2+1))
}

// assemble re-sorts checkpointed rows into input order.
func (s *Scheduler) assemble(records []meme.Record) ([]meme.AnalyzedRecord, Summary) {
	var out []meme.AnalyzedRecord
	var sum Summary
	for _, r := range records {
		row, ok := s.Store.Get(r.Name)
		if !ok {
			continue
		}
		out = append(out, row)
		if row.Analysis != nil {
			sum.Succeeded++
		} else {
			sum.Failed++
		}
	}
	return out, sum
}
