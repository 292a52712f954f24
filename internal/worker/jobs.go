package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/gopti/gopti/internal/catalog"
	"github.com/gopti/gopti/internal/telemetry"
	"github.com/gopti/gopti/internal/travel"
)

// VenueSource lists the venues active on a day.
type VenueSource interface {
	Venues(ctx context.Context, day time.Time) ([]catalog.Venue, error)
}

// Purger deletes expired cache rows.
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// Recorder counts finished jobs.
type Recorder interface {
	ObserveJob(jobType string, err error)
}

type nopRecorder struct{}

func (nopRecorder) ObserveJob(string, error) {}

// ErrNothingToPrewarm is returned when no cached cost provider is configured.
var ErrNothingToPrewarm = errors.New("no cached cost provider configured")

// PrewarmJob computes the travel cost between every ordered pair of venues
// active on a day so that solves for that day hit the cache.
type PrewarmJob struct {
	venues   VenueSource
	cost     travel.CostProvider
	config   JobConfig
	recorder Recorder
	logger   zerolog.Logger
}

// PrewarmJobConfig holds configuration for creating a PrewarmJob.
type PrewarmJobConfig struct {
	Venues VenueSource

	// Cost should be a caching provider without the straight-line fallback,
	// so provider failures are counted instead of hidden.
	Cost travel.CostProvider

	Config   JobConfig
	Recorder Recorder
	Logger   zerolog.Logger
}

// NewPrewarmJob creates a new prewarm job.
func NewPrewarmJob(cfg PrewarmJobConfig) *PrewarmJob {
	recorder := cfg.Recorder
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &PrewarmJob{
		venues:   cfg.Venues,
		cost:     cfg.Cost,
		config:   cfg.Config.withDefaults(),
		recorder: recorder,
		logger:   cfg.Logger,
	}
}

// PrewarmResult summarizes a prewarm run.
type PrewarmResult struct {
	Date       string
	Venues     int
	Pairs      int
	Successful int
	Failed     int
	Duration   time.Duration
	Errors     []PairError
}

// PairError is a failed lookup.
type PairError struct {
	From  string
	To    string
	Error string
}

type pair struct {
	from, to catalog.Venue
}

type pairResult struct {
	pair pair
	err  error
}

// Run prewarms day. It fails when the venues cannot be listed or when more
// lookups failed than succeeded.
func (j *PrewarmJob) Run(ctx context.Context, day time.Time) (res *PrewarmResult, err error) {
	date := day.Format(time.DateOnly)
	ctx, span := telemetry.StartSpan(ctx, "worker.prewarm_day", attribute.String("job.date", date))
	defer func() {
		j.recorder.ObserveJob(JobPrewarmDay, err)
		telemetry.End(span, err)
	}()

	if j.cost == nil {
		return nil, ErrNothingToPrewarm
	}

	start := time.Now()
	venues, err := j.venues.Venues(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("listing venues for %s: %w", date, err)
	}

	pairs := make([]pair, 0, len(venues)*len(venues))
	for _, from := range venues {
		for _, to := range venues {
			if from.ID != to.ID {
				pairs = append(pairs, pair{from: from, to: to})
			}
		}
	}

	res = &PrewarmResult{Date: date, Venues: len(venues), Pairs: len(pairs)}
	j.logger.Info().
		Str("date", date).
		Int("venues", res.Venues).
		Int("pairs", res.Pairs).
		Int("concurrency", j.config.Concurrency).
		Msg("starting prewarm job")

	pairsChan := make(chan pair)
	resultsChan := make(chan pairResult)

	var wg sync.WaitGroup
	for i := 0; i < j.config.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range pairsChan {
				resultsChan <- pairResult{pair: p, err: j.lookup(ctx, day, p)}
			}
		}()
	}

	go func() {
		defer close(pairsChan)
		for _, p := range pairs {
			select {
			case pairsChan <- p:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	for pr := range resultsChan {
		if pr.err != nil {
			res.Failed++
			res.Errors = append(res.Errors, PairError{From: pr.pair.from.ID, To: pr.pair.to.ID, Error: pr.err.Error()})
			continue
		}
		res.Successful++
	}
	res.Duration = time.Since(start)

	span.SetAttributes(
		attribute.Int("job.pairs", res.Pairs),
		attribute.Int("job.failed", res.Failed),
	)
	j.logger.Info().
		Str("date", date).
		Int("successful", res.Successful).
		Int("failed", res.Failed).
		Dur("duration", res.Duration).
		Msg("prewarm job completed")

	if err := ctx.Err(); err != nil {
		return res, err
	}
	if res.Failed > res.Successful {
		return res, fmt.Errorf("too many prewarm failures: %d/%d", res.Failed, res.Pairs)
	}
	return res, nil
}

func (j *PrewarmJob) lookup(ctx context.Context, day time.Time, p pair) error {
	ctx, cancel := context.WithTimeout(ctx, j.config.LookupTimeout)
	defer cancel()

	_, err := j.cost.Cost(ctx, travel.Query{
		Origin:       p.from.Position,
		Destination:  p.to.Position,
		Departure:    day,
		WalkingSpeed: j.config.WalkingSpeed,
	})
	if err != nil {
		j.logger.Debug().Err(err).Str("from", p.from.ID).Str("to", p.to.ID).Msg("prewarm lookup failed")
	}
	return err
}

// PurgeJob deletes expired rows from the travel cache.
type PurgeJob struct {
	store    Purger
	recorder Recorder
	logger   zerolog.Logger
}

// NewPurgeJob creates a new purge job.
func NewPurgeJob(store Purger, recorder Recorder, logger zerolog.Logger) *PurgeJob {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &PurgeJob{store: store, recorder: recorder, logger: logger}
}

// Run purges expired entries and returns how many were removed.
func (j *PurgeJob) Run(ctx context.Context) (purged int64, err error) {
	ctx, span := telemetry.StartSpan(ctx, "worker.purge_expired")
	defer func() {
		j.recorder.ObserveJob(JobPurgeExpired, err)
		telemetry.End(span, err)
	}()

	purged, err = j.store.PurgeExpired(ctx)
	if err != nil {
		return 0, fmt.Errorf("purging expired cache entries: %w", err)
	}
	span.SetAttributes(attribute.Int64("job.purged", purged))
	j.logger.Info().Int64("purged", purged).Msg("expired cache entries purged")
	return purged, nil
}
