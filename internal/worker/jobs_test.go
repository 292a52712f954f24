package worker_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gopti/gopti/internal/cache"
	"github.com/gopti/gopti/internal/catalog"
	"github.com/gopti/gopti/internal/geo"
	"github.com/gopti/gopti/internal/travel"
	"github.com/gopti/gopti/internal/worker"
)

var day = time.Date(2025, 6, 11, 0, 0, 0, 0, time.UTC)

func testCatalog(t *testing.T, venues int) *catalog.InMemoryRepository {
	t.Helper()
	repo := catalog.NewInMemoryRepository()
	for i := 0; i < venues; i++ {
		id := string(rune('a' + i))
		repo.PutVenue(catalog.Venue{
			ID:       "venue-" + id,
			Name:     "Venue " + id,
			Position: geo.Coordinate{Lat: -33.87 + float64(i)*0.001, Lng: 151.20},
		})
		require.NoError(t, repo.PutEvent(catalog.Event{ID: "event-" + id, VenueID: "venue-" + id, Name: "Event " + id}))
		require.NoError(t, repo.AddSession(catalog.Session{
			EventID: "event-" + id,
			Start:   day.Add(9 * time.Hour),
			End:     day.Add(10 * time.Hour),
		}))
	}
	return repo
}

// countingCost returns fixed costs and fails for origins listed in failFrom.
type countingCost struct {
	calls    atomic.Int32
	failFrom map[geo.Coordinate]bool
}

func (c *countingCost) Name() string { return "counting" }

func (c *countingCost) Cost(_ context.Context, q travel.Query) (travel.Cost, error) {
	c.calls.Add(1)
	if c.failFrom[q.Origin] {
		return travel.Cost{}, errors.New("quota exceeded")
	}
	return travel.Cost{Seconds: 120, Attribution: travel.Attribution{Provider: "counting"}}, nil
}

type jobRecorder struct {
	mu   sync.Mutex
	jobs map[string][]error
}

func (r *jobRecorder) ObserveJob(jobType string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.jobs == nil {
		r.jobs = make(map[string][]error)
	}
	r.jobs[jobType] = append(r.jobs[jobType], err)
}

func TestPrewarmJob_FillsCache(t *testing.T) {
	provider := &countingCost{}
	store := cache.NewMemoryStore()
	recorder := &jobRecorder{}

	job := worker.NewPrewarmJob(worker.PrewarmJobConfig{
		Venues:   testCatalog(t, 3),
		Cost:     travel.NewCachedCost(provider, travel.CacheConfig{Store: store, Logger: zerolog.Nop()}),
		Config:   worker.JobConfig{Concurrency: 2},
		Recorder: recorder,
		Logger:   zerolog.Nop(),
	})

	res, err := job.Run(context.Background(), day)
	require.NoError(t, err)
	assert.Equal(t, "2025-06-11", res.Date)
	assert.Equal(t, 3, res.Venues)
	assert.Equal(t, 6, res.Pairs)
	assert.Equal(t, 6, res.Successful)
	assert.Zero(t, res.Failed)
	assert.Equal(t, int32(6), provider.calls.Load())
	assert.Equal(t, 6, store.Len())

	_, err = job.Run(context.Background(), day)
	require.NoError(t, err)
	assert.Equal(t, int32(6), provider.calls.Load(), "second run is served from cache")

	require.Len(t, recorder.jobs[worker.JobPrewarmDay], 2)
	assert.NoError(t, recorder.jobs[worker.JobPrewarmDay][0])
}

func TestPrewarmJob_EmptyDay(t *testing.T) {
	provider := &countingCost{}
	job := worker.NewPrewarmJob(worker.PrewarmJobConfig{
		Venues: testCatalog(t, 2),
		Cost:   provider,
		Logger: zerolog.Nop(),
	})

	res, err := job.Run(context.Background(), day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Zero(t, res.Pairs)
	assert.Zero(t, provider.calls.Load())
}

func TestPrewarmJob_MostlyFailing(t *testing.T) {
	repo := testCatalog(t, 2)
	venues, err := repo.Venues(context.Background(), day)
	require.NoError(t, err)

	provider := &countingCost{failFrom: map[geo.Coordinate]bool{
		venues[0].Position: true,
		venues[1].Position: true,
	}}
	recorder := &jobRecorder{}
	job := worker.NewPrewarmJob(worker.PrewarmJobConfig{
		Venues:   repo,
		Cost:     provider,
		Recorder: recorder,
		Logger:   zerolog.Nop(),
	})

	res, err := job.Run(context.Background(), day)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too many prewarm failures")
	assert.Equal(t, 2, res.Failed)
	assert.Len(t, res.Errors, 2)
	assert.Error(t, recorder.jobs[worker.JobPrewarmDay][0])
}

func TestPrewarmJob_WithoutProvider(t *testing.T) {
	job := worker.NewPrewarmJob(worker.PrewarmJobConfig{Venues: testCatalog(t, 1), Logger: zerolog.Nop()})
	_, err := job.Run(context.Background(), day)
	assert.ErrorIs(t, err, worker.ErrNothingToPrewarm)
}

type failingVenues struct{}

func (failingVenues) Venues(context.Context, time.Time) ([]catalog.Venue, error) {
	return nil, errors.New("connection reset")
}

func TestPrewarmJob_CatalogError(t *testing.T) {
	job := worker.NewPrewarmJob(worker.PrewarmJobConfig{
		Venues: failingVenues{},
		Cost:   &countingCost{},
		Logger: zerolog.Nop(),
	})
	_, err := job.Run(context.Background(), day)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listing venues for 2025-06-11")
}

func TestPurgeJob(t *testing.T) {
	store := cache.NewMemoryStore()
	require.NoError(t, store.Set(context.Background(), "stale", []byte("1"), time.Millisecond))
	require.NoError(t, store.Set(context.Background(), "fresh", []byte("2"), time.Hour))
	time.Sleep(5 * time.Millisecond)

	recorder := &jobRecorder{}
	purged, err := worker.NewPurgeJob(store, recorder, zerolog.Nop()).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)
	assert.Equal(t, 1, store.Len())
	assert.Equal(t, []error{nil}, recorder.jobs[worker.JobPurgeExpired])
}

type failingPurger struct{}

func (failingPurger) PurgeExpired(context.Context) (int64, error) {
	return 0, errors.New("relation does not exist")
}

func TestPurgeJob_Error(t *testing.T) {
	_, err := worker.NewPurgeJob(failingPurger{}, nil, zerolog.Nop()).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "purging expired cache entries")
}

func TestDefaultJobConfig(t *testing.T) {
	cfg := worker.DefaultJobConfig()
	assert.Equal(t, 4, cfg.Concurrency)
	assert.Equal(t, 10*time.Second, cfg.LookupTimeout)
	assert.InDelta(t, 1.35, cfg.WalkingSpeed, 1e-9)
}
