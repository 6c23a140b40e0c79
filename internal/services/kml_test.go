package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"vergeside/internal/kml"
	"vergeside/internal/metrics"
	"vergeside/internal/models"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var awst = time.FixedZone("+08:00", 8*60*60)

type memStore struct {
	mu      sync.Mutex
	entries map[string]*models.KMLCache
	gets    int
	puts    int
	getErr  error
	putErr  error
}

func newMemStore() *memStore {
	return &memStore{entries: make(map[string]*models.KMLCache)}
}

func (m *memStore) Get(_ context.Context, key string) (*models.KMLCache, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	if m.getErr != nil {
		return nil, m.getErr
	}
	e, ok := m.entries[key]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (m *memStore) Put(_ context.Context, key, content string, params models.CacheParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
	if m.putErr != nil {
		return m.putErr
	}
	m.entries[key] = &models.KMLCache{CacheKey: key, Content: content, Parameters: params, CreatedAt: time.Now()}
	return nil
}

func (m *memStore) Invalidate(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

type stubSource struct {
	mu     sync.Mutex
	builds int
	fail   error

	// when set, fetches signal started and block until gate closes
	started chan struct{}
	gate    chan struct{}
}

func (s *stubSource) FetchPickups(ctx context.Context, _, _ time.Time) ([]models.AreaPickup, error) {
	s.mu.Lock()
	s.builds++
	s.mu.Unlock()
	if s.gate != nil {
		select {
		case s.started <- struct{}{}:
		default:
		}
		select {
		case <-s.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.fail != nil {
		return nil, s.fail
	}
	return []models.AreaPickup{{ID: 1, AreaID: 1, StartDate: time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC)}}, nil
}

func (s *stubSource) FetchAreas(_ context.Context, _ *int64) ([]models.Area, error) {
	return []models.Area{{ID: 1, Name: "Riverside", CouncilID: 7, Council: &models.Council{ID: 7, Name: "City of Perth"}}}, nil
}

func (s *stubSource) FetchPolygons(_ context.Context, _ int64) ([]models.AreaPolygon, error) {
	return []models.AreaPolygon{{ID: 1, AreaID: 1, Coordinates: "115.8,-31.9,0 115.9,-31.9,0 115.9,-32.0,0"}}, nil
}

func (s *stubSource) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.builds
}

func (m *memStore) getCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gets
}

func gatedSource() *stubSource {
	return &stubSource{started: make(chan struct{}, 1), gate: make(chan struct{})}
}

var clock = time.Date(2025, 6, 1, 9, 0, 0, 0, awst)

func newTestService(store CacheStore, src kml.DataSource) *KMLService {
	asm := kml.NewAssembler(src, kml.DefaultColorScheme(), awst, nil).
		WithClock(func() time.Time { return clock })
	return NewKMLService(store, asm, awst, 24*time.Hour, nil).
		WithClock(func() time.Time { return clock })
}

func TestGetDocumentBuildsOnceThenHits(t *testing.T) {
	store := newMemStore()
	src := &stubSource{}
	svc := newTestService(store, src)
	svc.WithClock(time.Now)

	first, err := svc.GetDocument(context.Background(), "2025-06-01", "2025-06-28", nil)
	require.NoError(t, err)
	assert.Contains(t, first, "<name>Riverside</name>")
	assert.Contains(t, first, "<styleUrl>#week_0</styleUrl>")

	second, err := svc.GetDocument(context.Background(), "2025-06-01", "2025-06-28", nil)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, src.count())
	assert.Equal(t, 1, store.puts)

	entry := store.entries["eeaa62842b0da1d4912c878b438421a2"]
	require.NotNil(t, entry)
	assert.Equal(t, "2025-06-01", entry.Parameters.StartDate)
	assert.Equal(t, "kml", entry.Parameters.Format)
	assert.Nil(t, entry.Parameters.CouncilID)
}

func TestResolveHonoursTTL(t *testing.T) {
	key := "32df861ad266e751fbcd743d5f033181"
	seven := int64(7)
	req := DocumentRequest{StartDate: "2025-06-01", EndDate: "2025-06-28", CouncilID: &seven}

	tests := []struct {
		name    string
		age     time.Duration
		hit     bool
		content string
	}{
		{"fresh entry is served", time.Hour, true, "cached"},
		{"expired entry is rebuilt", 25 * time.Hour, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			store.entries[key] = &models.KMLCache{CacheKey: key, Content: "cached", CreatedAt: clock.Add(-tt.age)}
			src := &stubSource{}

			res, err := newTestService(store, src).Resolve(context.Background(), req)
			require.NoError(t, err)

			assert.Equal(t, tt.hit, res.Hit)
			assert.Equal(t, key, res.Key)
			if tt.hit {
				assert.Equal(t, tt.content, res.Content)
				assert.Zero(t, src.count())
			} else {
				assert.True(t, strings.HasPrefix(res.Content, "<?xml"))
				assert.Equal(t, 1, src.count())
				assert.Equal(t, res.Content, store.entries[key].Content)
			}
		})
	}
}

func TestResolveUpstreamFailureIsNotCached(t *testing.T) {
	store := newMemStore()
	src := &stubSource{fail: errors.New("connection reset")}

	_, err := newTestService(store, src).Resolve(context.Background(),
		DocumentRequest{StartDate: "2025-06-01", EndDate: "2025-06-28"})

	require.Error(t, err)
	assert.ErrorIs(t, err, kml.ErrUpstreamFetch)
	assert.Zero(t, store.puts)
	assert.Empty(t, store.entries)
}

func TestResolveToleratesCacheFailures(t *testing.T) {
	store := newMemStore()
	store.getErr = errors.New("read timeout")
	store.putErr = errors.New("disk full")
	src := &stubSource{}

	res, err := newTestService(store, src).Resolve(context.Background(),
		DocumentRequest{StartDate: "2025-06-01", EndDate: "2025-06-28"})

	require.NoError(t, err)
	assert.False(t, res.Hit)
	assert.Contains(t, res.Content, "Riverside")
	assert.Equal(t, 1, store.puts)
}

func TestResolveGeoJSONUsesOwnKey(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, &stubSource{})

	kmlRes, err := svc.Resolve(context.Background(), DocumentRequest{StartDate: "2025-06-01", EndDate: "2025-06-28"})
	require.NoError(t, err)
	geoRes, err := svc.Resolve(context.Background(), DocumentRequest{Format: kml.FormatGeoJSON, StartDate: "2025-06-01", EndDate: "2025-06-28"})
	require.NoError(t, err)

	assert.NotEqual(t, kmlRes.Key, geoRes.Key)
	assert.True(t, strings.HasPrefix(geoRes.Content, `{"type":"FeatureCollection"`))
	assert.Len(t, store.entries, 2)
}

func TestResolveRejectsBadInput(t *testing.T) {
	svc := newTestService(newMemStore(), &stubSource{})

	_, err := svc.Resolve(context.Background(), DocumentRequest{StartDate: "2025-06-28", EndDate: "2025-06-01"})
	assert.ErrorIs(t, err, kml.ErrInvalidDateRange)

	_, err = svc.Resolve(context.Background(), DocumentRequest{Format: "csv", StartDate: "2025-06-01", EndDate: "2025-06-28"})
	assert.Error(t, err)
}

func TestInvalidate(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, &stubSource{})
	req := DocumentRequest{StartDate: "2025-06-01", EndDate: "2025-06-28"}

	_, err := svc.Resolve(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, store.entries, 1)

	keys, err := svc.Invalidate(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, keys, 2)
	assert.Contains(t, keys, "eeaa62842b0da1d4912c878b438421a2")
	assert.Empty(t, store.entries)
}

func TestResolveCoalescesConcurrentMisses(t *testing.T) {
	const callers = 8
	store := newMemStore()
	src := gatedSource()
	svc := newTestService(store, src)
	req := DocumentRequest{StartDate: "2025-06-01", EndDate: "2025-06-28"}
	coalesced := metrics.CoalescedBuilds.WithLabelValues("kml")
	before := testutil.ToFloat64(coalesced)

	var wg sync.WaitGroup
	results := make([]*Result, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.Resolve(context.Background(), req)
		}(i)
	}

	<-src.started
	require.Eventually(t, func() bool { return store.getCount() == callers }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(src.gate)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0].Content, results[i].Content)
		assert.False(t, results[i].Hit)
	}
	assert.Equal(t, 1, src.count())
	assert.Equal(t, 1, store.puts)
	assert.Equal(t, float64(callers), testutil.ToFloat64(coalesced)-before)
}

func TestResolveSharedBuildSurvivesCallerCancel(t *testing.T) {
	store := newMemStore()
	src := gatedSource()
	svc := newTestService(store, src)
	req := DocumentRequest{StartDate: "2025-06-01", EndDate: "2025-06-28"}

	leaderCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	leaderErr := make(chan error, 1)
	go func() {
		_, err := svc.Resolve(leaderCtx, req)
		leaderErr <- err
	}()
	<-src.started

	type outcome struct {
		res *Result
		err error
	}
	waiter := make(chan outcome, 1)
	go func() {
		res, err := svc.Resolve(context.Background(), req)
		waiter <- outcome{res, err}
	}()
	require.Eventually(t, func() bool { return store.getCount() == 2 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-leaderErr, context.Canceled)

	close(src.gate)
	got := <-waiter
	require.NoError(t, got.err)
	assert.Contains(t, got.res.Content, "Riverside")
	assert.Equal(t, 1, src.count())
	assert.Equal(t, got.res.Content, store.entries["eeaa62842b0da1d4912c878b438421a2"].Content)
}
