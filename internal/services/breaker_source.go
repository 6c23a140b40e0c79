package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"vergeside/internal/kml"
	"vergeside/internal/metrics"
	"vergeside/internal/models"

	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// BreakingDataSource puts a circuit breaker in front of a data source so a
// failing database is not hammered by every cache miss. While the breaker
// is open calls fail fast with kml.ErrUnavailable.
type BreakingDataSource struct {
	next kml.DataSource
	cb   *gobreaker.CircuitBreaker[any]
}

var _ kml.DataSource = (*BreakingDataSource)(nil)

func NewBreakingDataSource(next kml.DataSource, failures uint32, cooldown time.Duration, logr *zap.Logger) *BreakingDataSource {
	if failures == 0 {
		failures = 5
	}
	settings := gobreaker.Settings{
		Name:        "data-source",
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			// a caller giving up is not a database failure
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.SetBreakerState(name, int(to))
			logr.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}
	return &BreakingDataSource{next: next, cb: gobreaker.NewCircuitBreaker[any](settings)}
}

func (s *BreakingDataSource) State() gobreaker.State { return s.cb.State() }

func (s *BreakingDataSource) FetchPickups(ctx context.Context, start, end time.Time) ([]models.AreaPickup, error) {
	v, err := s.execute(func() (any, error) { return s.next.FetchPickups(ctx, start, end) })
	if err != nil {
		return nil, err
	}
	return v.([]models.AreaPickup), nil
}

func (s *BreakingDataSource) FetchAreas(ctx context.Context, councilID *int64) ([]models.Area, error) {
	v, err := s.execute(func() (any, error) { return s.next.FetchAreas(ctx, councilID) })
	if err != nil {
		return nil, err
	}
	return v.([]models.Area), nil
}

func (s *BreakingDataSource) FetchPolygons(ctx context.Context, areaID int64) ([]models.AreaPolygon, error) {
	v, err := s.execute(func() (any, error) { return s.next.FetchPolygons(ctx, areaID) })
	if err != nil {
		return nil, err
	}
	return v.([]models.AreaPolygon), nil
}

func (s *BreakingDataSource) execute(fn func() (any, error)) (any, error) {
	v, err := s.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %w", kml.ErrUnavailable, err)
	}
	return v, err
}
