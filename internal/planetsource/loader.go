package planetsource

import (
	"context"
	"fmt"

	"github.com/signalsfoundry/orrery/internal/logging"
	"github.com/signalsfoundry/orrery/internal/observability"
	"github.com/signalsfoundry/orrery/model"
	"go.opentelemetry.io/otel/codes"
)

// Populator receives the planets for the session exactly once.
type Populator interface {
	Populate(planets []model.PlanetDescriptor) error
}

// FetchRecorder counts fetch outcomes.
type FetchRecorder interface {
	RecordFetch(err error)
}

// LoadOnce runs the startup fetch and hands the result to target. A failed
// fetch is logged and turned into an empty planet list so the scene still
// leaves its loading phase; the fetch error is returned for callers that
// want to report it, but nothing here panics or retries.
func LoadOnce(ctx context.Context, src Source, target Populator, log logging.Logger, rec FetchRecorder) error {
	if log == nil {
		log = logging.Noop()
	}
	ctx, span := observability.StartLoadSpan(ctx)
	defer span.End()

	planets, fetchErr := src.FetchPlanets(ctx)
	if rec != nil {
		rec.RecordFetch(fetchErr)
	}
	if fetchErr != nil {
		log.Error(ctx, "error fetching planet data", logging.Err(fetchErr))
		planets = nil
	} else {
		log.Info(ctx, "fetched planet data", logging.Int("planets", len(planets)))
	}

	span.SetAttributes(observability.AttrPlanets.Int(len(planets)))
	err := target.Populate(planets)
	if err != nil {
		log.Warn(ctx, "scene rejected planet data", logging.Err(err))
		err = fmt.Errorf("populate scene: %w", err)
	} else {
		span.SetAttributes(observability.AttrPhase.String("populated"))
	}
	if fetchErr != nil {
		err = fetchErr
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
