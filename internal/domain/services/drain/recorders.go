package drain

import (
	"context"
	"errors"

	"github.com/ton-sweeper/sweeper_service/internal/domain/entities"
)

// RunRecorders fans a finished run out to every recorder. A failing recorder
// does not stop the others.
type RunRecorders []RunRecorder

func (rs RunRecorders) Record(ctx context.Context, run *entities.DrainRun) error {
	var errs []error
	for _, r := range rs {
		if err := r.Record(ctx, run); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder collapses the configured recorders, returning a nil interface
// when there are none.
func Recorder(rs ...RunRecorder) RunRecorder {
	var live RunRecorders
	for _, r := range rs {
		if r != nil {
			live = append(live, r)
		}
	}
	switch len(live) {
	case 0:
		return nil
	case 1:
		return live[0]
	default:
		return live
	}
}
