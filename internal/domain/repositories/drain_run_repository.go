package repositories

import (
	"context"
	"time"

	"github.com/ton-sweeper/sweeper_service/internal/domain/entities"
)

// DrainRunFilter narrows a drain history listing
type DrainRunFilter struct {
	SourceAddress *string
	Outcome       *entities.DrainOutcome
	Since         *time.Time
	Limit         int
}

// DrainRunRepository persists the drain audit log
type DrainRunRepository interface {
	Record(ctx context.Context, run *entities.DrainRun) error
	List(ctx context.Context, filter DrainRunFilter) ([]*entities.DrainRun, error)
}
