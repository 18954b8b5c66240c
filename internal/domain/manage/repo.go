package manage

import (
	"context"
	"time"
)

// PredictionRepository persists answered predictions for the dashboard and
// history endpoints.
type PredictionRepository interface {
	Create(ctx context.Context, r *PredictionRecord) error
	List(ctx context.Context, kind string, limit, offset int) ([]*PredictionRecord, int, error)
	Summarize(ctx context.Context, since time.Time) ([]KindSummary, error)
}
