package manage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type predictionRepoPG struct{ db queryable }

func NewPredictionRepoPG(pool *pgxpool.Pool) PredictionRepository {
	return &predictionRepoPG{db: pool}
}

const predictionCols = `id, kind, source, patient_id, request, response, fallback_reason, latency_ms, created_at`

func (r *predictionRepoPG) scanPrediction(row pgx.Row) (*PredictionRecord, error) {
	var p PredictionRecord
	var source string
	err := row.Scan(&p.ID, &p.Kind, &source, &p.PatientID, &p.Request, &p.Response,
		&p.FallbackReason, &p.LatencyMs, &p.CreatedAt)
	p.Source = Source(source)
	return &p, err
}

func (r *predictionRepoPG) Create(ctx context.Context, p *PredictionRecord) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO prediction_log (id, kind, source, patient_id, request, response, fallback_reason, latency_ms, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		p.ID, p.Kind, string(p.Source), p.PatientID, []byte(p.Request), []byte(p.Response),
		p.FallbackReason, p.LatencyMs, p.CreatedAt)
	return err
}

// List returns the newest records first. An empty kind matches every kind.
func (r *predictionRepoPG) List(ctx context.Context, kind string, limit, offset int) ([]*PredictionRecord, int, error) {
	var total int
	if err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM prediction_log WHERE ($1::text = '' OR kind = $1)`, kind).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.Query(ctx, `SELECT `+predictionCols+` FROM prediction_log
		WHERE ($1::text = '' OR kind = $1) ORDER BY created_at DESC LIMIT $2 OFFSET $3`, kind, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*PredictionRecord
	for rows.Next() {
		p, err := r.scanPrediction(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func (r *predictionRepoPG) Summarize(ctx context.Context, since time.Time) ([]KindSummary, error) {
	rows, err := r.db.Query(ctx, `
		SELECT kind,
			COUNT(*),
			COUNT(*) FILTER (WHERE source = 'fallback'),
			COALESCE(AVG(latency_ms), 0)::float8
		FROM prediction_log
		WHERE created_at >= $1
		GROUP BY kind
		ORDER BY kind`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []KindSummary
	for rows.Next() {
		var s KindSummary
		if err := rows.Scan(&s.Kind, &s.Total, &s.Fallbacks, &s.AvgLatencyMs); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
