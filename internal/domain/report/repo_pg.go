package report

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sympto/sympto/internal/platform/db"
)

type reportRepoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &reportRepoPG{pool: pool}
}

func (r *reportRepoPG) conn() db.Querier {
	return r.pool
}

const summaryCols = `id, user_id, disease, disease_name, prediction, confidence, risk_level,
	probabilities, diagnosis, image_url, text_input, created_at, updated_at`

const reportCols = `id, user_id, disease, disease_name, prediction, confidence, risk_level,
	probabilities, diagnosis, gemini_report, image_url, text_input, pdf_data, created_at, updated_at`

func (r *reportRepoPG) Create(ctx context.Context, rep *Report) error {
	rep.ID = uuid.New()
	now := time.Now().UTC()
	rep.CreatedAt = now
	rep.UpdatedAt = now
	if rep.Probabilities == nil {
		rep.Probabilities = map[string]float64{}
	}

	_, err := r.conn().Exec(ctx, `
		INSERT INTO reports (`+reportCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		rep.ID, rep.UserID, rep.Disease, rep.DiseaseName, rep.Prediction, rep.Confidence, rep.RiskLevel,
		rep.Probabilities, rep.Diagnosis, rep.GeminiReport, rep.ImageURL, rep.TextInput, rep.PDFData,
		rep.CreatedAt, rep.UpdatedAt,
	)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return ErrOwnerMissing
		}
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

func (r *reportRepoPG) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Summary, error) {
	rows, err := r.conn().Query(ctx, `
		SELECT `+summaryCols+` FROM reports
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	out := make([]Summary, 0, limit)
	for rows.Next() {
		var s Summary
		if err := rows.Scan(&s.ID, &s.UserID, &s.Disease, &s.DiseaseName, &s.Prediction, &s.Confidence,
			&s.RiskLevel, &s.Probabilities, &s.Diagnosis, &s.ImageURL, &s.TextInput,
			&s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan report summary: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *reportRepoPG) GetForUser(ctx context.Context, userID, id uuid.UUID) (*Report, error) {
	return scanReport(r.conn().QueryRow(ctx, `
		SELECT `+reportCols+` FROM reports
		WHERE id = $1 AND user_id = $2`, id, userID))
}

func (r *reportRepoPG) DeleteForUser(ctx context.Context, userID, id uuid.UUID) error {
	tag, err := r.conn().Exec(ctx, `DELETE FROM reports WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete report: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanReport(row pgx.Row) (*Report, error) {
	var rep Report
	err := row.Scan(&rep.ID, &rep.UserID, &rep.Disease, &rep.DiseaseName, &rep.Prediction, &rep.Confidence,
		&rep.RiskLevel, &rep.Probabilities, &rep.Diagnosis, &rep.GeminiReport, &rep.ImageURL,
		&rep.TextInput, &rep.PDFData, &rep.CreatedAt, &rep.UpdatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan report: %w", err)
	}
	return &rep, nil
}
