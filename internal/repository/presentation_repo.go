package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"presentation-api/internal/model"
)

type PresentationRepository struct {
	pool *pgxpool.Pool
}

func NewPresentationRepository(pool *pgxpool.Pool) *PresentationRepository {
	return &PresentationRepository{pool: pool}
}

const presentationColumns = `
	id, owner_id, is_draft, created_at, updated_at,
	COALESCE(mubdee, 'null'::jsonb),
	COALESCE(type_section, 'null'::jsonb),
	COALESCE(mission, 'null'::jsonb),
	COALESCE(readiness, 'null'::jsonb),
	COALESCE(conclusion, 'null'::jsonb),
	COALESCE(security_output, 'null'::jsonb),
	COALESCE(file_part6, ''), COALESCE(file_part7, ''), COALESCE(file_part8, ''),
	COALESCE(file_part9, ''), COALESCE(file_part10, '')`

func scanPresentation(row pgx.Row) (model.Presentation, error) {
	var p model.Presentation
	err := row.Scan(
		&p.ID, &p.OwnerID, &p.IsDraft, &p.CreatedAt, &p.UpdatedAt,
		&p.Mubdee, &p.TypeSection, &p.Mission, &p.Readiness, &p.Conclusion, &p.SecurityOutput,
		&p.FilePart6, &p.FilePart7, &p.FilePart8, &p.FilePart9, &p.FilePart10)
	return p, err
}

func (r *PresentationRepository) Create(ctx context.Context, p model.Presentation) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO presentations (
			id, owner_id, is_draft, created_at, updated_at,
			mubdee, type_section, mission, readiness, conclusion, security_output,
			file_part6, file_part7, file_part8, file_part9, file_part10
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		p.ID, p.OwnerID, p.IsDraft, p.CreatedAt, p.UpdatedAt,
		p.Mubdee, p.TypeSection, p.Mission, p.Readiness, p.Conclusion, p.SecurityOutput,
		p.FilePart6, p.FilePart7, p.FilePart8, p.FilePart9, p.FilePart10)
	if err != nil {
		return fmt.Errorf("create presentation: %w", err)
	}
	return nil
}

func (r *PresentationRepository) FindByID(ctx context.Context, id string) (model.Presentation, error) {
	p, err := scanPresentation(r.pool.QueryRow(ctx,
		`SELECT`+presentationColumns+` FROM presentations WHERE id = $1`, id))

	if errors.Is(err, pgx.ErrNoRows) {
		return model.Presentation{}, model.ErrPresentationNotFound
	}
	if err != nil {
		return model.Presentation{}, fmt.Errorf("find presentation by id: %w", err)
	}
	return p, nil
}

// Update rewrites the whole document. No version check is performed: when
// two requests update the same presentation concurrently the last write
// wins, matching the store-level behavior this API has always had.
func (r *PresentationRepository) Update(ctx context.Context, p model.Presentation) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE presentations SET
			is_draft = $2, updated_at = $3,
			mubdee = $4, type_section = $5, mission = $6, readiness = $7,
			conclusion = $8, security_output = $9,
			file_part6 = $10, file_part7 = $11, file_part8 = $12,
			file_part9 = $13, file_part10 = $14
		 WHERE id = $1`,
		p.ID, p.IsDraft, p.UpdatedAt,
		p.Mubdee, p.TypeSection, p.Mission, p.Readiness, p.Conclusion, p.SecurityOutput,
		p.FilePart6, p.FilePart7, p.FilePart8, p.FilePart9, p.FilePart10)
	if err != nil {
		return fmt.Errorf("update presentation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrPresentationNotFound
	}
	return nil
}

// IDsForOwner derives the owner's presentation-ID list from the owner column
// instead of maintaining a separate back-reference that could drift.
func (r *PresentationRepository) IDsForOwner(ctx context.Context, ownerID string) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id FROM presentations WHERE owner_id = $1 ORDER BY created_at`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list presentation ids: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan presentation id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

var listSortColumns = map[string]string{
	"created_at": "created_at",
	"updated_at": "updated_at",
	"is_draft":   "is_draft",
}

// List returns one page of summaries plus the total and draft counts for the
// same filter, so the handler can report the draft/published split without a
// third round trip.
func (r *PresentationRepository) List(ctx context.Context, q model.ListQuery) ([]model.PresentationSummary, int, int, error) {
	where := `owner_id = $1`
	args := []any{q.OwnerID}
	if q.IsDraft != nil {
		where += ` AND is_draft = $2`
		args = append(args, *q.IsDraft)
	}

	var total, drafts int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE is_draft) FROM presentations WHERE `+where,
		args...).Scan(&total, &drafts)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("count presentations: %w", err)
	}

	sortColumn, ok := listSortColumns[q.SortField]
	if !ok {
		sortColumn = "created_at"
	}
	direction := "DESC"
	if q.Ascending {
		direction = "ASC"
	}

	offset := (q.Page - 1) * q.Limit
	pageArgs := append(args, q.Limit, offset)
	query := fmt.Sprintf(
		`SELECT id, is_draft, created_at, updated_at
		 FROM presentations WHERE %s
		 ORDER BY %s %s
		 LIMIT $%d OFFSET $%d`,
		where, sortColumn, direction, len(args)+1, len(args)+2)

	rows, err := r.pool.Query(ctx, query, pageArgs...)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("list presentations: %w", err)
	}
	defer rows.Close()

	summaries := make([]model.PresentationSummary, 0, q.Limit)
	for rows.Next() {
		var s model.PresentationSummary
		if err := rows.Scan(&s.ID, &s.IsDraft, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, 0, 0, fmt.Errorf("scan presentation summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, 0, err
	}

	return summaries, total, drafts, nil
}
