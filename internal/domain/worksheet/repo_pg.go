package worksheet

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/labimport/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

func connFor(ctx context.Context, pool *pgxpool.Pool) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return pool
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// -- Worksheet --

type worksheetRepoPG struct{ pool *pgxpool.Pool }

func NewWorksheetRepoPG(pool *pgxpool.Pool) WorksheetRepository {
	return &worksheetRepoPG{pool: pool}
}

func (r *worksheetRepoPG) Create(ctx context.Context, ws *Worksheet) error {
	ws.ID = uuid.New()
	return connFor(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO worksheet (id, name, status, created_by)
		VALUES ($1,$2,$3,$4)
		RETURNING created_at, updated_at`,
		ws.ID, ws.Name, ws.Status, ws.CreatedBy).Scan(&ws.CreatedAt, &ws.UpdatedAt)
}

func (r *worksheetRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Worksheet, error) {
	var ws Worksheet
	err := connFor(ctx, r.pool).QueryRow(ctx, `
		SELECT id, name, status, created_by, created_at, updated_at
		FROM worksheet WHERE id = $1`, id).
		Scan(&ws.ID, &ws.Name, &ws.Status, &ws.CreatedBy, &ws.CreatedAt, &ws.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &ws, nil
}

// -- Item --

type itemRepoPG struct{ pool *pgxpool.Pool }

func NewItemRepoPG(pool *pgxpool.Pool) ItemRepository {
	return &itemRepoPG{pool: pool}
}

const itemCols = `id, worksheet_id, sample_accession_number, concept_uuid, status,
	can_edit_results, result_filled, created_at, updated_at`

func (r *itemRepoPG) scanRow(row pgx.Row) (*Item, error) {
	var it Item
	err := row.Scan(&it.ID, &it.WorksheetID, &it.SampleAccessionNumber, &it.ConceptUUID, &it.Status,
		&it.CanEditResults, &it.ResultFilled, &it.CreatedAt, &it.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &it, nil
}

func (r *itemRepoPG) Create(ctx context.Context, it *Item) error {
	it.ID = uuid.New()
	return connFor(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO worksheet_item (id, worksheet_id, sample_accession_number, concept_uuid, status, can_edit_results)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at, updated_at`,
		it.ID, it.WorksheetID, it.SampleAccessionNumber, it.ConceptUUID, it.Status, it.CanEditResults).
		Scan(&it.CreatedAt, &it.UpdatedAt)
}

func (r *itemRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Item, error) {
	return r.scanRow(connFor(ctx, r.pool).QueryRow(ctx, `SELECT `+itemCols+` FROM worksheet_item WHERE id = $1`, id))
}

func (r *itemRepoPG) ListByWorksheet(ctx context.Context, worksheetID uuid.UUID) ([]*Item, error) {
	rows, err := connFor(ctx, r.pool).Query(ctx, `SELECT `+itemCols+` FROM worksheet_item
		WHERE worksheet_id = $1 ORDER BY created_at, sample_accession_number`, worksheetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Item
	for rows.Next() {
		it, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *itemRepoPG) SetResultFilled(ctx context.Context, id uuid.UUID, filled bool) error {
	tag, err := connFor(ctx, r.pool).Exec(ctx, `
		UPDATE worksheet_item SET result_filled = $2,
			status = CASE WHEN status = 'pending' THEN 'in-progress' ELSE status END,
			updated_at = NOW()
		WHERE id = $1`, id, filled)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// -- Result --

type resultRepoPG struct{ pool *pgxpool.Pool }

func NewResultRepoPG(pool *pgxpool.Pool) ResultRepository {
	return &resultRepoPG{pool: pool}
}

func (r *resultRepoPG) Upsert(ctx context.Context, res *ItemResult) error {
	return connFor(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO worksheet_item_result (item_id, field_path, value)
		VALUES ($1,$2,$3)
		ON CONFLICT (item_id, field_path) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
		RETURNING updated_at`,
		res.ItemID, res.FieldPath, res.Value).Scan(&res.UpdatedAt)
}

func (r *resultRepoPG) ListByItem(ctx context.Context, itemID uuid.UUID) ([]*ItemResult, error) {
	rows, err := connFor(ctx, r.pool).Query(ctx, `
		SELECT item_id, field_path, value, updated_at
		FROM worksheet_item_result WHERE item_id = $1 ORDER BY field_path`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*ItemResult
	for rows.Next() {
		var res ItemResult
		if err := rows.Scan(&res.ItemID, &res.FieldPath, &res.Value, &res.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &res)
	}
	return out, rows.Err()
}
