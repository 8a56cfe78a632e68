package fieldmapping

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

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

type fieldMappingRepoPG struct{ pool *pgxpool.Pool }

func NewFieldMappingRepoPG(pool *pgxpool.Pool) Repository {
	return &fieldMappingRepoPG{pool: pool}
}

func (r *fieldMappingRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const fmCols = `id, concept_uuid, header_hash, field_mapping, created_by, created_at, updated_at`

func (r *fieldMappingRepoPG) scanRow(row pgx.Row) (*Record, error) {
	var rec Record
	var raw []byte
	err := row.Scan(&rec.ID, &rec.ConceptUUID, &rec.HeaderHash, &raw,
		&rec.CreatedBy, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &rec.FieldMapping); err != nil {
		return nil, fmt.Errorf("decode field mapping %s: %w", rec.ID, err)
	}
	return &rec, nil
}

func (r *fieldMappingRepoPG) Save(ctx context.Context, rec *Record) error {
	raw, err := json.Marshal(rec.FieldMapping)
	if err != nil {
		return fmt.Errorf("encode field mapping: %w", err)
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO field_mapping (id, concept_uuid, header_hash, field_mapping, created_by)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (concept_uuid, header_hash) DO UPDATE
			SET field_mapping = EXCLUDED.field_mapping, updated_at = NOW()
		RETURNING id, created_at, updated_at`,
		rec.ID, rec.ConceptUUID, rec.HeaderHash, raw, rec.CreatedBy).
		Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt)
}

func (r *fieldMappingRepoPG) GetByConceptAndHash(ctx context.Context, conceptUUID, headerHash string) (*Record, error) {
	return r.scanRow(r.conn(ctx).QueryRow(ctx,
		`SELECT `+fmCols+` FROM field_mapping WHERE concept_uuid = $1 AND header_hash = $2`,
		conceptUUID, headerHash))
}

func (r *fieldMappingRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Record, error) {
	return r.scanRow(r.conn(ctx).QueryRow(ctx, `SELECT `+fmCols+` FROM field_mapping WHERE id = $1`, id))
}

func (r *fieldMappingRepoPG) ListByConcept(ctx context.Context, conceptUUID string, limit, offset int) ([]*Record, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM field_mapping WHERE concept_uuid = $1`, conceptUUID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+fmCols+` FROM field_mapping WHERE concept_uuid = $1
		ORDER BY updated_at DESC LIMIT $2 OFFSET $3`, conceptUUID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	items, err := r.collect(rows)
	return items, total, err
}

func (r *fieldMappingRepoPG) List(ctx context.Context, limit, offset int) ([]*Record, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM field_mapping`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+fmCols+` FROM field_mapping ORDER BY updated_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	items, err := r.collect(rows)
	return items, total, err
}

func (r *fieldMappingRepoPG) collect(rows pgx.Rows) ([]*Record, error) {
	defer rows.Close()
	var items []*Record
	for rows.Next() {
		rec, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, rec)
	}
	return items, rows.Err()
}

func (r *fieldMappingRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM field_mapping WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
