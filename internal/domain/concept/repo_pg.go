package concept

import (
	"context"
	"errors"
	"fmt"

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

// maxLoadDepth bounds recursion through set members and answers so a
// misconfigured catalog cycle cannot loop forever.
const maxLoadDepth = 16

type conceptRepoPG struct{ pool *pgxpool.Pool }

func NewConceptRepoPG(pool *pgxpool.Pool) Repository {
	return &conceptRepoPG{pool: pool}
}

func (r *conceptRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const conceptCols = `uuid, display, datatype, units, low_absolute, hi_absolute, allow_decimal, created_at, updated_at`

func (r *conceptRepoPG) scanRow(row pgx.Row) (*Concept, error) {
	var c Concept
	err := row.Scan(&c.UUID, &c.Display, &c.Datatype, &c.Units,
		&c.LowAbsolute, &c.HiAbsolute, &c.AllowDecimal, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &c, err
}

func (r *conceptRepoPG) GetByUUID(ctx context.Context, uuid string) (*Concept, error) {
	return r.load(ctx, uuid, 0)
}

func (r *conceptRepoPG) load(ctx context.Context, uuid string, depth int) (*Concept, error) {
	c, err := r.scanRow(r.conn(ctx).QueryRow(ctx, `SELECT `+conceptCols+` FROM concept WHERE uuid = $1`, uuid))
	if err != nil {
		return nil, err
	}
	if depth >= maxLoadDepth {
		return c, nil
	}

	memberIDs, err := r.childIDs(ctx, `SELECT member_uuid FROM concept_set_member WHERE concept_uuid = $1 ORDER BY sort_weight, member_uuid`, uuid)
	if err != nil {
		return nil, fmt.Errorf("load set members of %s: %w", uuid, err)
	}
	for _, id := range memberIDs {
		m, err := r.load(ctx, id, depth+1)
		if err != nil {
			return nil, fmt.Errorf("load set member %s: %w", id, err)
		}
		c.SetMembers = append(c.SetMembers, m)
	}

	answerIDs, err := r.childIDs(ctx, `SELECT answer_uuid FROM concept_answer WHERE concept_uuid = $1 ORDER BY sort_weight, answer_uuid`, uuid)
	if err != nil {
		return nil, fmt.Errorf("load answers of %s: %w", uuid, err)
	}
	for _, id := range answerIDs {
		// Answers are only needed for their identity and display.
		a, err := r.scanRow(r.conn(ctx).QueryRow(ctx, `SELECT `+conceptCols+` FROM concept WHERE uuid = $1`, id))
		if err != nil {
			return nil, fmt.Errorf("load answer %s: %w", id, err)
		}
		c.Answers = append(c.Answers, a)
	}
	return c, nil
}

func (r *conceptRepoPG) childIDs(ctx context.Context, sql, uuid string) ([]string, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, uuid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *conceptRepoPG) Search(ctx context.Context, query string, limit int) ([]*Concept, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+conceptCols+` FROM concept
		WHERE display ILIKE '%' || $1 || '%' OR uuid = $1
		ORDER BY display LIMIT $2`, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Concept
	for rows.Next() {
		c, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}
