// Package postgres implements the document gateway on a single JSONB table.
package postgres

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/canteen/internal/storage/docstore"
)

const (
	createDocumentSQL = `INSERT INTO documents (collection, id, data)
		VALUES ($1, $2, $3::jsonb)
		RETURNING data`

	getDocumentSQL = `SELECT data FROM documents WHERE collection = $1 AND id = $2`

	listDocumentsSQL = `SELECT id, data FROM documents
		WHERE collection = $1 AND data @> $2::jsonb
		ORDER BY seq`

	updateDocumentSQL = `UPDATE documents SET data = data || $3::jsonb, updated_at = now()
		WHERE collection = $1 AND id = $2
		RETURNING data`

	deleteDocumentSQL = `DELETE FROM documents WHERE collection = $1 AND id = $2`

	sumFieldSQL = `SELECT COALESCE(SUM((data->>$2)::numeric), 0), COUNT(*)
		FROM documents
		WHERE collection = $1 AND data @> $3::jsonb`
)

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

var (
	_ docstore.Gateway    = (*Store)(nil)
	_ docstore.Transactor = (*Store)(nil)
	_ docstore.Aggregator = (*Store)(nil)
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store is a docstore.Gateway backed by PostgreSQL.
type Store struct {
	gateway
	pool *pgxpool.Pool
}

// NewStore returns a Store that uses the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{gateway: gateway{q: pool}, pool: pool}
}

// InTx runs fn inside a transaction. The transaction commits when fn
// returns nil and rolls back otherwise.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, g docstore.Gateway) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(ctx, &gateway{q: tx})
	})
}

type gateway struct {
	q querier
}

func (g *gateway) Create(ctx context.Context, c docstore.Collection, id string, fields docstore.Fields) (*docstore.Document, error) {
	body, err := json.Marshal(fields)
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s/%s", c, id)
	}

	var data []byte
	if err := g.q.QueryRow(ctx, createDocumentSQL, string(c), id, string(body)).Scan(&data); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, errors.Wrapf(docstore.ErrConflict, "%s/%s", c, id)
		}
		return nil, errors.Wrapf(err, "create %s/%s", c, id)
	}
	return decodeDocument(c, id, data)
}

func (g *gateway) Get(ctx context.Context, c docstore.Collection, id string) (*docstore.Document, error) {
	var data []byte
	if err := g.q.QueryRow(ctx, getDocumentSQL, string(c), id).Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.Wrapf(docstore.ErrNotFound, "%s/%s", c, id)
		}
		return nil, errors.Wrapf(err, "get %s/%s", c, id)
	}
	return decodeDocument(c, id, data)
}

func (g *gateway) List(ctx context.Context, c docstore.Collection, filters ...docstore.Filter) ([]docstore.Document, error) {
	match, err := containment(filters)
	if err != nil {
		return nil, errors.Wrapf(err, "list %s", c)
	}

	rows, err := g.q.Query(ctx, listDocumentsSQL, string(c), match)
	if err != nil {
		return nil, errors.Wrapf(err, "list %s", c)
	}

	docs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (docstore.Document, error) {
		var (
			id   string
			data []byte
		)
		if err := row.Scan(&id, &data); err != nil {
			return docstore.Document{}, err
		}
		doc, err := decodeDocument(c, id, data)
		if err != nil {
			return docstore.Document{}, err
		}
		return *doc, nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "list %s", c)
	}
	return docs, nil
}

func (g *gateway) Update(ctx context.Context, c docstore.Collection, id string, fields docstore.Fields) (*docstore.Document, error) {
	body, err := json.Marshal(fields)
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s/%s", c, id)
	}

	var data []byte
	if err := g.q.QueryRow(ctx, updateDocumentSQL, string(c), id, string(body)).Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.Wrapf(docstore.ErrNotFound, "%s/%s", c, id)
		}
		return nil, errors.Wrapf(err, "update %s/%s", c, id)
	}
	return decodeDocument(c, id, data)
}

func (g *gateway) Delete(ctx context.Context, c docstore.Collection, id string) error {
	tag, err := g.q.Exec(ctx, deleteDocumentSQL, string(c), id)
	if err != nil {
		return errors.Wrapf(err, "delete %s/%s", c, id)
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(docstore.ErrNotFound, "%s/%s", c, id)
	}
	return nil
}

// Sum adds up a numeric field over the matching documents in the database.
func (g *gateway) Sum(ctx context.Context, c docstore.Collection, field string, filters ...docstore.Filter) (decimal.Decimal, int, error) {
	match, err := containment(filters)
	if err != nil {
		return decimal.Zero, 0, errors.Wrapf(err, "sum %s.%s", c, field)
	}

	var (
		sum   decimal.Decimal
		count int64
	)
	if err := g.q.QueryRow(ctx, sumFieldSQL, string(c), field, match).Scan(&sum, &count); err != nil {
		return decimal.Zero, 0, errors.Wrapf(err, "sum %s.%s", c, field)
	}
	return sum, int(count), nil
}

// containment encodes equality filters as a JSONB containment document.
// No filters encode to {}, which every document contains.
func containment(filters []docstore.Filter) (string, error) {
	match := make(map[string]any, len(filters))
	for _, f := range filters {
		match[f.Field] = f.Value
	}
	body, err := json.Marshal(match)
	if err != nil {
		return "", errors.Wrap(err, "encode filter")
	}
	return string(body), nil
}

func decodeDocument(c docstore.Collection, id string, data []byte) (*docstore.Document, error) {
	fields := docstore.Fields{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, errors.Wrapf(err, "decode %s/%s", c, id)
	}
	return &docstore.Document{Collection: c, ID: id, Fields: fields}, nil
}
