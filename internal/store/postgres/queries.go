package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/loomworks/loom/internal/model"
	"github.com/loomworks/loom/internal/store"
)

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func queryGetRecord(ctx context.Context, db executor, key string) (*store.Record, error) {
	row := db.QueryRowContext(ctx,
		`SELECT key, value, updated_at FROM records WHERE key = $1`, key)

	var rec store.Record
	if err := row.Scan(&rec.Key, &rec.Value, &rec.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, model.StorageError("get record", err)
	}
	return &rec, nil
}

func queryPutRecord(ctx context.Context, db executor, rec *store.Record) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO records (key, value, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = EXCLUDED.updated_at`,
		rec.Key,
		[]byte(rec.Value),
		rec.UpdatedAt,
	)
	if err != nil {
		return model.StorageError("put record", err)
	}
	return nil
}

func queryDeleteRecord(ctx context.Context, db executor, key string) error {
	if _, err := db.ExecContext(ctx,
		`DELETE FROM records WHERE key = $1`, key); err != nil {
		return model.StorageError("delete record", err)
	}
	return nil
}

// escapeLike neutralizes LIKE metacharacters so a prefix containing
// '%' or '_' matches literally.
func escapeLike(s string) string {
	var out []byte
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\', '%', '_':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}

func queryListByPrefix(ctx context.Context, db executor, prefix string) ([]*store.Record, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT key, value, updated_at FROM records
		WHERE key LIKE $1 ORDER BY key`, escapeLike(prefix)+"%")
	if err != nil {
		return nil, model.StorageError("list records", err)
	}
	defer rows.Close()

	var recs []*store.Record
	for rows.Next() {
		var rec store.Record
		if err := rows.Scan(&rec.Key, &rec.Value, &rec.UpdatedAt); err != nil {
			return nil, model.StorageError("scan record", err)
		}
		recs = append(recs, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, model.StorageError("iterate records", err)
	}
	return recs, nil
}
