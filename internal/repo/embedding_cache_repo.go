package repo

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pgvector/pgvector-go"

	"github.com/xxxsen/docmem/internal/model"
)

type EmbeddingCacheRepo struct {
	db *sql.DB
}

func NewEmbeddingCacheRepo(db *sql.DB) *EmbeddingCacheRepo {
	return &EmbeddingCacheRepo{db: db}
}

// GetBatch returns the cached vectors of the given content hashes, keyed by
// hash. Missing hashes are absent from the result.
func (r *EmbeddingCacheRepo) GetBatch(ctx context.Context, modelName, taskType string, contentHashes []string) (map[string][]float32, error) {
	if len(contentHashes) == 0 {
		return map[string][]float32{}, nil
	}
	query := `SELECT content_hash, embedding FROM embedding_cache WHERE model_name = ? AND task_type = ? AND content_hash IN (?)`
	query, args, err := sqlx.In(query, modelName, taskType, contentHashes)
	if err != nil {
		return nil, err
	}
	query = sqlx.Rebind(sqlx.DOLLAR, query)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result := make(map[string][]float32, len(contentHashes))
	for rows.Next() {
		var hash string
		var embedding pgvector.Vector
		if err := rows.Scan(&hash, &embedding); err != nil {
			return nil, err
		}
		result[hash] = embedding.Slice()
	}
	return result, rows.Err()
}

func (r *EmbeddingCacheRepo) SaveBatch(ctx context.Context, items []*model.EmbeddingCache) error {
	const query = `
		INSERT INTO embedding_cache (model_name, task_type, content_hash, embedding, ctime)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (model_name, task_type, content_hash) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			ctime = EXCLUDED.ctime
	`
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, item := range items {
		if _, err := tx.ExecContext(ctx, query,
			item.ModelName,
			item.TaskType,
			item.ContentHash,
			pgvector.NewVector(item.Embedding),
			item.Ctime,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *EmbeddingCacheRepo) DeleteBefore(ctx context.Context, cutoff int64) (int64, error) {
	const query = `DELETE FROM embedding_cache WHERE ctime < $1`
	res, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
