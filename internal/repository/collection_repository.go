package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/reelsched/api/internal/model"
)

// CollectionRepository reads the media collections users schedule from.
type CollectionRepository interface {
	GetForUser(ctx context.Context, id, userID string) (*model.Collection, error)
	Create(ctx context.Context, c *model.Collection) error
}

type SQLCollectionRepo struct {
	db *sql.DB
}

func NewSQLCollectionRepo(db *sql.DB) *SQLCollectionRepo {
	return &SQLCollectionRepo{db: db}
}

func (r *SQLCollectionRepo) GetForUser(ctx context.Context, id, userID string) (*model.Collection, error) {
	c := &model.Collection{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, created_at FROM collections
		WHERE id = $1 AND user_id = $2`, id, userID,
	).Scan(&c.ID, &c.UserID, &c.Name, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get collection: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, kind, urls FROM collection_items
		WHERE collection_id = $1
		ORDER BY position ASC, id ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("list collection items: %w", err)
	}
	defer rows.Close()

	c.Items = make([]model.MediaItem, 0)
	for rows.Next() {
		var (
			item model.MediaItem
			kind string
			urls []byte
		)
		if err := rows.Scan(&item.ID, &kind, &urls); err != nil {
			return nil, fmt.Errorf("scan collection item: %w", err)
		}
		item.Kind = model.MediaKind(kind)
		if err := json.Unmarshal(urls, &item.URLs); err != nil {
			return nil, fmt.Errorf("decode urls of item %s: %w", item.ID, err)
		}
		c.Items = append(c.Items, item)
	}
	return c, rows.Err()
}

// Create stores a collection with its items in order.
func (r *SQLCollectionRepo) Create(ctx context.Context, c *model.Collection) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO collections (id, user_id, name, created_at) VALUES ($1, $2, $3, $4)`,
		c.ID, c.UserID, c.Name, c.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert collection: %w", err)
	}

	for i, item := range c.Items {
		urls, err := json.Marshal(item.URLs)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO collection_items (id, collection_id, kind, urls, position) VALUES ($1, $2, $3, $4, $5)`,
			item.ID, c.ID, string(item.Kind), string(urls), i,
		); err != nil {
			return fmt.Errorf("insert collection item: %w", err)
		}
	}

	return tx.Commit()
}
