package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/avtodeleer/gooddrive/internal/model"
)

// PostgresBrandRepo はPostgreSQLを使用したブランドリポジトリ。
type PostgresBrandRepo struct {
	db *sql.DB
}

// NewPostgresBrandRepo はPostgresBrandRepoを生成する。
func NewPostgresBrandRepo(db *sql.DB) *PostgresBrandRepo {
	return &PostgresBrandRepo{db: db}
}

// List は全ブランドを名前順に取得する。
func (r *PostgresBrandRepo) List(ctx context.Context) ([]*model.Brand, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, country, site, created_at FROM brands ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list brands: %w", err)
	}
	defer rows.Close()

	brands := make([]*model.Brand, 0)
	for rows.Next() {
		b := &model.Brand{}
		if err := rows.Scan(&b.ID, &b.Name, &b.Country, &b.Site, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan brand: %w", err)
		}
		brands = append(brands, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate brands: %w", err)
	}
	return brands, nil
}

// FindByName は名前でブランドを検索する。見つからない場合はnilを返す。
func (r *PostgresBrandRepo) FindByName(ctx context.Context, name string) (*model.Brand, error) {
	b := &model.Brand{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, country, site, created_at FROM brands WHERE name = $1`, name,
	).Scan(&b.ID, &b.Name, &b.Country, &b.Site, &b.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find brand by name: %w", err)
	}
	return b, nil
}

// Create はブランドを作成する。
func (r *PostgresBrandRepo) Create(ctx context.Context, b *model.Brand) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO brands (name, country, site) VALUES ($1, $2, $3) RETURNING id, created_at`,
		b.Name, b.Country, b.Site,
	).Scan(&b.ID, &b.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert brand: %w", err)
	}
	return nil
}

// DeleteByID は指定IDのブランドを削除する。
func (r *PostgresBrandRepo) DeleteByID(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM brands WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete brand: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// compile-time interface check
var _ BrandRepository = (*PostgresBrandRepo)(nil)
