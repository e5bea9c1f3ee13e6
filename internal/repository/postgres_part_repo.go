package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/avtodeleer/gooddrive/internal/model"
)

const partSelect = `SELECT p.id, p.title, p.label, p.original_number, p.manufacturer_number,
	p.brand_id, b.name, p.warehouse, p.quantity, p.stock, p.reserve, p.available,
	p.price_opt, p.cost_price, p.description, p.image_url, p.is_active, p.created_at, p.updated_at
	FROM parts p JOIN brands b ON b.id = p.brand_id`

// PostgresPartRepo はPostgreSQLを使用した部品リポジトリ。
type PostgresPartRepo struct {
	db *sql.DB
}

// NewPostgresPartRepo はPostgresPartRepoを生成する。
func NewPostgresPartRepo(db *sql.DB) *PostgresPartRepo {
	return &PostgresPartRepo{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPart(s rowScanner) (*model.Part, error) {
	p := &model.Part{}
	err := s.Scan(&p.ID, &p.Title, &p.Label, &p.OriginalNumber, &p.ManufacturerNumber,
		&p.BrandID, &p.BrandName, &p.Warehouse, &p.Quantity, &p.Stock, &p.Reserve, &p.Available,
		&p.PriceOpt, &p.CostPrice, &p.Description, &p.ImageURL, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// FindByID は指定IDの部品を取得する。見つからない場合はnilを返す。
func (r *PostgresPartRepo) FindByID(ctx context.Context, id int64) (*model.Part, error) {
	p, err := scanPart(r.db.QueryRowContext(ctx, partSelect+` WHERE p.id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find part by ID: %w", err)
	}
	return p, nil
}

// ListAvailable は在庫のある有効な部品をID順に取得する。
func (r *PostgresPartRepo) ListAvailable(ctx context.Context) ([]*model.Part, error) {
	return r.list(ctx, partSelect+` WHERE p.is_active AND p.available > 0 ORDER BY p.id`)
}

// ListRecent は在庫のある有効な部品を新しい順にlimit件取得する。
func (r *PostgresPartRepo) ListRecent(ctx context.Context, limit int) ([]*model.Part, error) {
	return r.list(ctx, partSelect+` WHERE p.is_active AND p.available > 0 ORDER BY p.created_at DESC, p.id DESC LIMIT $1`, limit)
}

func (r *PostgresPartRepo) list(ctx context.Context, query string, args ...any) ([]*model.Part, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list parts: %w", err)
	}
	defer rows.Close()

	parts := make([]*model.Part, 0)
	for rows.Next() {
		p, err := scanPart(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan part: %w", err)
		}
		parts = append(parts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate parts: %w", err)
	}
	return parts, nil
}

// lowStockThreshold はLowStock指定時の在庫上限。
const lowStockThreshold = 5

// partOrderColumns は並び替えに使える列。ここにない指定は既定の並び順になる。
var partOrderColumns = map[string]string{
	model.PartOrderCreatedAt: "p.created_at",
	model.PartOrderPrice:     "p.price_opt",
	model.PartOrderTitle:     "p.title",
}

// List は条件に合う有効な部品の1ページ分と、ページングを無視した総件数を返す。
func (r *PostgresPartRepo) List(ctx context.Context, f model.PartFilter) ([]*model.Part, int, error) {
	where, args := partConditions(f)

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM parts p WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count parts: %w", err)
	}

	query := partSelect + ` WHERE ` + where + ` ORDER BY ` + partOrderBy(f.Ordering)
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}

	parts, err := r.list(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return parts, total, nil
}

// partConditions はフィルタをプレースホルダ付きのWHERE句に変換する。
func partConditions(f model.PartFilter) (string, []any) {
	conds := []string{"p.is_active"}
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if s := strings.TrimSpace(f.Search); s != "" {
		n := arg("%" + escapeLike(s) + "%")
		conds = append(conds, "(p.title ILIKE "+n+" OR p.original_number ILIKE "+n+" OR p.manufacturer_number ILIKE "+n+")")
	}
	if f.BrandID > 0 {
		conds = append(conds, "p.brand_id = "+arg(f.BrandID))
	}
	if f.LowStock {
		conds = append(conds, "p.available > 0")
	}
	switch {
	case f.AvailableMax != nil:
		conds = append(conds, "p.available <= "+arg(*f.AvailableMax))
	case f.LowStock:
		conds = append(conds, "p.available <= "+arg(lowStockThreshold))
	}
	if f.PriceMin != nil {
		conds = append(conds, "p.price_opt >= "+arg(*f.PriceMin))
	}
	if f.PriceMax != nil {
		conds = append(conds, "p.price_opt <= "+arg(*f.PriceMax))
	}

	return strings.Join(conds, " AND "), args
}

// partOrderBy は並び順の指定をORDER BY句に変換する。同順位はIDで安定させる。
func partOrderBy(ordering string) string {
	field, desc := strings.CutPrefix(ordering, "-")
	col, ok := partOrderColumns[field]
	if !ok {
		field, desc = strings.CutPrefix(model.DefaultPartOrdering, "-")
		col = partOrderColumns[field]
	}
	if desc {
		return col + " DESC, p.id DESC"
	}
	return col + " ASC, p.id ASC"
}

// escapeLike はLIKEのワイルドカードを文字として扱うようにエスケープする。
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// Upsert は部品を作成または更新する。新規作成した場合はtrueを返す。
func (r *PostgresPartRepo) Upsert(ctx context.Context, p *model.Part) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// 品番があれば品番、なければ品名で既存行を特定する
	var lookup *sql.Row
	if p.OriginalNumber != "" {
		lookup = tx.QueryRowContext(ctx,
			`SELECT id FROM parts WHERE original_number = $1 AND brand_id = $2 ORDER BY id LIMIT 1 FOR UPDATE`,
			p.OriginalNumber, p.BrandID)
	} else {
		lookup = tx.QueryRowContext(ctx,
			`SELECT id FROM parts WHERE title = $1 AND brand_id = $2 ORDER BY id LIMIT 1 FOR UPDATE`,
			p.Title, p.BrandID)
	}

	var existingID int64
	err = lookup.Scan(&existingID)
	created := errors.Is(err, sql.ErrNoRows)
	if err != nil && !created {
		return false, fmt.Errorf("failed to look up part: %w", err)
	}

	if created {
		err = tx.QueryRowContext(ctx,
			`INSERT INTO parts (title, label, original_number, manufacturer_number, brand_id, warehouse,
			   quantity, stock, reserve, available, price_opt, cost_price, description, image_url, is_active)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, TRUE)
			 RETURNING id, created_at, updated_at`,
			p.Title, p.Label, p.OriginalNumber, p.ManufacturerNumber, p.BrandID, p.Warehouse,
			p.Quantity, p.Stock, p.Reserve, p.Available, p.PriceOpt, p.CostPrice, p.Description, p.ImageURL,
		).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
		if err != nil {
			return false, fmt.Errorf("failed to insert part: %w", err)
		}
	} else {
		// 説明文と画像は管理画面で編集されるため取り込みでは上書きしない
		err = tx.QueryRowContext(ctx,
			`UPDATE parts SET title = $2, label = $3, manufacturer_number = $4, warehouse = $5,
			   quantity = $6, stock = $7, reserve = $8, available = $9, price_opt = $10,
			   is_active = TRUE, updated_at = NOW()
			 WHERE id = $1
			 RETURNING created_at, updated_at`,
			existingID, p.Title, p.Label, p.ManufacturerNumber, p.Warehouse,
			p.Quantity, p.Stock, p.Reserve, p.Available, p.PriceOpt,
		).Scan(&p.CreatedAt, &p.UpdatedAt)
		if err != nil {
			return false, fmt.Errorf("failed to update part: %w", err)
		}
		p.ID = existingID
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return created, nil
}

// compile-time interface check
var _ PartRepository = (*PostgresPartRepo)(nil)
