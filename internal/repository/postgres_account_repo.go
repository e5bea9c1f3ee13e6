package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/avtodeleer/gooddrive/internal/model"
)

const accountColumns = `id, email, password_hash, first_name, last_name, is_admin, is_staff, is_active, created_at, updated_at`

// PostgresAccountRepo はPostgreSQLを使用したアカウントリポジトリ。
type PostgresAccountRepo struct {
	db *sql.DB
}

// NewPostgresAccountRepo はPostgresAccountRepoを生成する。
func NewPostgresAccountRepo(db *sql.DB) *PostgresAccountRepo {
	return &PostgresAccountRepo{db: db}
}

func scanAccount(row *sql.Row) (*model.Account, error) {
	a := &model.Account{}
	err := row.Scan(&a.ID, &a.Email, &a.PasswordHash, &a.FirstName, &a.LastName,
		&a.IsAdmin, &a.IsStaff, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindByID(ctx context.Context, id int64) (*model.Account, error) {
	a, err := scanAccount(r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account by ID: %w", err)
	}
	return a, nil
}

// FindByEmail はメールアドレスでアカウントを検索する。見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindByEmail(ctx context.Context, email string) (*model.Account, error) {
	a, err := scanAccount(r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account by email: %w", err)
	}
	return a, nil
}

// Create はアカウントを作成する。
func (r *PostgresAccountRepo) Create(ctx context.Context, a *model.Account) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO accounts (email, password_hash, first_name, last_name, is_admin, is_staff, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at, updated_at`,
		a.Email, a.PasswordHash, a.FirstName, a.LastName, a.IsAdmin, a.IsStaff, a.IsActive,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert account: %w", err)
	}
	return nil
}

// UpsertAdmin は管理者アカウントを作成または更新する。
func (r *PostgresAccountRepo) UpsertAdmin(ctx context.Context, email, passwordHash string) (*model.Account, error) {
	a, err := scanAccount(r.db.QueryRowContext(ctx,
		`INSERT INTO accounts (email, password_hash, is_admin, is_staff, is_active)
		 VALUES ($1, $2, TRUE, TRUE, TRUE)
		 ON CONFLICT (email) DO UPDATE
		 SET password_hash = EXCLUDED.password_hash,
		     is_admin = TRUE, is_staff = TRUE, is_active = TRUE, updated_at = NOW()
		 RETURNING `+accountColumns,
		email, passwordHash,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert admin account: %w", err)
	}
	return a, nil
}

// compile-time interface check
var _ AccountRepository = (*PostgresAccountRepo)(nil)
