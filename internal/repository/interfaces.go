// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/avtodeleer/gooddrive/internal/model"
)

// AccountRepository はアカウントデータの永続化インターフェース。
type AccountRepository interface {
	// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.Account, error)

	// FindByEmail はメールアドレスでアカウントを検索する。見つからない場合はnilを返す。
	// emailは小文字に正規化済みであること。
	FindByEmail(ctx context.Context, email string) (*model.Account, error)

	// Create はアカウントを作成し、採番されたIDとタイムスタンプを設定する。
	Create(ctx context.Context, account *model.Account) error

	// UpsertAdmin は管理者アカウントを作成する。既存の場合はパスワードと権限を更新する。
	UpsertAdmin(ctx context.Context, email, passwordHash string) (*model.Account, error)
}

// BrandRepository はブランドデータの永続化インターフェース。
type BrandRepository interface {
	// List は全ブランドを名前順に取得する。
	List(ctx context.Context) ([]*model.Brand, error)

	// FindByName は名前でブランドを検索する。見つからない場合はnilを返す。
	FindByName(ctx context.Context, name string) (*model.Brand, error)

	// Create はブランドを作成する。名前が重複する場合は一意制約違反を返す。
	Create(ctx context.Context, brand *model.Brand) error

	// DeleteByID は指定IDのブランドを削除する。存在しない場合はErrNotFoundを返す。
	// 部品から参照されている場合は外部キー制約違反を返す。
	DeleteByID(ctx context.Context, id int64) error
}

// PartRepository は部品データの永続化インターフェース。
type PartRepository interface {
	// FindByID は指定IDの部品をブランド名付きで取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.Part, error)

	// ListAvailable は在庫のある有効な部品をID順に取得する。
	ListAvailable(ctx context.Context) ([]*model.Part, error)

	// List は条件に合う有効な部品の1ページ分と総件数を返す。
	List(ctx context.Context, filter model.PartFilter) ([]*model.Part, int, error)

	// ListRecent は在庫のある有効な部品を新しい順にlimit件取得する。
	ListRecent(ctx context.Context, limit int) ([]*model.Part, error)

	// Upsert は部品を作成または更新する。
	// original_numberが空でなければ(original_number, brand)、空なら(title, brand)で既存行を特定する。
	// 新規作成した場合はtrueを返す。
	Upsert(ctx context.Context, part *model.Part) (bool, error)
}
