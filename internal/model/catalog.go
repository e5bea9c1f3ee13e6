package model

import "time"

// Brand は部品メーカー（ブランド）を表す。
type Brand struct {
	ID        int64
	Name      string
	Country   string
	Site      string
	CreatedAt time.Time
}

// Part はカタログ上の部品を表す。
type Part struct {
	ID                 int64
	Title              string
	Label              string
	OriginalNumber     string
	ManufacturerNumber string
	BrandID            int64
	BrandName          string // 一覧取得時のJOIN結果
	Warehouse          string
	Quantity           int
	Stock              int
	Reserve            int
	Available          int
	PriceOpt           float64
	CostPrice          float64
	Description        string
	ImageURL           string
	IsActive           bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// 部品一覧の並び順。先頭の"-"は降順を表す。
const (
	PartOrderCreatedAt = "created_at"
	PartOrderPrice     = "price_opt"
	PartOrderTitle     = "title"

	DefaultPartOrdering = "-" + PartOrderCreatedAt
)

// PartFilter は公開カタログの部品一覧の絞り込み条件。
// ゼロ値の項目は条件に含めない。
type PartFilter struct {
	Search       string // 品名・純正品番・メーカー品番の部分一致（大文字小文字を区別しない）
	BrandID      int64
	LowStock     bool // 在庫1〜5
	AvailableMax *int
	PriceMin     *float64
	PriceMax     *float64
	Ordering     string
	Limit        int
	Offset       int
}
