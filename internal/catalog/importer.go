// Package catalog は仕入れ先CSVからカタログ(ブランドと部品)を取り込む。
package catalog

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"

	"golang.org/x/time/rate"

	"github.com/avtodeleer/gooddrive/internal/model"
)

// DefaultRowsPerSecond は書き込みのスロットリング既定値。
const DefaultRowsPerSecond = 50

const (
	defaultBrandName = "Неизвестный"
	defaultWarehouse = "Основной склад"
	minColumns       = 12
)

// CSVの列位置。
const (
	colCode = iota
	colTitle
	colLabel
	colOriginalNumber
	colManufacturerNumber
	colBrand
	colWarehouse
	colQuantity
	colStock
	colReserve
	colAvailable
	colPrice
)

// 取り込み結果の区分。メトリクスのラベルにも使う。
const (
	ResultCreated = "created"
	ResultUpdated = "updated"
	ResultSkipped = "skipped"
	ResultFailed  = "failed"
)

// BrandStore はブランドの検索と作成を行う。
type BrandStore interface {
	FindByName(ctx context.Context, name string) (*model.Brand, error)
	Create(ctx context.Context, brand *model.Brand) error
}

// PartStore は部品の作成または更新を行う。
type PartStore interface {
	Upsert(ctx context.Context, part *model.Part) (bool, error)
}

// Observer は取り込み結果の件数を受け取る。
type Observer interface {
	RecordImportRows(result string, count int)
}

// Stats は1回の取り込みの集計。
type Stats struct {
	Created       int
	Updated       int
	Skipped       int
	Failed        int
	BrandsCreated int
}

// Total は処理したデータ行の総数を返す。
func (s Stats) Total() int {
	return s.Created + s.Updated + s.Skipped + s.Failed
}

// Option はImporterの設定を変更する。
type Option func(*Importer)

// WithLogger はロガーを設定する。
func WithLogger(logger *slog.Logger) Option {
	return func(im *Importer) { im.logger = logger }
}

// WithObserver は取り込み件数の通知先を設定する。
func WithObserver(o Observer) Option {
	return func(im *Importer) { im.observer = o }
}

// Importer は";"区切りCSVを1行ずつ読み込み、ブランドを取得または作成して部品をupsertする。
// 行単位のエラーは集計して続行する。
type Importer struct {
	brands   BrandStore
	parts    PartStore
	limiter  *rate.Limiter
	logger   *slog.Logger
	observer Observer
}

// NewImporter はImporterを生成する。rowsPerSecondが0以下なら既定値を使う。
func NewImporter(brands BrandStore, parts PartStore, rowsPerSecond int, opts ...Option) *Importer {
	if rowsPerSecond <= 0 {
		rowsPerSecond = DefaultRowsPerSecond
	}
	im := &Importer{
		brands:  brands,
		parts:   parts,
		limiter: rate.NewLimiter(rate.Limit(rowsPerSecond), rowsPerSecond),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(im)
	}
	return im
}

// ImportFile はpathのCSVファイルを取り込む。
func (im *Importer) ImportFile(ctx context.Context, path string) (Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return Stats{}, fmt.Errorf("open import file: %w", err)
	}
	defer f.Close()

	return im.Import(ctx, f)
}

// Import はCSVを取り込む。先頭行はヘッダとして読み飛ばす。
// ctxがキャンセルされた場合はそれまでの集計とエラーを返す。
func (im *Importer) Import(ctx context.Context, r io.Reader) (Stats, error) {
	reader := csv.NewReader(r)
	reader.Comma = ';'
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true

	var stats Stats
	if _, err := reader.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return stats, nil
		}
		return stats, fmt.Errorf("read header: %w", err)
	}

	brandCache := make(map[string]int64)
	line := 1
	for {
		record, err := reader.Read()
		line++
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// 壊れた行だけを失敗として数える。下位の読み込みエラーは繰り返し返るため中断する。
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				stats.Failed++
				im.logger.Warn("import row unreadable", slog.Int("line", line), slog.String("error", err.Error()))
				continue
			}
			im.report(stats)
			return stats, fmt.Errorf("read line %d: %w", line, err)
		}

		part, ok := parseRow(record)
		if !ok {
			stats.Skipped++
			continue
		}

		if err := im.limiter.Wait(ctx); err != nil {
			im.report(stats)
			return stats, fmt.Errorf("import interrupted at line %d: %w", line, err)
		}

		brandName := strings.TrimSpace(record[colBrand])
		if brandName == "" {
			brandName = defaultBrandName
		}
		brandID, created, err := im.brandID(ctx, brandCache, brandName)
		if err != nil {
			stats.Failed++
			im.logger.Warn("import brand failed",
				slog.Int("line", line),
				slog.String("brand", brandName),
				slog.String("error", err.Error()),
			)
			continue
		}
		if created {
			stats.BrandsCreated++
		}
		part.BrandID = brandID

		isNew, err := im.parts.Upsert(ctx, part)
		if err != nil {
			stats.Failed++
			im.logger.Warn("import part failed",
				slog.Int("line", line),
				slog.String("title", part.Title),
				slog.String("error", err.Error()),
			)
			continue
		}
		if isNew {
			stats.Created++
		} else {
			stats.Updated++
		}
	}

	im.report(stats)
	im.logger.Info("catalog import completed",
		slog.Int("created", stats.Created),
		slog.Int("updated", stats.Updated),
		slog.Int("skipped", stats.Skipped),
		slog.Int("failed", stats.Failed),
		slog.Int("brands_created", stats.BrandsCreated),
	)
	return stats, nil
}

// brandID はキャッシュ、DBの順に名前でブランドを探し、無ければ作成する。
func (im *Importer) brandID(ctx context.Context, cache map[string]int64, name string) (int64, bool, error) {
	if id, ok := cache[name]; ok {
		return id, false, nil
	}

	brand, err := im.brands.FindByName(ctx, name)
	if err != nil {
		return 0, false, err
	}
	created := false
	if brand == nil {
		brand = &model.Brand{Name: name}
		if err := im.brands.Create(ctx, brand); err != nil {
			return 0, false, err
		}
		created = true
	}

	cache[name] = brand.ID
	return brand.ID, created, nil
}

func (im *Importer) report(stats Stats) {
	if im.observer == nil {
		return
	}
	im.observer.RecordImportRows(ResultCreated, stats.Created)
	im.observer.RecordImportRows(ResultUpdated, stats.Updated)
	im.observer.RecordImportRows(ResultSkipped, stats.Skipped)
	im.observer.RecordImportRows(ResultFailed, stats.Failed)
}

// parseRow は1行を部品に変換する。列不足やタイトルが空・"False"の行はfalseを返す。
func parseRow(record []string) (*model.Part, bool) {
	if len(record) < minColumns {
		return nil, false
	}
	title := strings.TrimSpace(record[colTitle])
	if title == "" || strings.EqualFold(title, "False") {
		return nil, false
	}

	warehouse := strings.TrimSpace(record[colWarehouse])
	if warehouse == "" {
		warehouse = defaultWarehouse
	}

	return &model.Part{
		Title:              title,
		Label:              strings.TrimSpace(record[colLabel]),
		OriginalNumber:     strings.TrimSpace(record[colOriginalNumber]),
		ManufacturerNumber: strings.TrimSpace(record[colManufacturerNumber]),
		Warehouse:          warehouse,
		Quantity:           parseInt(record[colQuantity]),
		Stock:              parseInt(record[colStock]),
		Reserve:            parseInt(record[colReserve]),
		Available:          max(0, parseInt(record[colAvailable])),
		PriceOpt:           parsePrice(record[colPrice]),
		IsActive:           true,
	}, true
}

// parseInt は整数に変換する。変換できない値は0とする。"3,0"のような小数表記は切り捨てる。
func parseInt(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	if err != nil || !isFinite(f) {
		return 0
	}
	return int(f)
}

// parsePrice はカンマ小数点と桁区切りの空白を許容して金額に変換する。変換できない値は0とする。
func parsePrice(s string) float64 {
	s = strings.NewReplacer(" ", "", "\u00a0", "", ",", ".").Replace(strings.TrimSpace(s))
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || !isFinite(f) || f < 0 {
		return 0
	}
	return f
}

// isFinite はNaNと無限大を除外する。"NaN"や"1e400"もParseFloatは受け付ける。
func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
