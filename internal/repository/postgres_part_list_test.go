package repository

import (
	"context"
	"reflect"
	"testing"

	"github.com/avtodeleer/gooddrive/internal/model"
)

func intPtr(n int) *int { return &n }
func floatPtr(f float64) *float64 { return &f }

func TestPartConditions(t *testing.T) {
	tests := []struct {
		name      string
		filter    model.PartFilter
		wantWhere string
		wantArgs  []any
	}{
		{
			name:      "empty filter keeps active only",
			filter:    model.PartFilter{},
			wantWhere: "p.is_active",
		},
		{
			name:      "search covers title and both numbers",
			filter:    model.PartFilter{Search: " 50%_off "},
			wantWhere: "p.is_active AND (p.title ILIKE $1 OR p.original_number ILIKE $1 OR p.manufacturer_number ILIKE $1)",
			wantArgs:  []any{`%50\%\_off%`},
		},
		{
			name:      "low stock uses threshold",
			filter:    model.PartFilter{BrandID: 4, LowStock: true},
			wantWhere: "p.is_active AND p.brand_id = $1 AND p.available > 0 AND p.available <= $2",
			wantArgs:  []any{int64(4), lowStockThreshold},
		},
		{
			name:      "available max overrides threshold",
			filter:    model.PartFilter{LowStock: true, AvailableMax: intPtr(2)},
			wantWhere: "p.is_active AND p.available > 0 AND p.available <= $1",
			wantArgs:  []any{2},
		},
		{
			name:      "price range",
			filter:    model.PartFilter{PriceMin: floatPtr(10), PriceMax: floatPtr(99.5)},
			wantWhere: "p.is_active AND p.price_opt >= $1 AND p.price_opt <= $2",
			wantArgs:  []any{10.0, 99.5},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			where, args := partConditions(tt.filter)
			if where != tt.wantWhere {
				t.Errorf("where = %q\nwant    %q", where, tt.wantWhere)
			}
			if !reflect.DeepEqual(args, tt.wantArgs) {
				t.Errorf("args = %#v, want %#v", args, tt.wantArgs)
			}
		})
	}
}

func TestPartOrderBy(t *testing.T) {
	tests := map[string]string{
		"":                        "p.created_at DESC, p.id DESC",
		"-created_at":             "p.created_at DESC, p.id DESC",
		"created_at":              "p.created_at ASC, p.id ASC",
		"price_opt":               "p.price_opt ASC, p.id ASC",
		"-title":                  "p.title DESC, p.id DESC",
		"cost_price":              "p.created_at DESC, p.id DESC",
		"title; DROP TABLE parts": "p.created_at DESC, p.id DESC",
	}
	for in, want := range tests {
		if got := partOrderBy(in); got != want {
			t.Errorf("partOrderBy(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPostgresPartRepo_List_FiltersAndPages(t *testing.T) {
	db := setupTestDB(t)
	brands := NewPostgresBrandRepo(db)
	parts := NewPostgresPartRepo(db)
	ctx := context.Background()
	toyota := createBrand(t, brands, "Toyota")
	bosch := createBrand(t, brands, "Bosch")

	for _, p := range []*model.Part{
		{Title: "Oil filter", OriginalNumber: "90915-YZZE1", BrandID: toyota.ID, Available: 3, PriceOpt: 450},
		{Title: "Air filter", ManufacturerNumber: "F026400", BrandID: bosch.ID, Available: 12, PriceOpt: 900},
		{Title: "Brake pads", OriginalNumber: "04465-33471", BrandID: toyota.ID, Available: 0, PriceOpt: 3200},
		{Title: "Spark plug", ManufacturerNumber: "FR7DC", BrandID: bosch.ID, Available: 5, PriceOpt: 250},
	} {
		if _, err := parts.Upsert(ctx, p); err != nil {
			t.Fatalf("Upsert returned error: %v", err)
		}
	}

	titles := func(ps []*model.Part) []string {
		out := make([]string, 0, len(ps))
		for _, p := range ps {
			out = append(out, p.Title)
		}
		return out
	}

	t.Run("search is case-insensitive over numbers", func(t *testing.T) {
		got, total, err := parts.List(ctx, model.PartFilter{Search: "f026", Ordering: "title"})
		if err != nil {
			t.Fatalf("List returned error: %v", err)
		}
		if total != 1 || !reflect.DeepEqual(titles(got), []string{"Air filter"}) {
			t.Errorf("total = %d, titles = %v", total, titles(got))
		}
	})

	t.Run("brand and price range", func(t *testing.T) {
		got, total, err := parts.List(ctx, model.PartFilter{BrandID: toyota.ID, PriceMin: floatPtr(400), PriceMax: floatPtr(1000)})
		if err != nil {
			t.Fatalf("List returned error: %v", err)
		}
		if total != 1 || !reflect.DeepEqual(titles(got), []string{"Oil filter"}) {
			t.Errorf("total = %d, titles = %v", total, titles(got))
		}
	})

	t.Run("low stock excludes empty and plentiful", func(t *testing.T) {
		got, total, err := parts.List(ctx, model.PartFilter{LowStock: true, Ordering: "price_opt"})
		if err != nil {
			t.Fatalf("List returned error: %v", err)
		}
		if total != 2 || !reflect.DeepEqual(titles(got), []string{"Spark plug", "Oil filter"}) {
			t.Errorf("total = %d, titles = %v", total, titles(got))
		}
	})

	t.Run("paging keeps total", func(t *testing.T) {
		got, total, err := parts.List(ctx, model.PartFilter{Ordering: "title", Limit: 2, Offset: 2})
		if err != nil {
			t.Fatalf("List returned error: %v", err)
		}
		if total != 4 || !reflect.DeepEqual(titles(got), []string{"Oil filter", "Spark plug"}) {
			t.Errorf("total = %d, titles = %v", total, titles(got))
		}
	})
}
