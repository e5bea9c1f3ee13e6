package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/avtodeleer/gooddrive/internal/model"
	"github.com/lib/pq"
)

func TestCatalogRepos_ImplementInterfaces(t *testing.T) {
	var _ BrandRepository = (*PostgresBrandRepo)(nil)
	var _ PartRepository = (*PostgresPartRepo)(nil)
}

func createBrand(t *testing.T, repo *PostgresBrandRepo, name string) *model.Brand {
	t.Helper()
	b := &model.Brand{Name: name}
	if err := repo.Create(context.Background(), b); err != nil {
		t.Fatalf("Create brand returned error: %v", err)
	}
	return b
}

func TestPostgresBrandRepo_Create_Duplicate_ReturnsUniqueViolation(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPostgresBrandRepo(db)

	createBrand(t, repo, "Bosch")
	err := repo.Create(context.Background(), &model.Brand{Name: "Bosch"})

	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		t.Fatalf("expected wrapped *pq.Error, got %v", err)
	}
	if pqErr.Code != "23505" {
		t.Errorf("code = %s, want 23505", pqErr.Code)
	}
}

func TestPostgresBrandRepo_DeleteByID_NotFound(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPostgresBrandRepo(db)

	if err := repo.DeleteByID(context.Background(), 424242); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestPostgresBrandRepo_ListOrdersByName(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPostgresBrandRepo(db)
	createBrand(t, repo, "Mann")
	createBrand(t, repo, "Denso")

	brands, err := repo.List(context.Background())
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(brands) != 2 || brands[0].Name != "Denso" || brands[1].Name != "Mann" {
		t.Errorf("brands = %+v", brands)
	}
}

func TestPostgresPartRepo_Upsert_MatchesByOriginalNumber(t *testing.T) {
	db := setupTestDB(t)
	brands := NewPostgresBrandRepo(db)
	parts := NewPostgresPartRepo(db)
	ctx := context.Background()
	brand := createBrand(t, brands, "Toyota")

	p := &model.Part{Title: "Oil filter", OriginalNumber: "90915-YZZE1", BrandID: brand.ID, Available: 3, PriceOpt: 450.5}
	created, err := parts.Upsert(ctx, p)
	if err != nil {
		t.Fatalf("Upsert returned error: %v", err)
	}
	if !created {
		t.Error("first upsert should create")
	}

	again := &model.Part{Title: "Oil filter (new)", OriginalNumber: "90915-YZZE1", BrandID: brand.ID, Available: 7}
	created, err = parts.Upsert(ctx, again)
	if err != nil {
		t.Fatalf("Upsert returned error: %v", err)
	}
	if created {
		t.Error("second upsert should update")
	}
	if again.ID != p.ID {
		t.Errorf("ID = %d, want %d", again.ID, p.ID)
	}

	got, err := parts.FindByID(ctx, p.ID)
	if err != nil {
		t.Fatalf("FindByID returned error: %v", err)
	}
	if got.Title != "Oil filter (new)" || got.Available != 7 || got.BrandName != "Toyota" {
		t.Errorf("part = %+v", got)
	}
}

func TestPostgresPartRepo_ListRecent_OnlyAvailable(t *testing.T) {
	db := setupTestDB(t)
	brands := NewPostgresBrandRepo(db)
	parts := NewPostgresPartRepo(db)
	ctx := context.Background()
	brand := createBrand(t, brands, "Lada")

	for _, p := range []*model.Part{
		{Title: "A", BrandID: brand.ID, Available: 1},
		{Title: "B", BrandID: brand.ID, Available: 0},
		{Title: "C", BrandID: brand.ID, Available: 2},
	} {
		if _, err := parts.Upsert(ctx, p); err != nil {
			t.Fatalf("Upsert returned error: %v", err)
		}
	}

	recent, err := parts.ListRecent(ctx, 10)
	if err != nil {
		t.Fatalf("ListRecent returned error: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("len = %d, want 2", len(recent))
	}
	if recent[0].Title != "C" {
		t.Errorf("first = %q, want C (newest first)", recent[0].Title)
	}

	// 部品から参照されているブランドは削除できない
	err = brands.DeleteByID(ctx, brand.ID)
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != "23503" {
		t.Errorf("err = %v, want foreign key violation", err)
	}
}
