package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/avtodeleer/gooddrive/internal/middleware"
	"github.com/avtodeleer/gooddrive/internal/model"
)

// BrandStore はブランドハンドラーが必要とする永続化インターフェース。
type BrandStore interface {
	List(ctx context.Context) ([]*model.Brand, error)
	Create(ctx context.Context, brand *model.Brand) error
	DeleteByID(ctx context.Context, id int64) error
}

// PartFinder は部品ハンドラーが必要とする検索インターフェース。
type PartFinder interface {
	FindByID(ctx context.Context, id int64) (*model.Part, error)
	List(ctx context.Context, filter model.PartFilter) ([]*model.Part, int, error)
}

// CatalogHandler はブランドと部品のHTTPハンドラー。
type CatalogHandler struct {
	brands   BrandStore
	parts    PartFinder
	validate *validator.Validate
}

// NewCatalogHandler はCatalogHandlerを生成する。
func NewCatalogHandler(brands BrandStore, parts PartFinder) *CatalogHandler {
	return &CatalogHandler{
		brands:   brands,
		parts:    parts,
		validate: newValidator(),
	}
}

type brandResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Country   string    `json:"country"`
	Site      string    `json:"site"`
	CreatedAt time.Time `json:"createdAt"`
}

type createBrandRequest struct {
	Name    string `json:"name" validate:"required,max=255"`
	Country string `json:"country" validate:"max=100"`
	Site    string `json:"site" validate:"omitempty,url,max=255"`
}

type partResponse struct {
	ID                 int64     `json:"id"`
	Title              string    `json:"title"`
	Label              string    `json:"label"`
	OriginalNumber     string    `json:"originalNumber"`
	ManufacturerNumber string    `json:"manufacturerNumber"`
	BrandID            int64     `json:"brandId"`
	BrandName          string    `json:"brandName"`
	Warehouse          string    `json:"warehouse"`
	Available          int       `json:"available"`
	PriceOpt           float64   `json:"priceOpt"`
	Description        string    `json:"description"`
	ImageURL           string    `json:"imageUrl"`
	IsActive           bool      `json:"isActive"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// partPageResponse は部品一覧のページ。他のエンドポイントと異なりsuccessで包まない。
type partPageResponse struct {
	Count    int            `json:"count"`
	Next     *string        `json:"next"`
	Previous *string        `json:"previous"`
	Results  []partResponse `json:"results"`
}

// ListBrands はブランド一覧を返す。
// GET /api/brands
func (h *CatalogHandler) ListBrands(w http.ResponseWriter, r *http.Request) error {
	brands, err := h.brands.List(r.Context())
	if err != nil {
		return err
	}

	resp := make([]brandResponse, 0, len(brands))
	for _, b := range brands {
		resp = append(resp, toBrandResponse(b))
	}
	writeData(w, http.StatusOK, resp)
	return nil
}

// CreateBrand はブランドを作成する。管理者のみ。
// POST /api/admin/brands
func (h *CatalogHandler) CreateBrand(w http.ResponseWriter, r *http.Request) error {
	if _, err := middleware.RequireAdmin(r.Context()); err != nil {
		return err
	}

	var req createBrandRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := h.validate.Struct(req); err != nil {
		return err
	}

	brand := &model.Brand{Name: req.Name, Country: req.Country, Site: req.Site}
	if err := h.brands.Create(r.Context(), brand); err != nil {
		return err
	}

	writeData(w, http.StatusCreated, toBrandResponse(brand))
	return nil
}

// DeleteBrand はブランドを削除する。管理者のみ。
// DELETE /api/admin/brands/{id}
func (h *CatalogHandler) DeleteBrand(w http.ResponseWriter, r *http.Request) error {
	if _, err := middleware.RequireAdmin(r.Context()); err != nil {
		return err
	}

	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		return err
	}
	if err := h.brands.DeleteByID(r.Context(), id); err != nil {
		return err
	}

	writeData(w, http.StatusOK, nil)
	return nil
}

// ListParts は公開カタログの部品一覧を絞り込み・ページ付きで返す。
// GET /api/parts?page=&page_size=&search=&brand=&low_stock=&available_max=&price_min=&price_max=&ordering=
func (h *CatalogHandler) ListParts(w http.ResponseWriter, r *http.Request) error {
	q, err := parsePartQuery(r.URL.Query())
	if err != nil {
		return err
	}

	parts, total, err := h.parts.List(r.Context(), q.filter())
	if err != nil {
		return err
	}

	results := make([]partResponse, 0, len(parts))
	for _, p := range parts {
		results = append(results, toPartResponse(p))
	}

	resp := partPageResponse{Count: total, Results: results}
	if q.page*q.pageSize < total {
		resp.Next = pageLink(r.URL, q.page+1)
	}
	if q.page > 1 {
		resp.Previous = pageLink(r.URL, q.page-1)
	}
	writeJSON(w, http.StatusOK, resp)
	return nil
}

// GetPart は部品の詳細を返す。
// GET /api/parts/{id}
func (h *CatalogHandler) GetPart(w http.ResponseWriter, r *http.Request) error {
	raw := chi.URLParam(r, "id")
	id, err := parseID(raw)
	if err != nil {
		return err
	}

	part, err := h.parts.FindByID(r.Context(), id)
	if err != nil {
		return err
	}
	if part == nil {
		return model.NewNotFoundError("Part", raw)
	}

	writeData(w, http.StatusOK, toPartResponse(part))
	return nil
}

func toBrandResponse(b *model.Brand) brandResponse {
	return brandResponse{
		ID:        b.ID,
		Name:      b.Name,
		Country:   b.Country,
		Site:      b.Site,
		CreatedAt: b.CreatedAt,
	}
}

func toPartResponse(p *model.Part) partResponse {
	return partResponse{
		ID:                 p.ID,
		Title:              p.Title,
		Label:              p.Label,
		OriginalNumber:     p.OriginalNumber,
		ManufacturerNumber: p.ManufacturerNumber,
		BrandID:            p.BrandID,
		BrandName:          p.BrandName,
		Warehouse:          p.Warehouse,
		Available:          p.Available,
		PriceOpt:           p.PriceOpt,
		Description:        p.Description,
		ImageURL:           p.ImageURL,
		IsActive:           p.IsActive,
		UpdatedAt:          p.UpdatedAt,
	}
}
