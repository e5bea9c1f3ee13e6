package seo

import (
	"context"
	"time"

	"github.com/avtodeleer/gooddrive/internal/model"
	"github.com/avtodeleer/gooddrive/internal/security"
)

type mockBrandLister struct {
	listFn func(ctx context.Context) ([]*model.Brand, error)
}

func (m *mockBrandLister) List(ctx context.Context) ([]*model.Brand, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, nil
}

type mockPartLister struct {
	listAvailableFn func(ctx context.Context) ([]*model.Part, error)
	listRecentFn    func(ctx context.Context, limit int) ([]*model.Part, error)
}

func (m *mockPartLister) ListAvailable(ctx context.Context) ([]*model.Part, error) {
	if m.listAvailableFn != nil {
		return m.listAvailableFn(ctx)
	}
	return nil, nil
}

func (m *mockPartLister) ListRecent(ctx context.Context, limit int) ([]*model.Part, error) {
	if m.listRecentFn != nil {
		return m.listRecentFn(ctx, limit)
	}
	return nil, nil
}

var fixedNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func newTestGenerator(brands *mockBrandLister, parts *mockPartLister) *Generator {
	return NewGenerator("https://gooddrive.example/", brands, parts, security.NewContentSanitizer(),
		WithClock(func() time.Time { return fixedNow }))
}
