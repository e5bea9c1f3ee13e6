package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/avtodeleer/gooddrive/internal/middleware"
	"github.com/avtodeleer/gooddrive/internal/model"
	"github.com/avtodeleer/gooddrive/internal/ratelimit"
)

// --- モック定義 ---

type mockAuthService struct {
	calls   atomic.Int64
	loginFn func(ctx context.Context, email, password string) (*model.Account, string, error)
}

func (m *mockAuthService) Login(ctx context.Context, email, password string) (*model.Account, string, error) {
	m.calls.Add(1)
	if m.loginFn != nil {
		return m.loginFn(ctx, email, password)
	}
	return nil, "", nil
}

type mockBrandStore struct {
	listFn   func(ctx context.Context) ([]*model.Brand, error)
	createFn func(ctx context.Context, brand *model.Brand) error
	deleteFn func(ctx context.Context, id int64) error
}

func (m *mockBrandStore) List(ctx context.Context) ([]*model.Brand, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, nil
}

func (m *mockBrandStore) Create(ctx context.Context, brand *model.Brand) error {
	if m.createFn != nil {
		return m.createFn(ctx, brand)
	}
	return nil
}

func (m *mockBrandStore) DeleteByID(ctx context.Context, id int64) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

type mockPartFinder struct {
	findFn func(ctx context.Context, id int64) (*model.Part, error)
	listFn func(ctx context.Context, filter model.PartFilter) ([]*model.Part, int, error)
}

func (m *mockPartFinder) List(ctx context.Context, filter model.PartFilter) ([]*model.Part, int, error) {
	if m.listFn != nil {
		return m.listFn(ctx, filter)
	}
	return nil, 0, nil
}

func (m *mockPartFinder) FindByID(ctx context.Context, id int64) (*model.Part, error) {
	if m.findFn != nil {
		return m.findFn(ctx, id)
	}
	return nil, nil
}

type mockFeedGenerator struct {
	sitemapFn func(ctx context.Context) ([]byte, error)
	rssFn     func(ctx context.Context) ([]byte, error)
}

func (m *mockFeedGenerator) Sitemap(ctx context.Context) ([]byte, error) {
	if m.sitemapFn != nil {
		return m.sitemapFn(ctx)
	}
	return []byte("<urlset/>"), nil
}

func (m *mockFeedGenerator) RSS(ctx context.Context) ([]byte, error) {
	if m.rssFn != nil {
		return m.rssFn(ctx)
	}
	return []byte("<rss/>"), nil
}

type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) PingContext(ctx context.Context) error {
	return m.err
}

// identityResolver はテストごとに差し替えられる識別結果を返す。
type identityResolver struct {
	identity *model.SessionIdentity
}

func (r *identityResolver) Resolve(*http.Request) *model.SessionIdentity {
	return r.identity
}

// --- テスト用ルーター ---

const testOrigin = "http://localhost:5173"

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type testEnv struct {
	router   http.Handler
	auth     *mockAuthService
	brands   *mockBrandStore
	parts    *mockPartFinder
	feeds    *mockFeedGenerator
	health   *mockHealthChecker
	resolver *identityResolver
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	limiter := ratelimit.New(ratelimit.NewMemoryStore(1), ratelimit.WithLogger(discardLogger))
	for scope, p := range map[string]ratelimit.Policy{
		"api":     {Points: 100, Window: time.Minute},
		"auth":    {Points: 5, Window: 900 * time.Second},
		"sitemap": {Points: 10, Window: time.Minute},
	} {
		if err := limiter.Configure(scope, p.Points, p.Window); err != nil {
			t.Fatalf("Configure(%s) returned error: %v", scope, err)
		}
	}
	t.Cleanup(limiter.Stop)

	env := &testEnv{
		auth:     &mockAuthService{},
		brands:   &mockBrandStore{},
		parts:    &mockPartFinder{},
		feeds:    &mockFeedGenerator{},
		health:   &mockHealthChecker{},
		resolver: &identityResolver{},
	}

	pipeline := middleware.NewPipeline(middleware.PipelineConfig{
		Limiter:    limiter,
		Resolver:   env.resolver,
		Production: true,
		CORSOrigin: testOrigin,
		Logger:     discardLogger,
	})

	env.router = NewRouter(&RouterDeps{
		Pipeline:       pipeline,
		Logger:         discardLogger,
		AllowedOrigins: []string{testOrigin},
		AuthService:    env.auth,
		AuthConfig:     AuthHandlerConfig{CookieSecure: true, TokenTTL: time.Hour},
		Brands:         env.brands,
		Parts:          env.parts,
		Feeds:          env.feeds,
		HealthChecker:  env.health,
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("# metrics\n"))
		}),
	})
	return env
}

func (e *testEnv) do(method, path string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = bytes.NewBufferString(b)
		default:
			data, _ := json.Marshal(b)
			reader = bytes.NewReader(data)
		}
	}
	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "203.0.113.7:40000"
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func adminIdentity() *model.SessionIdentity {
	return &model.SessionIdentity{AccountID: 1, Email: "admin@gooddrive.example", IsAdmin: true, IsActive: true}
}

func customerIdentity() *model.SessionIdentity {
	return &model.SessionIdentity{AccountID: 2, Email: "buyer@example.com", FirstName: "Иван", IsActive: true}
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) middleware.ErrorResponseBody {
	t.Helper()
	var body middleware.ErrorResponseBody
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode error body: %v\nraw: %s", err, w.Body.String())
	}
	return body
}

type dataEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, dst any) {
	t.Helper()
	var env dataEnvelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("failed to decode body: %v\nraw: %s", err, w.Body.String())
	}
	if !env.Success {
		t.Fatalf("expected success=true, got %s", w.Body.String())
	}
	if dst != nil {
		if err := json.Unmarshal(env.Data, dst); err != nil {
			t.Fatalf("failed to decode data: %v\nraw: %s", err, env.Data)
		}
	}
}
