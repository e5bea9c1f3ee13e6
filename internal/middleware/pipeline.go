package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"

	"github.com/avtodeleer/gooddrive/internal/model"
	"github.com/avtodeleer/gooddrive/internal/ratelimit"
)

// HandlerFunc はエラーを返すHTTPハンドラー。
// 返したエラーはパイプラインで分類され、レスポンスに変換される。
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

// Admission はパイプラインが利用するレート制限の操作。
type Admission interface {
	Consume(ctx context.Context, key string) ratelimit.Decision
	Peek(ctx context.Context, key string) (ratelimit.Status, bool)
}

// IdentityResolver はリクエストから識別結果を求める。失敗時はnilを返す。
type IdentityResolver interface {
	Resolve(r *http.Request) *model.SessionIdentity
}

// ErrorObserver は分類済みエラーの発生を受け取る。
type ErrorObserver interface {
	ObserveError(kind model.ErrorKind, code string)
}

// ScopeRule はパスの接頭辞とレート制限スコープの対応。
type ScopeRule struct {
	Prefix string
	Scope  string
}

// DefaultScopeRules は既定のスコープ判定規則。先頭から順に評価する。
var DefaultScopeRules = []ScopeRule{
	{Prefix: "/api/auth/", Scope: "auth"},
	{Prefix: "/sitemap.xml", Scope: "sitemap"},
	{Prefix: "/rss.xml", Scope: "sitemap"},
	{Prefix: "/api/", Scope: "api"},
}

// PipelineConfig はPipelineの設定。
type PipelineConfig struct {
	Limiter    Admission
	Resolver   IdentityResolver
	Classifier *Classifier
	Rules      []ScopeRule
	Production bool
	CORSOrigin string
	Observer   ErrorObserver
	Logger     *slog.Logger
}

// Pipeline は受付（レート制限）、識別、ハンドラー実行、レスポンス装飾の順で
// すべてのリクエストを処理する。
type Pipeline struct {
	limiter    Admission
	resolver   IdentityResolver
	classifier *Classifier
	rules      []ScopeRule
	production bool
	corsOrigin string
	observer   ErrorObserver
	logger     *slog.Logger
}

// NewPipeline はPipelineを生成する。
func NewPipeline(cfg PipelineConfig) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	classifier := cfg.Classifier
	if classifier == nil {
		classifier = NewClassifier(cfg.Production, logger)
	}
	rules := cfg.Rules
	if rules == nil {
		rules = DefaultScopeRules
	}
	return &Pipeline{
		limiter:    cfg.Limiter,
		resolver:   cfg.Resolver,
		classifier: classifier,
		rules:      rules,
		production: cfg.Production,
		corsOrigin: cfg.CORSOrigin,
		observer:   cfg.Observer,
		logger:     logger,
	}
}

// ScopeFor はパスに対応するレート制限スコープを返す。該当しない場合は空文字を返す。
func (p *Pipeline) ScopeFor(path string) string {
	for _, rule := range p.rules {
		if strings.HasPrefix(path, rule.Prefix) {
			return rule.Scope
		}
	}
	return ""
}

// ClientAddress はRemoteAddrからクライアントのアドレスを取り出す。
// プロキシ配下ではchiのRealIPミドルウェアで事前にRemoteAddrを書き換える。
func ClientAddress(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// errorSink はハンドラーが返したエラーを受け取る。
type errorSink struct {
	err error
}

// Middleware はパイプラインをchiのミドルウェアとして返す。
func (p *Pipeline) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := ""
		if scope := p.ScopeFor(r.URL.Path); scope != "" && p.limiter != nil {
			key = ratelimit.Key(scope, ClientAddress(r), r.URL.Path)
		}

		dw := &decoratingWriter{ResponseWriter: w}
		dw.decorate = func(h http.Header) { p.decorate(r, h, key) }
		defer dw.ensureDecorated()

		// 1. 受付: 拒否された場合は識別もハンドラーも実行しない
		if key != "" {
			if d := p.limiter.Consume(r.Context(), key); !d.Allowed {
				p.fail(dw, r, model.NewRateLimitedError(d.RetryAfterSeconds()), "")
				return
			}
		}

		// 2. 識別: 匿名でも処理を続ける
		ctx := r.Context()
		if p.resolver != nil {
			if identity := p.resolver.Resolve(r); identity != nil {
				ctx = ContextWithIdentity(ctx, identity)
				if info := requestLogFromContext(ctx); info != nil {
					info.accountID = identity.AccountID
				}
			}
		}

		// 3. ハンドラー実行
		sink := &errorSink{}
		ctx = context.WithValue(ctx, errorSinkContextKey, sink)
		r = r.WithContext(ctx)
		p.serve(dw, r, next, sink)
	})
}

// serve はハンドラーを実行し、返されたエラーやpanicをレスポンスに変換する。
func (p *Pipeline) serve(dw *decoratingWriter, r *http.Request, next http.Handler, sink *errorSink) {
	defer func() {
		rec := recover()
		if rec == nil {
			return
		}
		if rec == http.ErrAbortHandler {
			panic(rec)
		}
		stack := string(debug.Stack())
		p.logger.Error("panic recovered",
			slog.Any("panic", rec),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("stack", stack),
		)
		apiErr := model.NewInternalError(nil)
		if !p.production {
			apiErr.Details = fmt.Sprint(rec)
		} else {
			stack = ""
		}
		p.fail(dw, r, apiErr, stack)
	}()

	next.ServeHTTP(dw, r)

	if sink.err != nil {
		p.fail(dw, r, p.classifier.Classify(sink.err), "")
	}
}

// fail は分類済みエラーを書き込む。既にレスポンスを開始している場合はログのみ残す。
func (p *Pipeline) fail(dw *decoratingWriter, r *http.Request, apiErr *model.APIError, stack string) {
	if p.observer != nil {
		p.observer.ObserveError(apiErr.Kind, apiErr.Code)
	}
	if apiErr.Kind == model.KindInternal {
		cause := ""
		if c := apiErr.Unwrap(); c != nil {
			cause = c.Error()
		}
		p.logger.Error("request failed",
			slog.String("path", r.URL.Path),
			slog.String("code", apiErr.Code),
			slog.String("cause", cause),
		)
	}
	if dw.wroteHeader {
		p.logger.Warn("error after response started",
			slog.String("path", r.URL.Path),
			slog.String("code", apiErr.Code),
		)
		return
	}
	writeError(dw, r, apiErr, stack)
}

// decorate はレスポンスヘッダーに共通ヘッダーを付与する。
func (p *Pipeline) decorate(r *http.Request, h http.Header, key string) {
	if p.production {
		SetSecurityHeaders(h)
	}
	if p.corsOrigin != "" && isAPIPath(r.URL.Path) {
		SetCORSHeaders(h, p.corsOrigin)
	}
	if key != "" {
		if st, ok := p.limiter.Peek(r.Context(), key); ok {
			h.Set("X-RateLimit-Limit", strconv.Itoa(st.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(st.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(st.ResetAt.Unix(), 10))
		}
	}
}

// Handle はHandlerFuncをhttp.Handlerに変換する。
// 返されたエラーはパイプラインに渡す。パイプライン外で呼ばれた場合は直接書き込む。
func Handle(h HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := h(w, r); err != nil {
			reportError(w, r, err)
		}
	})
}

// reportError はエラーをパイプラインに渡す。パイプライン外では分類して直接書き込む。
func reportError(w http.ResponseWriter, r *http.Request, err error) {
	if sink, ok := r.Context().Value(errorSinkContextKey).(*errorSink); ok {
		sink.err = err
		return
	}
	WriteError(w, r, NewClassifier(true, nil).Classify(err))
}

// decoratingWriter は最初のWriteHeader/Writeの直前に共通ヘッダーを付与する。
type decoratingWriter struct {
	http.ResponseWriter
	decorate    func(http.Header)
	decorated   bool
	wroteHeader bool
}

func (w *decoratingWriter) ensureDecorated() {
	if w.decorated {
		return
	}
	w.decorated = true
	if w.decorate != nil {
		w.decorate(w.ResponseWriter.Header())
	}
}

// WriteHeader はヘッダーを装飾してから委譲する。
func (w *decoratingWriter) WriteHeader(code int) {
	w.ensureDecorated()
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(code)
}

// Write はWriteHeaderが未呼び出しの場合に200で開始してから書き込む。
func (w *decoratingWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

// Flush は下位のResponseWriterがFlusherであれば委譲する。
func (w *decoratingWriter) Flush() {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap はhttp.ResponseControllerのために下位のResponseWriterを返す。
func (w *decoratingWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
