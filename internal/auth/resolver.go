package auth

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/avtodeleer/gooddrive/internal/model"
)

// DefaultLookupTimeout はアカウント再取得の既定タイムアウト。
const DefaultLookupTimeout = 2 * time.Second

// 識別結果の分類。メトリクスのラベルに使う。
const (
	OutcomeAnonymous     = "anonymous"
	OutcomeAuthenticated = "authenticated"
	OutcomeInvalidToken  = "invalid_token"
	OutcomeInactive      = "inactive"
	OutcomeLookupFailed  = "lookup_failed"
)

// AccountFinder はIDでアカウントを取得する。見つからない場合はnilを返す。
type AccountFinder interface {
	FindByID(ctx context.Context, id int64) (*model.Account, error)
}

// OutcomeObserver は識別結果を受け取る。
type OutcomeObserver interface {
	ObserveIdentity(outcome string)
}

// SessionResolver はリクエストのセッショントークンからアカウントを特定する。
// 失敗はすべて匿名として扱い、エラーを返さない。
type SessionResolver struct {
	tokens   *TokenManager
	accounts AccountFinder
	timeout  time.Duration
	logger   *slog.Logger
	observer OutcomeObserver
}

// ResolverOption はSessionResolverの設定を変更する。
type ResolverOption func(*SessionResolver)

// WithResolverLogger はロガーを設定する。
func WithResolverLogger(logger *slog.Logger) ResolverOption {
	return func(r *SessionResolver) { r.logger = logger }
}

// WithOutcomeObserver は識別結果の通知先を設定する。
func WithOutcomeObserver(o OutcomeObserver) ResolverOption {
	return func(r *SessionResolver) { r.observer = o }
}

// NewSessionResolver はSessionResolverを生成する。timeoutが0以下の場合は既定値を使う。
func NewSessionResolver(tokens *TokenManager, accounts AccountFinder, timeout time.Duration, opts ...ResolverOption) *SessionResolver {
	if timeout <= 0 {
		timeout = DefaultLookupTimeout
	}
	r := &SessionResolver{
		tokens:   tokens,
		accounts: accounts,
		timeout:  timeout,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve はリクエストのauth_token Cookieからアカウントを特定する。
// Cookieがない、トークンが不正、アカウントが存在しないか無効、
// 取得がエラーまたはタイムアウトした場合はnilを返す。
func (r *SessionResolver) Resolve(req *http.Request) *model.SessionIdentity {
	cookie, err := req.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		r.observe(OutcomeAnonymous)
		return nil
	}
	return r.ResolveToken(req.Context(), cookie.Value)
}

// ResolveToken はトークン文字列からアカウントを特定する。
func (r *SessionResolver) ResolveToken(ctx context.Context, token string) *model.SessionIdentity {
	claims, err := r.tokens.Verify(token)
	if err != nil {
		r.logger.Debug("session token rejected", slog.String("error", err.Error()))
		r.observe(OutcomeInvalidToken)
		return nil
	}

	account, err := r.lookup(ctx, claims.UserID)
	if err != nil {
		r.logger.Warn("session account lookup failed",
			slog.Int64("account_id", claims.UserID),
			slog.String("error", err.Error()),
		)
		r.observe(OutcomeLookupFailed)
		return nil
	}

	identity := model.NewSessionIdentity(account)
	if identity == nil {
		r.observe(OutcomeInactive)
		return nil
	}
	r.observe(OutcomeAuthenticated)
	return identity
}

type lookupResult struct {
	account *model.Account
	err     error
}

// lookup はtimeout以内にアカウントを取得する。
// ctxを無視する実装でもtimeoutで打ち切る。
func (r *SessionResolver) lookup(ctx context.Context, id int64) (*model.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	done := make(chan lookupResult, 1)
	go func() {
		a, err := r.accounts.FindByID(ctx, id)
		done <- lookupResult{account: a, err: err}
	}()

	select {
	case res := <-done:
		return res.account, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *SessionResolver) observe(outcome string) {
	if r.observer != nil {
		r.observer.ObserveIdentity(outcome)
	}
}
