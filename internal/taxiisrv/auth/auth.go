// Package auth resolves the account behind a request from an optional HS256 bearer token.
// Tokens are issued elsewhere; this server only verifies them.
package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mitchellh/mapstructure"
	"github.com/rs/zerolog/log"

	"github.com/eclecticiq/OpenTAXII-sub000/internal/common/apperrors"
	"github.com/eclecticiq/OpenTAXII-sub000/internal/common/httpx"
	"github.com/eclecticiq/OpenTAXII-sub000/internal/taxiisrv/db/models"
)

var (
	ErrAuth         apperrors.Error = apperrors.New("auth error").SetStatusCode(http.StatusInternalServerError)
	ErrInvalidToken apperrors.Error = ErrAuth.New("invalid token").SetStatusCode(http.StatusUnauthorized)
	ErrDisabled     apperrors.Error = ErrAuth.New("authentication is not configured").SetStatusCode(http.StatusUnauthorized)
)

type accountKey struct{}

// WithAccount returns a context carrying account.
func WithAccount(ctx context.Context, account *models.Account) context.Context {
	return context.WithValue(ctx, accountKey{}, account)
}

// AccountFromContext returns the request's account, or nil for anonymous requests.
func AccountFromContext(ctx context.Context) *models.Account {
	account, _ := ctx.Value(accountKey{}).(*models.Account)
	return account
}

// Verifier validates bearer tokens signed with a shared secret.
type Verifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewVerifier returns a verifier for tokens signed with secret. When issuer is set, tokens
// must carry it in iss. An empty secret disables authentication: every request is anonymous
// and any presented token is rejected.
func NewVerifier(secret, issuer string) *Verifier {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	return &Verifier{
		secret: []byte(secret),
		parser: jwt.NewParser(opts...),
	}
}

// Account verifies tokenString and decodes its claims into an account.
func (v *Verifier) Account(ctx context.Context, tokenString string) (*models.Account, apperrors.Error) {
	if len(v.secret) == 0 {
		return nil, ErrDisabled
	}
	claims := jwt.MapClaims{}
	_, err := v.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		log.Ctx(ctx).Debug().Err(err).Msg("token rejected")
		return nil, ErrInvalidToken.MsgErr("token rejected", err)
	}

	var account models.Account
	if err := mapstructure.Decode(map[string]any(claims), &account); err != nil {
		log.Ctx(ctx).Debug().Err(err).Msg("unable to decode token claims")
		return nil, ErrInvalidToken.MsgErr("invalid claims", err)
	}
	if account.ID == "" {
		return nil, ErrInvalidToken.Msg("missing account_id claim")
	}
	return &account, nil
}

// Middleware attaches the account of a valid bearer token to the request context. Requests
// without an Authorization header continue anonymously; invalid tokens are answered with 401.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			next.ServeHTTP(w, r)
			return
		}
		if !strings.HasPrefix(authHeader, "Bearer ") {
			log.Ctx(ctx).Warn().Msg("unsupported authorization scheme")
			httpx.ErrUnAuthorized("unsupported authorization scheme").Send(w)
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))

		account, err := v.Account(ctx, token)
		if err != nil {
			log.Ctx(ctx).Warn().Err(err).Msg("token validation failed")
			httpx.ErrUnAuthorized(err.Error()).Send(w)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithAccount(ctx, account)))
	})
}
