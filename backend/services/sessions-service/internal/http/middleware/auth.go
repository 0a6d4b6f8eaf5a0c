package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"evroaming/backend/services/sessions-service/internal/password"
)

type contextKey string

const principalKey contextKey = "principal"

// AuthConfig selects the accepted credentials. Bearer tokens are HS256 JWTs
// signed with Secret; basic credentials are checked against Accounts, which
// maps logins to bcrypt hashes.
type AuthConfig struct {
	Secret   string
	Accounts map[string]string
	Hasher   password.Hasher
	Logger   *zap.Logger
}

// Auth rejects requests without a valid bearer token or service account.
func Auth(cfg AuthConfig) func(http.Handler) http.Handler {
	if cfg.Hasher == nil {
		cfg.Hasher = password.NewBcryptHasher(0)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := authenticate(cfg, r)
			if err != nil {
				cfg.Logger.Debug("request rejected", zap.String("path", r.URL.Path), zap.Error(err))
				w.Header().Set("WWW-Authenticate", `Bearer, Basic realm="sessions-service"`)
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), principalKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func authenticate(cfg AuthConfig, r *http.Request) (string, error) {
	if login, pass, ok := r.BasicAuth(); ok {
		hash, known := cfg.Accounts[login]
		if !known || cfg.Hasher.Compare(hash, pass) != nil {
			return "", errors.New("invalid credentials")
		}
		return login, nil
	}

	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errors.New("missing authorization header")
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization header")
	}
	if cfg.Secret == "" {
		return "", errors.New("bearer tokens are disabled")
	}

	token, err := jwt.ParseWithClaims(strings.TrimSpace(parts[1]), &jwt.RegisteredClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(cfg.Secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return "", errors.New("invalid token")
	}
	subject, err := token.Claims.GetSubject()
	if err != nil || subject == "" {
		return "", errors.New("token has no subject")
	}
	return subject, nil
}

// IssueToken signs a bearer token for subject valid for ttl.
func IssueToken(secret, subject string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("middleware: empty jwt secret")
	}
	issued := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(issued),
		ExpiresAt: jwt.NewNumericDate(issued.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// PrincipalFromContext returns the authenticated login or token subject.
func PrincipalFromContext(ctx context.Context) (string, bool) {
	principal, ok := ctx.Value(principalKey).(string)
	return principal, ok && principal != ""
}
