package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/zzstoatzz/plyr.fm-sub000/internal/config"
)

// UserIDKey is the gin context key carrying the authenticated subject.
const UserIDKey = "user_id"

// devUserHeader supplies an identity when auth is disabled, for local runs.
const devUserHeader = "X-User-ID"

// Validator validates JWTs using JWKS.
type Validator struct {
	cfg  *config.Config
	log  zerolog.Logger
	jwks *keyfunc.JWKS
}

// NewValidator initializes JWKS fetching when auth is enabled.
func NewValidator(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Validator, error) {
	if !cfg.AuthEnabled {
		return &Validator{cfg: cfg, log: log}, nil
	}

	options := keyfunc.Options{
		Ctx:               ctx,
		RefreshInterval:   time.Hour,
		RefreshUnknownKID: true,
		RefreshErrorHandler: func(err error) {
			log.Error().Err(err).Msg("jwks refresh error")
		},
	}

	jwks, err := keyfunc.Get(cfg.AuthJWKSURL, options)
	if err != nil {
		return nil, err
	}

	return &Validator{
		cfg:  cfg,
		log:  log,
		jwks: jwks,
	}, nil
}

// Ready reports whether the validator can verify tokens. Disabled auth
// is always ready.
func (v *Validator) Ready() bool {
	if v == nil || !v.cfg.AuthEnabled {
		return true
	}
	return v.jwks != nil
}

// Middleware enforces JWT auth when enabled and attaches the subject to
// the request context.
func (v *Validator) Middleware() gin.HandlerFunc {
	if v == nil || !v.cfg.AuthEnabled {
		return func(c *gin.Context) {
			if dev := strings.TrimSpace(c.GetHeader(devUserHeader)); dev != "" {
				c.Set(UserIDKey, dev)
			}
			c.Next()
		}
	}

	return func(c *gin.Context) {
		sub, ok := v.subject(c.GetHeader("Authorization"))
		if !ok {
			abortUnauthorized(c, "missing or invalid bearer token")
			return
		}
		c.Set(UserIDKey, sub)
		c.Next()
	}
}

// Identify attaches the subject when a valid token is present but never
// rejects the request. Read paths use it so ungated media stays reachable
// anonymously while gated media can still see who is asking.
func (v *Validator) Identify() gin.HandlerFunc {
	if v == nil || !v.cfg.AuthEnabled {
		return func(c *gin.Context) {
			if dev := strings.TrimSpace(c.GetHeader(devUserHeader)); dev != "" {
				c.Set(UserIDKey, dev)
			}
			c.Next()
		}
	}

	return func(c *gin.Context) {
		if sub, ok := v.subject(c.GetHeader("Authorization")); ok {
			c.Set(UserIDKey, sub)
		}
		c.Next()
	}
}

func (v *Validator) subject(header string) (string, bool) {
	tokenString := bearerToken(header)
	if tokenString == "" {
		return "", false
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256", "RS384", "RS512"}),
	}
	if v.cfg.AuthIssuer != "" {
		opts = append(opts, jwt.WithIssuer(v.cfg.AuthIssuer))
	}

	token, err := jwt.Parse(tokenString, v.jwks.Keyfunc, opts...)
	if err != nil || !token.Valid {
		return "", false
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", false
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", false
	}
	return sub, true
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error": message,
	})
}
