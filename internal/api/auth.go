package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"storefront/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"
)

const actorKey = "actor"

// Claims is the token payload. Subject holds the numeric user id.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator verifies HS256 tokens from a cookie or a bearer header.
type Authenticator struct {
	secret     []byte
	cookieName string
}

func NewAuthenticator(secret, cookieName string) *Authenticator {
	return &Authenticator{secret: []byte(secret), cookieName: cookieName}
}

// Issue signs a token for userID with the given role.
func (a *Authenticator) Issue(userID int64, role models.Role, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Parse verifies token and returns the actor it names.
func (a *Authenticator) Parse(token string) (models.Actor, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return models.Actor{}, errors.Wrap(err, "parse token")
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return models.Actor{}, errors.Errorf("invalid subject %q", claims.Subject)
	}

	switch models.Role(claims.Role) {
	case models.RoleAdmin:
		return models.Actor{UserID: userID, Role: models.RoleAdmin}, nil
	case models.RoleUser, "":
		return models.Actor{UserID: userID, Role: models.RoleUser}, nil
	default:
		return models.Actor{}, errors.Errorf("unknown role %q", claims.Role)
	}
}

// Middleware rejects unauthenticated requests and stores the actor in the
// gin context.
func (a *Authenticator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := a.tokenFrom(c)
		if token == "" {
			abortJSON(c, http.StatusUnauthorized, "Not authorized, no token", nil)
			return
		}

		actor, err := a.Parse(token)
		if err != nil {
			abortJSON(c, http.StatusUnauthorized, "Not authorized, token failed", nil)
			return
		}

		c.Set(actorKey, actor)
		c.Next()
	}
}

func (a *Authenticator) tokenFrom(c *gin.Context) string {
	if cookie, err := c.Cookie(a.cookieName); err == nil && cookie != "" {
		return cookie
	}
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}

func actorFrom(c *gin.Context) models.Actor {
	return c.MustGet(actorKey).(models.Actor)
}
