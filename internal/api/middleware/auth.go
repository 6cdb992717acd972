package middleware

import (
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/d60-Lab/bookstore/internal/model"
	"github.com/d60-Lab/bookstore/pkg/response"
)

const (
	ctxUserID = "user_id"
	ctxRole   = "role"
)

// Claims 由认证服务签发，这里只做校验
type Claims struct {
	UserID int64  `json:"uid"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Auth 校验 HS256 Bearer token，把用户 id 与角色写入上下文
func Auth(secret, issuer string) gin.HandlerFunc {
	key := []byte(secret)
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	parser := jwt.NewParser(opts...)

	return func(c *gin.Context) {
		raw, ok := bearer(c.GetHeader("Authorization"))
		if !ok {
			response.Unauthorized(c, "missing bearer token")
			return
		}
		var claims Claims
		if _, err := parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) { return key, nil }); err != nil {
			msg := "invalid token"
			if errors.Is(err, jwt.ErrTokenExpired) {
				msg = "token expired"
			}
			response.Unauthorized(c, msg)
			return
		}
		if claims.UserID <= 0 {
			response.Unauthorized(c, "invalid token subject")
			return
		}
		role := claims.Role
		if role == "" {
			role = model.RoleUser
		}
		c.Set(ctxUserID, claims.UserID)
		c.Set(ctxRole, role)
		c.Next()
	}
}

// RequireAdmin 必须挂在 Auth 之后
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if Role(c) != model.RoleAdmin {
			response.Forbidden(c, "admin role required")
			return
		}
		c.Next()
	}
}

func UserID(c *gin.Context) int64 { return c.GetInt64(ctxUserID) }

func Role(c *gin.Context) string { return c.GetString(ctxRole) }

func bearer(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(header[len(prefix):]), true
}

// NewToken 签发测试及本地联调用的 token
func NewToken(secret, issuer string, userID int64, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
