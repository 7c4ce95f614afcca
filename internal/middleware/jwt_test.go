package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutorhub-api/internal/models"
	"github.com/noah-isme/tutorhub-api/internal/service"
)

const testSecret = "test-secret"

func signedToken(t *testing.T, role models.UserRole) string {
	t.Helper()
	now := time.Now()
	claims := &models.JWTClaims{
		UserID: "u-1",
		Role:   role,
		RegisteredClaims: jwtlib.RegisteredClaims{
			ExpiresAt: jwtlib.NewNumericDate(now.Add(time.Hour)),
			IssuedAt:  jwtlib.NewNumericDate(now),
		},
	}
	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func protectedRouter(mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handlers := append(mw, func(c *gin.Context) {
		claims := c.MustGet(ContextUserKey).(*models.JWTClaims)
		c.String(http.StatusOK, string(claims.Role))
	})
	r.GET("/p", handlers...)
	return r
}

func TestJWTRejectsQueryToken(t *testing.T) {
	auth := service.NewAuthService(nil, nil, nil, service.AuthConfig{AccessTokenSecret: testSecret})
	r := protectedRouter(JWT(auth))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/p?access_token="+signedToken(t, models.RoleTutor), nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStreamJWTAcceptsQueryToken(t *testing.T) {
	auth := service.NewAuthService(nil, nil, nil, service.AuthConfig{AccessTokenSecret: testSecret})
	r := protectedRouter(StreamJWT(auth))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/p?access_token="+signedToken(t, models.RoleTutee), nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "TUTEE", rec.Body.String())
}

func TestRequireRolesForbidsOtherRoles(t *testing.T) {
	auth := service.NewAuthService(nil, nil, nil, service.AuthConfig{AccessTokenSecret: testSecret})
	r := protectedRouter(JWT(auth), RequireRoles(models.RoleAdmin))

	req := httptest.NewRequest(http.MethodGet, "/p", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, models.RoleTutor))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
