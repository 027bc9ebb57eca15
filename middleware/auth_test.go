package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return signed
}

func protectedRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/protected", AuthMiddleware(testSecret), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": GetUserIDFromContext(c)})
	})
	return router
}

func TestExtractToken(t *testing.T) {
	testCases := []struct {
		name       string
		authHeader string
		expected   string
	}{
		{"valid bearer token", "Bearer token-123", "token-123"},
		{"missing bearer prefix", "token-123", ""},
		{"empty header", "", ""},
		{"wrong scheme", "Basic dXNlcg==", ""},
	}

	for _, tc := range testCases {
		if got := extractToken(tc.authHeader); got != tc.expected {
			t.Errorf("%s: got %q, want %q", tc.name, got, tc.expected)
		}
	}
}

func TestAuthMiddleware(t *testing.T) {
	router := protectedRouter()

	validToken := signToken(t, testSecret, jwt.MapClaims{
		"user_id": "user-1",
		"type":    "access",
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	expiredToken := signToken(t, testSecret, jwt.MapClaims{
		"user_id": "user-1",
		"type":    "access",
		"exp":     time.Now().Add(-time.Hour).Unix(),
	})
	refreshToken := signToken(t, testSecret, jwt.MapClaims{
		"user_id": "user-1",
		"type":    "refresh",
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	wrongKeyToken := signToken(t, "other-secret", jwt.MapClaims{
		"user_id": "user-1",
		"type":    "access",
		"exp":     time.Now().Add(time.Hour).Unix(),
	})

	testCases := []struct {
		name           string
		authHeader     string
		expectedStatus int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"invalid format", "NotBearer abc", http.StatusUnauthorized},
		{"valid token", "Bearer " + validToken, http.StatusOK},
		{"expired token", "Bearer " + expiredToken, http.StatusUnauthorized},
		{"refresh token rejected", "Bearer " + refreshToken, http.StatusUnauthorized},
		{"wrong signing key", "Bearer " + wrongKeyToken, http.StatusUnauthorized},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tc.authHeader != "" {
				req.Header.Set("Authorization", tc.authHeader)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tc.expectedStatus {
				t.Errorf("Status: got %d, want %d", w.Code, tc.expectedStatus)
			}
		})
	}
}
