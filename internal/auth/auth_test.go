package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

func signToken(t *testing.T, secret, issuer, audience, userID string, expiresIn time.Duration) string {
	t.Helper()
	claims := jwt.MapClaims{
		"userId": userID,
		"exp":    time.Now().Add(expiresIn).Unix(),
	}
	if issuer != "" {
		claims["iss"] = issuer
	}
	if audience != "" {
		claims["aud"] = audience
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestVerifyValidToken(t *testing.T) {
	v := NewJWTVerifier("secret", "clicktochat", "clicktochat-users")
	token := signToken(t, "secret", "clicktochat", "clicktochat-users", "alice", time.Hour)

	userID, err := v.Verify(token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if userID != "alice" {
		t.Fatalf("expected alice, got %s", userID)
	}
}

func TestVerifyRejections(t *testing.T) {
	v := NewJWTVerifier("secret", "clicktochat", "clicktochat-users")

	tests := []struct {
		name  string
		token string
	}{
		{"wrong secret", signToken(t, "other", "clicktochat", "clicktochat-users", "alice", time.Hour)},
		{"expired", signToken(t, "secret", "clicktochat", "clicktochat-users", "alice", -time.Hour)},
		{"wrong issuer", signToken(t, "secret", "someone-else", "clicktochat-users", "alice", time.Hour)},
		{"wrong audience", signToken(t, "secret", "clicktochat", "other-aud", "alice", time.Hour)},
		{"missing user claim", signToken(t, "secret", "clicktochat", "clicktochat-users", "", time.Hour)},
		{"garbage", "not-a-token"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := v.Verify(tc.token); !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestRequireAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	v := NewJWTVerifier("secret", "", "")

	router := gin.New()
	router.GET("/protected", RequireAuth(v), func(c *gin.Context) {
		userID, ok := UserID(c)
		if !ok {
			c.JSON(http.StatusInternalServerError, gin.H{"message": "no user bound"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"userId": userID})
	})

	t.Run("accepts valid token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+signToken(t, "secret", "", "", "alice", time.Hour))
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("rejects missing header", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("rejects bad token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer bogus")
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	})
}
