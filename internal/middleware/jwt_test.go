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

func signToken(t *testing.T, secret string, method jwt.SigningMethod, expires time.Time) string {
	t.Helper()

	claims := JWTClaims{
		UserID: "alice",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}
	return token
}

func newRouter(handler gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/", handler, func(c *gin.Context) {
		userID, _ := c.Get(UserIDKey)
		c.String(http.StatusOK, "%v", userID)
	})
	return r
}

func TestJWTAuth(t *testing.T) {
	valid := signToken(t, testSecret, jwt.SigningMethodHS256, time.Now().Add(time.Hour))
	expired := signToken(t, testSecret, jwt.SigningMethodHS256, time.Now().Add(-time.Hour))
	otherSecret := signToken(t, "other", jwt.SigningMethodHS256, time.Now().Add(time.Hour))

	tests := []struct {
		name       string
		header     string
		query      string
		wantStatus int
		wantBody   string
	}{
		{"bearer header", "Bearer " + valid, "", http.StatusOK, "alice"},
		{"query token", "", "?token=" + valid, http.StatusOK, "alice"},
		{"missing", "", "", http.StatusUnauthorized, ""},
		{"bad format", "Token " + valid, "", http.StatusUnauthorized, ""},
		{"expired", "Bearer " + expired, "", http.StatusUnauthorized, ""},
		{"wrong secret", "Bearer " + otherSecret, "", http.StatusUnauthorized, ""},
		{"garbage", "Bearer not.a.token", "", http.StatusUnauthorized, ""},
	}

	r := newRouter(JWTAuth(testSecret))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantBody != "" && w.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", w.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestOptionalJWTAuth(t *testing.T) {
	valid := signToken(t, testSecret, jwt.SigningMethodHS256, time.Now().Add(time.Hour))

	tests := []struct {
		name     string
		query    string
		wantBody string
	}{
		{"no token", "", "<nil>"},
		{"valid token", "?token=" + valid, "alice"},
		{"invalid token", "?token=junk", "<nil>"},
	}

	r := newRouter(OptionalJWTAuth(testSecret))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/"+tt.query, nil))

			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", w.Code)
			}
			if w.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", w.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestParseTokenRejectsNoneAlgorithm(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, JWTClaims{UserID: "mallory"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}
	if _, err := ParseToken(token, testSecret); err == nil {
		t.Error("ParseToken() accepted an unsigned token")
	}
}
