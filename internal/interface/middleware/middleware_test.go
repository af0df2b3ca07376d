package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"

	"github.com/oksasatya/go-credential-service/pkg/helpers"
	"github.com/oksasatya/go-credential-service/pkg/token"
)

func init() { gin.SetMode(gin.TestMode) }

type stubAuthenticator struct {
	claims map[string]*token.Claims
}

func (s stubAuthenticator) Authenticate(_ context.Context, raw string) (*token.Claims, error) {
	if c, ok := s.claims[raw]; ok {
		return c, nil
	}
	return nil, errors.New("invalid token")
}

func newAuthEngine(roles ...string) *gin.Engine {
	auth := stubAuthenticator{claims: map[string]*token.Claims{
		"user-token":  {Type: token.Access, Role: "USER", RegisteredClaims: jwt.RegisteredClaims{Subject: "u-1"}},
		"admin-token": {Type: token.Access, Role: "ADMIN", RegisteredClaims: jwt.RegisteredClaims{Subject: "a-1"}},
	}}
	r := gin.New()
	chain := []gin.HandlerFunc{Auth(auth)}
	if len(roles) > 0 {
		chain = append(chain, RequireRole(roles...))
	}
	chain = append(chain, func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(CtxCredentialIDKey))
	})
	r.GET("/", chain...)
	return r
}

func TestAuth(t *testing.T) {
	tests := []struct {
		name   string
		header string
		cookie string
		code   int
		body   string
	}{
		{"bearer header", "Bearer user-token", "", http.StatusOK, "u-1"},
		{"lowercase scheme", "bearer user-token", "", http.StatusOK, "u-1"},
		{"cookie", "", "user-token", http.StatusOK, "u-1"},
		{"missing", "", "", http.StatusUnauthorized, "missing access token"},
		{"wrong scheme", "Basic user-token", "", http.StatusUnauthorized, "missing access token"},
		{"invalid", "Bearer forged", "", http.StatusUnauthorized, "invalid access token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: helpers.AccessTokenCookie, Value: tt.cookie})
			}
			w := httptest.NewRecorder()
			newAuthEngine().ServeHTTP(w, req)

			assert.Equal(t, tt.code, w.Code)
			assert.Contains(t, w.Body.String(), tt.body)
		})
	}
}

func TestRequireRole(t *testing.T) {
	r := newAuthEngine("ADMIN")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer user-token")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer admin-token")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "a-1", w.Body.String())
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString("request_id")) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Len(t, w.Body.String(), 36)
	assert.Equal(t, w.Body.String(), w.Header().Get(RequestIDHeader))

	incoming := "0b6f3a4e-8a8c-4a51-9f0a-7d2b1c3e4f50"
	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, incoming)
	r.ServeHTTP(w, req)
	assert.Equal(t, incoming, w.Body.String())

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "<script>")
	r.ServeHTTP(w, req)
	assert.NotEqual(t, "<script>", w.Body.String())
}

func TestRealIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"cloudflare", map[string]string{"CF-Connecting-IP": "203.0.113.7", "X-Forwarded-For": "198.51.100.1"}, "203.0.113.7"},
		{"forwarded", map[string]string{"X-Forwarded-For": "198.51.100.1, 10.0.0.1"}, "198.51.100.1"},
		{"garbage falls back", map[string]string{"X-Forwarded-For": "nope"}, "192.0.2.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.Use(RealIP())
			r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString("real_ip")) })

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Body.String())
		})
	}
}

func TestPrivateNetworkOnly(t *testing.T) {
	r := gin.New()
	r.Use(RealIP())
	r.GET("/metrics", PrivateNetworkOnly(), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for ip, want := range map[string]int{
		"10.1.2.3":    http.StatusNoContent,
		"127.0.0.1":   http.StatusNoContent,
		"203.0.113.7": http.StatusForbidden,
	} {
		req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
		req.Header.Set("X-Forwarded-For", ip)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, want, w.Code, ip)
	}
}
