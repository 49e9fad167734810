package middlewares

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/beststore/accounts/internal/actorctx"
	"github.com/beststore/accounts/internal/auth"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type fakeVerifier struct {
	claims map[string]*auth.Claims
}

func (f fakeVerifier) Verify(token string) (*auth.Claims, error) {
	c, ok := f.claims[token]
	if !ok {
		return nil, auth.ErrInvalidToken
	}
	return c, nil
}

func newAuthEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)

	m := NewAuthMiddleware(fakeVerifier{claims: map[string]*auth.Claims{
		"client-token": {UserID: "1", Role: "client"},
		"admin-token":  {UserID: "2", Role: "admin"},
	}})

	r := gin.New()
	r.Use(RequestID())
	r.GET("/me", m.RequireAuth(), func(c *gin.Context) {
		claims, ok := ClaimsFromContext(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		actor, _ := actorctx.UserIDFrom(c.Request.Context())
		c.String(http.StatusOK, claims.UserID+":"+actor)
	})
	r.GET("/admin", m.RequireAuth(), m.RequireRole("admin"), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func TestRequireAuth(t *testing.T) {
	r := newAuthEngine()

	tests := []struct {
		name   string
		header string
		want   int
		body   string
	}{
		{name: "no header", want: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic client-token", want: http.StatusUnauthorized},
		{name: "empty token", header: "Bearer ", want: http.StatusUnauthorized},
		{name: "unknown token", header: "Bearer forged", want: http.StatusUnauthorized},
		{name: "valid", header: "Bearer client-token", want: http.StatusOK, body: "1:1"},
		{name: "scheme is case insensitive", header: "bearer client-token", want: http.StatusOK, body: "1:1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, rec.Body.String())
			}
			if tt.want == http.StatusUnauthorized {
				assert.Contains(t, rec.Body.String(), `"code":"unauthorized"`)
				assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	r := newAuthEngine()

	for token, want := range map[string]int{
		"client-token": http.StatusForbidden,
		"admin-token":  http.StatusOK,
	} {
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		assert.Equal(t, want, rec.Code, token)
	}
}

func TestRequireJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.PUT("/x", RequireJSON(), func(c *gin.Context) { c.Status(http.StatusOK) })

	for ct, want := range map[string]int{
		"":                                http.StatusUnsupportedMediaType,
		"text/plain":                      http.StatusUnsupportedMediaType,
		"application/json":                http.StatusOK,
		"Application/JSON; charset=utf-8": http.StatusOK,
	} {
		req := httptest.NewRequest(http.MethodPut, "/x", strings.NewReader(`{}`))
		if ct != "" {
			req.Header.Set("Content-Type", ct)
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		assert.Equal(t, want, rec.Code, "content type %q", ct)
	}
}

func TestMaxBodyBytes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/x", MaxBodyBytes(8), func(c *gin.Context) {
		var buf [64]byte
		_, err := c.Request.Body.Read(buf[:])
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			c.Status(http.StatusRequestEntityTooLarge)
			return
		}
		c.Status(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(strings.Repeat("a", 32))))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/x", strings.NewReader("tiny")))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCORSMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORSMiddleware([]string{"https://shop.example"}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "https://shop.example")
	req.Header.Set("Access-Control-Request-Method", "GET")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://shop.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.GET("/x", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(CtxRequestID)) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Request-Id", "abc-123")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Body.String())
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-Id"))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Len(t, rec.Body.String(), 36)
}
