package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

func idempotentRouter(t *testing.T, status int, calls *int32) *gin.Engine {
	r := gin.New()
	r.Use(func(c *gin.Context) { setIdentity(c, "user-1", ""); c.Next() })
	r.Use(IdempotencyMiddleware(DefaultIdempotencyConfig(newRedis(t))))
	r.POST("/bookings", func(c *gin.Context) {
		atomic.AddInt32(calls, 1)
		key, _ := GetIdempotencyKey(c)
		c.JSON(status, gin.H{"key": key})
	})
	return r
}

func post(r http.Handler, key, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/bookings", strings.NewReader(body))
	if key != "" {
		req.Header.Set(IdempotencyKeyHeader, key)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestIdempotency_ReplaysCompletedResponse(t *testing.T) {
	var calls int32
	r := idempotentRouter(t, http.StatusCreated, &calls)

	first := post(r, "k1", `{"ticketCount":2}`)
	second := post(r, "k1", `{"ticketCount":2}`)

	assert.Equal(t, http.StatusCreated, first.Code)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestIdempotency_KeyReusedWithDifferentBody(t *testing.T) {
	var calls int32
	r := idempotentRouter(t, http.StatusCreated, &calls)

	post(r, "k1", `{"ticketCount":2}`)
	w := post(r, "k1", `{"ticketCount":3}`)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), `"success":false`)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestIdempotency_ServerErrorsAreNotStored(t *testing.T) {
	var calls int32
	r := idempotentRouter(t, http.StatusServiceUnavailable, &calls)

	post(r, "k1", `{}`)
	post(r, "k1", `{}`)

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestIdempotency_MissingKeyPassesThrough(t *testing.T) {
	var calls int32
	r := idempotentRouter(t, http.StatusCreated, &calls)

	post(r, "", `{}`)
	post(r, "", `{}`)

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestIdempotency_InProgress(t *testing.T) {
	rdb := newRedis(t)
	r := gin.New()
	r.Use(IdempotencyMiddleware(DefaultIdempotencyConfig(rdb)))
	r.POST("/bookings", func(c *gin.Context) { c.Status(http.StatusCreated) })

	// Seed a processing record for the same request
	req := httptest.NewRequest(http.MethodPost, "/bookings", strings.NewReader(`{}`))
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = req
	record := &IdempotencyRecord{Key: "k1", Status: StatusProcessing, RequestHash: generateRequestHash(c, []byte(`{}`))}
	require.True(t, trySetIdempotencyRecord(req.Context(), rdb, IdempotencyKeyPrefix+"k1", record, time.Minute))

	w := post(r, "k1", `{}`)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestIdentity(t *testing.T) {
	secret := "test-secret"
	sign := func(claims UserClaims) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
		require.NoError(t, err)
		return s
	}

	valid := sign(UserClaims{UserID: "user-2", Email: "u2@example.com", RegisteredClaims: jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}})
	expired := sign(UserClaims{UserID: "user-2", RegisteredClaims: jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	}})

	tests := []struct {
		name       string
		headers    map[string]string
		wantStatus int
		wantUser   string
	}{
		{"gateway headers", map[string]string{UserIDHeader: "user-1", UserEmailHeader: "u1@example.com"}, http.StatusOK, "user-1"},
		{"bearer token", map[string]string{"Authorization": "Bearer " + valid}, http.StatusOK, "user-2"},
		{"expired token", map[string]string{"Authorization": "Bearer " + expired}, http.StatusUnauthorized, ""},
		{"garbage token", map[string]string{"Authorization": "Bearer abc"}, http.StatusUnauthorized, ""},
		{"no identity", nil, http.StatusUnauthorized, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.Use(Identity(IdentityConfig{JWTSecret: secret}))
			r.GET("/me", func(c *gin.Context) {
				id, _ := GetUserID(c)
				c.String(http.StatusOK, id)
			})

			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, tt.wantUser, w.Body.String())
			}
		})
	}
}

func TestInternalSecret(t *testing.T) {
	r := gin.New()
	r.Use(InternalSecret("s3cret"))
	r.PATCH("/tickets", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for _, tc := range []struct {
		header string
		want   int
	}{
		{"s3cret", http.StatusNoContent},
		{"wrong", http.StatusUnauthorized},
		{"", http.StatusUnauthorized},
	} {
		req := httptest.NewRequest(http.MethodPatch, "/tickets", nil)
		req.Header.Set(InternalSecretHeader, tc.header)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, tc.want, w.Code, "header %q", tc.header)
	}
}
