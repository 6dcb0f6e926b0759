package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pawtograder/office-hours/internal/models"
	appErrors "github.com/pawtograder/office-hours/pkg/errors"
)

type validatorStub struct {
	tokens map[string]string
	seen   string
}

func (v *validatorStub) ValidateToken(token string) (*models.JWTClaims, error) {
	v.seen = token
	userID, ok := v.tokens[token]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return &models.JWTClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: userID}}, nil
}

type verifierStub struct {
	token *models.APIToken
	err   error
	scope string
}

func (v *verifierStub) Verify(ctx context.Context, raw, scope string) (*models.APIToken, error) {
	v.scope = scope
	if v.err != nil {
		return nil, v.err
	}
	return v.token, nil
}

type observerStub struct {
	method string
	path   string
	status int
}

func (o *observerStub) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	o.method, o.path, o.status = method, path, status
}

func newRouter(mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(mw...)
	router.GET("/whoami/:id", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user": CurrentClaims(c).UserID()})
	})
	return router
}

func serve(router *gin.Engine, target, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestJWT(t *testing.T) {
	validator := &validatorStub{tokens: map[string]string{"good": "user-1"}}
	router := newRouter(JWT(validator))

	w := serve(router, "/whoami/1", "Bearer good")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user":"user-1"}`, w.Body.String())

	assert.Equal(t, http.StatusUnauthorized, serve(router, "/whoami/1", "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(router, "/whoami/1", "Basic good").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(router, "/whoami/1", "Bearer bad").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(router, "/whoami/1?access_token=good", "").Code)
}

func TestRealtimeJWTAcceptsQueryToken(t *testing.T) {
	validator := &validatorStub{tokens: map[string]string{"good": "user-1"}}
	router := newRouter(RealtimeJWT(validator))

	w := serve(router, "/whoami/1?access_token=good", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "good", validator.seen)

	// A malformed header is not silently replaced by the query token.
	assert.Equal(t, http.StatusUnauthorized, serve(router, "/whoami/1?access_token=good", "Token x").Code)
}

func TestMCPTokenSetsOwner(t *testing.T) {
	verifier := &verifierStub{token: &models.APIToken{ID: "tok", UserID: "user-9", TokenID: "jti", Scopes: []string{models.ScopeMCPRead}}}
	router := newRouter(MCPToken(verifier, models.ScopeMCPRead))

	w := serve(router, "/whoami/1", "Bearer mcp_abc")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user":"user-9"}`, w.Body.String())
	assert.Equal(t, models.ScopeMCPRead, verifier.scope)

	assert.Equal(t, http.StatusUnauthorized, serve(router, "/whoami/1", "").Code)

	verifier.err = appErrors.Clone(appErrors.ErrForbidden, "token missing scope")
	w = serve(router, "/whoami/1", "Bearer mcp_abc")
	assert.Equal(t, http.StatusForbidden, w.Code)

	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, "FORBIDDEN", envelope.Error.Code)
}

func TestRequireScopes(t *testing.T) {
	verifier := &verifierStub{token: &models.APIToken{UserID: "user-9", Scopes: []string{models.ScopeMCPRead}}}

	router := newRouter(MCPToken(verifier, models.ScopeMCPRead), RequireScopes(models.ScopeMCPRead))
	assert.Equal(t, http.StatusOK, serve(router, "/whoami/1", "Bearer mcp_abc").Code)

	router = newRouter(MCPToken(verifier, models.ScopeMCPRead), RequireScopes(models.ScopeMCPWrite))
	assert.Equal(t, http.StatusForbidden, serve(router, "/whoami/1", "Bearer mcp_abc").Code)

	router = newRouter(RequireScopes(models.ScopeMCPRead))
	assert.Equal(t, http.StatusUnauthorized, serve(router, "/whoami/1", "").Code)
}

func TestMetricsUsesRouteTemplate(t *testing.T) {
	observer := &observerStub{}
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Metrics(observer))
	secured := router.Group("/", JWT(&validatorStub{tokens: map[string]string{"good": "u"}}))
	secured.GET("/whoami/:id", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user": CurrentClaims(c).UserID()})
	})

	serve(router, "/whoami/42", "Bearer good")
	assert.Equal(t, http.MethodGet, observer.method)
	assert.Equal(t, "/whoami/:id", observer.path)
	assert.Equal(t, http.StatusOK, observer.status)

	serve(router, "/nowhere", "")
	assert.Equal(t, "unmatched", observer.path)
	assert.Equal(t, http.StatusNotFound, observer.status)
}

func TestResponseMeta(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(WithResponseMeta())
	var meta map[string]interface{}
	router.GET("/", func(c *gin.Context) {
		SetCacheHit(c, true)
		SetConnectionStatus(c, "connecting")
		meta = ExtractMeta(c)
		c.Status(http.StatusNoContent)
	})
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	require.NotNil(t, meta)
	assert.Equal(t, true, meta["cache_hit"])
	assert.Equal(t, "connecting", meta["connection_status"])
	assert.Contains(t, meta, "processing_time_ms")
}

func TestExtractMetaWithoutMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Nil(t, ExtractMeta(c))

	SetCacheHit(c, false)
	meta := ExtractMeta(c)
	require.NotNil(t, meta)
	assert.Equal(t, false, meta["cache_hit"])
	assert.NotContains(t, meta, "processing_time_ms")
}
