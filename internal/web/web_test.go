package web_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cptaffe/znc-xmpp/internal/config"
	"github.com/cptaffe/znc-xmpp/internal/web"
	"github.com/cptaffe/znc-xmpp/internal/xmpp"
)

type emptyStore struct{}

func (emptyStore) FindAccount(string) xmpp.Account { return nil }

func newTestPortal(t *testing.T, tokens []string) *web.Portal {
	server, err := xmpp.NewServer(xmpp.Options{ServerName: "example.com", Store: emptyStore{}})
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Web.Listen = ":0"
	cfg.Web.BearerTokens = tokens
	return web.NewPortal(server, cfg)
}

func TestStatusEndpoint(t *testing.T) {
	portal := newTestPortal(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	portal.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var status map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "example.com", status["domain"])
	assert.Equal(t, float64(0), status["sessions"])
}

func TestSessionsRequiresToken(t *testing.T) {
	portal := newTestPortal(t, []string{"secret-token"})

	req := httptest.NewRequest(http.MethodGet, "/sessions", nil)
	rec := httptest.NewRecorder()
	portal.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/sessions", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	portal.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/sessions", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	rec = httptest.NewRecorder()
	portal.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestSessionsOpenWithoutTokens(t *testing.T) {
	portal := newTestPortal(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/sessions", nil)
	rec := httptest.NewRecorder()
	portal.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	portal := newTestPortal(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	portal.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "xmpp_sessions_active")
}
