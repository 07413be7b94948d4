package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtr002/linkboard/internal/links"
	"github.com/mtr002/linkboard/internal/marts"
	"github.com/mtr002/linkboard/internal/memory"
	"github.com/mtr002/linkboard/internal/reports"
)

func newGatedMux(t *testing.T, token string) *http.ServeMux {
	t.Helper()
	store := memory.NewStore()
	mux := http.NewServeMux()
	AddRoutes(mux, Services{
		Links:       links.NewManager(store, &stubCreator{}, links.Options{}),
		Marts:       marts.NewService(store, nil, "", ""),
		Reports:     reports.NewService(store, &stubFetcher{}, time.Minute),
		AccessToken: token,
	})
	return mux
}

func serve(mux *http.ServeMux, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestAccessGate(t *testing.T) {
	mux := newGatedMux(t, "s3cret")

	rec := serve(mux, httptest.NewRequest(http.MethodGet, "/links", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/links", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	assert.Equal(t, http.StatusOK, serve(mux, req).Code)

	rec = serve(mux, httptest.NewRequest(http.MethodPost, "/access", strings.NewReader(`{"token":"wrong"}`)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(mux, httptest.NewRequest(http.MethodPost, "/access", strings.NewReader(`{"token":"s3cret"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, accessCookie, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	req = httptest.NewRequest(http.MethodGet, "/marts", nil)
	req.AddCookie(cookies[0])
	assert.Equal(t, http.StatusOK, serve(mux, req).Code)

	assert.Equal(t, http.StatusOK, serve(mux, httptest.NewRequest(http.MethodGet, "/health", nil)).Code,
		"health probes are not gated")
}

func TestAccessGate_Disabled(t *testing.T) {
	mux := newGatedMux(t, "")
	assert.Equal(t, http.StatusOK, serve(mux, httptest.NewRequest(http.MethodGet, "/links", nil)).Code)
}
