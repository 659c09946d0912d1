package settings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (http.Handler, *memoryRepo) {
	t.Helper()
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	require.NoError(t, svc.Seed(context.Background()))
	r := chi.NewRouter()
	NewHandler(nil, svc).MountRoutes(r)
	return r, repo
}

func TestHandlerListsEntries(t *testing.T) {
	router, _ := newTestRouter(t)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/settings", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	var entries []Entry
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &entries))
	require.Len(t, entries, len(Defaults))
}

func TestHandlerUpdatesKnownKeys(t *testing.T) {
	router, repo := newTestRouter(t)
	body := strings.NewReader(`{"block_threshold":"4","nonsense":"x"}`)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/settings", body))

	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"updated":["block_threshold"]}`, rr.Body.String())
	require.Equal(t, "4", repo.entries[KeyBlockThreshold].Value)
}

func TestHandlerRejectsInvalidValue(t *testing.T) {
	router, _ := newTestRouter(t)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/settings", strings.NewReader(`{"price_lunch":"abc"}`)))
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/settings", strings.NewReader(`not json`)))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}
