package students_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/refeitorio/refeitorio/internal/platform/httpx"
	"github.com/refeitorio/refeitorio/internal/students"
)

func newRouter(svc *students.Service) http.Handler {
	r := chi.NewRouter()
	students.NewHandler(nil, svc).MountRoutes(r)
	return r
}

func TestHandlerPaymentMismatchReturnsOwedAmount(t *testing.T) {
	_, svc, s := blockedStudent(t)
	router := newRouter(svc)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/students/"+itoa(s.ID)+"/payments", strings.NewReader(`{"amount":"9.00"}`))
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	var problem httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &problem))
	require.Equal(t, "amount due is R$ 8.00", problem.Detail)
}

func TestHandlerPaymentSuccess(t *testing.T) {
	_, svc, s := blockedStudent(t)
	router := newRouter(svc)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/students/"+itoa(s.ID)+"/payments", strings.NewReader(`{"amount":8,"reason":"pix"}`))
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusCreated, rr.Code)
	require.Contains(t, rr.Body.String(), "3 absence(s) cleared")
}

func TestHandlerDetailNotFound(t *testing.T) {
	_, svc, _ := blockedStudent(t)
	router := newRouter(svc)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/students/404", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/students/abc", nil))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandlerListStudents(t *testing.T) {
	_, svc, _ := blockedStudent(t)
	router := newRouter(svc)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/students", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var rows []map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rows))
	require.Len(t, rows, 1)
	require.Equal(t, students.LabelBlocked, rows[0]["status"])
}

func itoa(id int64) string { return strconv.FormatInt(id, 10) }
