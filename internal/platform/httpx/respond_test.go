package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRespondErrorMapsSentinels(t *testing.T) {
	domain := errors.New("student not found")
	err := Translate(fmt.Errorf("lookup: %w", domain), map[error]error{domain: ErrNotFound})

	rr := httptest.NewRecorder()
	RespondError(rr, err)
	require.Equal(t, http.StatusNotFound, rr.Code)

	var problem ProblemDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &problem))
	require.Equal(t, "Not Found", problem.Title)
	require.Equal(t, "lookup: student not found", problem.Detail)
	require.ErrorIs(t, err, domain)
}

func TestRespondErrorHidesUnknownErrors(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, errors.New("pq: password authentication failed"))
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.NotContains(t, rr.Body.String(), "password")
}

func TestTranslateLeavesUnmatchedErrors(t *testing.T) {
	plain := errors.New("boom")
	require.Same(t, plain, Translate(plain, map[error]error{errors.New("other"): ErrConflict}))
	require.NoError(t, Translate(nil, nil))
}

func TestProblemUsesProblemContentType(t *testing.T) {
	rr := httptest.NewRecorder()
	Problem(rr, http.StatusBadRequest, "Validation Failed", "bad date")
	require.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))

	var problem ProblemDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &problem))
	require.Equal(t, "about:blank", problem.Type)
	require.Equal(t, http.StatusBadRequest, problem.Status)
}

func TestRespondErrorConflictHidesCause(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, fmt.Errorf("%w: could not serialize access", ErrConflict))
	require.Equal(t, http.StatusConflict, rr.Code)
	require.NotContains(t, rr.Body.String(), "serialize")
}

func TestDecodeJSONRejectsTrailingData(t *testing.T) {
	var v map[string]string
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"a":"1"} {"b":"2"}`))
	require.Error(t, DecodeJSON(req, &v))

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"a":"1"}`+"\n"))
	require.NoError(t, DecodeJSON(req, &v))
	require.Equal(t, "1", v["a"])
}
