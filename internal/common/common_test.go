package common_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/tournetwork/storefront/internal/common"
)

type errorEnvelope struct {
	Error common.ErrorBody `json:"error"`
}

func TestWriteErrorMapsAppErrors(t *testing.T) {
	rr := httptest.NewRecorder()
	common.WriteError(rr, common.Unavailable("booking service unavailable", errors.New("dial tcp")))
	require.Equal(t, http.StatusBadGateway, rr.Code)

	var body errorEnvelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "BACKEND_UNAVAILABLE", body.Error.Code)

	rr = httptest.NewRecorder()
	common.WriteError(rr, errors.New("boom"))
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.NotContains(t, rr.Body.String(), "boom")
}

func TestDecodeJSON(t *testing.T) {
	var dst struct {
		Date string `json:"date"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"date":"2024-06-15"}`))
	require.NoError(t, common.DecodeJSON(req, &dst))
	require.Equal(t, "2024-06-15", dst.Date)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"when":"x"}`))
	err := common.DecodeJSON(req, &dst)
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, http.StatusBadRequest, appErr.HTTPStatus)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(``))
	require.Error(t, common.DecodeJSON(req, &dst))
}

func TestIdempotencyMiddleware(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	status := http.StatusOK
	calls := 0
	handler := common.Idem{R: client, TTL: time.Minute}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(status)
	}))

	send := func(key string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/confirm", nil)
		if key != "" {
			req.Header.Set(common.IdempotencyHeader, key)
		}
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr.Code
	}

	require.Equal(t, http.StatusOK, send("abc"))
	require.Equal(t, http.StatusConflict, send("abc"))
	require.Equal(t, 1, calls)

	status = http.StatusBadGateway
	require.Equal(t, http.StatusBadGateway, send("retry-me"))
	require.Equal(t, http.StatusBadGateway, send("retry-me"))
	require.Equal(t, 3, calls)

	require.Equal(t, http.StatusBadGateway, send(""))
	require.Equal(t, 4, calls)
}
