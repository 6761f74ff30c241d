package common

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestJSONErrorShape(t *testing.T) {
	rr := httptest.NewRecorder()
	JSONError(rr, http.StatusBadRequest, "BAD_REQUEST", "invalid start", nil)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "no-store", rr.Header().Get("Cache-Control"))
	var body struct {
		Error ErrorBody `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "BAD_REQUEST", body.Error.Code)
	require.Equal(t, "invalid start", body.Error.Message)
}

func TestTooManyRequestsRoundsUp(t *testing.T) {
	rr := httptest.NewRecorder()
	TooManyRequests(rr, 1500*time.Millisecond)
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	require.Equal(t, "2", rr.Header().Get("Retry-After"))

	rr = httptest.NewRecorder()
	TooManyRequests(rr, 0)
	require.Equal(t, "1", rr.Header().Get("Retry-After"))
}

func TestDigest(t *testing.T) {
	require.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", Digest(nil))
}
