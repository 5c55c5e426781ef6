package buildinfo

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet(t *testing.T) {
	info := Get("studynotes")

	assert.Equal(t, "studynotes", info.Name)
	assert.Equal(t, Version, info.Version)
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, info.Platform)
}

func TestString(t *testing.T) {
	saved := [3]string{Version, Commit, BuildTime}
	defer func() { Version, Commit, BuildTime = saved[0], saved[1], saved[2] }()

	Version, Commit, BuildTime = "v1.2.3", "abc123", "2026-10-01T09:00:00Z"
	assert.Equal(t, "v1.2.3 (abc123, 2026-10-01T09:00:00Z)", String())
}

func TestHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	Handler("studynotes").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/version", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var info Info
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&info))
	assert.Equal(t, "studynotes", info.Name)
}
