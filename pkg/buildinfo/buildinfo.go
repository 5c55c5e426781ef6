// Package buildinfo exposes version metadata stamped into the studynotes binary.
package buildinfo

import (
	"encoding/json"
	"net/http"
	"runtime"
)

// Set at build time via ldflags:
// -X github.com/otherjamesbrown/studynotes-cli/pkg/buildinfo.Version=v0.3.0
// -X github.com/otherjamesbrown/studynotes-cli/pkg/buildinfo.Commit=1f0c2ab
// -X github.com/otherjamesbrown/studynotes-cli/pkg/buildinfo.BuildTime=2026-10-01T09:00:00Z
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Info describes the running binary.
type Info struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// Get returns build info under the given binary name.
func Get(name string) Info {
	return Info{
		Name:      name,
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// String returns a one-liner like "v0.3.0 (1f0c2ab, 2026-10-01T09:00:00Z)".
func String() string {
	return Version + " (" + Commit + ", " + BuildTime + ")"
}

// Handler serves Get(name) as JSON. The watch command mounts it at /version
// next to the metrics endpoint.
func Handler(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Get(name))
	}
}
