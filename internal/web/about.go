package web

import (
	"net/http"
	"runtime"
	"runtime/debug"
	"time"
)

// About describes the running binary.
type About struct {
	Service   string `json:"service"`
	NowUTC    string `json:"now_utc"`
	GoVersion string `json:"go_version"`
	Module    string `json:"module,omitempty"`
	Version   string `json:"version,omitempty"`
	Revision  string `json:"revision,omitempty"`
	Modified  bool   `json:"modified,omitempty"`
	BuiltAt   string `json:"built_at,omitempty"`
	// Deps lists module dependencies as path@version, replacements applied.
	Deps []string `json:"deps,omitempty"`
}

func readAbout(now time.Time) About {
	a := About{
		Service:   "tiltview",
		NowUTC:    now.UTC().Format(time.RFC3339Nano),
		GoVersion: runtime.Version(),
	}
	bi, ok := debug.ReadBuildInfo()
	if !ok || bi == nil {
		return a
	}
	a.Module, a.Version = bi.Main.Path, bi.Main.Version
	for _, m := range bi.Deps {
		if m.Replace != nil {
			m = m.Replace
		}
		a.Deps = append(a.Deps, m.Path+"@"+m.Version)
	}
	for _, kv := range bi.Settings {
		switch kv.Key {
		case "vcs.revision":
			a.Revision = kv.Value
		case "vcs.modified":
			a.Modified = kv.Value == "true"
		case "vcs.time":
			a.BuiltAt = kv.Value
		}
	}
	return a
}

func AboutHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodGet) {
			return
		}
		writeJSON(w, readAbout(time.Now()))
	})
}
