package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tiltview/internal/tilt"
)

// TiltController is the subset of tilt.Service the API drives.
type TiltController interface {
	Snapshot() tilt.Snapshot
	ResetOrigin(ctx context.Context, immediate bool) error
	SetRelative(ctx context.Context, relative bool) error
}

// Deps bundles what the handler serves. Nil fields disable their routes.
type Deps struct {
	Status      *Status
	Tilt        TiltController
	Broadcaster *TiltBroadcaster
	Logs        *LogBuffer
}

func Handler(d Deps) http.Handler {
	if d.Status == nil {
		d.Status = NewStatus()
	}
	mux := http.NewServeMux()

	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodGet) {
			return
		}
		writeJSON(w, d.Status.Snapshot(time.Now().UTC()))
	})

	if d.Tilt != nil {
		mux.HandleFunc("/api/tilt", func(w http.ResponseWriter, r *http.Request) {
			if !allow(w, r, http.MethodGet) {
				return
			}
			writeJSON(w, d.Tilt.Snapshot())
		})

		mux.HandleFunc("/api/tilt/reset", func(w http.ResponseWriter, r *http.Request) {
			if !allow(w, r, http.MethodPost) {
				return
			}
			immediate, err := boolParam(r, "immediate", false)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := d.Tilt.ResetOrigin(ctx, immediate); err != nil {
				controlError(w, err)
				return
			}
			writeOK(w)
		})

		mux.HandleFunc("/api/tilt/relative", func(w http.ResponseWriter, r *http.Request) {
			if !allow(w, r, http.MethodPost) {
				return
			}
			if strings.TrimSpace(r.URL.Query().Get("enable")) == "" {
				http.Error(w, "enable is required", http.StatusBadRequest)
				return
			}
			enable, err := boolParam(r, "enable", false)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := d.Tilt.SetRelative(ctx, enable); err != nil {
				controlError(w, err)
				return
			}
			writeOK(w)
		})
	}

	if d.Broadcaster != nil {
		mux.Handle("/api/tilt/stream", streamHandler(d.Broadcaster))
		mux.Handle("/api/tilt/ws", wsHandler(d.Broadcaster))
	}

	if d.Logs != nil {
		mux.Handle("/api/logs", d.Logs.Handler())
	}

	mux.Handle("/api/about", AboutHandler())

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodGet) {
			return
		}
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		snap := d.Status.Snapshot(time.Now().UTC())
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		_, _ = fmt.Fprintf(w, "<!doctype html><html><head><meta charset=\"utf-8\"><title>tiltview</title></head><body>")
		_, _ = fmt.Fprintf(w, "<h1>tiltview</h1>")
		_, _ = fmt.Fprintf(w, "<p>Live data: <a href=\"/api/tilt\">/api/tilt</a>, <a href=\"/api/tilt/stream\">/api/tilt/stream</a>.</p>")
		_, _ = fmt.Fprintf(w, "<pre>sensor_source=%s\nsource=%s\nyaw=%.2f pitch=%.2f roll=%.2f\n</pre>",
			snap.SensorSource, snap.Tilt.Source, snap.Tilt.YawDeg, snap.Tilt.PitchDeg, snap.Tilt.RollDeg,
		)
		_, _ = fmt.Fprintf(w, "</body></html>")
	})

	return mux
}

func allow(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	return false
}

func writeJSON(w http.ResponseWriter, v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		http.Error(w, "marshal failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(b)
	_, _ = w.Write([]byte("\n"))
}

func writeOK(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte("{\"ok\":true}\n"))
}

func controlError(w http.ResponseWriter, err error) {
	code := http.StatusBadRequest
	switch {
	case errors.Is(err, tilt.ErrNotRunning):
		code = http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		code = http.StatusGatewayTimeout
	}
	http.Error(w, err.Error(), code)
}

func boolParam(r *http.Request, name string, def bool) (bool, error) {
	s := strings.TrimSpace(r.URL.Query().Get(name))
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean", name)
	}
	return v, nil
}

// Serve runs the API until ctx is cancelled and then shuts down gracefully.
func Serve(ctx context.Context, listenAddr string, d Deps) error {
	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           Handler(d),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// No WriteTimeout: stream and websocket responses are long-lived.
		IdleTimeout:    30 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1 MiB
		// Streams end when ctx does.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
