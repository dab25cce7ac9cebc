package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"solana-ddca/internal/domain"
	"solana-ddca/internal/observability"
	"solana-ddca/internal/waker"
)

// newHTTPHandler serves /health, /metrics, /status and /status/{plan}.
func newHTTPHandler(w *waker.Waker, started time.Time) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(rw http.ResponseWriter, _ *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})

	mux.Handle("GET /metrics", observability.Handler())

	mux.HandleFunc("GET /status", func(rw http.ResponseWriter, _ *http.Request) {
		resp := struct {
			Status string `json:"status"`
			Uptime string `json:"uptime"`
			waker.Snapshot
		}{
			Status:   "running",
			Uptime:   time.Since(started).Truncate(time.Second).String(),
			Snapshot: w.Snapshot(),
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = writeJSON(rw, resp)
	})

	mux.HandleFunc("GET /status/{plan}", func(rw http.ResponseWriter, r *http.Request) {
		st, ok := w.PlanStatus(domain.PlanID(r.PathValue("plan")))
		if !ok {
			http.Error(rw, "plan not tracked", http.StatusNotFound)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = writeJSON(rw, st)
	})

	return mux
}

// serveHTTP runs srv until ctx is done, then shuts it down.
func serveHTTP(ctx context.Context, srv *http.Server, log zerolog.Logger) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", srv.Addr).Msg("http server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
