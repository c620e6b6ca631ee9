package http

import (
	"context"
	stdhttp "net/http"
	"time"
)

// HealthHandler reports liveness.
func HealthHandler(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(stdhttp.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// ReadyHandler reports readiness: 200 when check succeeds within two
// seconds, 503 otherwise. A nil check is always ready.
func ReadyHandler(check func(ctx context.Context) error) stdhttp.Handler {
	return stdhttp.HandlerFunc(func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				loggerFrom(r.Context()).Warn("readiness_check_failed", "err", err.Error())
				writeError(w, stdhttp.StatusServiceUnavailable, codeRetry, "not ready")
				return
			}
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(stdhttp.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
}
