package handler

import (
	"context"
	"net/http"
)

type pinger interface {
	Ping(ctx context.Context) error
}

// Health reports ok, or degraded when the sent log backend does not answer.
// A nil pinger means the backend is a local file and is always healthy.
func Health(store pinger) http.HandlerFunc {
	h := &BaseHandler{}
	return func(w http.ResponseWriter, r *http.Request) {
		status := "ok"
		code := http.StatusOK

		if store != nil {
			if err := store.Ping(r.Context()); err != nil {
				status = "degraded"
				code = http.StatusServiceUnavailable
			}
		}

		_ = h.writeJSON(w, code, envelope{"status": status}, nil)
	}
}
