package health

import (
	"context"
	"log/slog"
	"net/http"

	"keyadmin/lib/api/response"
	"keyadmin/lib/sl"

	"github.com/go-chi/render"
)

// Pinger checks that the remote store answers. A nil Pinger means the
// service runs on the local mirror only.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Status struct {
	Status string `json:"status"`
	Remote string `json:"remote"`
}

func Health(log *slog.Logger, pinger Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := Status{Status: "ok", Remote: "disabled"}
		if pinger != nil {
			status.Remote = "ok"
			if err := pinger.Ping(r.Context()); err != nil {
				log.With(sl.Module("http.handlers.health")).Warn("remote store ping", sl.Err(err))
				status.Status = "degraded"
				status.Remote = "unavailable"
			}
		}
		render.JSON(w, r, response.Ok(status))
	}
}
