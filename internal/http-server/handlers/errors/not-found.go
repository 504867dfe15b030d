package errors

import (
	"log/slog"
	"net/http"

	"keyadmin/lib/api/response"
	"keyadmin/lib/sl"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
)

func NotFound(log *slog.Logger) http.HandlerFunc {
	logger := log.With(sl.Module("http.handlers.errors"))
	return func(w http.ResponseWriter, r *http.Request) {
		logger.Debug("route not found",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, response.Error("Requested resource not found"))
	}
}
