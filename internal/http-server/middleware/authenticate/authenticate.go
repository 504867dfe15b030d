package authenticate

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"keyadmin/entity"
	"keyadmin/lib/api/cont"
	"keyadmin/lib/api/response"
	"keyadmin/lib/sl"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
)

var (
	errNoHeader = errors.New("authorization header not found")
	errNoBearer = errors.New("bearer token not found")
)

type Authenticate interface {
	AuthenticateByToken(token string) (*entity.User, error)
}

// New resolves the admin behind the bearer token and logs every admin call
// once it completes. Requests without a known token never reach next.
func New(log *slog.Logger, auth Authenticate) func(next http.Handler) http.Handler {
	mod := sl.Module("middleware.authenticate")
	log.With(mod).Info("authenticate middleware initialized")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := middleware.GetReqID(r.Context())
			logger := log.With(
				mod,
				slog.String("request_id", reqID),
				slog.String("route", r.Method+" "+r.URL.Path),
				slog.String("client", clientAddr(r)),
			)
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			started := time.Now()
			defer func() {
				logger.With(
					slog.Int("status", ww.Status()),
					slog.Int("size", ww.BytesWritten()),
					slog.Duration("elapsed", time.Since(started)),
				).Info("admin request")
			}()

			token, err := bearerToken(r)
			if err != nil {
				logger = logger.With(sl.Err(err))
				deny(ww, r, err.Error())
				return
			}
			if auth == nil {
				logger = logger.With(slog.Bool("auth_enabled", false))
				deny(ww, r, "authentication not enabled")
				return
			}

			admin, err := auth.AuthenticateByToken(token)
			if err != nil {
				logger = logger.With(sl.Secret("token", token), sl.Err(err))
				deny(ww, r, "unknown token")
				return
			}
			logger = logger.With(
				slog.String("admin", admin.Username),
				slog.String("role", string(admin.Role)),
			)

			ww.Header().Set("X-Request-ID", reqID)
			ww.Header().Set("X-User", admin.Username)
			next.ServeHTTP(ww, r.WithContext(cont.PutUser(r.Context(), admin)))
		})
	}
}

// bearerToken extracts the token of an "Authorization: Bearer <token>" header.
func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", errNoHeader
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	token = strings.TrimSpace(token)
	if !ok || token == "" {
		return "", errNoBearer
	}
	return token, nil
}

// clientAddr prefers the address reported by a fronting proxy.
func clientAddr(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	return r.RemoteAddr
}

func deny(w http.ResponseWriter, r *http.Request, reason string) {
	render.Status(r, http.StatusUnauthorized)
	render.JSON(w, r, response.Error("Unauthorized: "+reason))
}
