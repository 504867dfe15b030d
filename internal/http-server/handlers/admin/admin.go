package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"keyadmin/entity"
	"keyadmin/lib/api/cont"
	"keyadmin/lib/api/response"
	"keyadmin/lib/sl"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
)

// DashboardPath is where form posts are sent back to.
const DashboardPath = "/admin/discord"

const defaultAuditLimit = 20

type Core interface {
	IssueOne(ctx context.Context, accountID, plan string) (*entity.IssuedKey, error)
	BulkDelete(ctx context.Context, ids []string) entity.BulkDeleteTotals
	RecentAudit(limit int64) ([]*entity.AuditEvent, error)
}

// bulkIdFields lists the request fields that may carry selected account ids,
// in lookup order.
var bulkIdFields = []string{
	"discordIds",
	"discordIds[]",
	"selectedDiscordIds",
	"selectedDiscordIds[]",
	"userIds",
	"userIds[]",
	"accountIds",
}

type GenerateResult struct {
	AccountID      string      `json:"accountId"`
	Generated      bool        `json:"generated"`
	GeneratedPlan  entity.Plan `json:"generatedPlan"`
	GeneratedToken string      `json:"generatedToken"`
	ExpiresAtIso   string      `json:"expiresAtIso"`
}

func GenerateKey(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mod := sl.Module("http.handlers.admin")

		logger := log.With(
			mod,
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)
		asJSON := isJSON(r)

		if handler == nil {
			logger.Error("key service not available")
			render.Status(r, http.StatusServiceUnavailable)
			render.JSON(w, r, response.Error("Key service not available"))
			return
		}
		if !allowed(w, r) {
			return
		}

		fields, err := readFields(r)
		if err != nil {
			logger.Error("read request", sl.Err(err))
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error(fmt.Sprintf("Invalid request: %v", err)))
			return
		}
		accountID := fields.first("discordId", "accountId")
		plan := fields.first("plan")
		logger = logger.With(
			sl.Account(accountID),
			slog.String("plan", plan),
		)

		if accountID == "" {
			logger.Warn("missing account id")
			missingAccount(w, r, asJSON)
			return
		}

		issued, err := handler.IssueOne(r.Context(), accountID, plan)
		if err != nil {
			if errors.Is(err, entity.ErrInvalidInput) {
				missingAccount(w, r, asJSON)
				return
			}
			logger.Error("generate paid key", sl.Err(err))
			internalError(w, r, asJSON, "Error while generating paid key. Check server logs.")
			return
		}
		logger.With(sl.Secret("token", issued.Token)).Info("paid key generated")

		if asJSON {
			render.JSON(w, r, response.Ok(GenerateResult{
				AccountID:      issued.AccountID,
				Generated:      true,
				GeneratedPlan:  issued.Plan,
				GeneratedToken: issued.Token,
				ExpiresAtIso:   issued.ExpiresAtIso,
			}))
			return
		}
		q := url.Values{}
		q.Set("user", issued.AccountID)
		q.Set("generated", "1")
		q.Set("generatedPlan", string(issued.Plan))
		q.Set("generatedToken", issued.Token)
		redirect(w, r, q)
	}
}

func BulkDelete(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mod := sl.Module("http.handlers.admin")

		logger := log.With(
			mod,
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)
		asJSON := isJSON(r)

		if handler == nil {
			logger.Error("key service not available")
			render.Status(r, http.StatusServiceUnavailable)
			render.JSON(w, r, response.Error("Key service not available"))
			return
		}
		if !allowed(w, r) {
			return
		}

		fields, err := readFields(r)
		if err != nil {
			logger.Error("read request", sl.Err(err))
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error(fmt.Sprintf("Invalid request: %v", err)))
			return
		}
		ids := fields.list(bulkIdFields...)
		logger = logger.With(slog.Int("selected", len(ids)))

		if len(ids) == 0 {
			logger.Warn("no account selected")
			if asJSON {
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, response.Error("No user selected"))
				return
			}
			q := url.Values{}
			q.Set("bulkDelete", "0")
			q.Set("msg", "NoUserSelected")
			redirect(w, r, q)
			return
		}

		totals := handler.BulkDelete(r.Context(), ids)
		logger.With(
			slog.Int("processed", totals.UsersProcessed),
			slog.Int("keys", totals.KeysRemoved),
		).Info("bulk delete done")

		if asJSON {
			render.JSON(w, r, response.Ok(totals))
			return
		}
		q := url.Values{}
		q.Set("bulkDelete", strconv.Itoa(totals.UsersProcessed))
		q.Set("bulkDeleteKeys", strconv.Itoa(totals.KeysRemoved))
		q.Set("bulkDeleteExec", strconv.Itoa(totals.SessionEntriesRemoved))
		q.Set("bulkDeleteProfiles", strconv.Itoa(totals.ProfilesRemoved))
		redirect(w, r, q)
	}
}

// Audit lists recent admin operations; ?limit=N caps the page.
func Audit(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mod := sl.Module("http.handlers.admin")

		logger := log.With(
			mod,
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		if handler == nil {
			logger.Error("key service not available")
			render.Status(r, http.StatusServiceUnavailable)
			render.JSON(w, r, response.Error("Key service not available"))
			return
		}

		limit := int64(defaultAuditLimit)
		if s := r.URL.Query().Get("limit"); s != "" {
			n, err := strconv.ParseInt(s, 10, 64)
			if err != nil || n <= 0 {
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, response.Error("Invalid limit"))
				return
			}
			limit = n
		}

		events, err := handler.RecentAudit(limit)
		if err != nil {
			logger.Error("read audit log", sl.Err(err))
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.Error(fmt.Sprintf("Audit log: %v", err)))
			return
		}

		render.JSON(w, r, response.Ok(events))
	}
}

func isJSON(r *http.Request) bool {
	return render.GetRequestContentType(r) == render.ContentTypeJSON
}

// allowed writes 403 for users without the admin role.
func allowed(w http.ResponseWriter, r *http.Request) bool {
	if cont.GetUser(r.Context()).IsAdmin() {
		return true
	}
	render.Status(r, http.StatusForbidden)
	render.JSON(w, r, response.Error("Forbidden: admin role required"))
	return false
}

func missingAccount(w http.ResponseWriter, r *http.Request, asJSON bool) {
	if asJSON {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("Missing discordId"))
		return
	}
	q := url.Values{}
	q.Set("msg", "MissingDiscordId")
	redirect(w, r, q)
}

func internalError(w http.ResponseWriter, r *http.Request, asJSON bool, message string) {
	if asJSON {
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error(message))
		return
	}
	http.Error(w, message, http.StatusInternalServerError)
}

func redirect(w http.ResponseWriter, r *http.Request, q url.Values) {
	http.Redirect(w, r, DashboardPath+"?"+q.Encode(), http.StatusFound)
}

// fields holds request values by name. A JSON scalar becomes a one-element
// list, a JSON array keeps its string and number elements.
type fields map[string][]string

func (f fields) first(names ...string) string {
	for _, name := range names {
		for _, v := range f[name] {
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		}
	}
	return ""
}

// list returns the values of the first named field that holds a non-blank one.
func (f fields) list(names ...string) []string {
	for _, name := range names {
		var out []string
		for _, v := range f[name] {
			if v = strings.TrimSpace(v); v != "" {
				out = append(out, v)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return nil
}

func readFields(r *http.Request) (fields, error) {
	if isJSON(r) {
		var body map[string]json.RawMessage
		if err := render.DecodeJSON(r.Body, &body); err != nil {
			return nil, err
		}
		out := make(fields, len(body))
		for k, raw := range body {
			if bytes.HasPrefix(bytes.TrimSpace(raw), []byte("[")) {
				out[k], _ = entity.StringList(raw)
				continue
			}
			if s := entity.ScalarString(raw); s != "" {
				out[k] = []string{s}
			}
		}
		return out, nil
	}
	if err := r.ParseForm(); err != nil {
		return nil, err
	}
	return fields(r.Form), nil
}
