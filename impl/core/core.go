package core

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"keyadmin/entity"
	"keyadmin/lib/api/cont"
	"keyadmin/lib/sl"

	"github.com/google/uuid"
)

type Issuer interface {
	Issue(ctx context.Context, accountID, plan string) (*entity.IssuedKey, error)
}

type Purger interface {
	DeleteAccount(ctx context.Context, accountID string) (*entity.PurgeResult, error)
}

type AuthService interface {
	UserByToken(token string) (*entity.User, error)
}

type AuditLog interface {
	SaveAuditEvent(event *entity.AuditEvent) error
}

// AuditReader is optionally implemented by the AuditLog.
type AuditReader interface {
	AuditEvents(limit int64) ([]*entity.AuditEvent, error)
}

type Notifier interface {
	NotifyAdmins(msg string)
}

type Metrics interface {
	KeyIssued(plan entity.Plan)
	AccountPurged(result *entity.PurgeResult)
}

const maxAuditPage = 100

// Core is the admin facade used by the HTTP layer. Operations are serialized
// within the process.
type Core struct {
	issuer   Issuer
	purger   Purger
	auth     AuthService
	audit    AuditLog
	reader   AuditReader
	notifier Notifier
	metrics  Metrics
	mu       sync.Mutex
	log      *slog.Logger
}

func New(issuer Issuer, purger Purger, log *slog.Logger) *Core {
	if issuer == nil || purger == nil {
		panic("core: issuer and purger are required")
	}
	return &Core{
		issuer: issuer,
		purger: purger,
		log:    log.With(sl.Module("core")),
	}
}

func (c *Core) SetAuthService(auth AuthService) {
	c.auth = auth
}

func (c *Core) SetAuditLog(audit AuditLog) {
	c.audit = audit
	c.reader, _ = audit.(AuditReader)
}

func (c *Core) SetNotifier(notifier Notifier) {
	c.notifier = notifier
}

func (c *Core) SetMetrics(metrics Metrics) {
	c.metrics = metrics
}

func (c *Core) AuthenticateByToken(token string) (*entity.User, error) {
	if c.auth == nil {
		return nil, fmt.Errorf("auth service not connected")
	}
	return c.auth.UserByToken(token)
}

// IssueOne mints a new paid key for one account. A started issue runs to
// the end even if the caller goes away.
func (c *Core) IssueOne(ctx context.Context, accountID, plan string) (*entity.IssuedKey, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ctx = context.WithoutCancel(ctx)

	issued, err := c.issuer.Issue(ctx, accountID, plan)

	event := &entity.AuditEvent{
		Operation:  entity.AuditIssue,
		AccountIds: []string{strings.TrimSpace(accountID)},
	}
	if err != nil {
		event.Error = err.Error()
	} else {
		event.Plan = issued.Plan
		event.Token = maskToken(issued.Token)
		if c.metrics != nil {
			c.metrics.KeyIssued(issued.Plan)
		}
	}
	c.saveAudit(ctx, event)

	if err != nil {
		return nil, err
	}
	return issued, nil
}

// BulkDelete removes the data of every account in ids, one after another.
// A failing account is logged and skipped; it does not count as processed.
// Request deadlines do not reach the engines: a purge stopped halfway would
// leave an account partially deleted.
func (c *Core) BulkDelete(ctx context.Context, ids []string) entity.BulkDeleteTotals {
	c.mu.Lock()
	defer c.mu.Unlock()
	ctx = context.WithoutCancel(ctx)

	ids = NormalizeIDs(ids)
	log := c.log.With(slog.Int("accounts", len(ids)))

	var totals entity.BulkDeleteTotals
	var failed []string
	for _, id := range ids {
		result, err := c.purger.DeleteAccount(ctx, id)
		if c.metrics != nil {
			c.metrics.AccountPurged(result)
		}
		if err != nil {
			log.Error("delete account", sl.Account(id), sl.Err(err))
			failed = append(failed, id)
			continue
		}
		totals.Add(result)
	}

	log.With(
		slog.Int("processed", totals.UsersProcessed),
		slog.Int("keys", totals.KeysRemoved),
		slog.Int("sessions", totals.SessionEntriesRemoved),
		slog.Int("profiles", totals.ProfilesRemoved),
		slog.Int("failed", len(failed)),
	).Info("bulk delete finished")

	if len(ids) > 0 {
		c.saveAudit(ctx, &entity.AuditEvent{
			Operation:  entity.AuditBulkDelete,
			AccountIds: ids,
			Totals:     &totals,
			Failed:     failed,
		})
		c.notify(bulkDeleteSummary(cont.Initiator(ctx), totals, failed))
	}
	return totals
}

// RecentAudit returns the latest admin operations, newest first.
func (c *Core) RecentAudit(limit int64) ([]*entity.AuditEvent, error) {
	if c.reader == nil {
		return nil, fmt.Errorf("audit log not connected")
	}
	if limit <= 0 || limit > maxAuditPage {
		limit = maxAuditPage
	}
	return c.reader.AuditEvents(limit)
}

// NormalizeIDs trims ids, drops blanks and duplicates, keeping first-seen order.
func NormalizeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func (c *Core) saveAudit(ctx context.Context, event *entity.AuditEvent) {
	if c.audit == nil {
		return
	}
	event.Id = uuid.NewString()
	event.Initiator = cont.Initiator(ctx)
	event.CreatedAt = time.Now()
	if err := c.audit.SaveAuditEvent(event); err != nil {
		c.log.With(
			slog.String("operation", event.Operation),
			slog.String("id", event.Id),
		).Error("save audit event", sl.Err(err))
	}
}

func (c *Core) notify(msg string) {
	if c.notifier == nil {
		return
	}
	c.notifier.NotifyAdmins(msg)
}

func bulkDeleteSummary(initiator string, t entity.BulkDeleteTotals, failed []string) string {
	msg := fmt.Sprintf("Bulk delete by %s\nusers: %d\nkeys: %d\nsessions: %d\nprofiles: %d",
		initiator, t.UsersProcessed, t.KeysRemoved, t.SessionEntriesRemoved, t.ProfilesRemoved)
	if len(failed) > 0 {
		msg += fmt.Sprintf("\nfailed: %s", strings.Join(failed, ", "))
	}
	return msg
}

// maskToken keeps the prefix and the last block of a token.
func maskToken(token string) string {
	i := strings.Index(token, "-")
	j := strings.LastIndex(token, "-")
	if i < 0 || i == j {
		if len(token) <= 4 {
			return "***"
		}
		return token[:4] + "***"
	}
	return token[:i+1] + "***" + token[j:]
}
