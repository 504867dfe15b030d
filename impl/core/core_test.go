package core

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"keyadmin/entity"
	"keyadmin/lib/api/cont"

	"github.com/stretchr/testify/require"
)

type fakePurger struct {
	calls   []string
	results map[string]*entity.PurgeResult
	fail    map[string]error
	ctxErrs []error
}

func (f *fakePurger) DeleteAccount(ctx context.Context, id string) (*entity.PurgeResult, error) {
	f.calls = append(f.calls, id)
	f.ctxErrs = append(f.ctxErrs, ctx.Err())
	if err := f.fail[id]; err != nil {
		return nil, err
	}
	if r, ok := f.results[id]; ok {
		return r, nil
	}
	return &entity.PurgeResult{AccountID: id}, nil
}

type fakeIssuer struct {
	err error
}

func (f *fakeIssuer) Issue(_ context.Context, id, plan string) (*entity.IssuedKey, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &entity.IssuedKey{AccountID: id, Token: "EXHUB-AAAA-BBBB-CCCC", Plan: entity.Plan(plan)}, nil
}

type fakeAudit struct {
	events []*entity.AuditEvent
	err    error
}

func (f *fakeAudit) SaveAuditEvent(e *entity.AuditEvent) error {
	f.events = append(f.events, e)
	return f.err
}

type fakeNotifier struct {
	messages []string
}

func (f *fakeNotifier) NotifyAdmins(msg string) { f.messages = append(f.messages, msg) }

type fakeMetrics struct {
	issued []entity.Plan
	purged []*entity.PurgeResult
}

func (f *fakeMetrics) KeyIssued(p entity.Plan) { f.issued = append(f.issued, p) }
func (f *fakeMetrics) AccountPurged(r *entity.PurgeResult) { f.purged = append(f.purged, r) }

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNormalizeIDs(t *testing.T) {
	require.Equal(t, []string{"1", "2", "3"}, NormalizeIDs([]string{" 1", "", "2", "1", "  ", "3 ", "2"}))
	require.Empty(t, NormalizeIDs(nil))
}

func TestBulkDelete_AggregatesInOrder(t *testing.T) {
	purger := &fakePurger{results: map[string]*entity.PurgeResult{
		"a": {AccountID: "a", RemovedCredentials: 3, RemovedSessionEntries: 2, ProfileRemoved: true},
		"b": {AccountID: "b", RemovedCredentials: 1},
	}}
	c := New(&fakeIssuer{}, purger, discard())

	totals := c.BulkDelete(context.Background(), []string{" a ", "b", "a", "", "c"})
	require.Equal(t, []string{"a", "b", "c"}, purger.calls)
	require.Equal(t, entity.BulkDeleteTotals{
		UsersProcessed:        3,
		KeysRemoved:           4,
		SessionEntriesRemoved: 2,
		ProfilesRemoved:       1,
	}, totals)
}

func TestBulkDelete_IgnoresCancelledRequest(t *testing.T) {
	purger := &fakePurger{}
	audit := &fakeAudit{}
	c := New(&fakeIssuer{}, purger, discard())
	c.SetAuditLog(audit)

	ctx, cancel := context.WithCancel(cont.PutUser(context.Background(), &entity.User{Username: "root"}))
	cancel()

	totals := c.BulkDelete(ctx, []string{"a", "b"})
	require.Equal(t, []string{"a", "b"}, purger.calls)
	require.Equal(t, []error{nil, nil}, purger.ctxErrs)
	require.Equal(t, 2, totals.UsersProcessed)
	require.Len(t, audit.events, 1)
	require.Equal(t, "root", audit.events[0].Initiator)
}

func TestBulkDelete_FailuresAreSkipped(t *testing.T) {
	purger := &fakePurger{fail: map[string]error{"bad": errors.New("boom")}}
	audit := &fakeAudit{err: errors.New("mongo down")}
	notifier := &fakeNotifier{}
	metrics := &fakeMetrics{}
	c := New(&fakeIssuer{}, purger, discard())
	c.SetAuditLog(audit)
	c.SetNotifier(notifier)
	c.SetMetrics(metrics)

	user := &entity.User{Username: "root"}
	ctx := cont.PutUser(context.Background(), user)
	totals := c.BulkDelete(ctx, []string{"ok", "bad", "ok2"})

	require.Equal(t, []string{"ok", "bad", "ok2"}, purger.calls)
	require.Equal(t, 2, totals.UsersProcessed)

	require.Len(t, audit.events, 1)
	ev := audit.events[0]
	require.Equal(t, entity.AuditBulkDelete, ev.Operation)
	require.Equal(t, "root", ev.Initiator)
	require.Equal(t, []string{"ok", "bad", "ok2"}, ev.AccountIds)
	require.Equal(t, []string{"bad"}, ev.Failed)
	require.NotEmpty(t, ev.Id)
	require.Equal(t, 2, ev.Totals.UsersProcessed)

	require.Len(t, notifier.messages, 1)
	require.Contains(t, notifier.messages[0], "Bulk delete by root")
	require.Contains(t, notifier.messages[0], "failed: bad")

	require.Len(t, metrics.purged, 3)
	require.Nil(t, metrics.purged[1])
}

func TestBulkDelete_EmptySelection(t *testing.T) {
	purger := &fakePurger{}
	audit := &fakeAudit{}
	notifier := &fakeNotifier{}
	c := New(&fakeIssuer{}, purger, discard())
	c.SetAuditLog(audit)
	c.SetNotifier(notifier)

	totals := c.BulkDelete(context.Background(), []string{" ", ""})
	require.Zero(t, totals)
	require.Empty(t, purger.calls)
	require.Empty(t, audit.events)
	require.Empty(t, notifier.messages)
}

func TestIssueOne(t *testing.T) {
	audit := &fakeAudit{}
	metrics := &fakeMetrics{}
	c := New(&fakeIssuer{}, &fakePurger{}, discard())
	c.SetAuditLog(audit)
	c.SetMetrics(metrics)

	got, err := c.IssueOne(context.Background(), "7", "lifetime")
	require.NoError(t, err)
	require.Equal(t, "EXHUB-AAAA-BBBB-CCCC", got.Token)

	require.Equal(t, []entity.Plan{entity.PlanLifetime}, metrics.issued)
	require.Len(t, audit.events, 1)
	require.Equal(t, entity.AuditIssue, audit.events[0].Operation)
	require.Equal(t, "anonymous", audit.events[0].Initiator)
	require.Equal(t, "EXHUB-***-CCCC", audit.events[0].Token)
	require.Equal(t, []string{"7"}, audit.events[0].AccountIds)
}

func TestIssueOne_ErrorIsAudited(t *testing.T) {
	audit := &fakeAudit{}
	metrics := &fakeMetrics{}
	c := New(&fakeIssuer{err: entity.ErrInvalidInput}, &fakePurger{}, discard())
	c.SetAuditLog(audit)
	c.SetMetrics(metrics)

	_, err := c.IssueOne(context.Background(), "", "month")
	require.ErrorIs(t, err, entity.ErrInvalidInput)
	require.Empty(t, metrics.issued)
	require.Len(t, audit.events, 1)
	require.NotEmpty(t, audit.events[0].Error)
}

type readableAudit struct {
	fakeAudit
	limit int64
}

func (r *readableAudit) AuditEvents(limit int64) ([]*entity.AuditEvent, error) {
	r.limit = limit
	return r.events, nil
}

func TestRecentAudit(t *testing.T) {
	c := New(&fakeIssuer{}, &fakePurger{}, discard())
	_, err := c.RecentAudit(10)
	require.Error(t, err)

	// write-only logs cannot be listed
	c.SetAuditLog(&fakeAudit{})
	_, err = c.RecentAudit(10)
	require.Error(t, err)

	audit := &readableAudit{}
	c.SetAuditLog(audit)
	_, err = c.IssueOne(context.Background(), "1", "month")
	require.NoError(t, err)

	events, err := c.RecentAudit(0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.EqualValues(t, 100, audit.limit)

	_, err = c.RecentAudit(5)
	require.NoError(t, err)
	require.EqualValues(t, 5, audit.limit)
}

func TestAuthenticateByToken(t *testing.T) {
	c := New(&fakeIssuer{}, &fakePurger{}, discard())
	_, err := c.AuthenticateByToken("x")
	require.Error(t, err)
}

func TestMaskToken(t *testing.T) {
	require.Equal(t, "EXHUB-***-CCCC", maskToken("EXHUB-AAAA-BBBB-CCCC"))
	require.Equal(t, "abcd***", maskToken("abcdefgh"))
	require.Equal(t, "***", maskToken("abc"))
	require.Equal(t, "***", maskToken("A-B"))
}
