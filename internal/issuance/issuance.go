// Package issuance mints paid credentials for an account and records them in
// whichever schema the store currently serves.
package issuance

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"keyadmin/entity"
	"keyadmin/internal/keystore"
	"keyadmin/internal/plan"
	"keyadmin/lib/clock"
	"keyadmin/lib/sl"
)

const (
	fallbackDays = 30
	msPerDay     = int64(24 * time.Hour / time.Millisecond)

	origin      = "admin-dashboard"
	localStore  = "local-redeemed"
	issuedClass = entity.ClassPaid
)

type Store interface {
	HasRemote() bool
	Get(ctx context.Context, key string) (json.RawMessage, bool)
	Set(ctx context.Context, key string, value any)
	Load(ctx context.Context, blob keystore.Blob) keystore.Loaded
	Save(ctx context.Context, blob keystore.Blob, value any)
}

type Resolver interface {
	Resolve(ctx context.Context) plan.Durations
}

type Minter interface {
	Unique(ctx context.Context, class entity.TierClass, exists func(ctx context.Context, token string) bool) (string, error)
}

type Engine struct {
	store    Store
	resolver Resolver
	minter   Minter
	ns       entity.Namespace
	blobs    keystore.LegacyBlobs
	now      func() time.Time
	log      *slog.Logger
}

func New(store Store, resolver Resolver, minter Minter, ns entity.Namespace, log *slog.Logger) *Engine {
	return &Engine{
		store:    store,
		resolver: resolver,
		minter:   minter,
		ns:       ns,
		blobs:    keystore.Legacy(ns),
		now:      time.Now,
		log:      log.With(sl.Module("issuance")),
	}
}

// SetClock replaces the time source.
func (e *Engine) SetClock(now func() time.Time) {
	if now != nil {
		e.now = now
	}
}

// Issue creates a new paid credential for accountID. Every call mints a new
// grant, existing credentials of the account are left alone.
func (e *Engine) Issue(ctx context.Context, accountID, rawPlan string) (*entity.IssuedKey, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return nil, fmt.Errorf("issue key: account id: %w", entity.ErrInvalidInput)
	}
	p := plan.Normalize(rawPlan)

	days := e.resolver.Resolve(ctx).Days(p)
	if days <= 0 {
		days = fallbackDays
	}
	days = min(days, plan.MaxDays)

	var exists func(context.Context, string) bool
	if e.store.HasRemote() {
		exists = e.tokenExists
	}
	token, err := e.minter.Unique(ctx, issuedClass, exists)
	if err != nil {
		return nil, fmt.Errorf("issue key: generate token: %w", err)
	}

	now := e.now()
	afterMs := int64(days) * msPerDay
	expiresAtMs := clock.Millis(now) + afterMs
	expiresAt := clock.FromMillis(expiresAtMs)

	record := &entity.Credential{
		Token:          token,
		OwnerAccountID: accountID,
		Plan:           p,
		Tier:           p.Tier(),
		Free:           false,
		Paid:           true,
		Valid:          true,
		Deleted:        false,
		Provider:       origin,
		Source:         origin,
		CreatedAt:      clock.ISO(now),
		CreatedAtMs:    clock.Millis(now),
		ExpiresAt:      clock.ISO(expiresAt),
		ExpiresAtMs:    expiresAtMs,
		ExpiresAfterMs: afterMs,
		Generation:     entity.Indexed,
	}

	log := e.log.With(
		sl.Account(accountID),
		slog.String("plan", string(p)),
		sl.Secret("token", token),
	)

	if e.store.HasRemote() {
		e.store.Set(ctx, e.ns.TokenRecord(issuedClass, token), record)
		e.appendToIndex(ctx, accountID, token)
		log.Info("paid key issued", slog.Int("days", days))
	} else {
		if err = e.appendLegacy(ctx, record); err != nil {
			return nil, fmt.Errorf("issue key: %w", err)
		}
		log.Info("paid key issued to local file", slog.Int("days", days))
	}

	return &entity.IssuedKey{
		AccountID:    accountID,
		Token:        token,
		Plan:         p,
		Tier:         record.Tier,
		ExpiresAtMs:  expiresAtMs,
		ExpiresAtIso: record.ExpiresAt,
		Record:       record,
	}, nil
}

func (e *Engine) tokenExists(ctx context.Context, token string) bool {
	for _, class := range entity.Classes() {
		if _, ok := e.store.Get(ctx, e.ns.TokenRecord(class, token)); ok {
			return true
		}
	}
	return false
}

// appendToIndex adds token to the account's paid index unless present.
// Existing entries are written back verbatim.
func (e *Engine) appendToIndex(ctx context.Context, accountID, token string) {
	key := e.ns.UserIndex(issuedClass, accountID)

	var items []json.RawMessage
	if raw, ok := e.store.Get(ctx, key); ok {
		if err := json.Unmarshal(raw, &items); err != nil {
			e.log.Warn("user index is not a list, resetting", sl.Key(key))
			items = nil
		}
	}
	for _, item := range items {
		if entity.ScalarString(item) == token {
			e.store.Set(ctx, key, items)
			return
		}
	}
	quoted, _ := json.Marshal(token)
	items = append(items, quoted)
	e.store.Set(ctx, key, items)
}

// appendLegacy stores the record in the redeemed blob. Only the mirror file
// is written because no remote is configured on this path.
func (e *Engine) appendLegacy(ctx context.Context, record *entity.Credential) error {
	loaded := e.store.Load(ctx, e.blobs.Redeemed)
	items, ok := keystore.Decode(loaded, []json.RawMessage{})
	if !ok {
		return fmt.Errorf("redeemed keys from %s: not a list", loaded.Source)
	}

	record.Store = localStore
	record.Legacy = true
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	e.store.Save(ctx, e.blobs.Redeemed, append(items, raw))
	return nil
}
