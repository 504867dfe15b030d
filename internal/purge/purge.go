// Package purge removes everything an account owns across both storage
// schemas: legacy credential arrays, session and profile objects, indexed
// credentials, the session index and the profile index.
package purge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"keyadmin/entity"
	"keyadmin/internal/keystore"
	"keyadmin/lib/clock"
	"keyadmin/lib/sl"
)

// MatchMode decides how an indexed session entry is attributed to the account.
type MatchMode string

const (
	// MatchAny removes an entry when its account field or its token matches.
	MatchAny MatchMode = "any"
	// MatchBoth requires the account field and the token to match.
	MatchBoth MatchMode = "both"
)

func ParseMatchMode(s string) MatchMode {
	if MatchMode(strings.ToLower(strings.TrimSpace(s))) == MatchBoth {
		return MatchBoth
	}
	return MatchAny
}

type Store interface {
	HasRemote() bool
	Load(ctx context.Context, blob keystore.Blob) keystore.Loaded
	Save(ctx context.Context, blob keystore.Blob, value any)
	Get(ctx context.Context, key string) (json.RawMessage, bool)
	Set(ctx context.Context, key string, value any)
	Delete(ctx context.Context, key string)
	SetMembers(ctx context.Context, key string) []string
	SetRemove(ctx context.Context, key, member string)
}

type Engine struct {
	store Store
	ns    entity.Namespace
	blobs keystore.LegacyBlobs
	mode  MatchMode
	now   func() time.Time
	log   *slog.Logger
}

func New(store Store, ns entity.Namespace, mode MatchMode, log *slog.Logger) *Engine {
	if mode != MatchBoth {
		mode = MatchAny
	}
	return &Engine{
		store: store,
		ns:    ns,
		blobs: keystore.Legacy(ns),
		mode:  mode,
		now:   time.Now,
		log:   log.With(sl.Module("purge")),
	}
}

// SetClock replaces the time source used for deletion stamps.
func (e *Engine) SetClock(now func() time.Time) {
	if now != nil {
		e.now = now
	}
}

// legacy holds the four legacy blobs for one pass. A blob that could not be
// decoded is left out of the final save so that its stored value survives.
type legacy struct {
	redeemed   []json.RawMessage
	deleted    []json.RawMessage
	exec       map[string]json.RawMessage
	profiles   map[string]json.RawMessage
	arraysOK   bool
	execOK     bool
	profilesOK bool
}

// pass is the working state of one DeleteAccount call.
type pass struct {
	accountID string
	at        string
	tokens    map[string]struct{}
	legacy    legacy
	result    entity.PurgeResult
}

func (p *pass) addToken(t string) {
	if t = strings.TrimSpace(t); t != "" {
		p.tokens[t] = struct{}{}
	}
}

func (p *pass) hasToken(t string) bool {
	_, ok := p.tokens[t]
	return ok
}

type stage struct {
	name string
	run  func(ctx context.Context, p *pass) error
}

// DeleteAccount runs the deletion stages in order. A failing stage is logged
// and the next one still runs; a cancelled context stops the pass.
func (e *Engine) DeleteAccount(ctx context.Context, accountID string) (*entity.PurgeResult, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return nil, fmt.Errorf("delete account: account id: %w", entity.ErrInvalidInput)
	}

	p := &pass{
		accountID: accountID,
		at:        clock.ISO(e.now()),
		tokens:    make(map[string]struct{}),
		result:    entity.PurgeResult{AccountID: accountID},
	}
	log := e.log.With(sl.Account(accountID))
	log.Debug("deleting account data")

	stages := []stage{
		{"legacy credentials", e.retireLegacyCredentials},
		{"legacy sessions and profile", e.removeLegacySessions},
		{"indexed credentials", e.tombstoneIndexed},
		{"indexed sessions", e.removeIndexedSessions},
		{"indexed profile", e.removeIndexedProfile},
		{"persist legacy", e.persistLegacy},
	}
	for _, s := range stages {
		if err := ctx.Err(); err != nil {
			log.Warn("account deletion interrupted", slog.String("stage", s.name), sl.Err(err))
			return nil, fmt.Errorf("delete account %s: %w", accountID, err)
		}
		if err := s.run(ctx, p); err != nil {
			log.Error("deletion stage failed", slog.String("stage", s.name), sl.Err(err))
		}
	}

	r := &p.result
	r.RemovedCredentials = r.LegacyCredentials + r.FreeCredentials + r.PaidCredentials
	log.Info("account data deleted",
		slog.Int("keys", r.RemovedCredentials),
		slog.Int("legacy", r.LegacyCredentials),
		slog.Int("free", r.FreeCredentials),
		slog.Int("paid", r.PaidCredentials),
		slog.Int("sessions", r.RemovedSessionEntries),
		slog.Bool("profile", r.ProfileRemoved),
	)
	return r, nil
}

// retireLegacyCredentials moves the records whose discordId equals the
// account id from the redeemed array to the deleted array. Everything else,
// including records owned only through ownerDiscordId or accountId, is kept
// byte for byte.
func (e *Engine) retireLegacyCredentials(ctx context.Context, p *pass) error {
	l := &p.legacy
	redeemed := e.store.Load(ctx, e.blobs.Redeemed)
	deleted := e.store.Load(ctx, e.blobs.Deleted)

	var okR, okD bool
	l.redeemed, okR = keystore.Decode(redeemed, []json.RawMessage{})
	l.deleted, okD = keystore.Decode(deleted, []json.RawMessage{})
	if !okR || !okD {
		return fmt.Errorf("legacy key arrays: redeemed from %s ok=%t, deleted from %s ok=%t",
			redeemed.Source, okR, deleted.Source, okD)
	}
	l.arraysOK = true

	kept := make([]json.RawMessage, 0, len(l.redeemed))
	for _, item := range l.redeemed {
		var cred entity.Credential
		if entity.IsNull(item) || json.Unmarshal(item, &cred) != nil || cred.LegacyOwner != p.accountID {
			kept = append(kept, item)
			continue
		}
		p.addToken(cred.Token)
		cred.Retire(p.at, entity.DeleteReasonAccount, p.accountID)
		raw, err := json.Marshal(cred)
		if err != nil {
			return fmt.Errorf("encode retired key: %w", err)
		}
		l.deleted = append(l.deleted, raw)
		p.result.LegacyCredentials++
	}
	l.redeemed = kept
	return nil
}

// removeLegacySessions drops legacy session entries keyed by a collected
// token, then the legacy profile.
func (e *Engine) removeLegacySessions(ctx context.Context, p *pass) error {
	l := &p.legacy
	var errs []string

	exec := e.store.Load(ctx, e.blobs.ExecUsers)
	if l.exec, l.execOK = keystore.Decode(exec, map[string]json.RawMessage{}); l.execOK {
		for t := range p.tokens {
			if v, ok := l.exec[t]; ok && entity.Truthy(v) {
				delete(l.exec, t)
				p.result.RemovedSessionEntries++
			}
		}
	} else {
		errs = append(errs, "exec users from "+exec.Source.String()+" is not an object")
	}

	profiles := e.store.Load(ctx, e.blobs.DiscordUsers)
	if l.profiles, l.profilesOK = keystore.Decode(profiles, map[string]json.RawMessage{}); l.profilesOK {
		if v, ok := l.profiles[p.accountID]; ok && entity.Truthy(v) {
			delete(l.profiles, p.accountID)
			p.result.ProfileRemoved = true
		}
	} else {
		errs = append(errs, "discord users from "+profiles.Source.String()+" is not an object")
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// tombstoneIndexed soft-deletes the account's Free then Paid records and
// empties both user indexes.
func (e *Engine) tombstoneIndexed(ctx context.Context, p *pass) error {
	if !e.store.HasRemote() {
		return nil
	}
	for _, class := range entity.Classes() {
		n := e.tombstoneClass(ctx, p, class)
		if class == entity.ClassFree {
			p.result.FreeCredentials = n
		} else {
			p.result.PaidCredentials = n
		}
	}
	return nil
}

func (e *Engine) tombstoneClass(ctx context.Context, p *pass, class entity.TierClass) int {
	indexKey := e.ns.UserIndex(class, p.accountID)
	raw, ok := e.store.Get(ctx, indexKey)
	if !ok {
		return 0
	}
	// any list is reset, even one holding only blank entries
	tokens, ok := entity.StringList(raw)
	if !ok {
		return 0
	}

	removed := 0
	for _, t := range tokens {
		p.addToken(t)
		recordKey := e.ns.TokenRecord(class, t)
		rec, ok := e.store.Get(ctx, recordKey)
		if !ok {
			continue
		}
		var cred entity.Credential
		if err := json.Unmarshal(rec, &cred); err != nil {
			e.log.Warn("skipping unreadable key record", sl.Key(recordKey), sl.Err(err))
			continue
		}
		cred.Generation = entity.Indexed
		cred.Tombstone(p.at, p.accountID)
		e.store.Set(ctx, recordKey, cred)
		removed++
	}
	e.store.Set(ctx, indexKey, []string{})
	return removed
}

// removeIndexedSessions walks the session id set. Ids whose entry is gone are
// pruned from the set; matching entries are deleted together with their id.
func (e *Engine) removeIndexedSessions(ctx context.Context, p *pass) error {
	if !e.store.HasRemote() {
		return nil
	}
	indexKey := e.ns.ExecIndex()
	for _, id := range e.store.SetMembers(ctx, indexKey) {
		entryKey := e.ns.ExecEntry(id)
		raw, ok := e.store.Get(ctx, entryKey)
		if !ok {
			e.store.SetRemove(ctx, indexKey, id)
			continue
		}
		var entry entity.SessionEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			continue
		}
		entry.ID = id
		if !e.matches(p, entry) {
			continue
		}
		e.store.Delete(ctx, entryKey)
		e.store.SetRemove(ctx, indexKey, id)
		p.result.RemovedSessionEntries++
	}
	return nil
}

func (e *Engine) matches(p *pass, entry entity.SessionEntry) bool {
	byAccount := entry.AccountID != "" && entry.AccountID == p.accountID
	byToken := entry.Token != "" && p.hasToken(entry.Token)
	if e.mode == MatchBoth {
		return byAccount && byToken
	}
	return byAccount || byToken
}

// removeIndexedProfile deletes the profile record and rewrites the profile
// index without the account.
func (e *Engine) removeIndexedProfile(ctx context.Context, p *pass) error {
	if !e.store.HasRemote() {
		return nil
	}
	profileKey := e.ns.Profile(p.accountID)
	if raw, ok := e.store.Get(ctx, profileKey); ok && entity.Truthy(raw) {
		p.result.ProfileRemoved = true
	}
	e.store.Delete(ctx, profileKey)

	raw, ok := e.store.Get(ctx, e.ns.ProfileIndex())
	if !ok {
		return nil
	}
	ids, ok := entity.StringList(raw)
	if !ok {
		return nil
	}
	kept := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != p.accountID {
			kept = append(kept, id)
		}
	}
	e.store.Set(ctx, e.ns.ProfileIndex(), kept)
	return nil
}

// persistLegacy writes back every legacy blob that was read successfully.
func (e *Engine) persistLegacy(ctx context.Context, p *pass) error {
	l := &p.legacy
	if l.arraysOK {
		e.store.Save(ctx, e.blobs.Redeemed, l.redeemed)
		e.store.Save(ctx, e.blobs.Deleted, l.deleted)
	}
	if l.execOK {
		e.store.Save(ctx, e.blobs.ExecUsers, l.exec)
	}
	if l.profilesOK {
		e.store.Save(ctx, e.blobs.DiscordUsers, l.profiles)
	}
	return nil
}
