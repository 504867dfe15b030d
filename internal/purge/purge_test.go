package purge

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"keyadmin/entity"
	"keyadmin/internal/keystore"
	"keyadmin/internal/keystore/redisstore"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

var (
	ns      = entity.NewNamespace("exhub")
	fixed   = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	stamped = "2025-03-01T12:00:00.000Z"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type env struct {
	engine *Engine
	mr     *miniredis.Miniredis
	dir    string
}

func setup(t *testing.T, withRemote bool, mode MatchMode) *env {
	t.Helper()
	dir := t.TempDir()

	var remote keystore.Remote
	var mr *miniredis.Miniredis
	if withRemote {
		mr = miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		remote = redisstore.New(client)
	}

	e := New(keystore.New(remote, dir, discard()), ns, mode, discard())
	e.SetClock(func() time.Time { return fixed })
	return &env{engine: e, mr: mr, dir: dir}
}

func (e *env) set(t *testing.T, key, value string) {
	t.Helper()
	require.NoError(t, e.mr.Set(key, value))
}

func (e *env) items(t *testing.T, key string) []json.RawMessage {
	t.Helper()
	raw, err := e.mr.Get(key)
	require.NoError(t, err, key)
	var items []json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(raw), &items))
	return items
}

func (e *env) object(t *testing.T, key string) map[string]any {
	t.Helper()
	raw, err := e.mr.Get(key)
	require.NoError(t, err, key)
	var obj map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &obj))
	return obj
}

// snapshot captures every key of the remote, set members sorted.
func (e *env) snapshot(t *testing.T) map[string]string {
	t.Helper()
	out := map[string]string{}
	for _, k := range e.mr.Keys() {
		if e.mr.Type(k) == "set" {
			members, err := e.mr.Members(k)
			require.NoError(t, err)
			sort.Strings(members)
			b, _ := json.Marshal(members)
			out[k] = "set:" + string(b)
			continue
		}
		v, err := e.mr.Get(k)
		require.NoError(t, err)
		out[k] = v
	}
	return out
}

const (
	legacyMine1 = `{"token":"L1","discordId":"42","tier":"Paid Month","note":"keep me"}`
	legacyMine2 = `{"key":"L2","discordId":"42"}`
	legacyOther = `{"token":"O1","discordId":"7","valid":true}`
)

func seedMixed(t *testing.T, e *env) {
	e.set(t, ns.RedeemedKeys(), `[`+legacyMine1+`,`+legacyOther+`,`+legacyMine2+`]`)
	e.set(t, ns.DeletedKeys(), `[{"token":"OLD"}]`)
	e.set(t, ns.UserIndex(entity.ClassFree, "42"), `["F1"]`)
	e.set(t, ns.TokenRecord(entity.ClassFree, "F1"), `{"token":"F1","discordId":"42","valid":true,"deleted":false,"tier":"Free","extra":{"a":1}}`)
}

func TestDeleteAccount_LegacyAndFreeCredentials(t *testing.T) {
	env := setup(t, true, MatchAny)
	seedMixed(t, env)

	got, err := env.engine.DeleteAccount(context.Background(), "42")
	require.NoError(t, err)
	require.Equal(t, 3, got.RemovedCredentials)
	require.Equal(t, 2, got.LegacyCredentials)
	require.Equal(t, 1, got.FreeCredentials)
	require.Zero(t, got.PaidCredentials)

	freeIndex, err := env.mr.Get(ns.UserIndex(entity.ClassFree, "42"))
	require.NoError(t, err)
	require.Equal(t, `[]`, freeIndex)

	rec := env.object(t, ns.TokenRecord(entity.ClassFree, "F1"))
	require.Equal(t, true, rec["deleted"])
	require.Equal(t, false, rec["valid"])
	require.Equal(t, stamped, rec["deletedAt"])
	require.Equal(t, "42", rec["deletedByDiscordId"])
	require.Equal(t, map[string]any{"a": float64(1)}, rec["extra"])
	require.NotContains(t, rec, "deleteByDiscordId")

	redeemed := env.items(t, ns.RedeemedKeys())
	require.Len(t, redeemed, 1)
	require.Equal(t, legacyOther, string(redeemed[0]))

	deleted := env.items(t, ns.DeletedKeys())
	require.Len(t, deleted, 3)
	require.JSONEq(t, `{"token":"OLD"}`, string(deleted[0]))
	for i, token := range []string{"L1", "L2"} {
		var cred entity.Credential
		require.NoError(t, json.Unmarshal(deleted[i+1], &cred))
		require.Equal(t, token, cred.Token)

		var obj map[string]any
		require.NoError(t, json.Unmarshal(deleted[i+1], &obj))
		require.Equal(t, stamped, obj["deletedAt"])
		require.Equal(t, "discord-user-delete", obj["deleteReason"])
		require.Equal(t, "42", obj["deleteByDiscordId"])
		require.NotContains(t, obj, "deletedByDiscordId")
	}
	var first, second map[string]any
	require.NoError(t, json.Unmarshal(deleted[1], &first))
	require.Equal(t, "keep me", first["note"])
	require.NotContains(t, first, "key")
	require.NoError(t, json.Unmarshal(deleted[2], &second))
	require.Equal(t, "L2", second["key"])
	require.NotContains(t, second, "token")
	require.NotContains(t, second, "valid")

	// mirror files follow the remote
	data, err := os.ReadFile(filepath.Join(env.dir, entity.FileRedeemedKeys))
	require.NoError(t, err)
	require.JSONEq(t, `[`+legacyOther+`]`, string(data))
}

func TestDeleteAccount_ConservesLegacyArray(t *testing.T) {
	env := setup(t, true, MatchAny)
	env.set(t, ns.RedeemedKeys(), `[`+legacyMine1+`,null,"junk",`+legacyOther+`,`+legacyMine2+`]`)
	env.set(t, ns.DeletedKeys(), `[]`)

	got, err := env.engine.DeleteAccount(context.Background(), "42")
	require.NoError(t, err)

	redeemed := env.items(t, ns.RedeemedKeys())
	deleted := env.items(t, ns.DeletedKeys())
	require.Equal(t, 5, len(redeemed)+len(deleted))
	require.Equal(t, got.LegacyCredentials, len(deleted))
	require.Equal(t, []string{"null", `"junk"`, legacyOther}, []string{
		string(redeemed[0]), string(redeemed[1]), string(redeemed[2]),
	})
}

func TestDeleteAccount_Idempotent(t *testing.T) {
	env := setup(t, true, MatchAny)
	seedMixed(t, env)
	env.set(t, ns.DiscordUsers(), `{"42":{"name":"x"},"7":{"name":"y"}}`)
	env.set(t, ns.ExecUsers(), `{"L1":{"ip":"1"}}`)
	env.set(t, ns.ProfileIndex(), `["42","7"]`)
	_, err := env.mr.SAdd(ns.ExecIndex(), "s1")
	require.NoError(t, err)
	env.set(t, ns.ExecEntry("s1"), `{"discordId":"42"}`)

	ctx := context.Background()
	first, err := env.engine.DeleteAccount(ctx, "42")
	require.NoError(t, err)
	require.Equal(t, 3, first.RemovedCredentials)
	require.Equal(t, 2, first.RemovedSessionEntries)
	require.True(t, first.ProfileRemoved)

	before := env.snapshot(t)
	second, err := env.engine.DeleteAccount(ctx, "42")
	require.NoError(t, err)
	require.Equal(t, &entity.PurgeResult{AccountID: "42"}, second)
	require.Equal(t, before, env.snapshot(t))
}

func TestDeleteAccount_SessionsMatchAccountOrToken(t *testing.T) {
	env := setup(t, true, MatchAny)
	seedMixed(t, env)
	env.set(t, ns.ExecUsers(), `{"L1":{"ip":"1"},"L2":0,"O1":{"ip":"2"}}`)

	_, err := env.mr.SAdd(ns.ExecIndex(), "byAccount", "byToken", "byLegacyToken", "other", "dangling", "odd")
	require.NoError(t, err)
	env.set(t, ns.ExecEntry("byAccount"), `{"ownerDiscordId":"42","keyToken":"ZZ"}`)
	env.set(t, ns.ExecEntry("byToken"), `{"discordId":"99","keyToken":"F1"}`)
	env.set(t, ns.ExecEntry("byLegacyToken"), `{"keyId":"L2"}`)
	env.set(t, ns.ExecEntry("other"), `{"discordId":"7","token":"O1"}`)
	env.set(t, ns.ExecEntry("odd"), `"text"`)

	got, err := env.engine.DeleteAccount(context.Background(), "42")
	require.NoError(t, err)
	// one legacy entry (L2 holds a falsy value) plus three indexed ones
	require.Equal(t, 4, got.RemovedSessionEntries)

	members, err := env.mr.Members(ns.ExecIndex())
	require.NoError(t, err)
	sort.Strings(members)
	require.Equal(t, []string{"odd", "other"}, members)
	require.False(t, env.mr.Exists(ns.ExecEntry("byAccount")))
	require.False(t, env.mr.Exists(ns.ExecEntry("byToken")))
	require.False(t, env.mr.Exists(ns.ExecEntry("byLegacyToken")))
	require.True(t, env.mr.Exists(ns.ExecEntry("other")))

	require.Equal(t, map[string]any{"L2": float64(0), "O1": map[string]any{"ip": "2"}}, env.object(t, ns.ExecUsers()))
}

func TestDeleteAccount_SessionsMatchBoth(t *testing.T) {
	env := setup(t, true, MatchBoth)
	seedMixed(t, env)

	_, err := env.mr.SAdd(ns.ExecIndex(), "accountOnly", "tokenOnly", "both")
	require.NoError(t, err)
	env.set(t, ns.ExecEntry("accountOnly"), `{"discordId":"42","keyToken":"ZZ"}`)
	env.set(t, ns.ExecEntry("tokenOnly"), `{"discordId":"99","keyToken":"F1"}`)
	env.set(t, ns.ExecEntry("both"), `{"discordId":"42","token":"L1"}`)

	got, err := env.engine.DeleteAccount(context.Background(), "42")
	require.NoError(t, err)
	require.Equal(t, 1, got.RemovedSessionEntries)

	members, err := env.mr.Members(ns.ExecIndex())
	require.NoError(t, err)
	sort.Strings(members)
	require.Equal(t, []string{"accountOnly", "tokenOnly"}, members)
}

func TestDeleteAccount_Profiles(t *testing.T) {
	env := setup(t, true, MatchAny)
	env.set(t, ns.DiscordUsers(), `{"42":{"name":"x"},"7":{"name":"y"}}`)
	env.set(t, ns.Profile("42"), `{"username":"x"}`)
	env.set(t, ns.ProfileIndex(), `["7"," 42 ","","42",9]`)

	got, err := env.engine.DeleteAccount(context.Background(), "42")
	require.NoError(t, err)
	require.True(t, got.ProfileRemoved)
	require.Zero(t, got.RemovedCredentials)

	require.False(t, env.mr.Exists(ns.Profile("42")))
	idx, err := env.mr.Get(ns.ProfileIndex())
	require.NoError(t, err)
	require.JSONEq(t, `["7","9"]`, idx)
	require.Equal(t, map[string]any{"7": map[string]any{"name": "y"}}, env.object(t, ns.DiscordUsers()))
}

func TestDeleteAccount_IndexedProfileOnly(t *testing.T) {
	env := setup(t, true, MatchAny)
	env.set(t, ns.Profile("42"), `{"username":"x"}`)

	got, err := env.engine.DeleteAccount(context.Background(), "42")
	require.NoError(t, err)
	require.True(t, got.ProfileRemoved)
	require.False(t, env.mr.Exists(ns.ProfileIndex()))
}

func TestDeleteAccount_PaidIndexDanglingTokens(t *testing.T) {
	env := setup(t, true, MatchAny)
	env.set(t, ns.UserIndex(entity.ClassPaid, "42"), `["P1","GONE"," "]`)
	env.set(t, ns.TokenRecord(entity.ClassPaid, "P1"), `{"token":"P1","discordId":"42","valid":true}`)
	_, err := env.mr.SAdd(ns.ExecIndex(), "s")
	require.NoError(t, err)
	env.set(t, ns.ExecEntry("s"), `{"token":"GONE"}`)

	got, err := env.engine.DeleteAccount(context.Background(), "42")
	require.NoError(t, err)
	require.Equal(t, 1, got.PaidCredentials)
	require.Equal(t, 1, got.RemovedCredentials)
	// a token without a record still counts for session matching
	require.Equal(t, 1, got.RemovedSessionEntries)

	idx, err := env.mr.Get(ns.UserIndex(entity.ClassPaid, "42"))
	require.NoError(t, err)
	require.Equal(t, `[]`, idx)
	require.False(t, env.mr.Exists(ns.UserIndex(entity.ClassFree, "42")))
}

func TestDeleteAccount_NoRemoteUsesFiles(t *testing.T) {
	env := setup(t, false, MatchAny)
	write := func(name, body string) {
		require.NoError(t, os.WriteFile(filepath.Join(env.dir, name), []byte(body), 0o600))
	}
	read := func(name string) string {
		data, err := os.ReadFile(filepath.Join(env.dir, name))
		require.NoError(t, err)
		return string(data)
	}
	write(entity.FileRedeemedKeys, `[`+legacyMine1+`,`+legacyOther+`]`)
	write(entity.FileExecUsers, `{"L1":{"ip":"1"}}`)
	write(entity.FileDiscordUsers, `{"42":{"name":"x"}}`)

	got, err := env.engine.DeleteAccount(context.Background(), "42")
	require.NoError(t, err)
	require.Equal(t, &entity.PurgeResult{
		AccountID:             "42",
		RemovedCredentials:    1,
		LegacyCredentials:     1,
		RemovedSessionEntries: 1,
		ProfileRemoved:        true,
	}, got)

	require.JSONEq(t, `[`+legacyOther+`]`, read(entity.FileRedeemedKeys))
	require.JSONEq(t, `{}`, read(entity.FileExecUsers))
	require.JSONEq(t, `{}`, read(entity.FileDiscordUsers))

	var deleted []map[string]any
	require.NoError(t, json.Unmarshal([]byte(read(entity.FileDeletedKeys)), &deleted))
	require.Len(t, deleted, 1)
	require.Equal(t, "L1", deleted[0]["token"])
}

func TestDeleteAccount_BrokenLegacyArrayIsNotOverwritten(t *testing.T) {
	env := setup(t, true, MatchAny)
	env.set(t, ns.RedeemedKeys(), `{"unexpected":"shape"}`)
	env.set(t, ns.UserIndex(entity.ClassFree, "42"), `["F1"]`)
	env.set(t, ns.TokenRecord(entity.ClassFree, "F1"), `{"token":"F1"}`)

	got, err := env.engine.DeleteAccount(context.Background(), "42")
	require.NoError(t, err)
	require.Equal(t, 1, got.RemovedCredentials)

	raw, err := env.mr.Get(ns.RedeemedKeys())
	require.NoError(t, err)
	require.Equal(t, `{"unexpected":"shape"}`, raw)
	require.False(t, env.mr.Exists(ns.DeletedKeys()))
}

func TestDeleteAccount_LegacyMatchesDiscordIdOnly(t *testing.T) {
	env := setup(t, true, MatchAny)
	byOwner := `{"token":"A","ownerDiscordId":"123"}`
	byAccount := `{"token":"B","discordId":"","accountId":"123"}`
	env.set(t, ns.RedeemedKeys(), `[`+byOwner+`,{"token":"C","discordId":"123"},`+byAccount+`]`)

	got, err := env.engine.DeleteAccount(context.Background(), "123")
	require.NoError(t, err)
	require.Equal(t, 1, got.LegacyCredentials)
	require.Equal(t, 1, got.RemovedCredentials)

	redeemed := env.items(t, ns.RedeemedKeys())
	require.Len(t, redeemed, 2)
	require.JSONEq(t, byOwner, string(redeemed[0]))
	require.JSONEq(t, byAccount, string(redeemed[1]))

	deleted := env.items(t, ns.DeletedKeys())
	require.Len(t, deleted, 1)
	var cred entity.Credential
	require.NoError(t, json.Unmarshal(deleted[0], &cred))
	require.Equal(t, "C", cred.Token)
}

func TestDeleteAccount_BlankIndexEntriesAreReset(t *testing.T) {
	env := setup(t, true, MatchAny)
	env.set(t, ns.UserIndex(entity.ClassFree, "42"), `[""]`)
	env.set(t, ns.UserIndex(entity.ClassPaid, "42"), `[" ",null]`)

	got, err := env.engine.DeleteAccount(context.Background(), "42")
	require.NoError(t, err)
	require.Zero(t, got.RemovedCredentials)

	for _, class := range entity.Classes() {
		raw, err := env.mr.Get(ns.UserIndex(class, "42"))
		require.NoError(t, err)
		require.Equal(t, `[]`, raw, class)
	}
}

func TestDeleteAccount_BlankID(t *testing.T) {
	env := setup(t, true, MatchAny)
	_, err := env.engine.DeleteAccount(context.Background(), " \t")
	require.ErrorIs(t, err, entity.ErrInvalidInput)
	require.Empty(t, env.mr.Keys())
}

func TestDeleteAccount_CancelledContext(t *testing.T) {
	env := setup(t, true, MatchAny)
	seedMixed(t, env)
	before := env.snapshot(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := env.engine.DeleteAccount(ctx, "42")
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, before, env.snapshot(t))
}

func TestParseMatchMode(t *testing.T) {
	require.Equal(t, MatchBoth, ParseMatchMode(" BOTH "))
	require.Equal(t, MatchAny, ParseMatchMode("any"))
	require.Equal(t, MatchAny, ParseMatchMode(""))
	require.Equal(t, MatchAny, ParseMatchMode("either"))
}
