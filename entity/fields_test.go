package entity

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTruthy(t *testing.T) {
	for _, raw := range []string{"", "null", "false", "0", `""`, "0.0"} {
		require.False(t, Truthy([]byte(raw)), raw)
	}
	for _, raw := range []string{"true", "1", `"x"`, "{}", "[]"} {
		require.True(t, Truthy([]byte(raw)), raw)
	}
}

func TestScalarString(t *testing.T) {
	require.Equal(t, "abc", ScalarString([]byte(`" abc "`)))
	require.Equal(t, "123456789012345678", ScalarString([]byte(`123456789012345678`)))
	require.Equal(t, "", ScalarString([]byte(`0`)))
	require.Equal(t, "", ScalarString([]byte(`true`)))
	require.Equal(t, "", ScalarString([]byte(`{"a":1}`)))
}

func TestStringList(t *testing.T) {
	list, ok := StringList([]byte(`[" a ", "", null, 12, {"x":1}, "b"]`))
	require.True(t, ok)
	require.Equal(t, []string{"a", "12", "b"}, list)

	_, ok = StringList([]byte(`{"a":1}`))
	require.False(t, ok)
	_, ok = StringList(nil)
	require.False(t, ok)
}

func TestDecodeObject(t *testing.T) {
	obj, ok := DecodeObject([]byte(` {"a":1} `))
	require.True(t, ok)
	n, ok := obj.Int64("a")
	require.True(t, ok)
	require.EqualValues(t, 1, n)

	_, ok = DecodeObject([]byte("null"))
	require.False(t, ok)
	_, ok = DecodeObject([]byte("[]"))
	require.False(t, ok)
}

func TestNamespace(t *testing.T) {
	ns := NewNamespace("")
	require.Equal(t, "exhub:freekey:user:42", ns.UserIndex(ClassFree, "42"))
	require.Equal(t, "exhub:paidkey:token:T", ns.TokenRecord(ClassPaid, "T"))
	require.Equal(t, "exhub:exec-users:index", ns.ExecIndex())
	require.Equal(t, "exhub:exec-user:e1", ns.ExecEntry("e1"))
	require.Equal(t, "exhub:discord:userprofile:42", ns.Profile("42"))
	require.Equal(t, "exhub:discord:userindex", ns.ProfileIndex())
	require.Equal(t, "exhub:global-key-config", ns.LegacyGlobalConfig())

	require.Equal(t, "test:redeemed-keys", NewNamespace("test:").RedeemedKeys())
}

func TestPlanTier(t *testing.T) {
	require.Equal(t, TierPaidLifetime, PlanLifetime.Tier())
	require.Equal(t, TierPaidMonth, Plan("weird").Tier())
	require.Equal(t, ClassPaid, TierPaid3Month.Class())
	require.Equal(t, ClassFree, TierFree.Class())
}

func TestBulkDeleteTotals_Add(t *testing.T) {
	var totals BulkDeleteTotals
	totals.Add(&PurgeResult{RemovedCredentials: 3, RemovedSessionEntries: 1, ProfileRemoved: true})
	totals.Add(&PurgeResult{})
	totals.Add(nil)
	require.Equal(t, BulkDeleteTotals{UsersProcessed: 2, KeysRemoved: 3, SessionEntriesRemoved: 1, ProfilesRemoved: 1}, totals)
}
