package entity

import (
	"encoding/json"
	"fmt"
)

// Generation identifies which storage schema a record was read from. It
// decides the field names used for deletion stamps.
type Generation int

const (
	Indexed Generation = iota // exhub:{free,paid}key:token:<token>
	Legacy                    // element of the redeemed/deleted arrays
)

// DeleteReasonAccount is stamped on legacy records moved to the deleted array.
const DeleteReasonAccount = "discord-user-delete"

// Field alias table. The first non-empty alias wins when decoding. Encoding
// updates the aliases a record already carries.
var (
	tokenAliases     = []string{"token", "key"}
	ownerAliases     = []string{"discordId", "ownerDiscordId", "accountId"}
	planAliases      = []string{"plan", "type"}
	deletedByAliases = []string{"deletedByDiscordId", "deleteByDiscordId", "deleteByAccountId"}
)

// Credential is the canonical form of an issued key in either schema. Fields
// not modelled here survive a decode/encode cycle untouched.
type Credential struct {
	Token          string
	OwnerAccountID string
	// LegacyOwner is the discordId field alone. The legacy redeemed array is
	// partitioned on it; the other owner spellings never count there.
	LegacyOwner    string
	Plan           Plan
	Tier           Tier
	Free           bool
	Paid           bool
	Valid          bool
	Deleted        bool
	Provider       string
	Source         string
	CreatedAt      string
	CreatedAtMs    int64
	ExpiresAt      string
	ExpiresAtMs    int64
	ExpiresAfterMs int64
	RedeemedBy     string
	Store          string
	Legacy         bool

	DeletedAt    string
	DeleteReason string
	DeletedBy    string

	Generation Generation

	raw Object
}

func (c *Credential) UnmarshalJSON(data []byte) error {
	obj, ok := DecodeObject(data)
	if !ok {
		return fmt.Errorf("credential: not an object")
	}
	c.raw = obj
	c.Token = obj.String(tokenAliases...)
	c.OwnerAccountID = obj.String(ownerAliases...)
	c.LegacyOwner = obj.String("discordId")
	c.Plan = Plan(obj.String(planAliases...))
	c.Tier = Tier(obj.String("tier"))
	c.Free, _ = obj.Bool("free")
	c.Paid, _ = obj.Bool("paid")
	c.Valid, _ = obj.Bool("valid")
	c.Deleted, _ = obj.Bool("deleted")
	c.Provider = obj.String("provider")
	c.Source = obj.String("source")
	c.CreatedAt = obj.String("createdAt")
	c.CreatedAtMs, _ = obj.Int64("createdAtMs")
	c.ExpiresAt = obj.String("expiresAt")
	c.ExpiresAtMs, _ = obj.Int64("expiresAtMs")
	c.ExpiresAfterMs, _ = obj.Int64("expiresAfterMs")
	c.RedeemedBy = obj.String("redeemedBy")
	c.Store = obj.String("store")
	c.Legacy, _ = obj.Bool("legacy")
	c.DeletedAt = obj.String("deletedAt")
	c.DeleteReason = obj.String("deleteReason")
	c.DeletedBy = obj.String(deletedByAliases...)
	return nil
}

func (c Credential) MarshalJSON() ([]byte, error) {
	// records built in code carry every flag; decoded ones keep their shape
	fresh := c.raw == nil
	out := c.raw.Clone()

	// aliases already on the record are updated; the first one is added
	// when none is present
	putString := func(v string, keys ...string) {
		if v == "" {
			return
		}
		wrote := false
		for _, k := range keys {
			if fresh || out.Has(k) {
				out.Put(k, v)
				wrote = true
			}
		}
		if !wrote {
			out.Put(keys[0], v)
		}
	}
	putInt := func(key string, v int64) {
		if v != 0 {
			out.Put(key, v)
		}
	}
	putFlag := func(key string, v, force bool) {
		if v || force || out.Has(key) {
			out.Put(key, v)
		}
	}

	putString(c.Token, tokenAliases...)
	putString(c.OwnerAccountID, "discordId", "ownerDiscordId")
	putString(string(c.Plan), planAliases...)
	putString(string(c.Tier), "tier")
	putFlag("free", c.Free, fresh)
	putFlag("paid", c.Paid, fresh)
	putFlag("valid", c.Valid, fresh)
	putFlag("deleted", c.Deleted, fresh)
	putString(c.Provider, "provider")
	putString(c.Source, "source")
	putString(c.CreatedAt, "createdAt")
	putInt("createdAtMs", c.CreatedAtMs)
	putString(c.ExpiresAt, "expiresAt")
	putInt("expiresAtMs", c.ExpiresAtMs)
	putInt("expiresAfterMs", c.ExpiresAfterMs)
	putString(c.RedeemedBy, "redeemedBy")
	putString(c.Store, "store")
	putFlag("legacy", c.Legacy, false)
	putString(c.DeletedAt, "deletedAt")
	putString(c.DeleteReason, "deleteReason")
	if c.Generation == Legacy {
		putString(c.DeletedBy, "deleteByDiscordId")
	} else {
		putString(c.DeletedBy, "deletedByDiscordId")
	}

	return json.Marshal(out)
}

// Tombstone soft-deletes an indexed record.
func (c *Credential) Tombstone(at, by string) {
	c.Deleted = true
	c.Valid = false
	c.DeletedAt = at
	c.DeletedBy = by
	if c.raw != nil {
		c.raw.Put("valid", false)
	}
}

// Retire stamps a legacy record that is being moved to the deleted array.
func (c *Credential) Retire(at, reason, by string) {
	c.Generation = Legacy
	c.DeletedAt = at
	c.DeleteReason = reason
	c.DeletedBy = by
}

// IssuedKey is the outcome of issuing one credential.
type IssuedKey struct {
	AccountID    string      `json:"accountId"`
	Token        string      `json:"token"`
	Plan         Plan        `json:"plan"`
	Tier         Tier        `json:"tier"`
	ExpiresAtMs  int64       `json:"expiresAtMs"`
	ExpiresAtIso string      `json:"expiresAtIso"`
	Record       *Credential `json:"record"`
}
