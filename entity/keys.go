package entity

import "strings"

const DefaultKeyPrefix = "exhub"

// Local mirror files of the legacy blobs, relative to the data directory.
const (
	FileRedeemedKeys = "redeemed-keys.json"
	FileDeletedKeys  = "deleted-keys.json"
	FileExecUsers    = "exec-users.json"
	FileDiscordUsers = "discord-users.json"
)

// Namespace builds remote key names under a common prefix.
type Namespace struct {
	prefix string
}

func NewNamespace(prefix string) Namespace {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return Namespace{prefix: prefix}
}

func (n Namespace) key(parts ...string) string {
	return n.prefix + ":" + strings.Join(parts, ":")
}

// Legacy blobs.

func (n Namespace) RedeemedKeys() string { return n.key("redeemed-keys") }
func (n Namespace) DeletedKeys() string  { return n.key("deleted-keys") }
func (n Namespace) ExecUsers() string    { return n.key("exec-users") }
func (n Namespace) DiscordUsers() string { return n.key("discord-users") }

// Indexed schema.

// UserIndex holds the ordered token list of one account in a tier class.
func (n Namespace) UserIndex(class TierClass, accountID string) string {
	return n.key(string(class)+"key", "user", accountID)
}

// TokenRecord holds one credential record.
func (n Namespace) TokenRecord(class TierClass, token string) string {
	return n.key(string(class)+"key", "token", token)
}

// ExecIndex is the set of session entry ids.
func (n Namespace) ExecIndex() string { return n.key("exec-users", "index") }

func (n Namespace) ExecEntry(id string) string { return n.key("exec-user", id) }

func (n Namespace) Profile(accountID string) string {
	return n.key("discord", "userprofile", accountID)
}

// ProfileIndex is the flat list of account ids that have a profile.
func (n Namespace) ProfileIndex() string { return n.key("discord", "userindex") }

// Configuration.

func (n Namespace) PlanConfig() string         { return n.key("paid-plan-config") }
func (n Namespace) LegacyGlobalConfig() string { return n.key("global-key-config") }
