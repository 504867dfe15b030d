package entity

import "fmt"

var (
	sessionOwnerAliases = []string{"discordId", "ownerDiscordId"}
	sessionTokenAliases = []string{"keyToken", "token", "key", "keyId"}
)

// SessionEntry is an "exec" record: a credential redeemed and bound to an
// external runtime identity. Only the fields used for matching are decoded.
type SessionEntry struct {
	ID        string `json:"-"`
	AccountID string `json:"-"`
	Token     string `json:"-"`
}

func (s *SessionEntry) UnmarshalJSON(data []byte) error {
	obj, ok := DecodeObject(data)
	if !ok {
		return fmt.Errorf("session entry: not an object")
	}
	s.AccountID = obj.String(sessionOwnerAliases...)
	s.Token = obj.String(sessionTokenAliases...)
	return nil
}
