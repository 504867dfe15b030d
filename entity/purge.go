package entity

// PurgeResult reports what deleting one account removed.
type PurgeResult struct {
	AccountID             string `json:"accountId"`
	RemovedCredentials    int    `json:"removedCredentials"`
	LegacyCredentials     int    `json:"legacyCredentials"`
	FreeCredentials       int    `json:"freeCredentials"`
	PaidCredentials       int    `json:"paidCredentials"`
	RemovedSessionEntries int    `json:"removedSessionEntries"`
	ProfileRemoved        bool   `json:"profileRemoved"`
}

// BulkDeleteTotals aggregates PurgeResults over a batch.
type BulkDeleteTotals struct {
	UsersProcessed        int `json:"usersProcessed"`
	KeysRemoved           int `json:"keysRemoved"`
	SessionEntriesRemoved int `json:"sessionEntriesRemoved"`
	ProfilesRemoved       int `json:"profilesRemoved"`
}

func (t *BulkDeleteTotals) Add(r *PurgeResult) {
	if r == nil {
		return
	}
	t.UsersProcessed++
	t.KeysRemoved += r.RemovedCredentials
	t.SessionEntriesRemoved += r.RemovedSessionEntries
	if r.ProfileRemoved {
		t.ProfilesRemoved++
	}
}
