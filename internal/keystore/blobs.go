package keystore

import "keyadmin/entity"

// LegacyBlobs are the four whole-document stores of the legacy schema.
type LegacyBlobs struct {
	Redeemed     Blob // array of credentials
	Deleted      Blob // array of retired credentials
	ExecUsers    Blob // object keyed by token
	DiscordUsers Blob // object keyed by account id
}

func Legacy(ns entity.Namespace) LegacyBlobs {
	return LegacyBlobs{
		Redeemed:     Blob{Key: ns.RedeemedKeys(), File: entity.FileRedeemedKeys},
		Deleted:      Blob{Key: ns.DeletedKeys(), File: entity.FileDeletedKeys},
		ExecUsers:    Blob{Key: ns.ExecUsers(), File: entity.FileExecUsers},
		DiscordUsers: Blob{Key: ns.DiscordUsers(), File: entity.FileDiscordUsers},
	}
}
