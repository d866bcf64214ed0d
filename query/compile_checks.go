package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-profiles/core"
)

var (
	_ gocmd.Querier[GetProfileMessage, core.Profile]                  = (*GetProfileQuery)(nil)
	_ gocmd.Querier[ListProfilesMessage, []core.Profile]              = (*ListProfilesQuery)(nil)
	_ gocmd.Querier[ListProfilesByCredentialMessage, []core.Profile]  = (*ListProfilesByCredentialQuery)(nil)
	_ gocmd.Querier[ListActiveClientsMessage, []core.ManagedInstance] = (*ListActiveClientsQuery)(nil)
	_ gocmd.Querier[GetStorageInfoMessage, core.StorageInfo]          = (*GetStorageInfoQuery)(nil)
)
