package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[AddProfilesMessage]        = (*AddProfilesCommand)(nil)
	_ gocmd.Commander[RemoveProfilesMessage]     = (*RemoveProfilesCommand)(nil)
	_ gocmd.Commander[AddStaticProfileMessage]   = (*AddStaticProfileCommand)(nil)
	_ gocmd.Commander[AddDynamicProfileMessage]  = (*AddDynamicProfileCommand)(nil)
	_ gocmd.Commander[AcquireClientMessage]      = (*AcquireClientCommand)(nil)
	_ gocmd.Commander[ReleaseClientMessage]      = (*ReleaseClientCommand)(nil)
	_ gocmd.Commander[RefreshCredentialsMessage] = (*RefreshCredentialsCommand)(nil)
)
