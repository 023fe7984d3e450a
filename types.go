package bindflow

import (
	"github.com/kvartin/bindflow/api"
	"github.com/kvartin/bindflow/session"
)

// FlowKind tags the two workflow variants the engine drives.
type FlowKind uint8

const (
	// KindRecoverPassword is an exported constant or variable used by the flow engine.
	KindRecoverPassword FlowKind = iota
	// KindBindAccount is an exported constant or variable used by the flow engine.
	KindBindAccount

	// kindNone marks engine events outside either flow, such as session
	// mutations; it renders as the empty string so audit JSON omits it.
	kindNone FlowKind = ^FlowKind(0)
)

// String describes the kind for audit payloads and diagnostics.
func (k FlowKind) String() string {
	switch k {
	case KindRecoverPassword:
		return "recover_password"
	case KindBindAccount:
		return "bind_account"
	default:
		return ""
	}
}

// Profile is the cached user snapshot served by [Engine.User]. It aliases
// the session package's projection type.
type Profile = session.Profile

// SocialBinding is one external-provider association on the profile.
type SocialBinding = session.SocialBinding

// ServerError is the typed rejection carried back from the REST
// collaborator. Message holds the server's own wording when one was
// provided; callers surface it to the user unaltered.
type ServerError = api.Error
