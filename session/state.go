package session

import (
	"github.com/kodj/kodjadmin/authapi"
)

// Phase is the coarse authentication status that gates the UI.
type Phase int

const (
	PhaseUninitialized Phase = iota
	PhaseValidating
	PhaseAuthenticated
	PhaseAnonymous
)

func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhaseValidating:
		return "validating"
	case PhaseAuthenticated:
		return "authenticated"
	case PhaseAnonymous:
		return "anonymous"
	default:
		return "unknown"
	}
}

// Settled reports whether the phase is known, i.e. not still loading.
func (p Phase) Settled() bool {
	return p == PhaseAuthenticated || p == PhaseAnonymous
}

// Principal is the signed-in staff member.
type Principal struct {
	ID          int64  `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	Role        string `json:"role"`
	// Provider is the identity provider the account originates from.
	Provider string `json:"provider"`
}

func principalFromUser(u authapi.User) *Principal {
	return &Principal{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName(),
		Role:        u.Role,
		Provider:    u.OAuthProvider,
	}
}

// Challenge is a pending two-step login waiting for its one-time code.
type Challenge struct {
	Email       string `json:"email"`
	AwaitingOTP bool   `json:"awaitingOtp"`
}

// State is an immutable snapshot of the session. Credentials are never part
// of it; they live only in the token store.
type State struct {
	Phase     Phase
	Principal *Principal
	Challenge *Challenge
	// Err is the last failure to show the operator. It is nil after a silent
	// session expiry.
	Err error
}

// Authenticated reports whether the snapshot has a validated principal.
func (s State) Authenticated() bool {
	return s.Phase == PhaseAuthenticated && s.Principal != nil
}

// ErrMessage returns the operator-facing message for Err, or "".
func (s State) ErrMessage() string {
	return authapi.UserMessage(s.Err)
}
