package session

import (
	"fmt"
	"strings"

	"github.com/kodj/kodjadmin/authapi"
)

// Policy decides which principals may use the admin surface. Only accounts
// created with the application's own identity provider are admitted;
// federated or social sign-ins are refused regardless of credential validity.
type Policy struct {
	// LocalProvider is the identity-provider discriminator of local accounts.
	// A Controller treats an empty value as DefaultPolicy's.
	LocalProvider string
	// RequiredRole, when set, must match the principal's role.
	RequiredRole string
}

// DefaultPolicy admits local accounts of any role.
func DefaultPolicy() Policy {
	return Policy{LocalProvider: "LOCAL"}
}

// Check returns an AuthorizationDenied error when p is not admitted.
func (pol Policy) Check(p *Principal) error {
	if p == nil {
		return denied("no principal")
	}
	if pol.LocalProvider != "" && !strings.EqualFold(strings.TrimSpace(p.Provider), pol.LocalProvider) {
		return denied(fmt.Sprintf("identity provider %q is not %q", p.Provider, pol.LocalProvider))
	}
	if pol.RequiredRole != "" && !strings.EqualFold(strings.TrimSpace(p.Role), pol.RequiredRole) {
		return denied(fmt.Sprintf("role %q is not %q", p.Role, pol.RequiredRole))
	}
	return nil
}

func denied(reason string) error {
	return &authapi.Error{
		Kind:    authapi.KindAuthorizationDenied,
		Message: authapi.MsgAuthorizationDenied,
		Err:     fmt.Errorf("policy: %s", reason),
	}
}
