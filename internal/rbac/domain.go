package rbac

import (
	"sort"

	"github.com/gemvault/gemvault/internal/shared"
)

// Policy maps each role to the permissions it grants.
type Policy map[shared.Role][]string

// DefaultPolicy returns the built-in role grants of the back-office.
func DefaultPolicy() Policy {
	staff := []string{
		shared.PermBillingView,
		shared.PermBillingInvoiceEdit,
		shared.PermBillingPaymentSubmit,
		shared.PermBillingPaymentReview,
		shared.PermBillingConfigView,
	}
	return Policy{
		shared.RoleAdmin:    shared.BillingScopes(),
		shared.RoleStaff:    staff,
		shared.RoleCustomer: shared.PortalScopes(),
	}
}

// RolePermissions is the listing form of a policy entry.
type RolePermissions struct {
	Role        shared.Role `json:"role"`
	Permissions []string    `json:"permissions"`
}

// Entries returns the policy sorted by role.
func (p Policy) Entries() []RolePermissions {
	out := make([]RolePermissions, 0, len(p))
	for role, perms := range p {
		sorted := append([]string(nil), perms...)
		sort.Strings(sorted)
		out = append(out, RolePermissions{Role: role, Permissions: sorted})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Role < out[j].Role })
	return out
}
