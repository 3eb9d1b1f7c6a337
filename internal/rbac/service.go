package rbac

import (
	"errors"
	"strings"

	"github.com/gemvault/gemvault/internal/shared"
)

// ErrUnknownRole indicates the actor carries a role the policy does not know.
var ErrUnknownRole = errors.New("rbac: unknown role")

// Service answers permission questions for actors.
type Service struct {
	policy Policy
}

// NewService constructs a Service from policy.
func NewService(policy Policy) *Service {
	if policy == nil {
		policy = DefaultPolicy()
	}
	normalized := make(Policy, len(policy))
	for role, perms := range policy {
		normalized[role] = normalizePermissions(perms)
	}
	return &Service{policy: normalized}
}

// EffectivePermissions returns the permissions granted to the actor.
func (s *Service) EffectivePermissions(actor shared.Actor) ([]string, error) {
	perms, ok := s.policy[actor.Role]
	if !ok {
		return nil, ErrUnknownRole
	}
	return perms, nil
}

// Can reports whether actor holds perm.
func (s *Service) Can(actor shared.Actor, perm string) bool {
	granted, err := s.EffectivePermissions(actor)
	if err != nil {
		return false
	}
	return hasAnyPermission(granted, []string{strings.ToLower(strings.TrimSpace(perm))})
}

// Policy returns the normalized policy.
func (s *Service) Policy() Policy {
	return s.policy
}
