package rbac

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gemvault/gemvault/internal/platform/httpx"
	"github.com/gemvault/gemvault/internal/shared"
)

// PermissionsHandler exposes the role policy to the admin panel.
type PermissionsHandler struct {
	service *Service
	rbac    Middleware
}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler(service *Service, rbac Middleware) *PermissionsHandler {
	return &PermissionsHandler{service: service, rbac: rbac}
}

// MountRoutes registers permission routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermBillingConfigView))
		r.Get("/", h.listPermissions)
		r.Get("/me", h.myPermissions)
	})
}

func (h *PermissionsHandler) listPermissions(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": h.service.Policy().Entries()})
}

func (h *PermissionsHandler) myPermissions(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	perms, err := h.service.EffectivePermissions(actor)
	if err != nil {
		httpx.RespondError(w, shared.ErrForbidden)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"role": actor.Role, "permissions": perms})
}
