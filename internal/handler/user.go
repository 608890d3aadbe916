package handler

import (
	"net/http"

	"github.com/go-faster/jx"
)

// Profile handles GET /api/users/profile.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	u, err := h.users.GetByID(r.Context(), p.UserID)
	if err != nil {
		writeError(w, r, err, "Failed to fetch profile")
		return
	}
	role := "user"
	if p.IsAdmin() {
		role = "admin"
	}
	writeJSON(w, r, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("id", func(e *jx.Encoder) { e.Str(u.ID) })
			e.Field("name", func(e *jx.Encoder) { e.Str(u.Name) })
			e.Field("email", func(e *jx.Encoder) { e.Str(u.Email) })
			e.Field("role", func(e *jx.Encoder) { e.Str(role) })
		})
	})
}
