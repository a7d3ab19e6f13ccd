package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"staffroster.org/internal/apperr"
	"staffroster.org/internal/audit"
	"staffroster.org/internal/auth"
	"staffroster.org/internal/users"
)

type bulkStatusResponse struct {
	Updated int    `json:"updated"`
	Status  string `json:"status"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request, actor *auth.Principal) {
	var req users.RegisterInput
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	created, err := a.users.Register(r.Context(), actor, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "user.registered", map[string]any{
		"target_id": created.ID,
		"role":      string(created.Role),
	})
	w.Header().Set("Location", fmt.Sprintf("%s/users/%s", apiPrefix, created.ID))
	writeJSON(w, http.StatusCreated, created)
}

func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request, _ *auth.Principal) {
	q := r.URL.Query()
	page, err := parseIntParam(q.Get("page"), "page")
	if err != nil {
		writeError(w, r, err)
		return
	}
	size, err := parseIntParam(q.Get("page_size"), "page_size")
	if err != nil {
		writeError(w, r, err)
		return
	}
	firstLogin, _ := strconv.ParseBool(q.Get("first_login_only"))
	res, err := a.users.List(r.Context(), users.Query{
		Page:           page,
		PageSize:       size,
		Role:           q.Get("role"),
		Status:         q.Get("status"),
		FirstLoginOnly: firstLogin,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleManageable(w http.ResponseWriter, r *http.Request, actor *auth.Principal) {
	items, err := a.users.Manageable(r.Context(), actor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": len(items)})
}

func (a *API) handleStatistics(w http.ResponseWriter, r *http.Request, _ *auth.Principal) {
	stats, err := a.users.Statistics(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (a *API) handleGetUser(w http.ResponseWriter, r *http.Request, _ *auth.Principal) {
	p, err := a.users.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) handleUpdateUser(w http.ResponseWriter, r *http.Request, actor *auth.Principal) {
	var req users.UpdateInput
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	id := r.PathValue("id")
	updated, err := a.users.Update(r.Context(), actor, id, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "user.updated", map[string]any{
		"target_id": updated.ID,
		"fields":    changedFields(req),
	})
	writeJSON(w, http.StatusOK, updated)
}

func (a *API) handleDeactivateUser(w http.ResponseWriter, r *http.Request, actor *auth.Principal) {
	target, err := a.users.Deactivate(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "user.deactivated", map[string]any{"target_id": target.ID})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleBulkStatus(w http.ResponseWriter, r *http.Request, actor *auth.Principal) {
	var req users.BulkStatusInput
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	n, err := a.users.BulkUpdateStatus(r.Context(), actor, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := strings.ToUpper(strings.TrimSpace(req.Status))
	_ = audit.LogEvent(r.Context(), "user.status.bulk_updated", map[string]any{
		"count":  n,
		"status": status,
	})
	writeJSON(w, http.StatusOK, bulkStatusResponse{Updated: n, Status: status})
}

func parseIntParam(raw, field string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return 0, apperr.Validation(apperr.FieldError{
			Field:   field,
			Message: field + " must be a positive integer",
			Type:    "int_parsing",
		})
	}
	return v, nil
}

func changedFields(in users.UpdateInput) []string {
	var out []string
	if in.Email != nil {
		out = append(out, "email")
	}
	if in.FullName != nil {
		out = append(out, "full_name")
	}
	if in.PhoneNumber != nil {
		out = append(out, "phone_number")
	}
	if in.Role != nil {
		out = append(out, "role")
	}
	if in.Status != nil {
		out = append(out, "status")
	}
	return out
}
