package httpapi

import (
	"mime"
	"net/http"
	"strings"

	"staffroster.org/internal/audit"
	"staffroster.org/internal/auth"
	"staffroster.org/internal/obs"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type verifyRequest struct {
	Token string `json:"token"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

// readLogin accepts either a JSON body or an OAuth2 password form where the
// email travels as "username".
func readLogin(r *http.Request) (loginRequest, error) {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/x-www-form-urlencoded" || ct == "multipart/form-data" {
		if err := r.ParseForm(); err != nil {
			return loginRequest{}, bodyError("form_invalid", "Malformed form body")
		}
		email := r.PostForm.Get("username")
		if email == "" {
			email = r.PostForm.Get("email")
		}
		return loginRequest{Email: email, Password: r.PostForm.Get("password")}, nil
	}
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		return loginRequest{}, err
	}
	return req, nil
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	req, err := readLogin(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := a.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if isAuthError(err) {
			obs.ObserveLogin("failure")
			_ = audit.LogEvent(r.Context(), "auth.login.failed", map[string]any{
				"email": auth.NormalizeEmail(req.Email),
			})
			writeErrorStatus(w, r, err, http.StatusBadRequest)
			return
		}
		writeError(w, r, err)
		return
	}

	obs.ObserveLogin("success")
	ctx := auth.ContextWithPrincipal(r.Context(), res.Principal)
	_ = audit.LogEvent(ctx, "auth.login.succeeded", map[string]any{
		"first_login": res.Principal.IsFirstLogin,
	})
	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken:  res.AccessToken,
		TokenType:    res.TokenType,
		ExpiresIn:    res.ExpiresIn,
		RefreshToken: res.RefreshToken,
	})
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	payload, err := a.auth.ExchangeRefreshToken(r.Context(), req.RefreshToken)
	if err != nil {
		if isAuthError(err) {
			obs.ObserveTokenFailure("refresh")
			writeErrorStatus(w, r, err, http.StatusBadRequest)
			return
		}
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, payload)
}

func (a *API) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	token := strings.TrimSpace(req.Token)
	if t, err := extractBearerToken(token); err == nil {
		token = t
	}
	writeJSON(w, http.StatusOK, a.auth.Verify(r.Context(), token))
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request, p *auth.Principal) {
	writeJSON(w, http.StatusOK, p)
}

func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request, p *auth.Principal) {
	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := a.auth.ChangePassword(r.Context(), p.ID, req.CurrentPassword, req.NewPassword, req.ConfirmPassword); err != nil {
		writeError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.password.changed", nil)
	w.WriteHeader(http.StatusNoContent)
}
