package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/psantos/driverauth/internal/http/middleware"
	"github.com/psantos/driverauth/internal/httputil"
	"github.com/psantos/driverauth/pkg/auth"
	"github.com/psantos/driverauth/pkg/domain"
)

// Handler serves the authentication endpoints. Web clients carry the
// session pair in HttpOnly cookies; mobile clients (X-Client-Type: mobile)
// carry it in the request and response bodies.
type Handler struct {
	auth       *auth.Authenticator
	tokens     *auth.AccessTokenIssuer
	sessionTTL time.Duration
	cookies    httputil.CookieConfig
	logger     *slog.Logger
}

// NewHandler creates an auth handler.
func NewHandler(a *auth.Authenticator, tokens *auth.AccessTokenIssuer, sessionTTL time.Duration, cookies httputil.CookieConfig, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		auth:       a,
		tokens:     tokens,
		sessionTTL: sessionTTL,
		cookies:    cookies,
		logger:     logger,
	}
}

type registerRequest struct {
	Username        string `json:"username"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
	FullName        string `json:"full_name"`
	NationalID      string `json:"national_id"`
	BirthDate       string `json:"birth_date"`
	SecretQuestion  string `json:"secret_question"`
	SecretAnswer    string `json:"secret_answer"`
}

type userResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	FullName string `json:"full_name,omitempty"`
}

// Register handles POST /v1/auth/register.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.auth.Register(r.Context(), auth.RegisterInput{
		Username:        req.Username,
		Password:        req.Password,
		PasswordConfirm: req.PasswordConfirm,
		FullName:        req.FullName,
		NationalID:      req.NationalID,
		BirthDate:       req.BirthDate,
		SecretQuestion:  req.SecretQuestion,
		SecretAnswer:    req.SecretAnswer,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	httputil.JSON(w, http.StatusCreated, userResponse{
		ID:       user.ID.String(),
		Username: user.Username,
		FullName: user.FullName,
	})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type sessionResponse struct {
	AccessToken        string       `json:"access_token"`
	ExpiresIn          int          `json:"expires_in"`
	MustChangePassword bool         `json:"must_change_password,omitempty"`
	User               userResponse `json:"user"`

	// Only populated for mobile clients; web clients get cookies.
	SessionID    string `json:"session_id,omitempty"`
	SessionToken string `json:"session_token,omitempty"`
}

// Login handles POST /v1/auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.auth.Login(r.Context(), req.Username, req.Password, r.UserAgent())
	if err != nil {
		h.writeError(w, err)
		return
	}

	accessToken, err := h.tokens.Issue(result.Identity, result.Handle.SessionID)
	if err != nil {
		h.logger.Error("minting access token failed", "error", err)
		httputil.Error(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := sessionResponse{
		AccessToken:        accessToken,
		ExpiresIn:          int(h.tokens.TTL().Seconds()),
		MustChangePassword: result.Identity.MustChangePassword,
		User: userResponse{
			ID:       result.Identity.UserID.String(),
			Username: result.Identity.Username,
		},
	}

	if httputil.IsMobileClient(r) {
		resp.SessionID = result.Handle.SessionID
		resp.SessionToken = result.Handle.Token
	} else {
		httputil.SetSessionCookies(w, result.Handle.SessionID, result.Handle.Token, h.sessionTTL, h.cookies)
	}

	httputil.JSON(w, http.StatusOK, resp)
}

type sessionPairRequest struct {
	SessionID    string `json:"session_id"`
	SessionToken string `json:"session_token"`
}

// sessionPair extracts the (session_id, token) pair from cookies or, for
// mobile clients, from the request body.
func (h *Handler) sessionPair(r *http.Request) (sessionID, token string, ok bool) {
	if httputil.IsMobileClient(r) {
		var req sessionPairRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return "", "", false
		}
		return req.SessionID, req.SessionToken, req.SessionID != "" && req.SessionToken != ""
	}
	return httputil.GetSessionFromCookies(r)
}

// Refresh handles POST /v1/auth/refresh. It resolves the presented session
// pair, mints a fresh access token, and hands out a replacement pair when
// rotation was due.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	sessionID, token, ok := h.sessionPair(r)
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "missing session")
		return
	}

	result, err := h.auth.Resolve(r.Context(), sessionID, token, r.UserAgent())
	if err != nil {
		if !httputil.IsMobileClient(r) {
			httputil.ClearSessionCookies(w, h.cookies)
		}
		h.writeError(w, err)
		return
	}

	activeSessionID := sessionID
	if result.Rotated != nil {
		activeSessionID = result.Rotated.SessionID
	}

	accessToken, err := h.tokens.Issue(result.Identity, activeSessionID)
	if err != nil {
		h.logger.Error("minting access token failed", "error", err)
		httputil.Error(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := sessionResponse{
		AccessToken:        accessToken,
		ExpiresIn:          int(h.tokens.TTL().Seconds()),
		MustChangePassword: result.Identity.MustChangePassword,
		User: userResponse{
			ID:       result.Identity.UserID.String(),
			Username: result.Identity.Username,
		},
	}

	if result.Rotated != nil {
		if httputil.IsMobileClient(r) {
			resp.SessionID = result.Rotated.SessionID
			resp.SessionToken = result.Rotated.Token
		} else {
			httputil.SetSessionCookies(w, result.Rotated.SessionID, result.Rotated.Token, h.sessionTTL, h.cookies)
		}
	}

	httputil.JSON(w, http.StatusOK, resp)
}

// Logout handles POST /v1/auth/logout. Revoking an unknown or already
// revoked session still returns 204.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	sessionID, _, _ := h.sessionPair(r)

	if err := h.auth.Logout(r.Context(), sessionID); err != nil {
		h.logger.Warn("logout failed", "session_id", sessionID, "error", err)
	}

	if !httputil.IsMobileClient(r) {
		httputil.ClearSessionCookies(w, h.cookies)
	}
	w.WriteHeader(http.StatusNoContent)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// ChangePassword handles POST /v1/auth/password/change. Requires a valid
// access token; the target account is the authenticated one.
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetClaims(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "missing authorization")
		return
	}

	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.auth.ChangePassword(r.Context(), claims.Username, req.CurrentPassword, req.NewPassword); err != nil {
		h.writeError(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, map[string]string{"message": "password changed"})
}

type recoveryRequest struct {
	NationalID      string `json:"national_id"`
	BirthDate       string `json:"birth_date"`
	SecretQuestion  string `json:"secret_question"`
	SecretAnswer    string `json:"secret_answer"`
	NewPassword     string `json:"new_password"`
	PasswordConfirm string `json:"password_confirm"`
}

// Recovery handles POST /v1/auth/recovery. The response is the same on
// every outcome; a malformed body gets the identical acknowledgment.
func (h *Handler) Recovery(w http.ResponseWriter, r *http.Request) {
	var req recoveryRequest
	// Decode errors fall through with zero values; the flow records the
	// failure and answers neutrally like any other bad attempt.
	_ = json.NewDecoder(r.Body).Decode(&req)

	ack := h.auth.RequestRecovery(r.Context(), auth.RecoveryInput{
		NationalID:      req.NationalID,
		BirthDate:       req.BirthDate,
		SecretQuestion:  req.SecretQuestion,
		SecretAnswer:    req.SecretAnswer,
		NewPassword:     req.NewPassword,
		PasswordConfirm: req.PasswordConfirm,
	})

	httputil.JSON(w, http.StatusAccepted, map[string]string{"message": ack})
}

// Me handles GET /v1/me. Requires a valid access token.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetClaims(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "missing authorization")
		return
	}

	httputil.JSON(w, http.StatusOK, map[string]any{
		"id":                   claims.Subject,
		"username":             claims.Username,
		"must_change_password": claims.MustChangePassword,
	})
}

// writeError maps domain errors onto HTTP statuses without leaking which
// branch failed beyond what the status itself says.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidCredentials):
		httputil.Error(w, http.StatusUnauthorized, "invalid username or password")
	case errors.Is(err, domain.ErrInvalidSession):
		httputil.Error(w, http.StatusUnauthorized, "invalid or expired session")
	case errors.Is(err, domain.ErrTooManyAttempts):
		httputil.Error(w, http.StatusTooManyRequests, "too many attempts. please try again later")
	case errors.Is(err, domain.ErrRegistrationClosed):
		httputil.Error(w, http.StatusForbidden, "registration is closed")
	case errors.Is(err, domain.ErrUserExists):
		httputil.Error(w, http.StatusConflict, "username already taken")
	case errors.Is(err, domain.ErrNationalIDTaken):
		httputil.Error(w, http.StatusConflict, "national id already registered")
	case errors.Is(err, domain.ErrMissingFields):
		httputil.Error(w, http.StatusBadRequest, "missing required fields")
	case errors.Is(err, domain.ErrPasswordMismatch):
		httputil.Error(w, http.StatusBadRequest, "passwords do not match")
	case errors.Is(err, domain.ErrUnavailable):
		httputil.Error(w, http.StatusServiceUnavailable, "service temporarily unavailable")
	default:
		h.logger.Error("unhandled error", "error", err)
		httputil.Error(w, http.StatusInternalServerError, "internal server error")
	}
}
