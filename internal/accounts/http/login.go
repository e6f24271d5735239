package http

import (
	"net/http"
	"strings"

	"github.com/aussiebroadwan/accounts/internal/accounts/service"
	"github.com/aussiebroadwan/accounts/pkg/accountsdk"
	"github.com/aussiebroadwan/accounts/pkg/httpx"
)

const recoveryMessage = "Password recovery email sent"

type LoginHandler struct {
	AuthService *service.AuthService
	UserService *service.UserService
}

// HandleAccessToken godoc
//
//	@Summary		Login
//	@Description	OAuth2 compatible password login. Returns a bearer access token for future requests.
//	@Tags			Login
//	@Accept			x-www-form-urlencoded
//	@Produce		json
//	@Param			username	formData	string						true	"Email address"
//	@Param			password	formData	string						true	"Password"
//	@Success		200			{object}	accountsdk.TokenResponse	"access_token, token_type, expires_in"
//	@Failure		400			{object}	accountsdk.ErrorResponse	"Incorrect email or password, or inactive user"
//	@Failure		429			{object}	accountsdk.ErrorResponse	"Too many attempts"
//	@Router			/api/v1/login/access-token [post].
func (h *LoginHandler) HandleAccessToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeBadRequest(w, "Invalid form data")
		return
	}

	username := strings.TrimSpace(r.PostFormValue("username"))
	password := r.PostFormValue("password")
	if username == "" || password == "" {
		writeBadRequest(w, "username and password are required")
		return
	}

	grant, err := h.AuthService.Authenticate(r.Context(), username, password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, accountsdk.TokenResponse{
		AccessToken: grant.AccessToken,
		TokenType:   grant.TokenType,
		ExpiresIn:   int(grant.ExpiresIn.Seconds()),
	})
}

// HandleTestToken godoc
//
//	@Summary		Test access token
//	@Description	Returns the account the bearer token belongs to.
//	@Tags			Login
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	accountsdk.UserResponse
//	@Failure		401	{object}	accountsdk.ErrorResponse	"Invalid or missing access token"
//	@Failure		403	{object}	accountsdk.ErrorResponse	"Inactive user"
//	@Router			/api/v1/login/test-token [post].
func (h *LoginHandler) HandleTestToken(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeInvalidToken(w)
		return
	}

	u, err := h.UserService.GetUser(r.Context(), p.UserID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, toUserResponse(u))
}

// HandlePasswordRecovery godoc
//
//	@Summary		Password recovery
//	@Description	Emails a password reset link. The response does not reveal whether the address is registered.
//	@Tags			Login
//	@Accept			json
//	@Produce		json
//	@Param			body	body		accountsdk.PasswordRecoveryRequest	true	"email"
//	@Success		200		{object}	accountsdk.MessageResponse
//	@Failure		400		{object}	accountsdk.ErrorResponse
//	@Router			/api/v1/login/password-recovery [post].
func (h *LoginHandler) HandlePasswordRecovery(w http.ResponseWriter, r *http.Request) {
	var req accountsdk.PasswordRecoveryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil || strings.TrimSpace(req.Email) == "" {
		writeBadRequest(w, "email is required")
		return
	}

	if _, err := h.AuthService.RequestPasswordReset(r.Context(), req.Email); err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, accountsdk.MessageResponse{Message: recoveryMessage})
}

// HandleResetPassword godoc
//
//	@Summary		Reset password
//	@Description	Sets a new password using the token from a recovery email.
//	@Tags			Login
//	@Accept			json
//	@Produce		json
//	@Param			body	body		accountsdk.ResetPasswordRequest	true	"token, new_password"
//	@Success		200		{object}	accountsdk.MessageResponse
//	@Failure		400		{object}	accountsdk.ErrorResponse	"Invalid token or inactive user"
//	@Failure		404		{object}	accountsdk.ErrorResponse	"User not found"
//	@Failure		422		{object}	accountsdk.ErrorResponse	"Password too short"
//	@Router			/api/v1/login/reset-password [post].
func (h *LoginHandler) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req accountsdk.ResetPasswordRequest
	if err := httpx.DecodeJSON(r, &req); err != nil || req.Token == "" {
		writeBadRequest(w, "token and new_password are required")
		return
	}

	if err := h.AuthService.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, accountsdk.MessageResponse{Message: "Password updated successfully"})
}
