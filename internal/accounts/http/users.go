package http

import (
	"net/http"
	"strconv"

	"github.com/aussiebroadwan/accounts/internal/accounts/domain"
	"github.com/aussiebroadwan/accounts/internal/accounts/service"
	"github.com/aussiebroadwan/accounts/pkg/accountsdk"
	"github.com/aussiebroadwan/accounts/pkg/httpx"
)

type UsersHandler struct {
	UserService *service.UserService
}

// HandleList godoc
//
//	@Summary		List users
//	@Tags			Users
//	@Security		BearerAuth
//	@Produce		json
//	@Param			skip	query		int	false	"Offset"
//	@Param			limit	query		int	false	"Page size (default 100, max 1000)"
//	@Success		200		{object}	accountsdk.UserListResponse
//	@Failure		401		{object}	accountsdk.ErrorResponse
//	@Failure		403		{object}	accountsdk.ErrorResponse	"Superuser required"
//	@Router			/api/v1/users [get].
func (h *UsersHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	skip, err := queryInt(r, "skip")
	if err != nil {
		writeBadRequest(w, "skip must be an integer")
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeBadRequest(w, "limit must be an integer")
		return
	}

	page, err := h.UserService.ListUsers(r.Context(), skip, limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	resp := accountsdk.UserListResponse{
		Data:  make([]accountsdk.UserResponse, 0, len(page.Users)),
		Count: page.Total,
		Skip:  page.Skip,
		Limit: page.Limit,
	}
	for _, u := range page.Users {
		resp.Data = append(resp.Data, toUserResponse(u))
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// HandleCreate godoc
//
//	@Summary		Create user
//	@Tags			Users
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		accountsdk.UserCreateRequest	true	"new user"
//	@Success		201		{object}	accountsdk.UserResponse
//	@Failure		400		{object}	accountsdk.ErrorResponse	"Email already registered"
//	@Failure		403		{object}	accountsdk.ErrorResponse	"Superuser required"
//	@Failure		422		{object}	accountsdk.ErrorResponse	"Invalid email or password"
//	@Router			/api/v1/users [post].
func (h *UsersHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req accountsdk.UserCreateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeBadRequest(w, "Invalid request body")
		return
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	u, err := h.UserService.CreateUser(r.Context(), domain.NewUser{
		Email:       req.Email,
		Password:    req.Password,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		PhoneNumber: req.PhoneNumber,
		IsActive:    active,
		IsSuperuser: req.IsSuperuser,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, toUserResponse(u))
}

// HandleMe godoc
//
//	@Summary		Current user
//	@Tags			Users
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	accountsdk.UserResponse
//	@Failure		401	{object}	accountsdk.ErrorResponse
//	@Router			/api/v1/users/me [get].
func (h *UsersHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
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

// HandleUpdateMe godoc
//
//	@Summary		Update current user
//	@Description	is_active and is_superuser cannot be changed through this endpoint.
//	@Tags			Users
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		accountsdk.UserUpdateRequest	true	"fields to change"
//	@Success		200		{object}	accountsdk.UserResponse
//	@Failure		400		{object}	accountsdk.ErrorResponse	"Email already registered"
//	@Failure		403		{object}	accountsdk.ErrorResponse	"Forbidden field"
//	@Router			/api/v1/users/me [patch].
func (h *UsersHandler) HandleUpdateMe(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeInvalidToken(w)
		return
	}

	var req accountsdk.UserUpdateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeBadRequest(w, "Invalid request body")
		return
	}

	u, err := h.UserService.UpdateMe(r.Context(), p, toUserUpdate(req))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toUserResponse(u))
}

// HandleSignUp godoc
//
//	@Summary		Open registration
//	@Description	Creates an active, non-superuser account without logging in. Disabled unless open sign-up is configured.
//	@Tags			Users
//	@Accept			json
//	@Produce		json
//	@Param			body	body		accountsdk.SignUpRequest	true	"new account"
//	@Success		201		{object}	accountsdk.UserResponse
//	@Failure		400		{object}	accountsdk.ErrorResponse	"Email already registered"
//	@Failure		403		{object}	accountsdk.ErrorResponse	"Registration disabled"
//	@Router			/api/v1/users/sign-up [post].
func (h *UsersHandler) HandleSignUp(w http.ResponseWriter, r *http.Request) {
	var req accountsdk.SignUpRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeBadRequest(w, "Invalid request body")
		return
	}

	u, err := h.UserService.SignUp(r.Context(), domain.NewUser{
		Email:       req.Email,
		Password:    req.Password,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		PhoneNumber: req.PhoneNumber,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toUserResponse(u))
}

// HandleGet godoc
//
//	@Summary		Get user
//	@Tags			Users
//	@Security		BearerAuth
//	@Produce		json
//	@Param			id	path		string	true	"User ID"
//	@Success		200	{object}	accountsdk.UserResponse
//	@Failure		404	{object}	accountsdk.ErrorResponse
//	@Router			/api/v1/users/{id} [get].
func (h *UsersHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	u, err := h.UserService.GetUser(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toUserResponse(u))
}

// HandleUpdate godoc
//
//	@Summary		Update user
//	@Tags			Users
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string							true	"User ID"
//	@Param			body	body		accountsdk.UserUpdateRequest	true	"fields to change"
//	@Success		200		{object}	accountsdk.UserResponse
//	@Failure		400		{object}	accountsdk.ErrorResponse	"Email already registered"
//	@Failure		404		{object}	accountsdk.ErrorResponse
//	@Router			/api/v1/users/{id} [patch].
func (h *UsersHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var req accountsdk.UserUpdateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeBadRequest(w, "Invalid request body")
		return
	}

	u, err := h.UserService.UpdateUser(r.Context(), r.PathValue("id"), toUserUpdate(req))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toUserResponse(u))
}

// HandleDelete godoc
//
//	@Summary		Delete user
//	@Tags			Users
//	@Security		BearerAuth
//	@Param			id	path	string	true	"User ID"
//	@Success		204
//	@Failure		404	{object}	accountsdk.ErrorResponse
//	@Router			/api/v1/users/{id} [delete].
func (h *UsersHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.UserService.DeleteUser(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func queryInt(r *http.Request, key string) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}
