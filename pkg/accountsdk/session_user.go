package accountsdk

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

// ============================================================================
// Current user
// ============================================================================

// Me returns the account the session belongs to.
func (s *Session) Me(ctx context.Context) (*UserResponse, error) {
	return s.getUser(ctx, "/api/v1/users/me")
}

// UpdateMe applies a self-service update. is_active and is_superuser cannot
// be changed this way.
func (s *Session) UpdateMe(ctx context.Context, req UserUpdateRequest) (*UserResponse, error) {
	return s.sendUser(ctx, http.MethodPatch, "/api/v1/users/me", req, http.StatusOK)
}

// TestToken verifies the session's token and returns its account.
func (s *Session) TestToken(ctx context.Context) (*UserResponse, error) {
	resp, err := s.doAuthRequest(ctx, http.MethodPost, "/api/v1/login/test-token", nil, nil)
	if err != nil {
		return nil, err
	}

	var user UserResponse
	if err := decodeJSON(resp, &user, http.StatusOK); err != nil {
		return nil, err
	}
	return &user, nil
}

// ============================================================================
// Administration (superuser only)
// ============================================================================

// ListUsers returns one page of accounts. A zero limit uses the server default.
func (s *Session) ListUsers(ctx context.Context, skip, limit int) (*UserListResponse, error) {
	q := url.Values{}
	if skip > 0 {
		q.Set("skip", strconv.Itoa(skip))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/v1/users"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	resp, err := s.doAuthRequest(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}

	var list UserListResponse
	if err := decodeJSON(resp, &list, http.StatusOK); err != nil {
		return nil, err
	}
	return &list, nil
}

// CreateUser creates an account.
func (s *Session) CreateUser(ctx context.Context, req UserCreateRequest) (*UserResponse, error) {
	return s.sendUser(ctx, http.MethodPost, "/api/v1/users", req, http.StatusCreated)
}

// GetUser fetches an account by id.
func (s *Session) GetUser(ctx context.Context, id string) (*UserResponse, error) {
	return s.getUser(ctx, "/api/v1/users/"+url.PathEscape(id))
}

// UpdateUser applies a partial update to any account.
func (s *Session) UpdateUser(ctx context.Context, id string, req UserUpdateRequest) (*UserResponse, error) {
	return s.sendUser(ctx, http.MethodPatch, "/api/v1/users/"+url.PathEscape(id), req, http.StatusOK)
}

// DeleteUser removes an account.
func (s *Session) DeleteUser(ctx context.Context, id string) error {
	resp, err := s.doAuthRequest(ctx, http.MethodDelete, "/api/v1/users/"+url.PathEscape(id), nil, nil)
	if err != nil {
		return err
	}
	return checkStatusNoContent(resp)
}

func (s *Session) getUser(ctx context.Context, path string) (*UserResponse, error) {
	resp, err := s.doAuthRequest(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}

	var user UserResponse
	if err := decodeJSON(resp, &user, http.StatusOK); err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Session) sendUser(ctx context.Context, method, path string, req any, expected int) (*UserResponse, error) {
	body, err := jsonBody(req)
	if err != nil {
		return nil, err
	}

	resp, err := s.doAuthRequest(ctx, method, path, body, jsonHeaders)
	if err != nil {
		return nil, err
	}

	var user UserResponse
	if err := decodeJSON(resp, &user, expected); err != nil {
		return nil, err
	}
	return &user, nil
}
