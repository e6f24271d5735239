package accountsdk

import (
	"context"
	"net/http"
)

// RecoverPassword asks the service to email a reset link. The response is
// the same whether or not email is registered.
func (c *Client) RecoverPassword(ctx context.Context, email string) (*MessageResponse, error) {
	return c.postMessage(ctx, "/api/v1/login/password-recovery", PasswordRecoveryRequest{Email: email})
}

// ResetPassword sets a new password using the token from a recovery email.
func (c *Client) ResetPassword(ctx context.Context, token, newPassword string) (*MessageResponse, error) {
	return c.postMessage(ctx, "/api/v1/login/reset-password", ResetPasswordRequest{
		Token:       token,
		NewPassword: newPassword,
	})
}

// SignUp registers a new account when open registration is enabled.
func (c *Client) SignUp(ctx context.Context, req SignUpRequest) (*UserResponse, error) {
	body, err := jsonBody(req)
	if err != nil {
		return nil, err
	}

	resp, err := c.doRequest(ctx, http.MethodPost, "/api/v1/users/sign-up", body, jsonHeaders)
	if err != nil {
		return nil, err
	}

	var user UserResponse
	if err := decodeJSON(resp, &user, http.StatusCreated); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) postMessage(ctx context.Context, path string, req any) (*MessageResponse, error) {
	body, err := jsonBody(req)
	if err != nil {
		return nil, err
	}

	resp, err := c.doRequest(ctx, http.MethodPost, path, body, jsonHeaders)
	if err != nil {
		return nil, err
	}

	var msg MessageResponse
	if err := decodeJSON(resp, &msg, http.StatusOK); err != nil {
		return nil, err
	}
	return &msg, nil
}
