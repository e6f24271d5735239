package accountsdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/aussiebroadwan/accounts/pkg/httpx"
)

// Error codes carried in the "error" field of error responses.
const (
	ErrorCodeInvalidRequest     = "invalid_request"
	ErrorCodeInvalidCredentials = "invalid_credentials"
	ErrorCodeInactiveUser       = "inactive_user"
	ErrorCodeInvalidToken       = "invalid_token"
	ErrorCodeForbidden          = "forbidden"
	ErrorCodeInsufficientRights = "insufficient_privileges"
	ErrorCodeUserNotFound       = "user_not_found"
	ErrorCodeEmailTaken         = "email_taken"
	ErrorCodeSignUpDisabled     = "sign_up_disabled"
	ErrorCodeRateLimited        = "rate_limit_exceeded"
	ErrorCodeServerError        = "server_error"
)

// ErrSessionExpired is returned client-side when a Session's token has
// passed its expiry. Log in again to obtain a new Session.
var ErrSessionExpired = errors.New("accountsdk: session expired")

// APIError is an error response from the accounts service. The server
// writes it with WriteError; the client decodes responses into it.
type APIError struct {
	StatusCode  int    `json:"-"`
	Code        string `json:"error"`
	Description string `json:"error_description"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// WriteError writes e as a JSON error response.
func (e *APIError) WriteError(w http.ResponseWriter) {
	httpx.WriteError(w, e.StatusCode, e.Code, e.Description)
}

// Is matches APIErrors by status and code so callers can compare against the
// predefined values with errors.Is.
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	if !ok {
		return false
	}
	return e.StatusCode == t.StatusCode && e.Code == t.Code
}

// NewAPIError creates an APIError with a custom description.
func NewAPIError(statusCode int, code, description string) *APIError {
	return &APIError{StatusCode: statusCode, Code: code, Description: description}
}

var (
	ErrInvalidRequest = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeInvalidRequest,
		Description: "the request is malformed or missing required parameters",
	}

	ErrInvalidCredentials = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeInvalidCredentials,
		Description: "Incorrect email or password",
	}

	ErrInactiveUser = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeInactiveUser,
		Description: "Inactive user",
	}

	// ErrInvalidToken is returned when the bearer token is missing, invalid or expired.
	ErrInvalidToken = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeInvalidToken,
		Description: "Could not validate credentials",
	}

	// ErrInvalidResetToken is returned by the reset-password endpoint.
	ErrInvalidResetToken = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeInvalidToken,
		Description: "Invalid token",
	}

	ErrInactiveAccount = &APIError{
		StatusCode:  http.StatusForbidden,
		Code:        ErrorCodeInactiveUser,
		Description: "Inactive user",
	}

	ErrInsufficientPrivileges = &APIError{
		StatusCode:  http.StatusForbidden,
		Code:        ErrorCodeInsufficientRights,
		Description: "The user doesn't have enough privileges",
	}

	ErrForbiddenFields = &APIError{
		StatusCode:  http.StatusForbidden,
		Code:        ErrorCodeForbidden,
		Description: "is_active and is_superuser cannot be changed on your own account",
	}

	ErrUserNotFound = &APIError{
		StatusCode:  http.StatusNotFound,
		Code:        ErrorCodeUserNotFound,
		Description: "The user with this id does not exist",
	}

	ErrEmailTaken = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeEmailTaken,
		Description: "The user with this email already exists",
	}

	ErrSignUpDisabled = &APIError{
		StatusCode:  http.StatusForbidden,
		Code:        ErrorCodeSignUpDisabled,
		Description: "Open user registration is forbidden on this server",
	}

	ErrServerError = &APIError{
		StatusCode:  http.StatusInternalServerError,
		Code:        ErrorCodeServerError,
		Description: "internal server error",
	}
)

// parseErrorResponse turns a non-2xx response into an *APIError.
func parseErrorResponse(resp *http.Response, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		return &APIError{
			StatusCode:  resp.StatusCode,
			Code:        errResp.Error,
			Description: errResp.ErrorDescription,
		}
	}

	return &APIError{
		StatusCode:  resp.StatusCode,
		Code:        ErrorCodeServerError,
		Description: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
	}
}
