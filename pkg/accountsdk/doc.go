/*
Package accountsdk provides a client SDK for the accounts service and the wire
types shared between the service's HTTP handlers and its clients.

# Client vs Session

  - Client: unauthenticated operations (login, password recovery, sign-up, health)
  - Session: operations that carry a bearer access token

Log in to obtain a Session:

	client := accountsdk.NewClient("https://accounts.example.com")

	session, err := client.Login(ctx, "ada@example.com", "correct-horse")
	if err != nil {
		return err
	}

	me, err := session.Me(ctx)

A Session can also be rebuilt from a token obtained elsewhere:

	session := client.NewSession(accessToken, expiresAt)

Access tokens are not refreshed. Once a Session has expired, log in again.

# Password recovery

	// Always succeeds, whether or not the address is registered.
	_, err := client.RecoverPassword(ctx, "ada@example.com")

	// token comes from the recovery email.
	_, err = client.ResetPassword(ctx, token, "new-password")

# Errors

Every non-2xx response is returned as an *APIError carrying the HTTP status,
a stable error code and a description:

	var apiErr *accountsdk.APIError
	if errors.As(err, &apiErr) && apiErr.Code == accountsdk.ErrorCodeInvalidCredentials {
		// wrong email or password
	}
*/
package accountsdk
