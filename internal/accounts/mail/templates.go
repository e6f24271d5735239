package mail

import (
	"bytes"
	"fmt"
	"html/template"
	"net/url"
	"strings"
	"time"
)

var (
	newAccountTmpl = template.Must(template.New("new_account").Parse(
		`<p>Welcome to {{.Project}}, {{.Name}}!</p>
<p>Your account for <b>{{.Email}}</b> has been created.</p>
<p><a href="{{.Link}}">Go to dashboard</a></p>
`))

	resetPasswordTmpl = template.Must(template.New("reset_password").Parse(
		`<p>Hello {{.Name}},</p>
<p>We received a request to recover the password for your {{.Project}} account <b>{{.Email}}</b>.</p>
<p><a href="{{.Link}}">Reset password</a></p>
<p>The link expires in {{.Valid}}.</p>
<p>If you didn't request a password recovery you can ignore this email.</p>
`))
)

type templateData struct {
	Project string
	Name    string
	Email   string
	Link    string
	Valid   string
}

// NewAccountMessage greets a freshly created user.
func NewAccountMessage(project, serverHost, to, fullName string) (Message, error) {
	body, err := render(newAccountTmpl, templateData{
		Project: project,
		Name:    displayName(fullName, to),
		Email:   to,
		Link:    strings.TrimRight(serverHost, "/"),
	})
	if err != nil {
		return Message{}, err
	}
	return Message{
		To:      to,
		Subject: fmt.Sprintf("%s - New account for user %s", project, to),
		HTML:    body,
	}, nil
}

// ResetPasswordMessage carries the reset link for token.
func ResetPasswordMessage(project, serverHost, to, fullName, token string, valid time.Duration) (Message, error) {
	link := strings.TrimRight(serverHost, "/") + "/reset-password?token=" + url.QueryEscape(token)
	body, err := render(resetPasswordTmpl, templateData{
		Project: project,
		Name:    displayName(fullName, to),
		Email:   to,
		Link:    link,
		Valid:   humanDuration(valid),
	})
	if err != nil {
		return Message{}, err
	}
	return Message{
		To:      to,
		Subject: fmt.Sprintf("%s - Password recovery for user %s", project, to),
		HTML:    body,
	}, nil
}

func render(t *template.Template, data templateData) (string, error) {
	var b bytes.Buffer
	if err := t.Execute(&b, data); err != nil {
		return "", fmt.Errorf("mail: render %s: %w", t.Name(), err)
	}
	return b.String(), nil
}

func displayName(fullName, email string) string {
	if fullName != "" {
		return fullName
	}
	return email
}

func humanDuration(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		h := int(d / time.Hour)
		if h == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", h)
	case d >= time.Minute && d%time.Minute == 0:
		return fmt.Sprintf("%d minutes", int(d/time.Minute))
	default:
		return d.String()
	}
}
