package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"
)

const notificationSubject = "EasyManager Notification"

var notificationHTML = template.Must(template.New("notification").Parse(
	`<h2>EasyManager Notification</h2>
<p>Hello {{.Username}},</p>
<p>{{range $i, $line := .Lines}}{{if $i}}<br>{{end}}{{$line}}{{end}}</p>
<p>Best regards,<br>EasyManager Team</p>
`))

var credentialsHTML = template.Must(template.New("credentials").Parse(
	`<h2>Your EasyManager Login Credentials</h2>
<p>Hello {{.Username}},</p>
<p>Here are your login credentials for EasyManager:</p>
<p><strong>Username:</strong> {{.Username}}<br>
<strong>Password:</strong> {{.Password}}</p>
<p>Please change your password after your first login.</p>
<p>Best regards,<br>EasyManager Team</p>
`))

var passwordResetHTML = template.Must(template.New("password-reset").Parse(
	`<h2>Reset Your Password</h2>
<p>Hello {{.Username}},</p>
<p>You have requested to reset your password. Click the following link to reset your password:</p>
<p><a href="{{.Link}}">Reset Password</a></p>
<p>This link will expire in {{.Expiry}}.</p>
<p>Best regards,<br>EasyManager Team</p>
`))

// notification renders the standard message body for one recipient.
func notification(to, username, message string) (Message, error) {
	message = strings.TrimSpace(message)

	var html bytes.Buffer
	err := notificationHTML.Execute(&html, struct {
		Username string
		Lines    []string
	}{
		Username: username,
		Lines:    strings.Split(message, "\n"),
	})
	if err != nil {
		return Message{}, fmt.Errorf("rendering notification: %w", err)
	}

	return Message{
		To:      to,
		Subject: notificationSubject,
		Text:    fmt.Sprintf("Hello %s,\n\n%s\n\nBest regards,\nEasyManager Team", username, message),
		HTML:    html.String(),
	}, nil
}

func credentials(to, username, password string) (Message, error) {
	var html bytes.Buffer
	err := credentialsHTML.Execute(&html, struct{ Username, Password string }{username, password})
	if err != nil {
		return Message{}, fmt.Errorf("rendering credentials: %w", err)
	}

	return Message{
		To:      to,
		Subject: "Your EasyManager Login Credentials",
		Text: fmt.Sprintf("Hello %s,\n\nHere are your login credentials for EasyManager:\n\nUsername: %s\nPassword: %s\n\n"+
			"Please change your password after your first login.\n\nBest regards,\nEasyManager Team", username, username, password),
		HTML: html.String(),
	}, nil
}

func passwordReset(to, username, link string, expiry time.Duration) (Message, error) {
	var html bytes.Buffer
	err := passwordResetHTML.Execute(&html, struct{ Username, Link, Expiry string }{username, link, humanDuration(expiry)})
	if err != nil {
		return Message{}, fmt.Errorf("rendering password reset: %w", err)
	}

	return Message{
		To:      to,
		Subject: "Reset Your EasyManager Password",
		Text: fmt.Sprintf("Hello %s,\n\nYou have requested to reset your password. Click the following link to reset your password:\n\n%s\n\n"+
			"This link will expire in %s.\n\nBest regards,\nEasyManager Team", username, link, humanDuration(expiry)),
		HTML: html.String(),
	}, nil
}

func humanDuration(d time.Duration) string {
	switch {
	case d == time.Hour:
		return "1 hour"
	case d%time.Hour == 0:
		return fmt.Sprintf("%d hours", d/time.Hour)
	case d%time.Minute == 0:
		return fmt.Sprintf("%d minutes", d/time.Minute)
	}
	return d.String()
}
