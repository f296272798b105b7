// Package mail sends account e-mails over SMTP or Amazon SES.
package mail

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/url"
	"strings"
)

// Message is a single HTML e-mail.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Sender delivers a message or reports why it could not.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

const confirmationSubject = "Confirm your email"

var confirmationBody = template.Must(template.New("confirm").Parse(`<h3>Welcome!</h3>
<p>Please confirm your email by clicking the link below:</p>
<a href="{{.}}">Confirm Email</a>
`))

// ConfirmationLink builds {base}?userId={id}&token={escaped token}.
func ConfirmationLink(base, userID, token string) string {
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "userId=" + url.QueryEscape(userID) + "&token=" + url.QueryEscape(token)
}

// ConfirmationMessage renders the e-mail carrying link.
func ConfirmationMessage(to, link string) (Message, error) {
	var buf bytes.Buffer
	if err := confirmationBody.Execute(&buf, template.URL(link)); err != nil {
		return Message{}, fmt.Errorf("render confirmation mail: %w", err)
	}
	return Message{To: to, Subject: confirmationSubject, HTML: buf.String()}, nil
}

const resetSubject = "Reset your password"

var resetBody = template.Must(template.New("reset").Parse(`{{if .Link}}<p>Follow the link below to reset your password:</p>
<a href="{{.Link}}">Reset Password</a>
<p>Or enter these details on the reset page:</p>
{{else}}<p>Enter these details on the reset page to reset your password:</p>
{{end}}<p>Account: <code>{{.UserID}}</code></p>
<p>Code: <code>{{.Token}}</code></p>
`))

type resetData struct {
	Link   template.URL
	UserID string
	Token  string
}

// PasswordResetMessage renders the e-mail carrying the account id and reset
// token. link is optional.
func PasswordResetMessage(to, link, userID, token string) (Message, error) {
	var buf bytes.Buffer
	if err := resetBody.Execute(&buf, resetData{Link: template.URL(link), UserID: userID, Token: token}); err != nil {
		return Message{}, fmt.Errorf("render reset mail: %w", err)
	}
	return Message{To: to, Subject: resetSubject, HTML: buf.String()}, nil
}
