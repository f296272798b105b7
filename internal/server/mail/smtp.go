package mail

import (
	"context"
	"fmt"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

// sendMail is a seam over smtp.SendMail for tests.
var sendMail = smtp.SendMail

// SMTPSender relays through an authenticated SMTP server. net/smtp upgrades
// to STARTTLS whenever the server offers it.
type SMTPSender struct {
	addr string
	auth smtp.Auth
	from mail.Address
}

func NewSMTPSender(host string, port int, username, password, fromName string) *SMTPSender {
	return &SMTPSender{
		addr: net.JoinHostPort(host, strconv.Itoa(port)),
		auth: smtp.PlainAuth("", username, password, host),
		from: mail.Address{Name: fromName, Address: username},
	}
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	to, err := mail.ParseAddress(msg.To)
	if err != nil {
		return fmt.Errorf("invalid recipient %q: %w", msg.To, err)
	}
	if err := sendMail(s.addr, s.auth, s.from.Address, []string{to.Address}, s.compose(to, msg)); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func (s *SMTPSender) compose(to *mail.Address, msg Message) []byte {
	var b strings.Builder
	b.WriteString("From: " + s.from.String() + "\r\n")
	b.WriteString("To: " + to.String() + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", msg.Subject) + "\r\n")
	b.WriteString("Date: " + time.Now().Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.HTML)
	return []byte(b.String())
}
