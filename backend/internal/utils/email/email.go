package email

import (
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"net/http"
	"net/mail"
	"net/smtp"
	"strings"
	"time"

	"github.com/gallery-dev/gallery/shared/config"
	"github.com/gallery-dev/gallery/shared/errors"
	"github.com/gallery-dev/gallery/shared/logger"
	"github.com/google/uuid"
)

type Email struct {
	config *config.Email
	auth   smtp.Auth
}

func New(config *config.Email) *Email {
	return &Email{
		config: config,
		auth:   smtp.PlainAuth("", config.Username, config.Password, config.SMTPServer),
	}
}

// IsCorrect accepts a bare address only ("a@b.c"), not "Name <a@b.c>".
func (e *Email) IsCorrect(address string) error {
	return Validate(address)
}

func Validate(address string) error {
	parsed, err := mail.ParseAddress(address)
	if err != nil || parsed.Address != address {
		return &errors.ErrorWithStatusCode{Message: "Invalid email address", StatusCode: http.StatusBadRequest}
	}
	return nil
}

// Send delivers an HTML message.
func (e *Email) Send(recipientEmail, subject, htmlBody string) error {
	msg := e.buildMessage(recipientEmail, subject, htmlBody)
	address := fmt.Sprintf("%s:%d", e.config.SMTPServer, e.config.SMTPPort)

	// Port 465 = implicit TLS, otherwise STARTTLS
	if e.config.SMTPPort == 465 {
		return e.sendImplicitTLS(address, recipientEmail, msg)
	}
	return e.sendSTARTTLS(address, recipientEmail, msg)
}

func (e *Email) timeout() time.Duration {
	timeout := time.Duration(e.config.Timeout) * time.Second
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return timeout
}

func (e *Email) sendImplicitTLS(address, recipientEmail string, msg []byte) error {
	tlsConfig := &tls.Config{ServerName: e.config.SMTPServer}

	conn, err := tls.DialWithDialer(&net.Dialer{Timeout: e.timeout()}, "tcp", address, tlsConfig)
	if err != nil {
		return fmt.Errorf("connect to SMTP server %s (implicit TLS): %w", address, err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(e.timeout()))

	client, err := smtp.NewClient(conn, e.config.SMTPServer)
	if err != nil {
		return fmt.Errorf("create SMTP client: %w", err)
	}
	defer client.Close()

	return e.sendViaClient(client, recipientEmail, msg)
}

func (e *Email) sendSTARTTLS(address, recipientEmail string, msg []byte) error {
	conn, err := net.DialTimeout("tcp", address, e.timeout())
	if err != nil {
		return fmt.Errorf("connect to SMTP server %s: %w", address, err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(e.timeout()))

	client, err := smtp.NewClient(conn, e.config.SMTPServer)
	if err != nil {
		return fmt.Errorf("create SMTP client: %w", err)
	}
	defer client.Close()

	if err = client.StartTLS(&tls.Config{ServerName: e.config.SMTPServer}); err != nil {
		return fmt.Errorf("start TLS: %w", err)
	}

	return e.sendViaClient(client, recipientEmail, msg)
}

func (e *Email) sendViaClient(client *smtp.Client, recipientEmail string, msg []byte) error {
	if err := client.Auth(e.auth); err != nil {
		return fmt.Errorf("SMTP authentication: %w", err)
	}
	if err := client.Mail(e.config.Username); err != nil {
		return fmt.Errorf("set sender: %w", err)
	}
	if err := client.Rcpt(recipientEmail); err != nil {
		return fmt.Errorf("set recipient: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("open data writer: %w", err)
	}
	if _, err = w.Write(msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err = w.Close(); err != nil {
		return fmt.Errorf("close data writer: %w", err)
	}

	if err := client.Quit(); err != nil {
		logger.Log.Warn("SMTP quit failed after delivery", "error", err)
	}
	return nil
}

func (e *Email) senderDomain() string {
	if _, domain, ok := strings.Cut(e.config.Username, "@"); ok && domain != "" {
		return domain
	}
	return e.config.SMTPServer
}

func (e *Email) buildMessage(recipient, subject, htmlBody string) []byte {
	encodedSubject := mime.QEncoding.Encode("utf-8", subject)
	encodedSenderName := mime.QEncoding.Encode("utf-8", e.config.SenderName)

	msgID := fmt.Sprintf("<%s@%s>", uuid.NewString(), e.senderDomain())
	date := time.Now().Format(time.RFC1123Z)

	return fmt.Appendf(nil,
		"Message-ID: %s\r\n"+
			"Date: %s\r\n"+
			"To: %s\r\n"+
			"From: %s <%s>\r\n"+
			"Subject: %s\r\n"+
			"MIME-Version: 1.0\r\n"+
			"Content-Type: text/html; charset=\"utf-8\"\r\n"+
			"\r\n"+
			"%s",
		msgID, date, recipient, encodedSenderName, e.config.Username, encodedSubject, htmlBody,
	)
}
