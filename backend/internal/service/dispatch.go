package service

import (
	"time"

	"github.com/gallery-dev/gallery/backend/internal/utils/email"
	"github.com/gallery-dev/gallery/shared/logger"
)

var (
	emailLink         = email.Link
	verificationBody  = email.VerificationBody
	passwordResetBody = email.PasswordResetBody
)

// dispatchEmail sends in the background and never reports back to the flow that
// triggered it. Failures are logged and counted. Delivery is at most once.
func (a *Auth) dispatchEmail(to, subject, markdown string) {
	a.pendingEmails.Add(1)
	go func() {
		defer a.pendingEmails.Done()
		start := time.Now()

		body, err := email.Render(markdown)
		if err == nil {
			err = a.email.Send(to, subject, body)
		}
		if err != nil {
			emailsSent.WithLabelValues("failed").Inc()
			logger.Log.Error("failed to send email", "to", to, "subject", subject, "error", err)
			return
		}
		emailsSent.WithLabelValues("sent").Inc()
		logger.Log.Debug("email sent", "to", to, "subject", subject, "duration", time.Since(start))
	}()
}

// WaitPendingEmails blocks until every dispatched email has been attempted.
func (a *Auth) WaitPendingEmails() {
	a.pendingEmails.Wait()
}
