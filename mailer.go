package auth

import "context"

// LogVerificationMailer only logs the request. It stands in until a real
// delivery service is wired.
type LogVerificationMailer struct {
	Logger Logger
}

// SendVerification implements VerificationMailer
func (m LogVerificationMailer) SendVerification(_ context.Context, record *CredentialRecord) error {
	normalizeLogger(m.Logger).Info("verification email requested",
		"subject", record.SubjectID,
		"email", record.Email,
	)
	return nil
}
