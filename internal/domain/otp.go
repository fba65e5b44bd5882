package domain

import "time"

// Purpose scopes an OTP record to one flow. Records for different purposes
// never interfere, even for the same email.
type Purpose string

const (
	PurposeEmailVerification Purpose = "email_verification"
	PurposePasswordReset     Purpose = "password_reset"
)

func (p Purpose) Valid() bool {
	return p == PurposeEmailVerification || p == PurposePasswordReset
}

// OTPRecord is the single live code for an (email, purpose) pair.
// PK: email, SK: purpose.
type OTPRecord struct {
	Email      string     `json:"email" dynamodbav:"email" bson:"email"`
	Purpose    Purpose    `json:"purpose" dynamodbav:"purpose" bson:"purpose"`
	Code       string     `json:"-" dynamodbav:"code" bson:"code"`
	CreatedAt  time.Time  `json:"createdAt" dynamodbav:"created_at" bson:"created_at"`
	ExpiresAt  time.Time  `json:"expiresAt" dynamodbav:"expires_at" bson:"expires_at"`
	Attempts   int        `json:"attempts" dynamodbav:"attempts" bson:"attempts"`
	Verified   bool       `json:"verified" dynamodbav:"verified" bson:"verified"`
	VerifiedAt *time.Time `json:"verifiedAt,omitempty" dynamodbav:"verified_at,omitempty" bson:"verified_at,omitempty"`
}

// Expired reports whether the code can no longer be accepted at now.
func (r *OTPRecord) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}
