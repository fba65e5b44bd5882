package dynamo

// DynamoDB attribute names used in key and update expressions across repos.
const (
	fieldUserID     = "user_id"
	fieldEmail      = "email"
	fieldPurpose    = "purpose"
	fieldAttempts   = "attempts"
	fieldVerified   = "verified"
	fieldVerifiedAt = "verified_at"
	fieldTTL        = "ttl"
	fieldOwnerID    = "owner_id"

	// emailGuardPrefix marks the users-table row that reserves an address.
	// The row has no email attribute, so it stays out of email-index.
	emailGuardPrefix = "email#"

	indexEmail = "email-index"
)
