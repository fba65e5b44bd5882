package domain

// EmailKind selects the template used for an outgoing message.
type EmailKind string

const (
	EmailVerify  EmailKind = "verify"
	EmailReset   EmailKind = "reset"
	EmailWelcome EmailKind = "welcome"
)

// EmailData is the template payload shared by all kinds.
type EmailData struct {
	Code        string
	DisplayName string
	AppName     string
	ExpiresIn   int // minutes
}
