package console

import "github.com/kodj/kodjadmin/session"

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// LoginRequest is the JSON body for POST /login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// VerifyRequest is the JSON body for POST /login/verify.
type VerifyRequest struct {
	Code string `json:"code"`
}

// SessionResponse describes the session without its credentials.
type SessionResponse struct {
	Phase     string             `json:"phase"`
	Principal *session.Principal `json:"principal,omitempty"`
	Challenge *session.Challenge `json:"challenge,omitempty"`
	Error     string             `json:"error,omitempty"`
	// ResendIn is the number of seconds until a code may be re-sent.
	ResendIn int    `json:"resendIn,omitempty"`
	Location string `json:"location,omitempty"`
}

// HomeResponse is returned from GET /.
type HomeResponse struct {
	Principal *session.Principal `json:"principal"`
	Greeting  string             `json:"greeting"`
}
