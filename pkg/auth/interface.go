package auth

import (
	"time"
)

// Claims describes the caller once its credential has been accepted.
type Claims struct {
	Subject    string
	Email      string
	VerifiedAt time.Time
	Raw        map[string]interface{}
}

// Validator checks a caller-supplied credential.
type Validator interface {
	Validate(credential string) (*Claims, error)
}
