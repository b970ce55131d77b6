package static

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/osvaldoandrade/autodeploy/pkg/auth"
)

type validatorConfig struct {
	// Secret is the shared secret every deployment request must carry.
	Secret string `json:"secret"`

	// Subject is returned as claims.Subject.
	Subject string `json:"subject,omitempty"`

	Raw map[string]any `json:"raw,omitempty"`
}

type validator struct {
	cfg validatorConfig
	now func() time.Time
}

// NewValidatorFromJSON accepts either {"secret":"...","subject":"..."} or a bare JSON string.
func NewValidatorFromJSON(raw json.RawMessage) (auth.Validator, error) {
	raw = json.RawMessage(strings.TrimSpace(string(raw)))
	if len(raw) == 0 {
		return nil, errors.New("static auth: missing config")
	}

	var cfg validatorConfig
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &cfg.Secret); err != nil {
			return nil, fmtError("static auth: invalid config", err)
		}
	} else {
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, fmtError("static auth: invalid config", err)
		}
	}

	if cfg.Secret == "" {
		return nil, errors.New("static auth: secret is required")
	}
	cfg.Subject = strings.TrimSpace(cfg.Subject)
	if cfg.Subject == "" {
		cfg.Subject = "shared-secret"
	}
	if cfg.Raw == nil {
		cfg.Raw = map[string]any{}
	}

	return &validator{cfg: cfg, now: time.Now}, nil
}

// NewSecretValidator is a convenience for callers that hold the secret directly.
func NewSecretValidator(secret string) (auth.Validator, error) {
	raw, err := json.Marshal(validatorConfig{Secret: secret})
	if err != nil {
		return nil, err
	}
	return NewValidatorFromJSON(raw)
}

// Validate compares in constant time. The credential is not trimmed: the secret is exact.
func (v *validator) Validate(credential string) (*auth.Claims, error) {
	if subtle.ConstantTimeCompare([]byte(credential), []byte(v.cfg.Secret)) != 1 {
		return nil, auth.ErrInvalidCredential
	}
	return &auth.Claims{
		Subject:    v.cfg.Subject,
		VerifiedAt: v.now(),
		Raw:        v.cfg.Raw,
	}, nil
}

func init() {
	auth.RegisterProvider("static", NewValidatorFromJSON)
}

func fmtError(msg string, err error) error {
	if err == nil {
		return errors.New(msg)
	}
	return errors.New(msg + ": " + err.Error())
}
