package services

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/osvaldoandrade/autodeploy/pkg/auth"
	"github.com/osvaldoandrade/autodeploy/pkg/domain"
)

// repoNameRules mirrors the repoName tag on domain.TaskRequest for names taken from a URL path.
const repoNameRules = "required,max=100,ne=.,ne=..,reponame"

var requestValidator = newRequestValidator()

type ValidationService interface {
	Validate(req domain.TaskRequest) (domain.TaskBrief, error)
}

type validationService struct {
	secrets auth.Validator
}

// NewValidationService checks the shared secret through secrets. A nil validator means no
// secret is configured and every request is refused.
func NewValidationService(secrets auth.Validator) ValidationService {
	return &validationService{secrets: secrets}
}

// newRequestValidator reads the `validate` tags on domain.TaskRequest and reports fields by
// their json names.
func newRequestValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("reponame", func(fl validator.FieldLevel) bool {
		return validRepoChars(fl.Field().String())
	})
	return v
}

func (s *validationService) Validate(req domain.TaskRequest) (domain.TaskBrief, error) {
	if s.secrets == nil {
		return domain.TaskBrief{}, &domain.ConfigurationError{Missing: []string{"shared secret"}}
	}
	if req.Secret == "" {
		return domain.TaskBrief{}, &domain.ValidationError{Field: "secret", Reason: "required"}
	}
	if _, err := s.secrets.Validate(req.Secret); err != nil {
		return domain.TaskBrief{}, &domain.ValidationError{Field: "secret", Reason: "incorrect"}
	}

	norm := req
	norm.Task = strings.TrimSpace(req.Task)
	norm.RepoName = strings.TrimSpace(req.RepoName)
	norm.CallbackURL = strings.TrimSpace(req.CallbackURL)
	norm.Email = strings.TrimSpace(req.Email)
	norm.Nonce = strings.TrimSpace(req.Nonce)
	if err := requestValidator.Struct(norm); err != nil {
		return domain.TaskBrief{}, fieldError(err)
	}

	var checks []string
	for _, c := range req.Checks {
		if c = strings.TrimSpace(c); c != "" {
			checks = append(checks, c)
		}
	}

	return domain.TaskBrief{
		Task:        norm.Task,
		RepoName:    norm.RepoName,
		CallbackURL: norm.CallbackURL,
		Checks:      checks,
		Round:       norm.Round,
		Nonce:       norm.Nonce,
		Email:       norm.Email,
	}, nil
}

// fieldError turns the first failed rule into a ValidationError.
func fieldError(err error) error {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return &domain.ValidationError{Field: "body", Reason: err.Error()}
	}
	fe := errs[0]
	return &domain.ValidationError{Field: fe.Field(), Reason: ruleReason(fe)}
}

func ruleReason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "ne":
		return "must not be . or .."
	case "reponame":
		return "may only contain letters, digits, '.', '-' and '_'"
	case "http_url":
		return "must be an absolute http(s) URL"
	case "email":
		return "malformed address"
	case "min":
		return "must not be negative"
	default:
		return "failed " + fe.Tag() + " rule"
	}
}

func validRepoChars(name string) bool {
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

// checkRepoName returns the reason name is not a usable repository name, or "".
func checkRepoName(name string) string {
	if err := requestValidator.Var(name, repoNameRules); err != nil {
		var verr *domain.ValidationError
		if errors.As(fieldError(err), &verr) {
			return verr.Reason
		}
		return err.Error()
	}
	return ""
}
