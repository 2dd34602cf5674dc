package model

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/net/publicsuffix"
)

// DefaultBranch is checked out when a create request names no branch.
const DefaultBranch = "main"

// submitValidate is the validator instance for submit requests.
var submitValidate = validator.New(validator.WithRequiredStructEnabled())

func init() {
	submitValidate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = submitValidate.RegisterValidation("registrable_domain", registrableDomain)
}

// registrableDomain rejects names that are themselves a public suffix
// (com, co.uk, github.io): an application must own a registrable domain.
func registrableDomain(fl validator.FieldLevel) bool {
	domain := strings.TrimSuffix(fl.Field().String(), ".")
	if domain == "" {
		return true
	}
	_, err := publicsuffix.EffectiveTLDPlusOne(domain)
	return err == nil
}

// FieldError names the request field that failed validation.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Normalize canonicalises identifiers and fills defaults. A rollback with a
// target application runs against the target.
func (r *SubmitRequest) Normalize() {
	r.AppID = strings.ToLower(strings.TrimSpace(r.AppID))
	r.TargetAppID = strings.ToLower(strings.TrimSpace(r.TargetAppID))
	r.Source = strings.TrimSpace(r.Source)
	r.Branch = strings.TrimSpace(r.Branch)
	r.BackupID = strings.TrimSpace(r.BackupID)
	r.Description = strings.TrimSpace(r.Description)

	if r.Operation == OperationCreate && r.Branch == "" {
		r.Branch = DefaultBranch
	}
	if r.Operation == OperationRollback && r.TargetAppID != "" {
		r.AppID = r.TargetAppID
	}
}

// Validate checks the request's shape. The first failing field is returned as
// a *FieldError.
func (r *SubmitRequest) Validate() error {
	err := submitValidate.Struct(r)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	return &FieldError{Field: fe.Field(), Message: describeTag(fe)}
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return "is required"
	case "hostname_rfc1123":
		return "must be a valid domain name"
	case "registrable_domain":
		return "must be a domain below a public suffix"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "min":
		return "must be at least " + fe.Param()
	case "excludesall":
		return "contains a character that is not allowed"
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}
