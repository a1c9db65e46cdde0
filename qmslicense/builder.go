package qmslicense

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Params are the issuance parameters accepted by Builder.Build.
// Nil limits and an empty module list fall back to the tier defaults.
type Params struct {
	Organization string   `json:"organization" validate:"required,max=256"`
	Tier         Tier     `json:"tier" validate:"required,tier"`
	Modules      []string `json:"modules" validate:"omitempty,dive,required,module"`
	MaxUsers     *Limit   `json:"max_users" validate:"omitempty,limit"`
	MaxStorageGB *Limit   `json:"max_storage_gb" validate:"omitempty,limit"`
	DurationDays int      `json:"duration_days" validate:"gt=0,max=36500"`
	GraceDays    *int     `json:"grace_days" validate:"omitempty,gte=0,max=3650"`
	Fingerprint  string   `json:"fingerprint" validate:"omitempty,fingerprint"`
}

// Builder validates issuance parameters and produces unsigned payloads.
// A Builder is safe for concurrent use.
type Builder struct {
	catalog   *TierCatalog
	now       func() time.Time
	newID     func() string
	issuer    string
	graceDays int
	validate  *validator.Validate
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithCatalog sets the tier catalog used for defaults. Default: DefaultCatalog().
func WithCatalog(c *TierCatalog) BuilderOption {
	return func(b *Builder) {
		b.catalog = c
	}
}

// WithClock sets the time source for IssuedAt. Default: time.Now.
func WithClock(now func() time.Time) BuilderOption {
	return func(b *Builder) {
		b.now = now
	}
}

// WithIssuer sets the iss claim. Default: DefaultIssuer.
func WithIssuer(iss string) BuilderOption {
	return func(b *Builder) {
		b.issuer = iss
	}
}

// WithDefaultGraceDays sets the grace period used when Params.GraceDays is nil.
func WithDefaultGraceDays(days int) BuilderOption {
	return func(b *Builder) {
		b.graceDays = days
	}
}

// WithIDGenerator sets the license ID source. Default: random UUIDs.
func WithIDGenerator(newID func() string) BuilderOption {
	return func(b *Builder) {
		b.newID = newID
	}
}

// NewBuilder creates a payload builder.
func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{
		catalog:   DefaultCatalog(),
		now:       time.Now,
		newID:     func() string { return uuid.New().String() },
		issuer:    DefaultIssuer,
		graceDays: DefaultGraceDays,
		validate:  newParamsValidator(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build validates params and returns the payload to sign.
//
// Explicit modules replace the tier defaults; they are never merged.
// ExpiresAt is exactly IssuedAt + DurationDays days.
func (b *Builder) Build(params Params) (Payload, error) {
	params.Organization = strings.TrimSpace(params.Organization)
	params.Fingerprint = strings.TrimSpace(params.Fingerprint)

	if err := b.validate.Struct(params); err != nil {
		return Payload{}, toValidationError(err)
	}
	if b.graceDays < 0 || b.graceDays > MaxGraceDays {
		return Payload{}, newValidationError("grace_days", "default grace period must be between 0 and %d", MaxGraceDays)
	}

	defaults, err := b.catalog.DefaultsFor(params.Tier)
	if err != nil {
		return Payload{}, err
	}

	modules := defaults.Modules
	if len(params.Modules) > 0 {
		if modules, err = normalizeModules(params.Modules); err != nil {
			return Payload{}, err
		}
	}

	limits := Limits{MaxUsers: defaults.MaxUsers, MaxStorageGB: defaults.MaxStorageGB}
	if params.MaxUsers != nil {
		limits.MaxUsers = *params.MaxUsers
	}
	if params.MaxStorageGB != nil {
		limits.MaxStorageGB = *params.MaxStorageGB
	}

	grace := b.graceDays
	if params.GraceDays != nil {
		grace = *params.GraceDays
	}

	issuedAt := b.now().UTC().Truncate(time.Second)
	return Payload{
		Version:      PayloadVersion,
		Issuer:       b.issuer,
		LicenseID:    b.newID(),
		Organization: params.Organization,
		Tier:         params.Tier,
		Modules:      modules,
		Limits:       limits,
		IssuedAt:     issuedAt,
		ExpiresAt:    issuedAt.Add(time.Duration(params.DurationDays) * secondsPerDay * time.Second),
		GraceDays:    grace,
		Fingerprint:  params.Fingerprint,
	}, nil
}

func newParamsValidator() *validator.Validate {
	v := validator.New()
	v.RegisterValidation("tier", func(fl validator.FieldLevel) bool {
		return Tier(fl.Field().String()).Valid()
	})
	v.RegisterValidation("limit", func(fl validator.FieldLevel) bool {
		return Limit(fl.Field().Int()).Valid()
	})
	v.RegisterValidation("fingerprint", func(fl validator.FieldLevel) bool {
		return ValidFingerprint(fl.Field().String())
	})
	v.RegisterValidation("module", func(fl validator.FieldLevel) bool {
		return moduleCode.MatchString(strings.TrimSpace(fl.Field().String()))
	})

	// Report JSON field names in errors.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// toValidationError converts the first validator failure into a ValidationError.
func toValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &ValidationError{Message: err.Error()}
	}
	fe := verrs[0]
	field := fe.Field()
	if i := strings.IndexByte(field, '['); i > 0 {
		field = field[:i]
	}

	var msg string
	switch fe.Tag() {
	case "required":
		msg = "is required"
	case "tier":
		msg = fmt.Sprintf("unknown tier %q, expected one of start, standard, pro, industry, corp", fe.Value())
	case "gt":
		msg = fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte":
		msg = fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		msg = fmt.Sprintf("must be at most %s", fe.Param())
	case "limit":
		msg = "must be a non-negative integer or unlimited"
	case "fingerprint":
		msg = fmt.Sprintf("%q must match sha256:<64 lowercase hex>", fe.Value())
	case "module":
		msg = fmt.Sprintf("invalid module code %q", fe.Value())
	default:
		msg = fmt.Sprintf("failed %q check", fe.Tag())
	}
	return &ValidationError{Field: field, Message: msg}
}
