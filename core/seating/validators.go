package seating

import (
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/admissions/core"
)

var (
	scopeTag  = "scope"
	scopeText = `{0} must be "all" or a course ID`

	sortKeyTag  = "sortkey"
	sortKeyText = "{0} must be one of nationalId, applicationNumber"

	birthDateLayout = "2006-01-02"
)

// InitValidators registers the seating validators.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(scopeTag, scopeValidation)
	core.RegisterCustomTranslation(validate, translator, scopeTag, scopeText)

	_ = validate.RegisterValidation(sortKeyTag, sortKeyValidation)
	core.RegisterCustomTranslation(validate, translator, sortKeyTag, sortKeyText)
}

// AssignRequest asks for a seat assignment run.
type AssignRequest struct {
	CourseID string `json:"course_id" validate:"scope"`
	SortBy   string `json:"sort_by" validate:"sortkey"`
}

func (r AssignRequest) Validate(validate *validator.Validate) (Scope, SortKey, error) {
	if err := validate.Struct(r); err != nil {
		return Scope{}, "", err
	}
	scope, err := ParseScope(r.CourseID)
	if err != nil {
		return Scope{}, "", err
	}
	key, err := ParseSortKey(r.SortBy)
	return scope, key, err
}

// ScopeRequest carries the course scope of a reset or a summary.
type ScopeRequest struct {
	CourseID string `json:"course_id" query:"course_id" validate:"scope"`
}

func (r ScopeRequest) Validate(validate *validator.Validate) (Scope, error) {
	if err := validate.Struct(r); err != nil {
		return Scope{}, err
	}
	return ParseScope(r.CourseID)
}

// LookupRequest is an applicant looking up their seat.
type LookupRequest struct {
	NationalID string `json:"national_id" validate:"required,notblank"`
	BirthDate  string `json:"birth_date" validate:"required,datetime=2006-01-02"`
}

func (r *LookupRequest) Validate(validate *validator.Validate) (time.Time, error) {
	r.NationalID = core.CleanString(r.NationalID)
	r.BirthDate = core.CleanString(r.BirthDate)
	if err := validate.Struct(r); err != nil {
		return time.Time{}, err
	}
	return time.Parse(birthDateLayout, r.BirthDate)
}

// Custom Validators

func scopeValidation(fl validator.FieldLevel) bool {
	_, err := ParseScope(fl.Field().String())
	return err == nil
}

func sortKeyValidation(fl validator.FieldLevel) bool {
	_, err := ParseSortKey(fl.Field().String())
	return err == nil
}
