package validation

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	enTranslations "github.com/go-playground/validator/v10/translations/en"
)

// Custom tags understood by the registration payloads.
const (
	FiscalCodeTag = "fiscalcode"
	PhoneTag      = "phone"
	PostalCodeTag = "postalcode"
	GradeLabelTag = "gradelabel"
	TimeSlotTag   = "timeslot"
)

var (
	// Italian codice fiscale, checked against the upper-cased value. Omocodia
	// substitutions (LMNPQRSTUV) are accepted in the numeric positions.
	fiscalCodeRegex = regexp.MustCompile(`^[A-Z]{6}[0-9LMNPQRSTUV]{2}[ABCDEHLMPRST][0-9LMNPQRSTUV]{2}[A-Z][0-9LMNPQRSTUV]{3}[A-Z]$`)
	phoneRegex      = regexp.MustCompile(`^\+?[0-9]{6,15}$`)
	postalCodeRegex = regexp.MustCompile(`^[0-9]{5}$`)

	customTexts = map[string]string{
		FiscalCodeTag: "{0} must be a valid 16-character fiscal code",
		PhoneTag:      "{0} must be a valid phone number",
		PostalCodeTag: "{0} must be a 5-digit postal code",
		GradeLabelTag: "{0} must be a known school grade",
		TimeSlotTag:   "{0} must be a known time slot",
		"required":    "this field is required",
		"eqfield":     "{0} does not match",
	}
)

// Validator bundles a validator instance with its English translator.
type Validator struct {
	validate   *validator.Validate
	translator ut.Translator
}

// New builds a validator with the registration custom tags registered.
// gradeLabelValues and timeSlotValues populate the closed lists checked by
// the gradelabel and timeslot tags.
func New(gradeLabelValues, timeSlotValues []string) *Validator {
	gradeLabels := toSet(gradeLabelValues)
	timeSlots := toSet(timeSlotValues)

	english := en.New()
	uni := ut.New(english, english)
	translator, _ := uni.GetTranslator("en")

	validate := validator.New()
	_ = enTranslations.RegisterDefaultTranslations(validate, translator)

	// Use JSON tag names for errors instead of Go struct names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = validate.RegisterValidation(FiscalCodeTag, func(fl validator.FieldLevel) bool {
		return IsFiscalCode(fl.Field().String())
	})
	_ = validate.RegisterValidation(PhoneTag, func(fl validator.FieldLevel) bool {
		return phoneRegex.MatchString(compactPhone(fl.Field().String()))
	})
	_ = validate.RegisterValidation(PostalCodeTag, func(fl validator.FieldLevel) bool {
		return postalCodeRegex.MatchString(strings.TrimSpace(fl.Field().String()))
	})
	_ = validate.RegisterValidation(GradeLabelTag, func(fl validator.FieldLevel) bool {
		_, ok := gradeLabels[fl.Field().String()]
		return ok
	})
	_ = validate.RegisterValidation(TimeSlotTag, func(fl validator.FieldLevel) bool {
		_, ok := timeSlots[fl.Field().String()]
		return ok
	})

	for tag, text := range customTexts {
		registerTranslation(validate, translator, tag, text)
	}

	return &Validator{validate: validate, translator: translator}
}

// Engine exposes the underlying validator for services that validate plain structs.
func (v *Validator) Engine() *validator.Validate {
	return v.validate
}

// Struct validates s and returns its failures keyed by JSON field path, with
// prefix prepended to each key. A nil map means s is valid.
func (v *Validator) Struct(prefix string, s interface{}) map[string]string {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return map[string]string{prefix: err.Error()}
	}
	out := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		out[fieldKey(prefix, fe)] = fe.Translate(v.translator)
	}
	return out
}

// IsFiscalCode reports whether raw is a syntactically valid fiscal code, ignoring case.
func IsFiscalCode(raw string) bool {
	return fiscalCodeRegex.MatchString(NormalizeFiscalCode(raw))
}

// NormalizeFiscalCode upper-cases and trims a fiscal code.
func NormalizeFiscalCode(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

func fieldKey(prefix string, fe validator.FieldError) string {
	ns := fe.Namespace()
	// drop the root struct name
	if idx := strings.Index(ns, "."); idx >= 0 {
		ns = ns[idx+1:]
	}
	if prefix == "" {
		return ns
	}
	return prefix + "." + ns
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

func compactPhone(raw string) string {
	return strings.NewReplacer(" ", "", "-", "", ".", "").Replace(strings.TrimSpace(raw))
}

func registerTranslation(validate *validator.Validate, translator ut.Translator, tag, text string) {
	_ = validate.RegisterTranslation(
		tag, translator,
		func(t ut.Translator) error { return t.Add(tag, text, true) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}
