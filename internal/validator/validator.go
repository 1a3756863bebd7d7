// Package validator wraps go-playground/validator with English messages
// keyed by JSON field name.
package validator

import (
	"errors"
	"maps"
	"reflect"
	"slices"
	"strings"
	"sync"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	govalidator "github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

var (
	once     sync.Once
	validate *govalidator.Validate
	trans    ut.Translator
)

// Setup builds the validator. Safe to call more than once; Struct and Var
// call it lazily.
func Setup() {
	once.Do(func() {
		v := govalidator.New(govalidator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(jsonName)

		enLocale := en.New()
		trans, _ = ut.New(enLocale, enLocale).GetTranslator("en")
		_ = en_translations.RegisterDefaultTranslations(v, trans)

		_ = v.RegisterValidation("pdf", isPDFName)
		_ = v.RegisterTranslation("pdf", trans,
			func(t ut.Translator) error {
				return t.Add("pdf", "{0} must be a PDF file", true)
			},
			func(t ut.Translator, fe govalidator.FieldError) string {
				msg, _ := t.T("pdf", fe.Field())
				return msg
			},
		)

		validate = v
	})
}

func jsonName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	return name
}

// isPDFName accepts file names ending in .pdf, ignoring case.
func isPDFName(fl govalidator.FieldLevel) bool {
	return strings.HasSuffix(strings.ToLower(fl.Field().String()), ".pdf")
}

// ValidationError maps JSON field names to messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, k := range slices.Sorted(maps.Keys(e.Fields)) {
		msgs = append(msgs, e.Fields[k])
	}
	return strings.Join(msgs, "; ")
}

// Has reports whether field failed validation.
func (e *ValidationError) Has(field string) bool {
	_, ok := e.Fields[field]
	return ok
}

// TranslateErrors turns a validator error into field messages. Any other
// error is returned under "detail".
func TranslateErrors(err error) map[string]string {
	Setup()

	var ve govalidator.ValidationErrors
	if !errors.As(err, &ve) {
		return map[string]string{"detail": err.Error()}
	}
	fields := make(map[string]string, len(ve))
	for _, fe := range ve {
		fields[fe.Field()] = fe.Translate(trans)
	}
	return fields
}

// Struct validates dst and returns a *ValidationError on failure.
func Struct(dst interface{}) error {
	Setup()
	if err := validate.Struct(dst); err != nil {
		return &ValidationError{Fields: TranslateErrors(err)}
	}
	return nil
}

// Var validates a single value against tag.
func Var(value interface{}, tag string) error {
	Setup()
	if err := validate.Var(value, tag); err != nil {
		return &ValidationError{Fields: TranslateErrors(err)}
	}
	return nil
}
