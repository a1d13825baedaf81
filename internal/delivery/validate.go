package delivery

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

// requestValidator checks the required fields of outgoing requests and
// renders failures as readable, json-named messages.
type requestValidator struct {
	validate *validator.Validate
	trans    ut.Translator
}

var (
	validatorOnce sync.Once
	sharedValid   *requestValidator
)

func defaultValidator() *requestValidator {
	validatorOnce.Do(func() {
		sharedValid = newRequestValidator()
	})
	return sharedValid
}

func newRequestValidator() *requestValidator {
	validate := validator.New(validator.WithRequiredStructEnabled())

	english := en.New()
	uni := ut.New(english, english)
	trans, _ := uni.GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(validate, trans)

	// Report fields by their wire names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &requestValidator{validate: validate, trans: trans}
}

// Check validates req and returns a *ValidationError naming op on failure.
func (v *requestValidator) Check(op string, req any) error {
	err := v.validate.Struct(req)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &ValidationError{Op: op, Fields: map[string]string{"request": err.Error()}}
	}

	fields := make(map[string]string, len(verrs))
	for _, e := range verrs {
		fields[e.Field()] = e.Translate(v.trans)
	}
	return &ValidationError{Op: op, Fields: fields}
}

// Validate checks req's required fields without sending anything. It is the
// same check every Client implementation in this package runs first.
func Validate(op string, req any) error {
	return defaultValidator().Check(op, req)
}
