package directory

import (
	"regexp"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/bitacora/core"
)

var (
	nitTag   = "nit"
	nitText  = "enter a valid NIT, eg. 900123456-7"
	nitRegex = regexp.MustCompile(`^[0-9]{6,12}(-[0-9])?$`)

	dateRangeTag  = "gtefield"
	dateRangeText = "end date must not precede start date"

	takenText = "already registered"
)

// InitValidators registers the directory validators & their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(nitTag, func(fl validator.FieldLevel) bool {
		return nitRegex.MatchString(fl.Field().String())
	})
	core.RegisterCustomTranslation(validate, translator, nitTag, nitText)
	core.RegisterCustomTranslation(validate, translator, dateRangeTag, dateRangeText, true)
}
