package config

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

// ErrInvalid is wrapped by [Load] when validation fails.
var ErrInvalid = errors.New("invalid config")

// tagDistinct reports adaptive steps sharing a threshold.
const tagDistinct = "distinct_below"

// checker pairs a validator with the English translator its messages are
// rendered through.
type checker struct {
	v     *validator.Validate
	trans ut.Translator
}

var std = mustChecker()

func mustChecker() *checker {
	trans, ok := ut.New(en.New(), en.New()).GetTranslator("en")
	if !ok {
		panic("config: no 'en' translator")
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	if err := en_translations.RegisterDefaultTranslations(v, trans); err != nil {
		panic(err)
	}

	v.RegisterTagNameFunc(settingName)
	v.RegisterStructValidation(distinctSteps, AdaptiveConfig{})

	register := func(u ut.Translator) error {
		return u.Add(tagDistinct, "{0} must not repeat a below threshold", true)
	}
	translate := func(u ut.Translator, fe validator.FieldError) string {
		msg, err := u.T(tagDistinct, fe.Field())
		if err != nil {
			return fe.Error()
		}
		return msg
	}
	if err := v.RegisterTranslation(tagDistinct, trans, register, translate); err != nil {
		panic(err)
	}

	return &checker{v: v, trans: trans}
}

// settingName names fields by the key they are read from, so failures
// point at "throttle.burst" rather than "Throttle.Burst".
func settingName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("mapstructure"), ",")
	if name == "-" {
		return ""
	}
	return name
}

// distinctSteps rejects two steps with the same threshold, since only one
// of them could ever apply.
func distinctSteps(sl validator.StructLevel) {
	cfg := sl.Current().Interface().(AdaptiveConfig)

	seen := make(map[int]struct{}, len(cfg.Steps))
	for _, s := range cfg.Steps {
		if _, dup := seen[s.Below]; dup {
			sl.ReportError(cfg.Steps, "steps", "Steps", tagDistinct, "")
			return
		}
		seen[s.Below] = struct{}{}
	}
}

// Validate checks cfg against its declared tags. A failure is returned as
// [FieldErrors] keyed by setting path.
func Validate(cfg Config) error {
	return std.check(cfg)
}

func (c *checker) check(cfg Config) error {
	err := c.v.Struct(cfg)
	if err == nil {
		return nil
	}

	verrors, ok := errors.AsType[validator.ValidationErrors](err)
	if !ok {
		return err
	}

	fields := make(FieldErrors, 0, len(verrors))
	for _, fe := range verrors {
		fields = append(fields, FieldError{
			Field: strings.TrimPrefix(fe.Namespace(), "Config."),
			Err:   c.message(fe),
		})
	}

	return fields
}

func (c *checker) message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "must be set"
	case "required_unless":
		return "must be set when throttle.rps is set"
	case "hostname_port":
		return "must be a host:port address"
	default:
		return fe.Translate(c.trans)
	}
}

// FieldError is one failed setting.
type FieldError struct {
	Field string
	Err   string
}

// FieldErrors collects every failed setting of a [Config].
type FieldErrors []FieldError

func (fe FieldErrors) Error() string {
	parts := make([]string, len(fe))
	for i, f := range fe {
		parts[i] = f.Field + ": " + f.Err
	}
	return strings.Join(parts, "; ")
}

// Fields returns the failures keyed by setting path.
func (fe FieldErrors) Fields() map[string]string {
	m := make(map[string]string, len(fe))
	for _, f := range fe {
		m[f.Field] = f.Err
	}
	return m
}
