package codec

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"amina-zigbee/internal/metrics"
	"amina-zigbee/internal/schema"
	"amina-zigbee/internal/zcl"
)

func newValidator() *validator.Validate {
	v := validator.New()
	// Only fails for malformed tag names.
	if err := v.RegisterValidation("step", validateStep); err != nil {
		panic(err)
	}
	return v
}

// validateStep accepts values that are a whole multiple of the tag parameter.
func validateStep(fl validator.FieldLevel) bool {
	step, err := strconv.ParseFloat(fl.Param(), 64)
	if err != nil || step <= 0 {
		return false
	}
	var v float64
	switch fl.Field().Kind() {
	case reflect.Float32, reflect.Float64:
		v = fl.Field().Float()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		v = float64(fl.Field().Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		v = float64(fl.Field().Uint())
	default:
		return false
	}
	q := v / step
	return q == math.Trunc(q)
}

// number accepts Go numbers and numeric strings, the shapes user commands arrive in.
func number(value any) (float64, bool) {
	switch v := value.(type) {
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	case interface{ Float64() (float64, error) }: // json.Number
		f, err := v.Float64()
		return f, err == nil
	}
	return zcl.ToFloat64(value)
}

// checkRange validates value against the field's encode-side bounds.
func (c *Codec) checkRange(f schema.Field, value any) (float64, error) {
	n, ok := number(value)
	if !ok {
		return 0, c.invalid(f.Key, value, "must be a number")
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, c.invalid(f.Key, value, "must be a finite number")
	}
	tag := fmt.Sprintf("min=%s,max=%s", formatBound(f.Min), formatBound(f.Max))
	if f.Step > 0 {
		tag += ",step=" + formatBound(f.Step)
	}
	if err := c.validate.Var(n, tag); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return 0, c.invalid(f.Key, value, reason(verrs[0]))
		}
		return 0, c.invalid(f.Key, value, err.Error())
	}
	return n, nil
}

func (c *Codec) invalid(key string, value any, why string) error {
	metrics.ValidationFailures.WithLabelValues(key).Inc()
	c.logger.Warn("set rejected", "field", key, "value", value, "reason", why)
	return &ValidationError{Field: key, Value: value, Reason: why}
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must not exceed " + fe.Param()
	case "step":
		return "must be a multiple of " + fe.Param()
	}
	return fmt.Sprintf("failed %s validation", fe.Tag())
}

func formatBound(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
