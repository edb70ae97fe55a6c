package tools

import (
	"errors"
	"fmt"
	"math"
	"unicode/utf8"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"council/internal/domain/models/llm"
)

// ValidateArguments checks tool input against a JSON schema object.
// Supported keywords: required, properties.type, enum, minLength, maxLength,
// minimum, maximum, additionalProperties (false only).
func ValidateArguments(schema map[string]interface{}, args map[string]interface{}) error {
	spec := llm.ToolSpec{Parameters: schema}
	props := spec.Properties()
	closed := schema["additionalProperties"] == false

	errs := validation.Errors{}
	for _, name := range spec.Required() {
		if v, ok := args[name]; !ok || v == nil {
			errs[name] = errors.New("is required")
		}
	}

	for name, value := range args {
		if _, already := errs[name]; already {
			continue
		}
		propSchema, ok := props[name].(map[string]interface{})
		if !ok {
			if closed {
				errs[name] = errors.New("is not a known parameter")
			}
			continue
		}
		if value == nil {
			continue
		}
		if err := validation.Validate(value, propertyRules(propSchema)...); err != nil {
			errs[name] = err
		}
	}

	return errs.Filter()
}

func propertyRules(schema map[string]interface{}) []validation.Rule {
	typ, _ := schema["type"].(string)
	rules := []validation.Rule{validation.By(typeRule(typ))}

	if enum := toInterfaceSlice(schema["enum"]); len(enum) > 0 {
		rules = append(rules, validation.In(enum...).Error(fmt.Sprintf("must be one of %v", enum)))
	}

	switch typ {
	case "string":
		// ozzo's length rules pass empty values, so minLength is checked here
		if minLen, ok := numberOf(schema["minLength"]); ok && minLen > 0 {
			rules = append(rules, validation.By(func(v interface{}) error {
				if s, _ := v.(string); utf8.RuneCountInString(s) < int(minLen) {
					return fmt.Errorf("the length must be at least %d", int(minLen))
				}
				return nil
			}))
		}
		if maxLen, ok := numberOf(schema["maxLength"]); ok {
			rules = append(rules, validation.RuneLength(0, int(maxLen)))
		}
	case "integer", "number":
		minimum, hasMin := numberOf(schema["minimum"])
		maximum, hasMax := numberOf(schema["maximum"])
		if hasMin || hasMax {
			rules = append(rules, validation.By(func(v interface{}) error {
				n, _ := numberOf(v)
				if hasMin && n < minimum {
					return fmt.Errorf("must be no less than %v", minimum)
				}
				if hasMax && n > maximum {
					return fmt.Errorf("must be no greater than %v", maximum)
				}
				return nil
			}))
		}
	}
	return rules
}

func typeRule(typ string) validation.RuleFunc {
	return func(v interface{}) error {
		ok := true
		switch typ {
		case "string":
			_, ok = v.(string)
		case "boolean":
			_, ok = v.(bool)
		case "number":
			_, ok = numberOf(v)
		case "integer":
			n, isNum := numberOf(v)
			ok = isNum && n == math.Trunc(n)
		case "array":
			_, ok = v.([]interface{})
		case "object":
			_, ok = v.(map[string]interface{})
		}
		if !ok {
			return fmt.Errorf("must be of type %s", typ)
		}
		return nil
	}
}

func numberOf(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	default:
		return 0, false
	}
}

func toInterfaceSlice(v interface{}) []interface{} {
	switch s := v.(type) {
	case []interface{}:
		return s
	case []string:
		out := make([]interface{}, len(s))
		for i := range s {
			out[i] = s[i]
		}
		return out
	default:
		return nil
	}
}
