package handler

import (
    "errors"
    "fmt"
    "reflect"
    "strings"

    "github.com/go-playground/validator/v10"
    "github.com/labstack/echo/v4"
)

// Validator adapts validator/v10 to echo.Validator.
type Validator struct {
    v *validator.Validate
}

func NewValidator() *Validator {
    v := validator.New()
    v.RegisterTagNameFunc(func(f reflect.StructField) string {
        name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
        if name == "-" {
            return ""
        }
        return name
    })
    return &Validator{v: v}
}

func (cv *Validator) Validate(i any) error { return cv.v.Struct(i) }

// bind decodes the body into dst and validates it, returning a client
// message on failure.
func bind(c echo.Context, dst any) (string, bool) {
    if err := c.Bind(dst); err != nil {
        return "invalid request body", false
    }
    if err := c.Validate(dst); err != nil {
        return describe(err), false
    }
    return "", true
}

func describe(err error) string {
    var ve validator.ValidationErrors
    if !errors.As(err, &ve) || len(ve) == 0 {
        return "invalid request body"
    }
    msgs := make([]string, 0, len(ve))
    for _, fe := range ve {
        msgs = append(msgs, fieldMessage(fe))
    }
    return strings.Join(msgs, "; ")
}

func fieldMessage(fe validator.FieldError) string {
    f := fe.Field()
    switch fe.Tag() {
    case "required":
        return f + " is required"
    case "email":
        return f + " must be a valid email address"
    case "oneof":
        return fmt.Sprintf("%s must be one of %s", f, strings.ReplaceAll(fe.Param(), " ", ", "))
    case "min", "gte":
        return fmt.Sprintf("%s must be at least %s", f, fe.Param())
    case "max", "lte":
        return fmt.Sprintf("%s must be at most %s", f, fe.Param())
    case "gt":
        return fmt.Sprintf("%s must be greater than %s", f, fe.Param())
    case "datetime":
        if fe.Param() == dateLayout {
            return f + " must be a date formatted YYYY-MM-DD"
        }
        return fmt.Sprintf("%s must match %s", f, fe.Param())
    }
    return f + " is invalid"
}
