package builder

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/marshallshelly/blogstore/pkg/runtime"
	"github.com/marshallshelly/blogstore/pkg/schema"
)

// Validator is implemented by models with checks beyond struct tags.
type Validator interface {
	Validate() error
}

var defaultValidate = validator.New(validator.WithRequiredStructEnabled())

// validateModel runs `validate` struct tags and the model's own Validate
// method, reporting failures as *runtime.ValidationError with column names.
func validateModel(v *validator.Validate, table *schema.TableMetadata, model reflect.Value) error {
	if v != nil {
		if err := v.Struct(model.Interface()); err != nil {
			return translateValidation(table, err)
		}
	}

	if model.CanAddr() {
		if m, ok := model.Addr().Interface().(Validator); ok {
			return asValidation(m.Validate())
		}
	}
	if m, ok := model.Interface().(Validator); ok {
		return asValidation(m.Validate())
	}
	return nil
}

// validateValue checks a single column value against the field's tag.
func validateValue(v *validator.Validate, col *schema.ColumnMetadata, tag string, value any) error {
	if v == nil || tag == "" {
		return nil
	}
	if err := v.Var(value, tag); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return runtime.Invalid(col.Name, "%s", describeFieldError(fieldErrs[0]))
		}
		return runtime.Invalid(col.Name, "%v", err)
	}
	return nil
}

func translateValidation(table *schema.TableMetadata, err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return runtime.Invalid("", "%v", err)
	}

	messages := make([]string, len(fieldErrs))
	for i, fe := range fieldErrs {
		messages[i] = columnName(table, fe.StructField()) + " " + describeFieldError(fe)
	}
	return &runtime.ValidationError{
		Field:   columnName(table, fieldErrs[0].StructField()),
		Message: strings.Join(messages, "; "),
	}
}

func describeFieldError(fe validator.FieldError) string {
	if fe.Param() == "" {
		return fmt.Sprintf("failed %q", fe.Tag())
	}
	return fmt.Sprintf("failed %q (%s)", fe.Tag(), fe.Param())
}

func columnName(table *schema.TableMetadata, goField string) string {
	for _, col := range table.Columns {
		if col.GoField == goField {
			return col.Name
		}
	}
	return goField
}

func asValidation(err error) error {
	if err == nil || runtime.IsValidation(err) {
		return err
	}
	return &runtime.ValidationError{Message: err.Error()}
}

// fieldTag returns the `validate` tag of the column's struct field.
func fieldTag(table *schema.TableMetadata, col *schema.ColumnMetadata) string {
	if table.GoType == nil {
		return ""
	}
	return table.GoType.FieldByIndex(col.FieldIndex).Tag.Get("validate")
}
