package provisioning

import (
	"errors"
	"reflect"
	"strings"

	"github.com/geocoder89/labshare/internal/domain/organization"
	"github.com/geocoder89/labshare/internal/security"
	"github.com/go-playground/validator/v10"
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := security.RegisterValidations(v); err != nil {
		panic(err)
	}

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		switch name {
		case "":
			return fld.Name
		case "-":
			return "institution_id"
		}
		return name
	})

	return v
}

// Validate checks the request shape without touching the database.
func (e *Engine) Validate(req Request) error {
	var fields []FieldError

	kind, err := req.Org.Kind()
	if err != nil {
		return &ValidationError{Fields: []FieldError{{Field: "organization", Rule: "required"}}}
	}

	var org any
	switch kind {
	case organization.KindInstitution:
		org = req.Org.Institution
	case organization.KindLaboratory:
		org = req.Org.Laboratory
	case organization.KindSupplier:
		org = req.Org.Supplier
	}

	fields = append(fields, e.collect(org, "")...)

	if req.Admin == nil {
		if req.RequireAdmin {
			fields = append(fields, FieldError{Field: "admin", Rule: "required"})
		}
	} else {
		fields = append(fields, e.collect(req.Admin, "admin.")...)
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func (e *Engine) collect(s any, prefix string) []FieldError {
	err := e.validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []FieldError{{Field: strings.TrimSuffix(prefix, "."), Rule: "invalid"}}
	}

	out := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, FieldError{
			Field: prefix + fe.Field(),
			Rule:  fe.Tag(),
			Param: fe.Param(),
		})
	}
	return out
}
