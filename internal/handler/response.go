package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/generations-connect/connect-server-go/internal/errors"
	"github.com/generations-connect/connect-server-go/internal/httputil"
	"github.com/generations-connect/connect-server-go/internal/middleware"
)

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}

func writeError(w http.ResponseWriter, err error) {
	httputil.WriteError(w, err)
}

// actorID is the authenticated user making the request.
func actorID(r *http.Request) string {
	if user := middleware.GetUser(r.Context()); user != nil {
		return user.ID
	}
	return ""
}

// decodeJSON reads a JSON body into dst and validates it. An empty body is
// accepted only when optional is set.
func decodeJSON(r *http.Request, dst any, optional bool) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var maxBytes *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			if !optional {
				return apperrors.BadRequest("Request body is required")
			}
		case errors.As(err, &maxBytes):
			return apperrors.PayloadTooLarge()
		default:
			return apperrors.BadRequest("Invalid JSON body").WithCause(err)
		}
	}

	if err := validate.Struct(dst); err != nil {
		return validationError(err)
	}
	return nil
}

type fieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperrors.ValidationError(err.Error())
	}

	fields := make([]fieldError, 0, len(verrs))
	names := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fieldError{Field: fe.Namespace(), Rule: fe.Tag()})
		names = append(names, fe.Field())
	}
	return apperrors.ValidationError(fmt.Sprintf("Invalid fields: %s", strings.Join(names, ", "))).
		WithDetails(fields)
}
