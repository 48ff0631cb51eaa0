// Package handlers holds the HTTP request handlers. Each handler decodes
// and validates its request body, pulls the authenticated subject from the
// context, delegates to an application service, and writes the response
// envelope.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"

	"nildb/pkg/errors"
)

var validate = validator.New()

// decodeBody parses the JSON body into dst and runs the struct validation
// tags.
func decodeBody(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.Wrap(errors.KindDataValidation, "request body is not valid JSON", err)
	}
	if err := validate.Struct(dst); err != nil {
		return errors.Wrap(errors.KindDataValidation, "request validation failed", err)
	}
	return nil
}
