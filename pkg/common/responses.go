// Package common provides the standardized helpers for HTTP API responses.
package common

import (
	"encoding/json"
	"net/http"
	"time"

	"nildb/pkg/errors"
)

// Envelope is the body shape of every successful response carrying data.
type Envelope struct {
	Data any `json:"data"`
}

// ErrorBody is the body shape of every error response. The timestamp lets
// operators correlate client reports with node logs.
type ErrorBody struct {
	Ts     time.Time `json:"ts"`
	Errors []string  `json:"errors"`
}

// OK sends a 200 with the data wrapped in the response envelope.
func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, Envelope{Data: data})
}

// Created sends a 201 with the data wrapped in the response envelope.
func Created(w http.ResponseWriter, data any) {
	JSON(w, http.StatusCreated, Envelope{Data: data})
}

// NoContent sends a 204 with an empty body.
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// JSON sends an arbitrary JSON body with the given status.
func JSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if body != nil {
		json.NewEncoder(w).Encode(body)
	}
}

// Fail maps err to its HTTP status and sends the error body.
func Fail(w http.ResponseWriter, err error) {
	FailMessages(w, errors.HTTPStatus(err), err.Error())
}

// FailMessages sends an explicit status with pre-rendered messages.
func FailMessages(w http.ResponseWriter, status int, messages ...string) {
	JSON(w, status, ErrorBody{Ts: time.Now().UTC(), Errors: messages})
}
