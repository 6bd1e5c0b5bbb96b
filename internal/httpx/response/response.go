package response

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vadim/glimpse/internal/apperr"
)

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorBody struct {
	OK    bool        `json:"ok"`
	Error errorDetail `json:"error"`
}

// JSON sends a JSON response
func JSON(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// OK sends a 200 OK response with JSON body
func OK(w http.ResponseWriter, data interface{}) {
	JSON(w, http.StatusOK, data)
}

// Created sends a 201 Created response with JSON body
func Created(w http.ResponseWriter, data interface{}) {
	JSON(w, http.StatusCreated, data)
}

// NoContent sends a 204 No Content response
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// Fail sends an error response with a stable code and a human-readable message
func Fail(w http.ResponseWriter, status int, code, message string) {
	JSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

// BadRequest sends a 400 Bad Request error
func BadRequest(w http.ResponseWriter, code, message string) {
	Fail(w, http.StatusBadRequest, code, message)
}

// Unauthorized sends a 401 Unauthorized error
func Unauthorized(w http.ResponseWriter, code, message string) {
	Fail(w, http.StatusUnauthorized, code, message)
}

// FromError maps an application error to its HTTP response. Internal causes
// are never exposed to the client.
func FromError(w http.ResponseWriter, err error) {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		Fail(w, http.StatusInternalServerError, string(apperr.CodeInternal), "internal server error")
		return
	}

	status := http.StatusInternalServerError
	message := appErr.Message

	switch appErr.Code {
	case apperr.CodeValidation:
		status = http.StatusBadRequest
	case apperr.CodeNotFound:
		status = http.StatusNotFound
	case apperr.CodeAlreadyExists:
		status = http.StatusConflict
	case apperr.CodeForbidden:
		status = http.StatusForbidden
	case apperr.CodeUnauthorized:
		status = http.StatusUnauthorized
	default:
		message = "internal server error"
	}

	Fail(w, status, string(appErr.Code), message)
}
