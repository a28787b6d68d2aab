package httpx

import (
	"encoding/json"
	"net/http"
)

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteRaw writes a finished body as-is.
func WriteRaw(w http.ResponseWriter, status int, contentType string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func WriteText(w http.ResponseWriter, status int, msg string) {
	WriteRaw(w, status, "text/plain; charset=utf-8", []byte(msg))
}

// APIError is the data API's error envelope.
type APIError struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Data    APIErrorData `json:"data"`
}

type APIErrorData struct {
	Status int `json:"status"`
}

// WriteAPIError answers a data API call with the standard envelope.
func WriteAPIError(w http.ResponseWriter, status int, code, msg string) {
	WriteJSON(w, status, APIError{
		Code:    code,
		Message: msg,
		Data:    APIErrorData{Status: status},
	})
}

func BadRequest(w http.ResponseWriter, msg string) {
	WriteJSON(w, http.StatusBadRequest, map[string]any{
		"status":  "error",
		"message": msg,
	})
}

func Unauthorized(w http.ResponseWriter, msg string) {
	WriteJSON(w, http.StatusUnauthorized, map[string]any{
		"status":  "error",
		"message": msg,
	})
}

func TooManyRequests(w http.ResponseWriter) {
	WriteJSON(w, http.StatusTooManyRequests, map[string]any{
		"status":  "error",
		"message": "rate limit exceeded",
	})
}

func InternalError(w http.ResponseWriter, msg string) {
	WriteJSON(w, http.StatusInternalServerError, map[string]any{
		"status":  "error",
		"message": msg,
	})
}

func Created(w http.ResponseWriter, v any) {
	WriteJSON(w, http.StatusCreated, v)
}

// PayloadTooLarge is the one 413 answer for oversized request bodies.
func PayloadTooLarge(w http.ResponseWriter) {
	http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
}
