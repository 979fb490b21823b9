package response

import (
	"encoding/json"
	"net/http"
)

type SuccessResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    int    `json:"code"`
}

// ValidationErrorResponse names the first form field that failed validation.
type ValidationErrorResponse struct {
	Message string `json:"message"`
	Field   string `json:"field"`
}

func JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func Success(w http.ResponseWriter, data interface{}, message string) {
	JSON(w, http.StatusOK, SuccessResponse{
		Success: true,
		Data:    data,
		Message: message,
	})
}

func Error(w http.ResponseWriter, code int, message string) {
	JSON(w, code, ErrorResponse{
		Success: false,
		Error:   message,
		Code:    code,
	})
}

func ValidationError(w http.ResponseWriter, field, message string) {
	JSON(w, http.StatusBadRequest, ValidationErrorResponse{
		Message: message,
		Field:   field,
	})
}
