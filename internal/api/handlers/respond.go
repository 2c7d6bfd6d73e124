package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nextconvert/reelmix/internal/modules/jobs"
	"go.uber.org/zap"
)

// ErrorResponse is the JSON body of every error reply
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Code:    code,
		Message: message,
	})
}

// respondPipelineError maps a run or pipeline error onto a status and code.
// Invalid input is the caller's fault; everything else is a server error.
func respondPipelineError(w http.ResponseWriter, logger *zap.Logger, err error) {
	switch {
	case errors.Is(err, jobs.ErrRunNotFound):
		respondError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
		return
	case errors.Is(err, jobs.ErrTooManyRuns):
		respondError(w, http.StatusTooManyRequests, "LIMIT_EXCEEDED", err.Error())
		return
	}

	code := jobs.ErrorCode(err)
	if code == jobs.CodeInvalidInput {
		respondError(w, http.StatusBadRequest, code, err.Error())
		return
	}
	logger.Error("Request failed", zap.String("code", code), zap.Error(err))
	respondError(w, http.StatusInternalServerError, code, err.Error())
}
