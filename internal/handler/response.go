package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"rbac-auth/internal/model"
	"rbac-auth/pkg/apierror"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeSuccess(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, model.APIResponse{Success: true, Data: data})
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, model.APIResponse{Success: true, Message: message})
}

func writeError(w http.ResponseWriter, err error) {
	var apiErr *apierror.APIError
	if !errors.As(err, &apiErr) {
		slog.Error("unhandled error in writeError", "error", err)
		apiErr = apierror.Internal("Unexpected server error")
	}

	writeJSON(w, apiErr.HTTPStatus, model.APIResponse{
		Success: false,
		Message: apiErr.Message,
		Error: &model.APIError{
			Code:    apiErr.Code,
			Message: apiErr.Message,
			Details: apiErr.Details,
		},
	})
}

// decodeJSON reads a required JSON object body.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	err := decodeOptionalJSON(w, r, dst)
	if errors.Is(err, io.EOF) {
		return apierror.BadRequest("No input data provided", "")
	}
	return err
}

// decodeOptionalJSON returns io.EOF for an empty body and leaves dst untouched.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	defer r.Body.Close()

	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF):
		return io.EOF
	default:
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apierror.BadRequest("Request body too large", "")
		}
		return apierror.BadRequest("Invalid JSON body", err.Error())
	}
}
