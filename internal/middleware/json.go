package middleware

import (
	"encoding/json"
	"net/http"

	"rbac-auth/internal/model"
	"rbac-auth/pkg/apierror"
)

func writeAPIError(w http.ResponseWriter, apiErr *apierror.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.HTTPStatus)
	_ = json.NewEncoder(w).Encode(errorResponse(apiErr))
}

func errorResponse(apiErr *apierror.APIError) model.APIResponse {
	return model.APIResponse{
		Success: false,
		Message: apiErr.Message,
		Error: &model.APIError{
			Code:    apiErr.Code,
			Message: apiErr.Message,
			Details: apiErr.Details,
		},
	}
}
