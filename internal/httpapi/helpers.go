package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/nodecanvas/umlview/pkg/schema"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeUMLError maps a structured error to a response, falling back
// to 500 for plain errors.
func writeUMLError(w http.ResponseWriter, err error) {
	var ue *schema.UMLError
	if !errors.As(err, &ue) {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, statusFor(ue.Code), map[string]any{
		"error": ue.Message,
		"code":  ue.Code,
	})
}

// statusFor maps error codes onto HTTP statuses.
func statusFor(code string) int {
	switch code {
	case schema.ErrCodeValidation, schema.ErrCodeParse, schema.ErrCodeDecode, schema.ErrCodeUnsupported:
		return http.StatusBadRequest
	case schema.ErrCodeNotFound:
		return http.StatusNotFound
	case schema.ErrCodePolicy:
		return http.StatusForbidden
	case schema.ErrCodeFetch, schema.ErrCodeUpstream:
		return http.StatusBadGateway
	case schema.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	case schema.ErrCodeCancelled:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// queryInt extracts an integer query param with a default value.
func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// queryFloat extracts a float query param with a default value.
func queryFloat(r *http.Request, key string, def float64) float64 {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}
