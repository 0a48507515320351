// Package apierr writes JSON responses and converts errors into them.
package apierr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/dalemusser/learnhub/internal/app/system/accesserr"
	"github.com/dalemusser/learnhub/internal/app/system/limits"
	"go.uber.org/zap"
)

// Body is the JSON error envelope.
type Body struct {
	Error      string   `json:"error"`
	Code       string   `json:"code,omitempty"`
	Candidates []string `json:"candidates,omitempty"`
}

// ErrBadRequest marks input validation failures. Wrap it to pass a
// user-facing message through Write.
var ErrBadRequest = errors.New("bad request")

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Status maps an access error code to its HTTP status.
func Status(code accesserr.Code) int {
	switch code {
	case accesserr.NoMembership, accesserr.Forbidden:
		return http.StatusForbidden
	case accesserr.NoTenants, accesserr.NotFound:
		return http.StatusNotFound
	case accesserr.TenantPickerRequired:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// Write converts err to a JSON response. Access and forbidden errors are
// expected and written as-is; anything else is logged and reported as a
// generic 500.
func Write(w http.ResponseWriter, logger *zap.Logger, err error) {
	if ae, ok := accesserr.AsAccess(err); ok {
		WriteJSON(w, Status(ae.Code), Body{Error: ae.Message, Code: string(ae.Code), Candidates: ae.Candidates})
		return
	}
	if fe, ok := accesserr.AsForbidden(err); ok {
		WriteJSON(w, http.StatusForbidden, Body{Error: fe.Reason, Code: string(accesserr.Forbidden)})
		return
	}
	if errors.Is(err, ErrBadRequest) {
		BadRequest(w, err.Error())
		return
	}
	if logger != nil {
		logger.Error("request failed", zap.Error(err))
	}
	WriteJSON(w, http.StatusInternalServerError, Body{Error: "internal error"})
}

func BadRequest(w http.ResponseWriter, msg string) {
	WriteJSON(w, http.StatusBadRequest, Body{Error: msg})
}

func Unauthorized(w http.ResponseWriter) {
	WriteJSON(w, http.StatusUnauthorized, Body{Error: "unauthorized"})
}

func NotFound(w http.ResponseWriter, msg string) {
	WriteJSON(w, http.StatusNotFound, Body{Error: msg})
}

func Conflict(w http.ResponseWriter, msg string) {
	WriteJSON(w, http.StatusConflict, Body{Error: msg})
}

func TooManyRequests(w http.ResponseWriter, msg string) {
	WriteJSON(w, http.StatusTooManyRequests, Body{Error: msg})
}

// DecodeJSON reads a JSON body into v, rejecting unknown fields and bodies
// over limits.MaxJSONBody.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limits.MaxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return Invalid("invalid JSON body: " + err.Error())
	}
	return nil
}

// Invalid returns an error that Write reports as a 400 with msg.
func Invalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrBadRequest, msg)
}
