package api

import (
	"encoding/json"
	"errors"
	"net/http"

	errs "venue-rails/pkg/errors"
	"venue-rails/pkg/logging"
)

// errorBody is the coded error envelope: {"error":{"code","message"}}.
type errorBody struct {
	Error errorInfo `json:"error"`
}

type errorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// detailBody is the plain envelope for errors without a domain code.
type detailBody struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// writeError maps a domain error onto the wire. Coded errors keep their
// code; everything else degrades to a plain detail envelope. Unexpected
// (5xx) failures are logged with their operation chain, client errors
// are not.
func writeError(w http.ResponseWriter, log *logging.ComponentLogger, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError && log != nil {
		log.Error("request failed", err)
	}

	if code := errs.CodeOf(err); code != "" {
		writeJSON(w, status, errorBody{Error: errorInfo{Code: string(code), Message: messageOf(err)}})
		return
	}
	writeJSON(w, status, detailBody{Detail: messageOf(err)})
}

// serviceUnavailable answers for endpoints whose backing component is not
// wired in this deployment.
func serviceUnavailable(w http.ResponseWriter, detail string) {
	writeJSON(w, http.StatusServiceUnavailable, detailBody{Detail: detail})
}

// statusFor maps the error chain onto an HTTP status. Codes win over
// kinds: a validation error carrying NOT_FOUND is still a 404.
func statusFor(err error) int {
	switch errs.CodeOf(err) {
	case errs.CodeNotFound:
		return http.StatusNotFound
	case errs.CodeStaleWrite:
		return http.StatusConflict
	case errs.CodeTimeout:
		return http.StatusGatewayTimeout
	case errs.CodeProviderError:
		return http.StatusBadGateway
	}
	if errs.Is(err, errs.ErrValidation) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// messageOf prefers the human message of the outermost coded error over
// the full Error() chain, which carries operation names clients should
// not see.
func messageOf(err error) string {
	var m interface{ Message() string }
	if errors.As(err, &m) && m.Message() != "" {
		return m.Message()
	}
	if err != nil {
		return err.Error()
	}
	return "internal error"
}
