package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
)

// maxBodyBytes caps request bodies on write endpoints.
const maxBodyBytes = 1 << 20

// writeJSON writes v as JSON with the given HTTP status code.
// Logs a warning if JSON encoding fails.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("writeJSON: encoding response: %v", err)
	}
}

// writeError writes a JSON error response with the given status
// and message.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, jsonError{Error: msg})
}

// writeInternalError logs err and writes a 500 without exposing
// its text.
func writeInternalError(w http.ResponseWriter, what string, err error) {
	log.Printf("%s error: %v", what, err)
	writeError(w, http.StatusInternalServerError, "internal server error")
}

// handleContextError reports whether err is a context
// cancellation or deadline, so the caller stops processing. A
// deadline gets a 504; a canceled request has no client left to
// answer. Behind withTimeout the TimeoutHandler has already
// answered and discards this write.
func handleContextError(w http.ResponseWriter, err error) bool {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "gateway timeout")
		return true
	case errors.Is(err, context.Canceled):
		return true
	}
	return false
}

// readBody reads a request body up to maxBodyBytes, writing a 400
// or 413 and returning false on failure.
func readBody(w http.ResponseWriter, r *http.Request) (string, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("body exceeds %d bytes", tooBig.Limit))
			return "", false
		}
		writeError(w, http.StatusBadRequest, "reading body: "+err.Error())
		return "", false
	}
	return string(body), true
}
