package httputil

import (
	"encoding/json"
	"net/http"
)

type ErrorBody struct {
	Error string `json:"error"`
}

// StatusBody is the error envelope used by the /api report and chat
// endpoints, which tag every reply with a status field.
type StatusBody struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, ErrorBody{Error: message})
}

func WriteStatusError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, StatusBody{Status: "error", Error: message})
}
