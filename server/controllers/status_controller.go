package controllers

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// StatusController reports which mode and version this server runs.
type StatusController struct {
	Mode    string
	Version string
}

func (c *StatusController) Get(w http.ResponseWriter, _ *http.Request) {
	data, err := json.MarshalIndent(&struct {
		Status  string `json:"status"`
		Mode    string `json:"mode"`
		Version string `json:"version"`
	}{
		Status:  "ok",
		Mode:    c.Mode,
		Version: c.Version,
	}, "", "  ")
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprintf(w, "Error creating status json response: %s", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data) // nolint: errcheck
}
