package handlers

import (
	"net/http"

	"github.com/FLAMiNGPHYtON1/outlet-locator/utils"
)

// Endpoint describes one route in the service banner
type Endpoint struct {
	Method      string `json:"method"`
	Path        string `json:"path"`
	Description string `json:"description"`
	Admin       bool   `json:"admin,omitempty"`
}

// ServiceInfo is the body of GET /
type ServiceInfo struct {
	Service     string     `json:"service"`
	Version     string     `json:"version"`
	Environment string     `json:"environment"`
	Endpoints   []Endpoint `json:"endpoints"`
}

// RootHandler returns the service banner
func RootHandler(info ServiceInfo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteOK(w, info)
	}
}
