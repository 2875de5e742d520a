package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ylchen07/keyvault-identity-demo/internal/azure"
	"github.com/ylchen07/keyvault-identity-demo/internal/logging"
	"github.com/ylchen07/keyvault-identity-demo/pkg/models"
)

type credentialModeResponse struct {
	Success            bool `json:"success"`
	UseManagedIdentity bool `json:"useManagedIdentity"`
}

type applyResponse struct {
	Success bool                  `json:"success"`
	Config  models.ConfigSnapshot `json:"config"`
}

// errorResponse is the failure body of the config endpoints
type errorResponse struct {
	Success      bool   `json:"success"`
	ErrorMessage string `json:"errorMessage"`
}

type healthResponse struct {
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	Environment string    `json:"environment"`
}

func (s *Server) handleCurrentConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.state.Snapshot())
}

func (s *Server) handleCredentialMode(w http.ResponseWriter, r *http.Request) {
	var req models.CredentialModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{ErrorMessage: "Invalid request body"})
		return
	}

	s.state.SetCredentialMode(req.UseManagedIdentity)
	log.WithField("mode", modeName(req.UseManagedIdentity)).Info("Credential mode changed")

	writeJSON(w, http.StatusOK, credentialModeResponse{Success: true, UseManagedIdentity: req.UseManagedIdentity})
}

func (s *Server) handleApply(w http.ResponseWriter, r *http.Request) {
	var req models.ApplyConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{ErrorMessage: "Invalid request body"})
		return
	}

	s.state.Apply(req)
	snap := s.state.Snapshot()
	log.WithFields(log.Fields{
		"keyVaultUrl":     snap.KeyVaultURL,
		"expectedUami":    snap.ExpectedUamiClientID,
		"managedIdentity": snap.UseManagedIdentity,
	}).Info("Runtime config applied")

	writeJSON(w, http.StatusOK, applyResponse{Success: true, Config: snap})
}

func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	var req models.SecretRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.SecretName) == "" {
		writeJSON(w, http.StatusBadRequest, models.SecretResult{ErrorMessage: "Secret name is required"})
		return
	}

	log.WithFields(log.Fields{
		"secret":   req.SecretName,
		"identity": logging.OrDefault(req.ManagedIdentityID, "system-assigned"),
		"vault":    logging.OrDefault(req.KeyVaultURL, "(from configuration)"),
	}).Info("Attempting to retrieve secret")

	result := s.retriever.Retrieve(r.Context(), req, s.state.Snapshot())
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:      "healthy",
		Timestamp:   s.now().UTC(),
		Environment: logging.OrDefault(s.cfg.Environment, "Production"),
	})
}

func modeName(useManagedIdentity bool) string {
	if useManagedIdentity {
		return azure.MethodManagedIdentity
	}
	return azure.MethodDeveloper
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Debug("Failed to write response")
	}
}
