package guard

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/predyx/prediction-engine/internal/ledger"
)

// thresholdRequest is the JSON body for POST /admin/threshold.
type thresholdRequest struct {
	Caller      string `json:"caller"`
	ThresholdBP int64  `json:"threshold_bp"`
}

// callerRequest carries only the caller identity.
type callerRequest struct {
	Caller string `json:"caller"`
}

// oracleRequest is the JSON body for POST /admin/oracles.
type oracleRequest struct {
	Caller  string `json:"caller"`
	Address string `json:"address"`
}

// bulkRequest is the JSON body for POST /admin/resolve/bulk.
type bulkRequest struct {
	Caller string     `json:"caller"`
	Items  []BulkItem `json:"items"`
}

// HandleSetThreshold handles POST /api/v1/admin/threshold.
func (g *Guard) HandleSetThreshold(w http.ResponseWriter, r *http.Request) {
	var req thresholdRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMsg(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := g.SetAccuracyThreshold(r.Context(), req.Caller, req.ThresholdBP); err != nil {
		ledger.WriteError(w, err)
		return
	}
	writeOK(w, map[string]int64{"threshold_bp": req.ThresholdBP})
}

// HandlePause handles POST /api/v1/admin/pause.
func (g *Guard) HandlePause(w http.ResponseWriter, r *http.Request) {
	g.handlePauseState(w, r, true)
}

// HandleUnpause handles POST /api/v1/admin/unpause.
func (g *Guard) HandleUnpause(w http.ResponseWriter, r *http.Request) {
	g.handlePauseState(w, r, false)
}

func (g *Guard) handlePauseState(w http.ResponseWriter, r *http.Request, paused bool) {
	var req callerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMsg(w, "invalid request body", http.StatusBadRequest)
		return
	}
	var err error
	if paused {
		err = g.Pause(r.Context(), req.Caller)
	} else {
		err = g.Unpause(r.Context(), req.Caller)
	}
	if err != nil {
		ledger.WriteError(w, err)
		return
	}
	writeOK(w, map[string]bool{"paused": paused})
}

// HandleGrantOracle handles POST /api/v1/admin/oracles.
func (g *Guard) HandleGrantOracle(w http.ResponseWriter, r *http.Request) {
	var req oracleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMsg(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := g.GrantOracle(r.Context(), req.Caller, req.Address); err != nil {
		ledger.WriteError(w, err)
		return
	}
	writeOK(w, map[string]string{"oracle": req.Address})
}

// HandleRevokeOracle handles DELETE /api/v1/admin/oracles/{address}.
// Caller identity comes from the body, matching the other admin routes.
func (g *Guard) HandleRevokeOracle(w http.ResponseWriter, r *http.Request) {
	var req callerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMsg(w, "invalid request body", http.StatusBadRequest)
		return
	}
	addr := chi.URLParam(r, "address")
	if err := g.RevokeOracle(r.Context(), req.Caller, addr); err != nil {
		ledger.WriteError(w, err)
		return
	}
	writeOK(w, map[string]string{"revoked": addr})
}

// HandleBulkResolve handles POST /api/v1/admin/resolve/bulk.
func (g *Guard) HandleBulkResolve(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMsg(w, "invalid request body", http.StatusBadRequest)
		return
	}
	report, err := g.BulkResolve(r.Context(), req.Caller, req.Items)
	if err != nil {
		ledger.WriteError(w, err)
		return
	}
	writeOK(w, report)
}

func writeOK(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payload)
}

func writeErrorMsg(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
