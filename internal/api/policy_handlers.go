package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/corvidsec/identity/internal/abac"
	"github.com/corvidsec/identity/internal/api/helpers"
	"github.com/corvidsec/identity/internal/audit"
	"github.com/corvidsec/identity/internal/metrics"
)

// PolicyHandler serves ABAC policy administration and evaluation.
type PolicyHandler struct {
	policies abac.PolicyStore
	engine   *abac.Engine
	audit    audit.Logger
}

func NewPolicyHandler(policies abac.PolicyStore, engine *abac.Engine, auditLog audit.Logger) *PolicyHandler {
	if auditLog == nil {
		auditLog = audit.NopLogger{}
	}
	return &PolicyHandler{policies: policies, engine: engine, audit: auditLog}
}

func (h *PolicyHandler) auditChange(r *http.Request, action string, policyID uuid.UUID) {
	// Only the id and action are recorded; condition text stays out of every
	// log stream.
	h.audit.Log(r.Context(), actor(r), audit.EventPolicyChanged, policyID.String(), map[string]string{
		"action": action,
	})
}

// PolicyRequest is the body for policy create and update. Version is required
// on update only.
type PolicyRequest struct {
	Name      string `json:"name"`
	Effect    string `json:"effect"`
	Condition string `json:"condition"`
	IsActive  *bool  `json:"is_active,omitempty"`
	Version   int    `json:"version,omitempty"`
}

// Validate enforces write-time shape: a name, a known effect, and condition
// text that is at least syntactically JSON. Semantic problems (unknown
// operators, excessive nesting) stay with the engine, which skips the policy
// at evaluation.
func (req *PolicyRequest) Validate() error {
	if req.Name == "" {
		return fmt.Errorf("name required")
	}
	if len(req.Name) > 200 {
		return fmt.Errorf("name too long (max 200 chars)")
	}
	if !abac.Effect(req.Effect).Valid() {
		return abac.ErrInvalidEffect
	}
	if req.Condition == "" || !json.Valid([]byte(req.Condition)) {
		return fmt.Errorf("condition must be valid JSON")
	}
	return nil
}

func (req *PolicyRequest) active() bool {
	if req.IsActive == nil {
		return true
	}
	return *req.IsActive
}

func (h *PolicyHandler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	policies, err := h.policies.List(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	helpers.RespondJSON(w, http.StatusOK, policies)
}

func (h *PolicyHandler) CreatePolicy(w http.ResponseWriter, r *http.Request) {
	var req PolicyRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	policy := &abac.Policy{
		ID:        uuid.New(),
		Name:      req.Name,
		Effect:    abac.Effect(req.Effect),
		Condition: req.Condition,
		IsActive:  req.active(),
	}
	if err := h.policies.Create(r.Context(), policy); err != nil {
		respondServiceError(w, r, err)
		return
	}

	h.auditChange(r, "policy_created", policy.ID)
	helpers.RespondJSON(w, http.StatusCreated, policy)
}

func (h *PolicyHandler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		helpers.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	policy, err := h.policies.FindByID(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	helpers.RespondJSON(w, http.StatusOK, policy)
}

// UpdatePolicy rewrites the mutable fields under optimistic concurrency.
func (h *PolicyHandler) UpdatePolicy(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		helpers.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req PolicyRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	policy := &abac.Policy{
		ID:        id,
		Name:      req.Name,
		Effect:    abac.Effect(req.Effect),
		Condition: req.Condition,
		IsActive:  req.active(),
		Version:   req.Version,
	}
	if err := h.policies.Update(r.Context(), policy); err != nil {
		respondServiceError(w, r, err)
		return
	}

	h.auditChange(r, "policy_updated", id)
	helpers.RespondJSON(w, http.StatusOK, policy)
}

func (h *PolicyHandler) DeletePolicy(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		helpers.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.policies.Delete(r.Context(), id); err != nil {
		respondServiceError(w, r, err)
		return
	}

	h.auditChange(r, "policy_deleted", id)
	w.WriteHeader(http.StatusNoContent)
}

// EvaluateRequest is the body for POST /authz/evaluate. Absent attribute maps
// evaluate as empty.
type EvaluateRequest struct {
	Subject  map[string]interface{} `json:"subject,omitempty"`
	Resource map[string]interface{} `json:"resource,omitempty"`
	Context  map[string]interface{} `json:"context,omitempty"`
}

// Evaluate runs the active policy set against the given attribute triple and
// returns the combined decision.
func (h *PolicyHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		helpers.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	decision, err := h.engine.Evaluate(r.Context(), req.Subject, req.Resource, req.Context)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	switch {
	case decision.Denied():
		metrics.PolicyDecisions.WithLabelValues("deny").Inc()
	case decision.Allowed():
		metrics.PolicyDecisions.WithLabelValues("allow").Inc()
	default:
		metrics.PolicyDecisions.WithLabelValues("no_match").Inc()
	}

	helpers.RespondJSON(w, http.StatusOK, decision)
}
