// Package handler exposes the approval engine over HTTP.
package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ledgerline/be-payment-approvals/internal/auth"
	"github.com/ledgerline/be-payment-approvals/internal/errors"
	"github.com/ledgerline/be-payment-approvals/internal/logger"
	"github.com/ledgerline/be-payment-approvals/internal/service"
)

// HTTPHandler handles HTTP requests for approvals and route administration.
type HTTPHandler struct {
	approvals *service.ApprovalService
	routes    *service.RouteService
	log       *logger.Logger
}

// NewHTTPHandler creates a new HTTP handler.
func NewHTTPHandler(approvals *service.ApprovalService, routes *service.RouteService, log *logger.Logger) *HTTPHandler {
	return &HTTPHandler{
		approvals: approvals,
		routes:    routes,
		log:       log,
	}
}

// Register mounts all API routes on the given router.
func (h *HTTPHandler) Register(r chi.Router) {
	r.Route("/api/v1/approvals", func(r chi.Router) {
		r.Post("/start", h.StartApproval)
		r.Post("/{id}/approve", h.ApproveStep)
		r.Post("/{id}/reject", h.RejectStep)
		r.Get("/pending", h.PendingApprovals)
		r.Get("/history", h.ApprovalHistory)
		r.Get("/check", h.CheckApprovalStatus)
		r.Get("/route", h.CheckRoute)
		r.Get("/audit", h.AuditTrail)
		r.Post("/reconcile", h.Reconcile)
	})

	r.Route("/api/v1/routes", func(r chi.Router) {
		r.Post("/", h.SaveRoute)
		r.Get("/", h.ListRoutes)
		r.Get("/{id}", h.GetRoute)
		r.Post("/{id}/deactivate", h.DeactivateRoute)
	})
}

// ── Approvals ────────────────────────────────────────────────────────────────

// StartApproval starts an approval process for a payment.
func (h *HTTPHandler) StartApproval(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PaymentID string `json:"payment_id"`
		RouteID   string `json:"route_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, errors.InvalidInput("body", "invalid request body"))
		return
	}
	if req.PaymentID == "" || req.RouteID == "" {
		h.writeError(w, errors.InvalidInput("body", "payment_id and route_id are required"))
		return
	}

	approval, err := h.approvals.StartApprovalProcess(r.Context(), req.PaymentID, req.RouteID, auth.UserID(r.Context()))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, approval)
}

type decisionRequest struct {
	Comment *string `json:"comment,omitempty"`
}

// ApproveStep approves the current stage of an approval. The body (and its
// comment) is optional.
func (h *HTTPHandler) ApproveStep(w http.ResponseWriter, r *http.Request) {
	approvalID := chi.URLParam(r, "id")

	var req decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		h.writeError(w, errors.InvalidInput("body", "invalid request body"))
		return
	}

	if err := h.approvals.Approve(r.Context(), approvalID, auth.UserID(r.Context()), req.Comment); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "approved"})
}

// RejectStep rejects the current stage of an approval.
func (h *HTTPHandler) RejectStep(w http.ResponseWriter, r *http.Request) {
	approvalID := chi.URLParam(r, "id")

	var req decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		h.writeError(w, errors.InvalidInput("body", "invalid request body"))
		return
	}

	if err := h.approvals.Reject(r.Context(), approvalID, auth.UserID(r.Context()), req.Comment); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "rejected"})
}

// PendingApprovals returns the acting user's role-scoped work queue.
func (h *HTTPHandler) PendingApprovals(w http.ResponseWriter, r *http.Request) {
	roleID := r.URL.Query().Get("role_id")
	if roleID == "" {
		h.writeError(w, errors.InvalidInput("role_id", "role_id is required"))
		return
	}

	items := h.approvals.LoadApprovalsForRole(r.Context(), roleID, auth.UserID(r.Context()))
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"approvals": items})
}

// ApprovalHistory returns all approval instances for a payment, newest first.
func (h *HTTPHandler) ApprovalHistory(w http.ResponseWriter, r *http.Request) {
	paymentID := r.URL.Query().Get("payment_id")
	if paymentID == "" {
		h.writeError(w, errors.InvalidInput("payment_id", "payment_id is required"))
		return
	}

	history := h.approvals.LoadApprovalHistory(r.Context(), paymentID)
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"history": history})
}

// CheckApprovalStatus reports whether a payment has a pending approval.
func (h *HTTPHandler) CheckApprovalStatus(w http.ResponseWriter, r *http.Request) {
	paymentID := r.URL.Query().Get("payment_id")
	if paymentID == "" {
		h.writeError(w, errors.InvalidInput("payment_id", "payment_id is required"))
		return
	}

	h.writeJSON(w, http.StatusOK, h.approvals.CheckPaymentApprovalStatus(r.Context(), paymentID))
}

// CheckRoute returns the active approval route for an invoice type, or null.
func (h *HTTPHandler) CheckRoute(w http.ResponseWriter, r *http.Request) {
	invoiceTypeID := r.URL.Query().Get("invoice_type_id")
	if invoiceTypeID == "" {
		h.writeError(w, errors.InvalidInput("invoice_type_id", "invoice_type_id is required"))
		return
	}

	route := h.approvals.CheckApprovalRoute(r.Context(), invoiceTypeID)
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"route": route})
}

// AuditTrail returns the approval audit log for a payment.
func (h *HTTPHandler) AuditTrail(w http.ResponseWriter, r *http.Request) {
	paymentID := r.URL.Query().Get("payment_id")
	if paymentID == "" {
		h.writeError(w, errors.InvalidInput("payment_id", "payment_id is required"))
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"audit": h.approvals.LoadAuditTrail(r.Context(), paymentID)})
}

// Reconcile repairs approvals left without a current-stage step.
func (h *HTTPHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	repaired, err := h.approvals.ReconcileApprovals(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]int{"repaired": repaired})
}

// ── Route administration ─────────────────────────────────────────────────────

// SaveRoute creates or updates a route with its full stage list.
func (h *HTTPHandler) SaveRoute(w http.ResponseWriter, r *http.Request) {
	var req service.SaveRouteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, errors.InvalidInput("body", "invalid request body"))
		return
	}

	route, err := h.routes.SaveRoute(r.Context(), &req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	status := http.StatusOK
	if req.ID == "" {
		status = http.StatusCreated
	}
	h.writeJSON(w, status, route)
}

// ListRoutes returns all routes; ?active=true filters to active ones.
func (h *HTTPHandler) ListRoutes(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"

	routes, err := h.routes.ListRoutes(r.Context(), activeOnly)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"routes": routes})
}

// GetRoute returns a route with its stages.
func (h *HTTPHandler) GetRoute(w http.ResponseWriter, r *http.Request) {
	route, err := h.routes.GetRoute(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, route)
}

// DeactivateRoute soft-disables a route.
func (h *HTTPHandler) DeactivateRoute(w http.ResponseWriter, r *http.Request) {
	if err := h.routes.DeactivateRoute(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}

// ── Response helpers ─────────────────────────────────────────────────────────

func (h *HTTPHandler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Warn().Err(err).Msg("Failed to encode response")
	}
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	status := errors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("Request failed")
	}
	h.writeJSON(w, status, map[string]string{
		"code":  string(errors.CodeOf(err)),
		"error": errors.MessageOf(err),
	})
}
