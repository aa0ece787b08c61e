package service

import (
	"context"

	"github.com/ledgerline/be-payment-approvals/internal/errors"
	"github.com/ledgerline/be-payment-approvals/internal/logger"
	"github.com/ledgerline/be-payment-approvals/internal/repository"
)

// RouteAdminStore is the write-capable route store the admin service uses.
type RouteAdminStore interface {
	RouteStore
	Create(ctx context.Context, route *repository.ApprovalRoute) error
	Update(ctx context.Context, route *repository.ApprovalRoute) error
	List(ctx context.Context, activeOnly bool) ([]*repository.ApprovalRoute, error)
	SetActive(ctx context.Context, id string, active bool) error
}

// RouteService manages approval route configuration. Saving a route replaces
// its stage list wholesale and reindexes stages densely from 0.
type RouteService struct {
	routes RouteAdminStore
	cache  RouteCache
	log    *logger.Logger
}

// NewRouteService creates a new RouteService. cache may be nil.
func NewRouteService(routes RouteAdminStore, cache RouteCache, log *logger.Logger) *RouteService {
	return &RouteService{routes: routes, cache: cache, log: log}
}

// StageInput is one stage in a route save request, in list order.
type StageInput struct {
	Name           string  `json:"name"`
	RoleID         string  `json:"role_id"`
	PaymentStatus  *string `json:"payment_status,omitempty"`
	CanEditInvoice bool    `json:"can_edit_invoice"`
	CanAddFiles    bool    `json:"can_add_files"`
	CanEditAmount  bool    `json:"can_edit_amount"`
}

// SaveRouteRequest creates a route when ID is empty, updates it otherwise.
type SaveRouteRequest struct {
	ID            string       `json:"id,omitempty"`
	InvoiceTypeID string       `json:"invoice_type_id"`
	Name          string       `json:"name"`
	IsActive      bool         `json:"is_active"`
	Stages        []StageInput `json:"stages"`
}

// SaveRoute validates and persists a route with its stages. Stage order
// indices are assigned from the request's list order, so they are always a
// dense 0..N-1 sequence regardless of what the client sends.
func (s *RouteService) SaveRoute(ctx context.Context, req *SaveRouteRequest) (*repository.ApprovalRoute, error) {
	if req.InvoiceTypeID == "" {
		return nil, errors.InvalidInput("invoice_type_id", "invoice type is required")
	}
	if req.Name == "" {
		return nil, errors.InvalidInput("name", "route name is required")
	}
	if len(req.Stages) == 0 {
		return nil, errors.InvalidInput("stages", "route must have at least 1 stage")
	}

	route := &repository.ApprovalRoute{
		ID:            req.ID,
		InvoiceTypeID: req.InvoiceTypeID,
		Name:          req.Name,
		IsActive:      req.IsActive,
		Stages:        make([]*repository.WorkflowStage, 0, len(req.Stages)),
	}
	for i, in := range req.Stages {
		if in.RoleID == "" {
			return nil, errors.InvalidInput("stages", "every stage needs a responsible role")
		}
		route.Stages = append(route.Stages, &repository.WorkflowStage{
			OrderIndex:     i,
			Name:           in.Name,
			RoleID:         in.RoleID,
			PaymentStatus:  in.PaymentStatus,
			CanEditInvoice: in.CanEditInvoice,
			CanAddFiles:    in.CanAddFiles,
			CanEditAmount:  in.CanEditAmount,
		})
	}

	var err error
	if route.ID == "" {
		err = s.routes.Create(ctx, route)
	} else {
		err = s.routes.Update(ctx, route)
	}
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, route.InvoiceTypeID)

	s.log.Info().
		Str("route_id", route.ID).
		Str("invoice_type_id", route.InvoiceTypeID).
		Int("stage_count", len(route.Stages)).
		Bool("active", route.IsActive).
		Msg("Approval route saved")

	return route, nil
}

// GetRoute returns a route with its stages.
func (s *RouteService) GetRoute(ctx context.Context, id string) (*repository.ApprovalRoute, error) {
	return s.routes.GetByID(ctx, id)
}

// ListRoutes returns all routes, optionally active only.
func (s *RouteService) ListRoutes(ctx context.Context, activeOnly bool) ([]*repository.ApprovalRoute, error) {
	routes, err := s.routes.List(ctx, activeOnly)
	if err != nil {
		return nil, err
	}
	if routes == nil {
		routes = make([]*repository.ApprovalRoute, 0)
	}
	return routes, nil
}

// DeactivateRoute soft-disables a route. Routes are never deleted because
// historical approvals reference them.
func (s *RouteService) DeactivateRoute(ctx context.Context, id string) error {
	route, err := s.routes.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.routes.SetActive(ctx, id, false); err != nil {
		return err
	}

	s.invalidate(ctx, route.InvoiceTypeID)

	s.log.Info().Str("route_id", id).Msg("Approval route deactivated")
	return nil
}

func (s *RouteService) invalidate(ctx context.Context, invoiceTypeID string) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, invoiceTypeID)
	}
}
