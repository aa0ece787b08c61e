package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ledgerline/be-payment-approvals/internal/database"
	"github.com/ledgerline/be-payment-approvals/internal/errors"
)

// RouteRepository handles approval routes and their stage lists. Saving a
// route always replaces its stages wholesale (delete-all-then-reinsert);
// stages are never patched incrementally.
type RouteRepository struct {
	db *database.DB
}

// NewRouteRepository creates a new RouteRepository.
func NewRouteRepository(db *database.DB) *RouteRepository {
	return &RouteRepository{db: db}
}

const routeColumns = `id, invoice_type_id, name, is_active, created_at, updated_at`

const stageColumns = `id, route_id, order_index, name, role_id, payment_status,
       can_edit_invoice, can_add_files, can_edit_amount`

// Create inserts a route and its stages in one transaction.
func (r *RouteRepository) Create(ctx context.Context, route *ApprovalRoute) error {
	route.ID = uuid.NewString()

	err := r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		query := `
			INSERT INTO approval_routes (id, invoice_type_id, name, is_active)
			VALUES ($1, $2, $3, $4)
			RETURNING created_at, updated_at
		`
		err := tx.QueryRow(ctx, query,
			route.ID,
			route.InvoiceTypeID,
			route.Name,
			route.IsActive,
		).Scan(&route.CreatedAt, &route.UpdatedAt)
		if err != nil {
			return err
		}
		return r.insertStages(ctx, tx, route)
	})

	return r.mapRouteError(err)
}

// Update rewrites a route row and replaces its stage list in one transaction.
func (r *RouteRepository) Update(ctx context.Context, route *ApprovalRoute) error {
	err := r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		query := `
			UPDATE approval_routes
			SET invoice_type_id = $2,
			    name            = $3,
			    is_active       = $4,
			    updated_at      = NOW()
			WHERE id = $1
			RETURNING updated_at
		`
		err := tx.QueryRow(ctx, query,
			route.ID,
			route.InvoiceTypeID,
			route.Name,
			route.IsActive,
		).Scan(&route.UpdatedAt)
		if err == pgx.ErrNoRows {
			return errors.NotFound("approval_route", route.ID)
		}
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `DELETE FROM workflow_stages WHERE route_id = $1`, route.ID); err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to replace route stages")
		}
		return r.insertStages(ctx, tx, route)
	})

	return r.mapRouteError(err)
}

// insertStages inserts the route's stage list. Stage IDs are regenerated on
// every save; approval steps snapshot the stage name and index, so replacing
// stages never touches history.
func (r *RouteRepository) insertStages(ctx context.Context, tx pgx.Tx, route *ApprovalRoute) error {
	query := `
		INSERT INTO workflow_stages
		    (id, route_id, order_index, name, role_id, payment_status,
		     can_edit_invoice, can_add_files, can_edit_amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	for _, stage := range route.Stages {
		stage.ID = uuid.NewString()
		stage.RouteID = route.ID
		_, err := tx.Exec(ctx, query,
			stage.ID,
			stage.RouteID,
			stage.OrderIndex,
			stage.Name,
			stage.RoleID,
			stage.PaymentStatus,
			stage.CanEditInvoice,
			stage.CanAddFiles,
			stage.CanEditAmount,
		)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to insert workflow stage")
		}
	}
	return nil
}

// mapRouteError translates the active-route unique violation into the
// duplicate-route conflict message.
func (r *RouteRepository) mapRouteError(err error) error {
	if err == nil {
		return nil
	}
	if errors.IsUniqueViolation(err, "uq_approval_routes_active_type") {
		return errors.Conflict("an active approval route already exists for this invoice type")
	}
	return err
}

// GetByID retrieves a route with its stages.
func (r *RouteRepository) GetByID(ctx context.Context, id string) (*ApprovalRoute, error) {
	query := `SELECT ` + routeColumns + ` FROM approval_routes WHERE id = $1`

	route, err := r.scanRoute(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("approval_route", id)
	}
	if err != nil {
		return nil, err
	}

	route.Stages, err = r.GetStages(ctx, route.ID)
	return route, err
}

// GetActiveByInvoiceType returns the single active route for an invoice type
// with its stages, or nil when none is configured.
func (r *RouteRepository) GetActiveByInvoiceType(ctx context.Context, invoiceTypeID string) (*ApprovalRoute, error) {
	query := `
		SELECT ` + routeColumns + `
		FROM approval_routes
		WHERE invoice_type_id = $1 AND is_active
	`

	route, err := r.scanRoute(r.db.QueryRow(ctx, query, invoiceTypeID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	route.Stages, err = r.GetStages(ctx, route.ID)
	return route, err
}

// List returns all routes (without stages), optionally active only.
func (r *RouteRepository) List(ctx context.Context, activeOnly bool) ([]*ApprovalRoute, error) {
	query := `SELECT ` + routeColumns + ` FROM approval_routes`
	if activeOnly {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY name ASC`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list approval routes")
	}
	defer rows.Close()

	var routes []*ApprovalRoute
	for rows.Next() {
		route, err := r.scanRoute(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan approval route")
		}
		routes = append(routes, route)
	}
	return routes, rows.Err()
}

// SetActive toggles the soft-disable flag. Routes are never deleted because
// historical approvals reference them.
func (r *RouteRepository) SetActive(ctx context.Context, id string, active bool) error {
	query := `
		UPDATE approval_routes
		SET is_active = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING id
	`

	var returnedID string
	err := r.db.QueryRow(ctx, query, id, active).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return errors.NotFound("approval_route", id)
	}
	return r.mapRouteError(err)
}

// GetStages returns a route's stages ordered by order_index.
func (r *RouteRepository) GetStages(ctx context.Context, routeID string) ([]*WorkflowStage, error) {
	query := `
		SELECT ` + stageColumns + `
		FROM workflow_stages
		WHERE route_id = $1
		ORDER BY order_index ASC
	`

	rows, err := r.db.Query(ctx, query, routeID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get workflow stages")
	}
	defer rows.Close()

	var stages []*WorkflowStage
	for rows.Next() {
		stage := &WorkflowStage{}
		err := rows.Scan(
			&stage.ID,
			&stage.RouteID,
			&stage.OrderIndex,
			&stage.Name,
			&stage.RoleID,
			&stage.PaymentStatus,
			&stage.CanEditInvoice,
			&stage.CanAddFiles,
			&stage.CanEditAmount,
		)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan workflow stage")
		}
		stages = append(stages, stage)
	}
	return stages, rows.Err()
}

// ── scan helper ──────────────────────────────────────────────────────────────

type routeScanner interface {
	Scan(dest ...any) error
}

func (r *RouteRepository) scanRoute(row routeScanner) (*ApprovalRoute, error) {
	route := &ApprovalRoute{}
	err := row.Scan(
		&route.ID,
		&route.InvoiceTypeID,
		&route.Name,
		&route.IsActive,
		&route.CreatedAt,
		&route.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return route, nil
}
