package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/ledgerline/be-payment-approvals/internal/database"
	"github.com/ledgerline/be-payment-approvals/internal/errors"
)

// UserRepository reads the role and project assignments that scope the
// pending-approvals queue.
type UserRepository struct {
	db *database.DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetRole retrieves a role's queue-scoping configuration.
func (r *UserRepository) GetRole(ctx context.Context, roleID string) (*RoleConfig, error) {
	query := `SELECT id, name, own_projects_only FROM roles WHERE id = $1`

	role := &RoleConfig{}
	err := r.db.QueryRow(ctx, query, roleID).Scan(&role.ID, &role.Name, &role.OwnProjectsOnly)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("role", roleID)
	}
	if err != nil {
		return nil, err
	}
	return role, nil
}

// GetUserProjectIDs returns the projects assigned to a user. The returned
// slice is never nil so callers can distinguish "no projects" from "not
// scoped".
func (r *UserRepository) GetUserProjectIDs(ctx context.Context, userID string) ([]string, error) {
	query := `SELECT project_id FROM user_projects WHERE user_id = $1`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get user projects")
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan project id")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
