package repositories

import (
	"context"

	"github.com/eduforge/assessment-engine/internal/models"
)

// UserRepository is the minimal read surface over the identity provider.
// The engine never owns user data; it resolves names for statistics and
// the results export.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByIDs(ctx context.Context, ids []string) ([]*models.User, error)
	ExistsByID(ctx context.Context, id string) (bool, error)
	HasRole(ctx context.Context, id string, role models.UserRole) (bool, error)
}
