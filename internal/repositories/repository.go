package repositories

import "context"

// Repository aggregates every repository interface behind one handle so
// services depend on a single constructor-injected value.
type Repository interface {
	// Template domain (read-mostly; CRUD lives in a separate service)
	Template() TemplateRepository

	// Question domain (read-only collaborator)
	Question() QuestionRepository

	// Attempt domain
	Attempt() AttemptRepository
	Answer() AnswerRepository

	// Statistics domain (read-only aggregations)
	Statistics() StatisticsRepository

	// User domain (read-only, backed by the identity provider)
	User() UserRepository

	// Transaction support
	WithTransaction(ctx context.Context, fn func(Repository) error) error

	// Health check
	Ping(ctx context.Context) error

	// Close connections
	Close() error
}

// RepositoryManager manages repository lifecycle.
type RepositoryManager interface {
	Initialize() error
	GetRepository() Repository
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
