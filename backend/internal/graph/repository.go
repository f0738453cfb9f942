// Package graph implements store.Store on Neo4j.
package graph

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"graphfeed/backend/internal/store"
	apperrors "graphfeed/backend/pkg/errors"
	"graphfeed/backend/pkg/logger"
)

var _ store.Store = (*Repository)(nil)

// Repository handles all Neo4j database operations
type Repository struct {
	driver    neo4j.DriverWithContext
	database  string
	opTimeout time.Duration
	logger    *zap.Logger
}

// Option configures a Repository
type Option func(*Repository)

// WithDatabase selects the Neo4j database; empty means the server default
func WithDatabase(name string) Option {
	return func(r *Repository) { r.database = name }
}

// WithOpTimeout sets the deadline applied to every store call
func WithOpTimeout(d time.Duration) Option {
	return func(r *Repository) { r.opTimeout = d }
}

// Connect creates a driver and verifies the server is reachable
func Connect(ctx context.Context, uri, user, password string) (neo4j.DriverWithContext, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, apperrors.NewStoreFailed("create driver", false, err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, apperrors.NewStoreFailed("verify connectivity "+uri, true, err)
	}
	return driver, nil
}

// NewRepository creates a new graph repository. The repository owns the
// driver from here on and closes it in Close.
func NewRepository(driver neo4j.DriverWithContext, opts ...Option) *Repository {
	r := &Repository{
		driver:    driver,
		opTimeout: 5 * time.Second,
		logger:    logger.Named("graph"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Close closes the Neo4j driver connection
func (r *Repository) Close(ctx context.Context) error {
	return r.driver.Close(ctx)
}

var schemaStatements = []string{
	"CREATE CONSTRAINT user_id IF NOT EXISTS FOR (u:User) REQUIRE u.id IS UNIQUE",
	"CREATE CONSTRAINT user_email IF NOT EXISTS FOR (u:User) REQUIRE u.email IS UNIQUE",
	"CREATE CONSTRAINT post_id IF NOT EXISTS FOR (p:Post) REQUIRE p.id IS UNIQUE",
	"CREATE CONSTRAINT comment_id IF NOT EXISTS FOR (c:Comment) REQUIRE c.id IS UNIQUE",
	"CREATE INDEX post_created_at IF NOT EXISTS FOR (p:Post) ON (p.createdAt)",
}

// EnsureSchema creates the constraints and indexes the queries rely on. It is idempotent.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		_, err := neo4j.ExecuteQuery(ctx, r.driver, stmt, nil,
			neo4j.EagerResultTransformer,
			neo4j.ExecuteQueryWithDatabase(r.database),
		)
		if err != nil {
			return r.classify(ctx, "ensure schema", err)
		}
	}
	r.logger.Info("Schema ensured", zap.Int("statements", len(schemaStatements)))
	return nil
}

// RunInTransaction runs fn inside one managed write transaction. The session
// is released on every path.
func (r *Repository) RunInTransaction(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()

	session := r.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: r.database,
	})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(mtx neo4j.ManagedTransaction) (any, error) {
		return nil, fn(ctx, &neoTx{tx: mtx, repo: r})
	}, neo4j.WithTxTimeout(r.opTimeout))
	return r.classify(ctx, "transaction", err)
}

// writeQuery runs a single write statement in its own transaction and returns its records
func (r *Repository) writeQuery(ctx context.Context, op, query string, params map[string]any) ([]*neo4j.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()

	result, err := neo4j.ExecuteQuery(ctx, r.driver, query, params,
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(r.database),
		neo4j.ExecuteQueryWithWritersRouting(),
	)
	if err != nil {
		return nil, r.classify(ctx, op, err)
	}
	return result.Records, nil
}

// readQuery runs a single read statement routed to readers
func (r *Repository) readQuery(ctx context.Context, op, query string, params map[string]any) ([]*neo4j.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()

	result, err := neo4j.ExecuteQuery(ctx, r.driver, query, params,
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(r.database),
		neo4j.ExecuteQueryWithReadersRouting(),
	)
	if err != nil {
		return nil, r.classify(ctx, op, err)
	}
	return result.Records, nil
}

// classify maps driver and context failures onto the error taxonomy. Errors
// that already carry a type pass through untouched.
func (r *Repository) classify(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	if apperrors.TypeOf(err) != "" {
		return err
	}

	var connErr *neo4j.ConnectivityError
	switch {
	case stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(ctx.Err(), context.DeadlineExceeded):
		return apperrors.NewStoreTimeout(op, r.opTimeout, err)
	case stderrors.Is(err, context.Canceled):
		return apperrors.NewContextCancelled(op, err)
	case neo4j.IsRetryable(err):
		return apperrors.NewConflict(op, err)
	case stderrors.As(err, &connErr):
		return apperrors.NewStoreFailed(op, true, err)
	default:
		r.logger.Error("Neo4j operation failed", zap.String("operation", op), zap.Error(err))
		return apperrors.NewStoreFailed(op, false, fmt.Errorf("neo4j: %w", err))
	}
}
