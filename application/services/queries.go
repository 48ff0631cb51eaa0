package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"nildb/application/ports"
	"nildb/domain"
	"nildb/pkg/errors"
	"nildb/pkg/pipeline"
)

// DefaultRunTimeout is the hard deadline for one background query run.
const DefaultRunTimeout = 30 * time.Minute

// RunObserver receives background run lifecycle notifications. The metrics
// collector implements it.
type RunObserver interface {
	RunStarted()
	RunFinished(status string)
}

// QueryService registers saved aggregation queries and executes them,
// synchronously or as background runs with a persisted state machine.
type QueryService struct {
	builders    ports.BuilderRepository
	collections ports.CollectionRepository
	queries     ports.QueryRepository
	runs        ports.RunRepository
	data        ports.DataRepository
	logger      *zap.Logger
	runTimeout  time.Duration
	observer    RunObserver
}

// SetRunObserver attaches a run lifecycle observer. Optional.
func (s *QueryService) SetRunObserver(observer RunObserver) {
	s.observer = observer
}

// NewQueryService wires the query engine. A non-positive timeout falls back
// to the default.
func NewQueryService(builders ports.BuilderRepository, collections ports.CollectionRepository, queries ports.QueryRepository, runs ports.RunRepository, data ports.DataRepository, logger *zap.Logger, runTimeout time.Duration) *QueryService {
	if runTimeout <= 0 {
		runTimeout = DefaultRunTimeout
	}
	return &QueryService{
		builders:    builders,
		collections: collections,
		queries:     queries,
		runs:        runs,
		data:        data,
		logger:      logger,
		runTimeout:  runTimeout,
	}
}

// AddQueryInput carries a registration request.
type AddQueryInput struct {
	ID         string
	Name       string
	Collection string
	Variables  map[string]domain.QueryVariable
	Pipeline   []map[string]any
}

// Add registers a query: the pipeline must match the stage grammar, every
// variable path must resolve inside it, and the caller must own the target
// collection. The owning builder's queries index gains the ID.
func (s *QueryService) Add(ctx context.Context, owner domain.DID, input AddQueryInput) (*domain.Query, error) {
	if err := pipeline.ValidateStages(input.Pipeline); err != nil {
		return nil, err
	}
	if err := pipeline.ValidateVariables(input.Variables, input.Pipeline); err != nil {
		return nil, err
	}

	collection, err := s.collections.FindByID(ctx, input.Collection)
	if err != nil {
		return nil, err
	}
	if !collection.Owner.Equal(owner) {
		return nil, errors.ResourceAccessDenied("collection is owned by another builder")
	}

	id := input.ID
	if id == "" {
		id = uuid.NewString()
	}
	variables := input.Variables
	if variables == nil {
		variables = map[string]domain.QueryVariable{}
	}

	now := time.Now().UTC()
	query := &domain.Query{
		ID:         id,
		Created:    now,
		Updated:    now,
		Owner:      domain.NormalizeDID(owner.String()),
		Name:       input.Name,
		Collection: input.Collection,
		Variables:  variables,
		Pipeline:   input.Pipeline,
	}
	if err := s.queries.Insert(ctx, query); err != nil {
		return nil, err
	}
	if err := s.builders.AddQuery(ctx, owner, id); err != nil {
		return nil, err
	}

	s.logger.Info("registered query",
		zap.String("query", id),
		zap.String("collection", input.Collection),
		zap.String("stages", pipeline.Describe(input.Pipeline)),
	)
	return query, nil
}

// List returns the caller's queries.
func (s *QueryService) List(ctx context.Context, owner domain.DID) ([]domain.Query, error) {
	return s.queries.FindByOwner(ctx, owner)
}

// Read loads one query, enforcing ownership.
func (s *QueryService) Read(ctx context.Context, owner domain.DID, id string) (*domain.Query, error) {
	query, err := s.queries.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !query.Owner.Equal(owner) {
		return nil, errors.ResourceAccessDenied("query is owned by another builder")
	}
	return query, nil
}

// Remove deletes a query and its entry in the builder's index. In-flight
// runs are left to finish on their own.
func (s *QueryService) Remove(ctx context.Context, owner domain.DID, id string) error {
	if _, err := s.Read(ctx, owner, id); err != nil {
		return err
	}
	if err := s.builders.RemoveQuery(ctx, owner, id); err != nil {
		return err
	}
	return s.queries.Delete(ctx, id)
}

// Execute runs a query synchronously with the provided variable binding.
func (s *QueryService) Execute(ctx context.Context, owner domain.DID, id string, provided map[string]any) ([]any, error) {
	query, err := s.Read(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	bound, err := pipeline.CheckProvided(query.Variables, provided)
	if err != nil {
		return nil, err
	}
	return s.aggregate(ctx, query, bound)
}

// RunBackground validates the binding, persists a pending run, and spawns
// the executor. The run ID is returned immediately.
func (s *QueryService) RunBackground(ctx context.Context, owner domain.DID, id string, provided map[string]any) (string, error) {
	query, err := s.Read(ctx, owner, id)
	if err != nil {
		return "", err
	}
	bound, err := pipeline.CheckProvided(query.Variables, provided)
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	run := &domain.QueryRun{
		ID:      uuid.NewString(),
		Created: now,
		Updated: now,
		Query:   query.ID,
		Status:  domain.RunPending,
	}
	if err := s.runs.Insert(ctx, run); err != nil {
		return "", err
	}

	go s.executeRun(run.ID, query.ID, bound)
	return run.ID, nil
}

// Run returns a run's status and result, gated by ownership of the
// originating query.
func (s *QueryService) Run(ctx context.Context, owner domain.DID, runID string) (*domain.QueryRun, error) {
	run, err := s.runs.FindByID(ctx, runID)
	if err != nil {
		return nil, err
	}
	if _, err := s.Read(ctx, owner, run.Query); err != nil {
		return nil, err
	}
	return run, nil
}

// executeRun owns the completion write of one background run. The run's
// lifetime is detached from the foreground request; only the timeout bounds
// it. Every failure is captured on the run record. The query is re-loaded
// by ID on both sides of the aggregate so a removal that lands while the
// run is in flight surfaces as a recorded query-not-found error instead of
// a successful completion.
func (s *QueryService) executeRun(runID, queryID string, provided map[string]any) {
	ctx, cancel := context.WithTimeout(context.Background(), s.runTimeout)
	defer cancel()

	if err := s.runs.MarkRunning(ctx, runID); err != nil {
		s.logger.Error("failed to start query run",
			zap.String("run", runID),
			zap.Error(err),
		)
		return
	}
	if s.observer != nil {
		s.observer.RunStarted()
	}

	query, err := s.queries.FindByID(ctx, queryID)
	if err != nil {
		s.failRun(runID, queryRunMessage(queryID, err))
		if s.observer != nil {
			s.observer.RunFinished(string(domain.RunError))
		}
		return
	}

	result, err := s.aggregate(ctx, query, provided)
	if err == nil {
		if _, reloadErr := s.queries.FindByID(ctx, queryID); reloadErr != nil {
			err = reloadErr
		}
	}
	if err != nil {
		message := queryRunMessage(queryID, err)
		if ctx.Err() == context.DeadlineExceeded {
			message = "query run timed out after " + s.runTimeout.String()
		}
		s.failRun(runID, message)
		if s.observer != nil {
			s.observer.RunFinished(string(domain.RunError))
		}
		return
	}

	if err := s.runs.MarkComplete(ctx, runID, result); err != nil {
		s.logger.Error("failed to complete query run",
			zap.String("run", runID),
			zap.Error(err),
		)
	}
	if s.observer != nil {
		s.observer.RunFinished(string(domain.RunComplete))
	}
}

// queryRunMessage renders an executor failure for the run record. A missing
// query reads as "query not found" rather than the generic document error.
func queryRunMessage(queryID string, err error) string {
	if errors.IsKind(err, errors.KindDocumentNotFound) {
		return "query " + queryID + " not found"
	}
	return err.Error()
}

func (s *QueryService) failRun(runID, message string) {
	// The run's own context may already be past its deadline; the
	// completion write gets a fresh one.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.runs.MarkError(ctx, runID, []string{message}); err != nil {
		s.logger.Error("failed to record query run error",
			zap.String("run", runID),
			zap.Error(err),
		)
	}
}

func (s *QueryService) aggregate(ctx context.Context, query *domain.Query, provided map[string]any) ([]any, error) {
	injected, err := pipeline.Inject(query.Variables, query.Pipeline, provided)
	if err != nil {
		return nil, err
	}
	if _, err := s.collections.FindByID(ctx, query.Collection); err != nil {
		return nil, err
	}
	return s.data.Aggregate(ctx, query.Collection, injected)
}
