package services

import (
	"context"
	"reflect"
	"sort"
	"sync"
	"time"

	"nildb/application/ports"
	"nildb/domain"
	"nildb/pkg/errors"
)

// In-memory repository fakes backing the scenario tests. They mirror the
// store semantics the mongodb implementations provide: duplicate-key
// classification, conditional run transitions, upserting user records.

type memBuilders struct {
	mu sync.Mutex
	m  map[domain.DID]*domain.Builder
}

func newMemBuilders() *memBuilders {
	return &memBuilders{m: make(map[domain.DID]*domain.Builder)}
}

func (r *memBuilders) Insert(_ context.Context, builder *domain.Builder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.m[builder.ID]; exists {
		return errors.Duplicate("builder " + builder.ID.String() + " already exists")
	}
	copied := *builder
	r.m[builder.ID] = &copied
	return nil
}

func (r *memBuilders) FindByID(_ context.Context, id domain.DID) (*domain.Builder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	builder, ok := r.m[id]
	if !ok {
		return nil, errors.DocumentNotFound(id.String())
	}
	copied := *builder
	copied.Collections = append([]string(nil), builder.Collections...)
	copied.Queries = append([]string(nil), builder.Queries...)
	return &copied, nil
}

func (r *memBuilders) SetName(_ context.Context, id domain.DID, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	builder, ok := r.m[id]
	if !ok {
		return errors.DocumentNotFound(id.String())
	}
	builder.Name = name
	return nil
}

func (r *memBuilders) AddCollection(_ context.Context, id domain.DID, collectionID string) error {
	return r.addRef(id, collectionID, true)
}

func (r *memBuilders) RemoveCollection(_ context.Context, id domain.DID, collectionID string) error {
	return r.removeRef(id, collectionID, true)
}

func (r *memBuilders) AddQuery(_ context.Context, id domain.DID, queryID string) error {
	return r.addRef(id, queryID, false)
}

func (r *memBuilders) RemoveQuery(_ context.Context, id domain.DID, queryID string) error {
	return r.removeRef(id, queryID, false)
}

func (r *memBuilders) Delete(_ context.Context, id domain.DID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.m[id]; !ok {
		return errors.DocumentNotFound(id.String())
	}
	delete(r.m, id)
	return nil
}

func (r *memBuilders) addRef(id domain.DID, ref string, collection bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	builder, ok := r.m[id]
	if !ok {
		return errors.DocumentNotFound(id.String())
	}
	target := &builder.Queries
	if collection {
		target = &builder.Collections
	}
	for _, existing := range *target {
		if existing == ref {
			return nil
		}
	}
	*target = append(*target, ref)
	return nil
}

func (r *memBuilders) removeRef(id domain.DID, ref string, collection bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	builder, ok := r.m[id]
	if !ok {
		return errors.DocumentNotFound(id.String())
	}
	target := &builder.Queries
	if collection {
		target = &builder.Collections
	}
	out := (*target)[:0]
	for _, existing := range *target {
		if existing != ref {
			out = append(out, existing)
		}
	}
	*target = out
	return nil
}

type memCollections struct {
	mu sync.Mutex
	m  map[string]*domain.Collection
}

func newMemCollections() *memCollections {
	return &memCollections{m: make(map[string]*domain.Collection)}
}

func (r *memCollections) Insert(_ context.Context, collection *domain.Collection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.m[collection.ID]; exists {
		return errors.Duplicate("collection " + collection.ID + " already exists")
	}
	copied := *collection
	r.m[collection.ID] = &copied
	return nil
}

func (r *memCollections) FindByID(_ context.Context, id string) (*domain.Collection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	collection, ok := r.m[id]
	if !ok {
		return nil, errors.CollectionNotFound(id)
	}
	copied := *collection
	return &copied, nil
}

func (r *memCollections) FindByOwner(_ context.Context, owner domain.DID) ([]domain.Collection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Collection
	for _, collection := range r.m {
		if collection.Owner.Equal(owner) {
			out = append(out, *collection)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memCollections) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.m[id]; !ok {
		return errors.CollectionNotFound(id)
	}
	delete(r.m, id)
	return nil
}

type memUsers struct {
	mu sync.Mutex
	m  map[domain.DID]*domain.User
}

func newMemUsers() *memUsers {
	return &memUsers{m: make(map[domain.DID]*domain.User)}
}

func (r *memUsers) FindByID(_ context.Context, id domain.DID) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.m[id]
	if !ok {
		return nil, errors.DocumentNotFound(id.String())
	}
	copied := *user
	copied.Data = append([]domain.DataReference(nil), user.Data...)
	copied.Logs = append([]domain.LogEntry(nil), user.Logs...)
	return &copied, nil
}

func (r *memUsers) AddData(_ context.Context, id domain.DID, refs []domain.DataReference, logs []domain.LogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.m[id]
	if !ok {
		now := time.Now().UTC()
		user = &domain.User{ID: id, Created: now, Updated: now}
		r.m[id] = user
	}
	for _, ref := range refs {
		exists := false
		for _, existing := range user.Data {
			if existing == ref {
				exists = true
				break
			}
		}
		if !exists {
			user.Data = append(user.Data, ref)
		}
	}
	user.Logs = append(user.Logs, logs...)
	return nil
}

func (r *memUsers) RemoveData(_ context.Context, id domain.DID, refs []domain.DataReference, logs []domain.LogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.m[id]
	if !ok {
		return nil
	}
	out := user.Data[:0]
	for _, existing := range user.Data {
		drop := false
		for _, ref := range refs {
			if existing == ref {
				drop = true
				break
			}
		}
		if !drop {
			out = append(out, existing)
		}
	}
	user.Data = out
	user.Logs = append(user.Logs, logs...)
	return nil
}

func (r *memUsers) AppendLogs(_ context.Context, id domain.DID, logs []domain.LogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.m[id]
	if !ok {
		return nil
	}
	user.Logs = append(user.Logs, logs...)
	return nil
}

func (r *memUsers) DeleteIfEmpty(_ context.Context, id domain.DID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.m[id]
	if !ok || len(user.Data) > 0 {
		return false, nil
	}
	delete(r.m, id)
	return true, nil
}

type memQueries struct {
	mu sync.Mutex
	m  map[string]*domain.Query
}

func newMemQueries() *memQueries {
	return &memQueries{m: make(map[string]*domain.Query)}
}

func (r *memQueries) Insert(_ context.Context, query *domain.Query) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.m[query.ID]; exists {
		return errors.Duplicate("query " + query.ID + " already exists")
	}
	copied := *query
	r.m[query.ID] = &copied
	return nil
}

func (r *memQueries) FindByID(_ context.Context, id string) (*domain.Query, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	query, ok := r.m[id]
	if !ok {
		return nil, errors.DocumentNotFound(id)
	}
	copied := *query
	return &copied, nil
}

func (r *memQueries) FindByOwner(_ context.Context, owner domain.DID) ([]domain.Query, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Query
	for _, query := range r.m {
		if query.Owner.Equal(owner) {
			out = append(out, *query)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memQueries) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.m[id]; !ok {
		return errors.DocumentNotFound(id)
	}
	delete(r.m, id)
	return nil
}

type memRuns struct {
	mu sync.Mutex
	m  map[string]*domain.QueryRun
}

func newMemRuns() *memRuns {
	return &memRuns{m: make(map[string]*domain.QueryRun)}
}

func (r *memRuns) Insert(_ context.Context, run *domain.QueryRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.m[run.ID]; exists {
		return errors.Duplicate("run " + run.ID + " already exists")
	}
	copied := *run
	r.m[run.ID] = &copied
	return nil
}

func (r *memRuns) FindByID(_ context.Context, id string) (*domain.QueryRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.m[id]
	if !ok {
		return nil, errors.DocumentNotFound(id)
	}
	copied := *run
	copied.Result = append([]any(nil), run.Result...)
	copied.Errors = append([]string(nil), run.Errors...)
	return &copied, nil
}

func (r *memRuns) MarkRunning(_ context.Context, id string) error {
	return r.transition(id, domain.RunPending, func(run *domain.QueryRun) {
		now := time.Now().UTC()
		run.Status = domain.RunRunning
		run.Started = &now
	})
}

func (r *memRuns) MarkComplete(_ context.Context, id string, result []any) error {
	return r.transition(id, domain.RunRunning, func(run *domain.QueryRun) {
		now := time.Now().UTC()
		run.Status = domain.RunComplete
		run.Completed = &now
		run.Result = result
	})
}

func (r *memRuns) MarkError(_ context.Context, id string, messages []string) error {
	return r.transition(id, domain.RunRunning, func(run *domain.QueryRun) {
		now := time.Now().UTC()
		run.Status = domain.RunError
		run.Completed = &now
		run.Errors = messages
	})
}

func (r *memRuns) transition(id string, from domain.RunStatus, apply func(*domain.QueryRun)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.m[id]
	if !ok || run.Status != from {
		return errors.Newf(errors.KindDocumentNotFound, "query run %s not found in status %s", id, from)
	}
	apply(run)
	run.Updated = time.Now().UTC()
	return nil
}

type memData struct {
	mu    sync.Mutex
	colls map[string][]domain.Document

	aggregateDelay time.Duration
	aggregateErr   error
}

func newMemData() *memData {
	return &memData{colls: make(map[string][]domain.Document)}
}

func (r *memData) EnsureCollection(_ context.Context, collectionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.colls[collectionID]; !ok {
		r.colls[collectionID] = []domain.Document{}
	}
	return nil
}

func (r *memData) DropCollection(_ context.Context, collectionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.colls, collectionID)
	return nil
}

func (r *memData) InsertMany(_ context.Context, collectionID string, docs []domain.Document) (*ports.BulkResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := &ports.BulkResult{Created: []string{}, Errors: []ports.BulkError{}}
	for _, doc := range docs {
		if r.findLocked(collectionID, doc.ID()) != nil {
			result.Errors = append(result.Errors, ports.BulkError{
				Reason:    "duplicate key",
				Duplicate: true,
				Document:  doc,
			})
			continue
		}
		copied := make(domain.Document, len(doc))
		for key, value := range doc {
			copied[key] = value
		}
		r.colls[collectionID] = append(r.colls[collectionID], copied)
		result.Created = append(result.Created, doc.ID())
	}
	return result, nil
}

func (r *memData) Find(_ context.Context, collectionID string, filter map[string]any) ([]domain.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Document
	for _, doc := range r.colls[collectionID] {
		if matches(doc, filter) {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (r *memData) FindOne(_ context.Context, collectionID string, filter map[string]any) (domain.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, doc := range r.colls[collectionID] {
		if matches(doc, filter) {
			return doc, nil
		}
	}
	return nil, errors.DocumentNotFound(collectionID)
}

func (r *memData) FindByID(_ context.Context, collectionID, id string) (domain.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if doc := r.findLocked(collectionID, id); doc != nil {
		return doc, nil
	}
	return nil, errors.DocumentNotFound(id)
}

func (r *memData) Tail(_ context.Context, collectionID string, limit int64) ([]domain.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	docs := r.colls[collectionID]
	var out []domain.Document
	for i := len(docs) - 1; i >= 0 && int64(len(out)) < limit; i-- {
		out = append(out, docs[i])
	}
	return out, nil
}

func (r *memData) UpdateMany(_ context.Context, collectionID string, filter, update map[string]any) (int64, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, _ := update["$set"].(map[string]any)
	var matched int64
	for _, doc := range r.colls[collectionID] {
		if !matches(doc, filter) {
			continue
		}
		matched++
		for key, value := range set {
			doc[key] = value
		}
		doc[domain.FieldUpdated] = time.Now().UTC()
	}
	return matched, matched, nil
}

func (r *memData) ReplaceAcl(_ context.Context, collectionID, id string, acl []domain.AclEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc := r.findLocked(collectionID, id)
	if doc == nil {
		return errors.DocumentNotFound(id)
	}
	doc[domain.FieldAcl] = acl
	return nil
}

func (r *memData) DeleteMany(_ context.Context, collectionID string, filter map[string]any) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.colls[collectionID][:0]
	var deleted int64
	for _, doc := range r.colls[collectionID] {
		if matches(doc, filter) {
			deleted++
			continue
		}
		kept = append(kept, doc)
	}
	r.colls[collectionID] = kept
	return deleted, nil
}

// Aggregate supports the single-$match pipelines the tests register, plus
// scripted delays and failures for the run state machine.
func (r *memData) Aggregate(ctx context.Context, collectionID string, stages []map[string]any) ([]any, error) {
	if r.aggregateDelay > 0 {
		select {
		case <-time.After(r.aggregateDelay):
		case <-ctx.Done():
			return nil, errors.Timeout("aggregate: " + ctx.Err().Error())
		}
	}
	if r.aggregateErr != nil {
		return nil, r.aggregateErr
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	docs := r.colls[collectionID]
	for _, stage := range stages {
		if match, ok := stage["$match"].(map[string]any); ok {
			var kept []domain.Document
			for _, doc := range docs {
				if matches(doc, match) {
					kept = append(kept, doc)
				}
			}
			docs = kept
		}
	}
	out := make([]any, len(docs))
	for i, doc := range docs {
		out[i] = map[string]any(doc)
	}
	return out, nil
}

func (r *memData) findLocked(collectionID, id string) domain.Document {
	for _, doc := range r.colls[collectionID] {
		if doc.ID() == id {
			return doc
		}
	}
	return nil
}

func (r *memData) count(collectionID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.colls[collectionID])
}

func matches(doc domain.Document, filter map[string]any) bool {
	for key, want := range filter {
		if !reflect.DeepEqual(doc[key], want) {
			return false
		}
	}
	return true
}
