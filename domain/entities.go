package domain

import (
	"time"
)

// Reserved document field names. Fields prefixed with "_" belong to the
// system and are never writable through a schema.
const (
	FieldID      = "_id"
	FieldCreated = "_created"
	FieldUpdated = "_updated"
	FieldOwner   = "_owner"
	FieldAcl     = "_acl"
)

// CollectionType distinguishes owned collections (per-document owner + ACL)
// from standard ones.
type CollectionType string

const (
	CollectionOwned    CollectionType = "owned"
	CollectionStandard CollectionType = "standard"
)

// Builder is an organization principal that registers collections and
// queries. The Collections and Queries sets are denormalized indexes over
// Collection.Owner and Query.Owner, kept consistent by every mutation.
type Builder struct {
	ID          DID       `bson:"_id" json:"_id"`
	Created     time.Time `bson:"_created" json:"_created"`
	Updated     time.Time `bson:"_updated" json:"_updated"`
	Name        string    `bson:"name" json:"name"`
	Collections []string  `bson:"collections" json:"collections"`
	Queries     []string  `bson:"queries" json:"queries"`
}

// Collection describes one registered document set. Its per-collection data
// store is named by the collection ID.
type Collection struct {
	ID      string         `bson:"_id" json:"_id"`
	Created time.Time      `bson:"_created" json:"_created"`
	Updated time.Time      `bson:"_updated" json:"_updated"`
	Owner   DID            `bson:"owner" json:"owner"`
	Type    CollectionType `bson:"type" json:"type"`
	Name    string         `bson:"name" json:"name"`
	Schema  map[string]any `bson:"schema" json:"schema"`
}

// Document is a data-plane record. Payload fields live beside the reserved
// ones, so the natural representation is a map.
type Document map[string]any

// ID returns the document's _id as a string, or "".
func (d Document) ID() string {
	id, _ := d[FieldID].(string)
	return id
}

// Owner returns the document's _owner, or "".
func (d Document) Owner() DID {
	switch owner := d[FieldOwner].(type) {
	case string:
		return DID(owner)
	case DID:
		return owner
	}
	return ""
}

// DataReference locates one owned document from a User record.
type DataReference struct {
	Builder    DID    `bson:"builder" json:"builder"`
	Collection string `bson:"collection" json:"collection"`
	Document   string `bson:"document" json:"document"`
}

// LogOp enumerates user log operations.
type LogOp string

const (
	LogCreateData   LogOp = "create-data"
	LogUpdateData   LogOp = "update-data"
	LogDeleteData   LogOp = "delete-data"
	LogGrantAccess  LogOp = "grant-access"
	LogRevokeAccess LogOp = "revoke-access"
)

// LogEntry records one operation against a user's owned data.
type LogEntry struct {
	Op         LogOp     `bson:"op" json:"op"`
	Collection string    `bson:"collection" json:"collection"`
	Acl        *AclEntry `bson:"acl,omitempty" json:"acl,omitempty"`
	At         time.Time `bson:"at" json:"at"`
}

// User owns individual documents in owned collections. A record exists only
// while at least one reference does (or did) point at it.
type User struct {
	ID      DID             `bson:"_id" json:"_id"`
	Created time.Time       `bson:"_created" json:"_created"`
	Updated time.Time       `bson:"_updated" json:"_updated"`
	Data    []DataReference `bson:"data" json:"data"`
	Logs    []LogEntry      `bson:"logs" json:"logs"`
}

// QueryVariable declares one typed placeholder inside a saved pipeline.
type QueryVariable struct {
	Path        string `bson:"path" json:"path"`
	Description string `bson:"description,omitempty" json:"description,omitempty"`
	Optional    bool   `bson:"optional,omitempty" json:"optional,omitempty"`
}

// Query is a saved aggregation pipeline owned by a builder.
type Query struct {
	ID         string                   `bson:"_id" json:"_id"`
	Created    time.Time                `bson:"_created" json:"_created"`
	Updated    time.Time                `bson:"_updated" json:"_updated"`
	Owner      DID                      `bson:"owner" json:"owner"`
	Name       string                   `bson:"name" json:"name"`
	Collection string                   `bson:"collection" json:"collection"`
	Variables  map[string]QueryVariable `bson:"variables" json:"variables"`
	Pipeline   []map[string]any         `bson:"pipeline" json:"pipeline"`
}

// RunStatus is the background run state. pending → running → complete|error;
// terminal states are final.
type RunStatus string

const (
	RunPending  RunStatus = "pending"
	RunRunning  RunStatus = "running"
	RunComplete RunStatus = "complete"
	RunError    RunStatus = "error"
)

// Terminal reports whether the status admits no further transition.
func (s RunStatus) Terminal() bool {
	return s == RunComplete || s == RunError
}

// QueryRun materializes one background execution of a query.
type QueryRun struct {
	ID        string     `bson:"_id" json:"_id"`
	Created   time.Time  `bson:"_created" json:"_created"`
	Updated   time.Time  `bson:"_updated" json:"_updated"`
	Query     string     `bson:"query" json:"query"`
	Status    RunStatus  `bson:"status" json:"status"`
	Started   *time.Time `bson:"started,omitempty" json:"started,omitempty"`
	Completed *time.Time `bson:"completed,omitempty" json:"completed,omitempty"`
	Result    []any      `bson:"result,omitempty" json:"result,omitempty"`
	Errors    []string   `bson:"errors,omitempty" json:"errors,omitempty"`
}

// MaintenanceTag keys the maintenance singleton inside the config store.
const MaintenanceTag = "maintenance"

// MaintenanceConfig is the maintenance-window singleton; absence means the
// window is inactive.
type MaintenanceConfig struct {
	Type      string    `bson:"_type" json:"_type"`
	Active    bool      `bson:"active" json:"active"`
	StartedAt time.Time `bson:"startedAt" json:"startedAt"`
}

// NodeInfo is the about-snapshot served by the system surface.
type NodeInfo struct {
	Started     time.Time         `json:"started"`
	Build       BuildInfo         `json:"build"`
	PublicKey   string            `json:"publicKey"`
	URL         string            `json:"url"`
	Maintenance MaintenanceConfig `json:"maintenance"`
}

// BuildInfo carries version identifiers baked in at build time.
type BuildInfo struct {
	Version string    `json:"version"`
	Commit  string    `json:"commit"`
	Time    time.Time `json:"time"`
}
