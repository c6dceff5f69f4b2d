package knowledge

import "context"

// Mirror receives a best-effort copy of every graph write. Implementations
// are write-only: the in-memory Store is always the read path of record, so
// a mirror that is down or lagging never affects query results. Errors are
// logged by the Store and never surfaced to callers.
type Mirror interface {
	CreateNode(ctx context.Context, label string, properties map[string]any) error
	CreateRelationship(ctx context.Context, fromID, fromLabel, toID, toLabel, relType string, properties map[string]any) error
}
