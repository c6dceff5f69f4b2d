// Package mirror provides the write-only Neo4j persistence mirror for the
// in-memory knowledge graph. Every graph write is replayed here on a
// best-effort basis; the mirror is never read back, so a down or slow Neo4j
// costs nothing but a log line.
package mirror

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/HoistlineAI/hoistline-mvp/pkg/resilience"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Neo4j implements knowledge.Mirror against a bolt endpoint. Writes go
// through a circuit breaker and a rate limiter: the breaker keeps a dead
// Neo4j from adding a dial timeout to every in-memory insert, the limiter
// keeps bulk loads from flooding the database.
type Neo4j struct {
	driver  neo4j.DriverWithContext
	breaker *resilience.Breaker
	limiter *resilience.Limiter
	logger  *slog.Logger
}

// Options configures the mirror guards.
type Options struct {
	Breaker resilience.BreakerOpts
	// WritesPerSecond throttles mirrored writes; 0 means unlimited.
	WritesPerSecond float64
}

// New creates a Neo4j mirror on an existing driver.
func New(driver neo4j.DriverWithContext, opts Options, logger *slog.Logger) *Neo4j {
	if logger == nil {
		logger = slog.Default()
	}
	var limiter *resilience.Limiter
	if opts.WritesPerSecond > 0 {
		limiter = resilience.NewLimiter(opts.WritesPerSecond, int(opts.WritesPerSecond)+1)
	}
	return &Neo4j{
		driver:  driver,
		breaker: resilience.NewBreaker(opts.Breaker),
		limiter: limiter,
		logger:  logger,
	}
}

// Connect dials Neo4j and verifies connectivity.
func Connect(ctx context.Context, uri, username, password string, opts Options, logger *slog.Logger) (*Neo4j, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("mirror: neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("mirror: neo4j connectivity: %w", err)
	}
	return New(driver, opts, logger), nil
}

// Close releases the underlying driver.
func (m *Neo4j) Close(ctx context.Context) error {
	return m.driver.Close(ctx)
}

// CreateNode merges a node by id under the given label.
func (m *Neo4j) CreateNode(ctx context.Context, label string, properties map[string]any) error {
	return m.write(ctx, func(ctx context.Context, sess neo4j.SessionWithContext) error {
		cypher := fmt.Sprintf(`MERGE (n:%s {id: $id}) SET n += $props`, sanitizeLabel(label))
		_, err := sess.Run(ctx, cypher, map[string]any{
			"id":    properties["id"],
			"props": properties,
		})
		return err
	})
}

// CreateRelationship merges the single relationship of relType between two
// nodes matched by id.
func (m *Neo4j) CreateRelationship(ctx context.Context, fromID, fromLabel, toID, toLabel, relType string, properties map[string]any) error {
	return m.write(ctx, func(ctx context.Context, sess neo4j.SessionWithContext) error {
		cypher := fmt.Sprintf(
			`MATCH (a:%s {id: $from}), (b:%s {id: $to})
			 MERGE (a)-[r:%s]->(b)
			 SET r += $props`,
			sanitizeLabel(fromLabel), sanitizeLabel(toLabel), sanitizeRelType(relType),
		)
		props := properties
		if props == nil {
			props = map[string]any{}
		}
		_, err := sess.Run(ctx, cypher, map[string]any{
			"from":  fromID,
			"to":    toID,
			"props": props,
		})
		return err
	})
}

func (m *Neo4j) write(ctx context.Context, f func(context.Context, neo4j.SessionWithContext) error) error {
	if m.limiter != nil {
		if err := m.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("mirror: %w", err)
		}
	}
	return m.breaker.Call(ctx, func(ctx context.Context) error {
		sess := m.driver.NewSession(ctx, neo4j.SessionConfig{})
		defer sess.Close(ctx)
		return f(ctx, sess)
	})
}

// sanitizeRelType ensures the relationship type is a valid Cypher identifier.
func sanitizeRelType(t string) string {
	safe := make([]byte, 0, len(t))
	for i := range t {
		c := t[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' {
			safe = append(safe, c)
		}
	}
	if len(safe) == 0 {
		return "RELATED_TO"
	}
	for i := range safe {
		if safe[i] >= 'a' && safe[i] <= 'z' {
			safe[i] -= 32
		}
	}
	return string(safe)
}

// sanitizeLabel strips everything but identifier characters from a label.
func sanitizeLabel(label string) string {
	safe := make([]byte, 0, len(label))
	for i := range label {
		c := label[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' {
			safe = append(safe, c)
		}
	}
	if len(safe) == 0 {
		return "Entity"
	}
	return string(safe)
}
