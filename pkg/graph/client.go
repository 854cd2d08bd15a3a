// Package graph projects link groups into a Memgraph/Neo4j graph over Bolt.
package graph

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Ramsey-B/fern/pkg/platform/tracing"
)

// Client owns one Bolt driver. It implements StatementWriter.
type Client struct {
	driver   neo4j.DriverWithContext
	database string
	logger   ectologger.Logger
}

// Config addresses a Memgraph or Neo4j server. An empty Username connects without auth;
// an empty Database uses the server default.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	Database string
}

func (c Config) uri() string {
	return fmt.Sprintf("bolt://%s:%d", c.Host, c.Port)
}

func NewClient(cfg Config, logger ectologger.Logger) (*Client, error) {
	auth := neo4j.NoAuth()
	if cfg.Username != "" {
		auth = neo4j.BasicAuth(cfg.Username, cfg.Password, "")
	}

	driver, err := neo4j.NewDriverWithContext(cfg.uri(), auth)
	if err != nil {
		return nil, fmt.Errorf("failed to create graph driver for %s: %w", cfg.uri(), err)
	}

	logger.WithField("uri", cfg.uri()).Info("Created graph driver")
	return &Client{driver: driver, database: cfg.Database, logger: logger}, nil
}

func (c *Client) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

func (c *Client) VerifyConnectivity(ctx context.Context) error {
	return c.driver.VerifyConnectivity(ctx)
}

// ExecuteWrite runs statements in order inside one managed write transaction, which the
// driver retries on transient cluster errors.
func (c *Client) ExecuteWrite(ctx context.Context, statements []Statement) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Client.ExecuteWrite")
	defer span.End()

	session := c.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: c.database,
	})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, s := range statements {
			result, err := tx.Run(ctx, s.Cypher, s.Params)
			if err != nil {
				return nil, err
			}
			if _, err := result.Consume(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}
