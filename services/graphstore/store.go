// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graphstore

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Store is the read/write surface the harness needs from the graph database.
type Store interface {
	// Query runs a read statement and returns all rows.
	Query(ctx context.Context, cypher string, params map[string]any) (*Result, error)

	// Execute runs a write statement and discards its rows.
	Execute(ctx context.Context, cypher string, params map[string]any) error

	// Ping verifies the database is reachable.
	Ping(ctx context.Context) error

	// Close releases connections. Further calls return ErrClosed.
	Close(ctx context.Context) error
}

var (
	_ Store = (*MemgraphStore)(nil)
	_ Store = (*StaticStore)(nil)
)

// Config configures a MemgraphStore.
type Config struct {
	// URI is the Bolt endpoint, e.g. bolt://localhost:7687.
	URI string

	// Username and Password enable basic auth. Empty username means no auth.
	Username string
	Password string

	// ConnectTimeout bounds socket connects. Defaults to 5s.
	ConnectTimeout time.Duration

	// MaxConnections caps the driver's pool. Defaults to 10.
	MaxConnections int
}

// MemgraphStore is a Store backed by Memgraph over Bolt.
//
// Memgraph has a single database, so sessions never name one. Statements run
// as auto-commit transactions, which Memgraph requires for some procedures.
type MemgraphStore struct {
	driver neo4j.DriverWithContext
	uri    string
	closed atomic.Bool
	logger *slog.Logger
}

// Open connects to Memgraph and verifies connectivity.
//
// # Description
//
// Creates a Bolt driver for cfg.URI and performs a handshake so that a
// wrong host or port fails here rather than on the first tool call.
//
// # Inputs
//
//   - ctx: Bounds the connectivity check.
//   - cfg: Connection settings. URI is required.
//
// # Outputs
//
//   - *MemgraphStore: Connected store. Caller must Close it.
//   - error: Wraps ErrUnavailable when the database cannot be reached.
func Open(ctx context.Context, cfg Config) (*MemgraphStore, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("%w: empty URI", ErrUnavailable)
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = 10
	}

	auth := neo4j.NoAuth()
	if cfg.Username != "" {
		auth = neo4j.BasicAuth(cfg.Username, cfg.Password, "")
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI, auth, func(c *neo4j.Config) {
		c.SocketConnectTimeout = cfg.ConnectTimeout
		c.MaxConnectionPoolSize = cfg.MaxConnections
		c.UserAgent = "cgeval"
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	store := &MemgraphStore{
		driver: driver,
		uri:    cfg.URI,
		logger: slog.Default().With("component", "graphstore", "uri", cfg.URI),
	}
	if err := store.Ping(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, err
	}

	store.logger.Info("Connected to Memgraph")
	return store, nil
}

// URI returns the Bolt endpoint this store talks to.
func (m *MemgraphStore) URI() string {
	return m.uri
}

// Ping implements Store.
func (m *MemgraphStore) Ping(ctx context.Context) error {
	if m.closed.Load() {
		return ErrClosed
	}
	if err := m.driver.VerifyConnectivity(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Query implements Store.
func (m *MemgraphStore) Query(ctx context.Context, cypher string, params map[string]any) (*Result, error) {
	return m.run(ctx, neo4j.AccessModeRead, cypher, params)
}

// Execute implements Store.
func (m *MemgraphStore) Execute(ctx context.Context, cypher string, params map[string]any) error {
	_, err := m.run(ctx, neo4j.AccessModeWrite, cypher, params)
	return err
}

func (m *MemgraphStore) run(ctx context.Context, mode neo4j.AccessMode, cypher string, params map[string]any) (*Result, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}
	if strings.TrimSpace(cypher) == "" {
		return nil, ErrEmptyQuery
	}

	start := time.Now()
	session := m.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: mode})
	defer func() {
		if err := session.Close(ctx); err != nil {
			m.logger.Warn("Failed to close session", "error", err)
		}
	}()

	res, err := session.Run(ctx, cypher, params)
	if err != nil {
		return nil, fmt.Errorf("run cypher: %w", err)
	}
	keys, err := res.Keys()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}
	records, err := res.Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("collect rows: %w", err)
	}

	rows := make([][]any, 0, len(records))
	for _, rec := range records {
		rows = append(rows, rec.Values)
	}
	result := NewResult(keys, rows)

	m.logger.Debug("Cypher executed",
		"rows", result.Len(),
		"duration_ms", time.Since(start).Milliseconds())
	return result, nil
}

// Close implements Store.
func (m *MemgraphStore) Close(ctx context.Context) error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	return m.driver.Close(ctx)
}
