/*
Package log provides structured logging for a raftcore node using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging with
component-specific loggers, configurable log levels, and helper functions for
common logging patterns. All logs include timestamps and support filtering by
severity level for production debugging.

# Architecture

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Global Logger                    │          │
	│  │  - Zerolog instance                         │          │
	│  │  - Initialized via log.Init()               │          │
	│  │  - Thread-safe for concurrent use           │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Configuration                     │          │
	│  │  - Level: debug/info/warn/error             │          │
	│  │  - Format: JSON or console (human)          │          │
	│  │  - Output: stdout, file, or custom writer   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         Component Loggers                   │          │
	│  │  - WithComponent("driver")                  │          │
	│  │  - WithNodeID("node-3")                     │          │
	│  │  - WithTerm(base, 42)                       │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │            Log Output                       │          │
	│  │                                              │          │
	│  │  JSON Format:                               │          │
	│  │  {                                           │          │
	│  │    "level": "info",                         │          │
	│  │    "component": "raft",                     │          │
	│  │    "time": "2024-10-13T10:30:00Z",         │          │
	│  │    "message": "became leader"               │          │
	│  │  }                                           │          │
	│  │                                              │          │
	│  │  Console Format:                            │          │
	│  │  2024-10-13T10:30:00Z INF became leader     │          │
	│  │    component=raft                           │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Core Components

Global Logger:
  - Package-level zerolog.Logger instance
  - Initialized once via log.Init()
  - Accessible from all raftcore packages
  - Thread-safe concurrent writes

Log Levels:
  - Debug: Detailed debugging information
  - Info: General informational messages
  - Warn: Warning messages (potential issues)
  - Error: Error messages (operation failed)
  - Fatal: Critical errors (process exits)

Configuration:
  - Level: Filter messages below threshold
  - JSONOutput: JSON vs human-readable console
  - Output: io.Writer for log destination (stdout, file)

Context Loggers:
  - WithComponent: Add component name to all logs
  - WithNodeID: Add node ID context
  - WithTerm: Add current term context

# Log Levels

Debug Level:
  - Purpose: Detailed debugging information
  - Usage: Development and troubleshooting
  - Performance: Verbose, may impact production
  - Example: "evaluating vote request: candidate=node-2 last_log_term=4"

Info Level:
  - Purpose: General informational messages
  - Usage: Default production level
  - Performance: Moderate volume
  - Example: "became leader"

Warn Level:
  - Purpose: Potential issues or unexpected conditions
  - Usage: Situations that may require attention
  - Performance: Low volume
  - Example: "WAL resend requested, rewinding sequence"

Error Level:
  - Purpose: Operation failures that need investigation
  - Usage: Failed operations, exceptions
  - Performance: Low volume
  - Example: "failed to append entries to peer"

Fatal Level:
  - Purpose: Critical errors causing process termination
  - Usage: Unrecoverable errors only
  - Behavior: Logs message and exits process (os.Exit(1))
  - Example: "failed to open WAL segment: %v"

# Usage

Initializing the Logger:

	import "github.com/cuemby/raftcore/pkg/log"

	// JSON output (production)
	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

	// Console output (development)
	log.Init(log.Config{
		Level:      log.DebugLevel,
		JSONOutput: false,
		Output:     os.Stdout,
	})

	// Custom output (file)
	file, _ := os.OpenFile("/var/log/raftcore.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     file,
	})

Simple Logging:

	log.Info("node started")
	log.Debug("checking WAL sequence")
	log.Warn("election timeout fired while already candidate")
	log.Error("failed to dial peer")
	log.Fatal("cannot start without a WAL directory") // Exits process

Structured Logging:

	log.Logger.Info().
		Uint64("term", term).
		Int("cluster_size", len(cluster)).
		Msg("election started")

	log.Logger.Error().
		Err(err).
		Str("node_id", string(nodeID)).
		Msg("append entries rejected")

Component Loggers:

	// Create component-specific logger
	driverLog := log.WithComponent("driver")
	driverLog.Info().Msg("starting run loop")
	driverLog.Debug().Str("peer", "node-2").Msg("sending heartbeat")

	// Multiple context fields
	rpcLog := log.WithComponent("rpcpeer").
		With().Str("node_id", "node-2").
		Uint64("term", 7).Logger()
	rpcLog.Info().Msg("accepted append entries")
	rpcLog.Error().Err(err).Msg("propose failed")

Context Logger Helpers:

	// Node-specific logs
	nodeLog := log.WithNodeID("node-3")
	nodeLog.Info().Msg("joined cluster")

	// Term-specific logs, useful for correlating a failed peer RPC
	// against the term the sender believed was current
	rpcLog := log.WithNodeID("node-3")
	callLog := log.WithTerm(rpcLog, 12)
	callLog.Warn().Msg("AppendEntries call failed")

Complete Example:

	package main

	import (
		"errors"
		"os"
		"github.com/cuemby/raftcore/pkg/log"
	)

	func main() {
		// Initialize logger
		log.Init(log.Config{
			Level:      log.InfoLevel,
			JSONOutput: true,
			Output:     os.Stdout,
		})

		log.Info("raftnode starting")

		// Component-specific logging
		driverLog := log.WithComponent("driver")
		driverLog.Info().
			Str("node_id", "node-1").
			Int("peer_count", 2).
			Msg("run loop started")

		// Error logging
		err := errors.New("connection refused")
		log.Logger.Error().
			Err(err).
			Str("component", "rpcpeer").
			Msg("failed to dial peer")

		log.Info("raftnode stopped")
	}

# Integration Points

This package integrates with:

  - pkg/driver: logs effect execution and timer rearming, and the WAL's
    resend requests
  - pkg/rpcpeer: logs inbound/outbound RPC errors
  - cmd/raftnode: initializes the logger from CLI flags

# Log Output Examples

JSON Format (Production):

	{"level":"info","component":"raft","node_id":"node-1","time":"2024-10-13T10:30:00Z","message":"became leader"}
	{"level":"info","component":"driver","term":7,"time":"2024-10-13T10:30:01Z","message":"append entries acked"}
	{"level":"error","component":"rpcpeer","node_id":"node-2","error":"connection refused","time":"2024-10-13T10:30:02Z","message":"failed to dial peer"}

Console Format (Development):

	2024-10-13T10:30:00Z INF became leader component=raft node_id=node-1
	2024-10-13T10:30:01Z INF append entries acked component=driver term=7
	2024-10-13T10:30:02Z ERR failed to dial peer component=rpcpeer node_id=node-2 error="connection refused"

# Design Patterns

Global Logger Pattern:
  - Single package-level Logger instance
  - Initialized once at application start
  - Accessible from all packages without passing
  - Simplifies logging in deeply nested calls

Context Logger Pattern:
  - Create child loggers with context fields
  - Pass context loggers to functions
  - Automatically includes context in all logs
  - Avoids repetitive field specification

Structured Logging Pattern:
  - Use typed fields (.Str, .Uint64, .Err)
  - Enables log aggregation and querying
  - Better than string concatenation
  - Parseable by log analysis tools

Error Logging Pattern:
  - Always use .Err(err) for error objects
  - Enables error tracking and alerting
  - Consistent error format across codebase

# Best Practices

Do:
  - Use Info level for production
  - Use structured fields for queryable data
  - Create component-specific loggers
  - Log errors with .Err() for stack traces
  - Include context (node ID, term) on logs spanning a role transition

Don't:
  - Use Debug level in production
  - Log in tight loops (use sampling)
  - Concatenate strings (use .Str, .Uint64)
  - Block on log writes (use buffered output)

# See Also

  - Zerolog documentation: https://github.com/rs/zerolog
  - Structured logging: https://www.thoughtworks.com/radar/techniques/structured-logging
  - 12-Factor App Logs: https://12factor.net/logs
*/
package log
