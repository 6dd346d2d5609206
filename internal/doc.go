// Package internal documents the tinychat server internals.
//
// The internal tree is organized by responsibility:
// - api: HTTP handlers, middleware, problem responses, and routing
// - domain: users, guilds, and snowflake identifiers
// - storage: repository contracts with postgres and in-memory backends
// - gateway, pubsub: the message protocol shared with the realtime gateway
// - jobs: background workers and queues
// - auth, audit, config, metrics, telemetry: shared infrastructure
//
// Code in internal/ is not meant for external import.
package internal
