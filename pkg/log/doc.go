/*
Package log provides structured logging built on zerolog.

A single global Logger is configured once via Init and shared across
the coordinator, datanode, and client processes. Component loggers
(WithComponent, WithNodeID, WithBlockID, WithFileID) attach context
fields without repeating them at every call site.

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})
	nodeLog := log.WithNodeID(node.ID)
	nodeLog.Info().Str("component", "placement").Msg("node registered")

JSON output is preferred in production; console output with a console
writer is easier to read during development.
*/
package log
