/*
Package types defines the core data structures shared across the
coordinator, datanode, and client library: namespace entries (files and
directories), blocks, block locations, datanodes, and coordinator peers.

# Core Types

Namespace:
  - FileEntry: a file or directory row, keyed by ID and unique Path
  - FileStats: a FileEntry plus its blocks and their live locations

Blocks:
  - BlockEntry: one block of a file, with size and checksum
  - BlockLocation: (block_id, node_id, is_leader) — at most one leader
    per block among live locations

Cluster:
  - DataNode: a registered storage node and its capacity/liveness
  - CoordinatorPeer: a coordinator's Raft-derived role and term
  - SystemStats: aggregate counters returned by /system/stats

# Errors

Error wraps a typed ErrorKind drawn from the error handling design's
taxonomy (validation, not-found, conflict, transient network, node
unavailable, checksum mismatch, capacity exhausted, fatal). Handlers use
the IsNotFound/IsConflict/... helpers to translate an error to a wire
status without string matching.

All types are plain structs with no embedded behavior beyond small
helpers (DataNode.Address); persistence, validation, and transport
concerns live in their respective packages.
*/
package types
