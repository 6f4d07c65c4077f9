/*
Package events provides an in-process publish/subscribe broker.

The failure detector publishes node.failure when it marks a node
inactive, and the re-replicator publishes block.replicated after each
new replica; the other event types are declared but not published.
Nothing in the repository subscribes: re-replication is driven by the
reconciler's periodic scan, not by events. Delivery is best-effort: a
slow subscriber drops events rather than blocking the broker.
*/
package events
