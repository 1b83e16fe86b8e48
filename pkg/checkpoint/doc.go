// Package checkpoint persists traversal cursors so an interrupted run can
// resume where it stopped.
//
// Stores:
//   - MemoryStore: process-local, for tests and single runs
//   - RedisStore: survives restarts; keys are wikipurge:checkpoint:<key>
//     with a TTL so abandoned runs expire
//   - Nop: checkpointing disabled
//
// Metrics:
//   - wiki_checkpoint_errors_total{operation}: failed load/save/delete calls
package checkpoint
