// Package orchestration derives coordination state from the append log.
//
// Nothing here mutates the log. Task status, claim liveness, agent
// activity and workload are all computed by a single ordered pass over a
// file's appends with a small state machine per task. Stalledness in
// particular is never stored: an expired claim keeps its "active" status
// column and is reported stalled at query time.
package orchestration
