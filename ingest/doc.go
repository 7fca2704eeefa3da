// Package ingest implements the corpus ingestion pipeline: change detection
// against the cache, manifest construction, vector collection bookkeeping,
// bounded fan-out embedding, and durable batch orchestration.
//
// A batch moves through an explicit state machine owned by the Orchestrator:
//
//	Validating → Bookkeeping → FanningOut → Finalized
//
// with Aborted reachable from any non-terminal stage on systemic failure.
// Every transition is persisted before the next stage begins, so an
// interrupted batch can be resumed from its durable record. Per-item failures
// never abort a batch; they become failed entries in the result manifest.
package ingest
