// Package blob abstracts the corpus store that ingestion reads from.
//
// A Store lists the objects that currently exist in the corpus, each with a
// content fingerprint, and fetches object bytes and optional metadata
// sidecars on demand. The ingestion pipeline compares listings against the
// change cache to decide what needs reprocessing, so List must return a
// complete snapshot: any cached URI absent from a listing is treated as
// deleted.
//
// Only the local filesystem implementation ships; network backends satisfy
// the same interface.
package blob
