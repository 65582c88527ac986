// Package main is the entry point for the embeddra catalog-ingestion service.
// It ships two long-running processes behind one binary: an admin-facing API
// that accepts tenant catalog uploads and enqueues ingestion jobs, and a
// worker that consumes the job queue, generates vector embeddings, and
// bulk-loads them into the search index.
package main

import "embeddra/cmd"

func main() {
	cmd.Execute()
}
