// Package metastore is the durable, lock-protected mapping from
// (project identity, checkpoint hash) to checkpoint records.
//
// The whole store is one JSON document: top level keyed by project
// identity, second level keyed by checkpoint hash. Mutations load the
// document, change it in memory, and rewrite it wholesale through an
// atomic rename; a cooperative lock marker serializes writers across
// processes. Readers go straight to the document and may observe a
// slightly stale snapshot, never a torn one.
package metastore

import (
	"sort"
	"time"
)

// Status is the lifecycle state of a checkpoint record.
type Status string

const (
	// StatusPending marks a snapshot taken before the guarded mutation,
	// outcome not yet known.
	StatusPending Status = "pending"

	// StatusSuccess marks a record whose guarded mutation succeeded.
	StatusSuccess Status = "success"

	// StatusFailed marks a record whose guarded mutation failed.
	StatusFailed Status = "failed"
)

// Record is the metadata stored per checkpoint. The checkpoint hash is the
// map key, not a field; Checkpoint pairs the two for callers.
type Record struct {
	Timestamp     time.Time      `json:"timestamp"`
	ToolName      string         `json:"tool_name"`
	ToolInput     map[string]any `json:"tool_input,omitempty"`
	SessionID     string         `json:"session_id"`
	Status        Status         `json:"status"`
	StatusUpdated *time.Time     `json:"status_updated,omitempty"`
	FilesAffected []string       `json:"files_affected,omitempty"`
	ToolResponse  map[string]any `json:"tool_response,omitempty"`
}

// Checkpoint is a record joined with its identity for query results.
type Checkpoint struct {
	Hash string
	Record
}

// FileCount is one entry of a most-modified-files ranking.
type FileCount struct {
	Path  string `json:"path"`
	Count int    `json:"count"`
}

// Stats is the aggregate view over one project's records.
type Stats struct {
	Total             int         `json:"total"`
	Successful        int         `json:"successful"`
	Failed            int         `json:"failed"`
	Pending           int         `json:"pending"`
	MostModifiedFiles []FileCount `json:"most_modified_files,omitempty"`
	LatestTimestamp   *time.Time  `json:"latest_timestamp,omitempty"`
}

// FilesAffected derives the ordered target-file list from a tool input
// payload. Single-file tools carry "file_path"; multi-edit payloads nest
// per-edit paths under "edits".
func FilesAffected(toolInput map[string]any) []string {
	if toolInput == nil {
		return nil
	}
	var files []string
	seen := make(map[string]bool)
	add := func(v any) {
		if s, ok := v.(string); ok && s != "" && !seen[s] {
			seen[s] = true
			files = append(files, s)
		}
	}
	add(toolInput["file_path"])
	add(toolInput["notebook_path"])
	if edits, ok := toolInput["edits"].([]any); ok {
		for _, e := range edits {
			if m, ok := e.(map[string]any); ok {
				add(m["file_path"])
			}
		}
	}
	return files
}

// sortNewestFirst orders checkpoints by descending timestamp, breaking
// ties by hash so the order is deterministic.
func sortNewestFirst(cps []Checkpoint) {
	sort.SliceStable(cps, func(i, j int) bool {
		if cps[i].Timestamp.Equal(cps[j].Timestamp) {
			return cps[i].Hash < cps[j].Hash
		}
		return cps[i].Timestamp.After(cps[j].Timestamp)
	})
}
