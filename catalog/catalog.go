// Package catalog tracks the set of protected items and their last known
// transfer state. The catalog is the single source of truth consulted before
// scheduling work and updated after every state transition.
package catalog

import (
	"time"

	"github.com/cargohold-io/cargohold/backend"
)

// Status is the lifecycle state of a tracked item.
type Status string

const (
	// StatusPending marks an item discovered but not yet processed.
	StatusPending Status = "pending"

	// StatusArchiving marks an item currently being packed.
	StatusArchiving Status = "archiving"

	// StatusQueued marks an item sealed and waiting for transfer.
	StatusQueued Status = "queued"

	// StatusUploading marks an item with a transfer in flight.
	StatusUploading Status = "uploading"

	// StatusUploaded marks an item stored remotely.
	StatusUploaded Status = "uploaded"

	// StatusFailed marks an item whose transfer failed terminally.
	StatusFailed Status = "failed"
)

// Item is one logical unit the system protects: a local path, its last
// observed size and modification time, its transfer state, and the remote
// reference once uploaded. Items are created on discovery and updated on
// every transition; the core never deletes them.
type Item struct {
	Path      string             `json:"path"`
	Size      int64              `json:"size"`
	ModTime   time.Time          `json:"mod_time"`
	Status    Status             `json:"status"`
	Signature string             `json:"signature,omitempty"`
	Remote    *backend.RemoteRef `json:"remote,omitempty"`
	LastError string             `json:"last_error,omitempty"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// Items is an ordered collection of tracked items. Order is preserved
// across load/save cycles.
type Items []Item

// Find returns the index of the item with the given path.
func (it Items) Find(path string) (int, bool) {
	for i := range it {
		if it[i].Path == path {
			return i, true
		}
	}
	return 0, false
}

// Upsert replaces the item with the same path or appends a new one.
func (it *Items) Upsert(item Item) {
	if i, ok := it.Find(item.Path); ok {
		(*it)[i] = item
		return
	}
	*it = append(*it, item)
}

// CountByStatus returns the number of items per status.
func (it Items) CountByStatus() map[Status]int {
	counts := make(map[Status]int)
	for i := range it {
		counts[it[i].Status]++
	}
	return counts
}
