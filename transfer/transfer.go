// Package transfer schedules and drives the movement of archive parts and
// tracked files between the local filesystem and a storage backend. A
// bounded worker pool drains a shared queue; each unit gets a backend
// picked by the selection policy, bounded retries with exponential backoff
// on transient failures, and a terminal state written back to the catalog.
package transfer

import (
	"time"

	"github.com/cargohold-io/cargohold/backend"
)

// Direction says which way a unit moves.
type Direction string

const (
	// DirectionUpload moves a local file to the backend.
	DirectionUpload Direction = "upload"

	// DirectionDownload retrieves a remote object into a local file.
	DirectionDownload Direction = "download"
)

// Unit is one schedulable piece of work: an archive part or a standalone
// tracked file, moving in one direction.
type Unit struct {
	// ID uniquely identifies the unit within the process. Assigned at
	// scheduling time when empty.
	ID string

	// Path is the local file: the source for uploads, the final
	// destination for downloads. Also the key of the per-path lock.
	Path string

	// Key is the remote object key for uploads.
	Key string

	// Size is the expected byte count. Zero means stat the source at
	// transfer time (uploads only).
	Size int64

	// Direction of travel.
	Direction Direction

	// Ref is the remote object to fetch. Downloads only.
	Ref *backend.RemoteRef

	// Items lists the catalog paths whose state this unit carries, e.g.
	// every source file packed into an archive part. Empty means the
	// unit stands for Path alone.
	Items []string

	// Signature is the content fingerprint recorded on the catalog item
	// when set, so later runs can skip the file while it is unchanged.
	Signature string
}

// catalogPaths returns the catalog entries this unit transitions.
func (u *Unit) catalogPaths() []string {
	if len(u.Items) > 0 {
		return u.Items
	}
	return []string{u.Path}
}

// Event is one progress observation for a unit. Consumers derive speed
// and ETA themselves; the core only reports raw byte counts.
type Event struct {
	UnitID     string
	Direction  Direction
	BytesDone  int64
	BytesTotal int64
	Timestamp  time.Time
}

// Reporter consumes progress events. Implementations must be safe for
// concurrent use; workers report in parallel.
type Reporter interface {
	Report(Event)
}

// Result is the terminal outcome of one unit.
type Result struct {
	// Unit is the completed work item.
	Unit Unit

	// Ref is the remote reference produced by a successful upload, or
	// the one a download was fetched from.
	Ref *backend.RemoteRef

	// Err is nil on success. A cancelled unit carries the cancellation
	// cause and a Pending status rather than a failure.
	Err error

	// Attempts is how many times the transfer was tried.
	Attempts int
}
