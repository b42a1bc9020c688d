// Package images attaches photos to stock documents. Binary payloads live
// in the blob store; rows here carry metadata and ordering. Uploads run
// after the owning document committed and never roll it back.
package images

import "time"

// EntityType names the document kind an image belongs to.
type EntityType string

const (
	EntityTransfer EntityType = "TRANSFER"
	EntityReceipt  EntityType = "RECEIPT"
)

// Image is one stored attachment.
type Image struct {
	ID          int64
	EntityType  EntityType
	EntityID    int64
	ObjectKey   string
	URL         string
	ContentType string
	SizeBytes   int64
	SortOrder   int
	CreatedAt   time.Time
}

// UploadResult reports per-file outcomes of a batch upload. Failures are
// reported independently of the files that made it.
type UploadResult struct {
	Stored []Image  `json:"stored"`
	Failed []string `json:"failed,omitempty"`
}
