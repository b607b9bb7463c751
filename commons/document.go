package commons

// Document represents a document as served by the REST API. The client holds
// a cached copy that may be stale.
type Document struct {
	ID      string `json:"ID"`
	Title   string `json:"Title"`
	OwnerID string `json:"OwnerID"`
	Content string `json:"Content"`
	Version uint64 `json:"Version"`
}

// Snapshot returns the document's content and version.
func (d Document) Snapshot() Snapshot {
	return Snapshot{Content: d.Content, Version: d.Version}
}
