package graph

import "time"

// Document is an uploaded file on its way through the pipeline. Content holds
// the markdown produced by a DocumentProcessor.
type Document struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	MimeType    string                 `json:"mime_type"`
	Raw         []byte                 `json:"-"`
	Content     string                 `json:"content"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	ProcessedAt time.Time              `json:"processed_at"`
}
