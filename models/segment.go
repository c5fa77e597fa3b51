package models

// Segment is a contiguous slice of one source document's text, bounded by a
// token budget. Segments are created by the chunker, embedded immediately and
// never persisted on their own; only their vector and metadata projection
// reach the vector store.
type Segment struct {
	Text       string `json:"text"`
	Index      int    `json:"sequence_index"`
	CharStart  int    `json:"char_start"`
	CharEnd    int    `json:"char_end"`
	TokenCount int    `json:"token_count"`
	Source     string `json:"source_name"`
}
