package models

// Citation is one retrieved segment formatted for prompt construction and
// client display. Citations are numbered 1..k in score-descending order.
type Citation struct {
	Number  int     `json:"number"`
	ID      string  `json:"id"`
	Excerpt string  `json:"text_excerpt"`
	Source  string  `json:"source"`
	Score   float32 `json:"score"`
}

// QueryRequest is the body of the chat/query endpoint
type QueryRequest struct {
	PersonaID string `json:"persona_id" binding:"required"`
	Query     string `json:"query" binding:"required"`
	TopK      int    `json:"k,omitempty"`
}

// QueryResponse carries the generated answer plus its grounding
type QueryResponse struct {
	Answer    string     `json:"answer"`
	Grounded  bool       `json:"grounded"`
	Citations []Citation `json:"citations"`
}

// SubmitResponse is returned when an ingestion batch is accepted
type SubmitResponse struct {
	JobID         string `json:"job_id"`
	FilesCount    int    `json:"files_count"`
	EstimatedTime int    `json:"estimated_time_seconds"`
}
