package models

// AnswerResponse is the outcome of one successful pipeline call.
type AnswerResponse struct {
	Answer          string          `json:"answer"`
	Sources         RetrievalResult `json:"sources"`
	StandaloneQuery string          `json:"standalone_query"`
}

// IndexFailure describes one chunk that could not be indexed.
type IndexFailure struct {
	ChunkID  string `json:"chunk_id"`
	SourceID string `json:"source_id"`
	Error    string `json:"error"`
}

// IngestResponse reports the result of an ingestion request.
type IngestResponse struct {
	Chunks  int            `json:"chunks"`
	Indexed int            `json:"indexed"`
	Failed  []IndexFailure `json:"failed,omitempty"`
}

// QueryResponse is the body returned by POST /api/v1/query.
type QueryResponse struct {
	AnswerResponse
	SessionID string `json:"session_id,omitempty"`
}

// RetrieveResponse is the body returned by POST /api/v1/retrieve.
type RetrieveResponse struct {
	Query   string          `json:"query"`
	Results RetrievalResult `json:"results"`
}

// ChunkListResponse is the body returned by GET /api/v1/chunks.
type ChunkListResponse struct {
	Count  int     `json:"count"`
	Chunks []Chunk `json:"chunks"`
}

// HistoryResponse is the body returned by GET /api/v1/sessions/:id.
type HistoryResponse struct {
	SessionID string `json:"session_id"`
	Turns     []Turn `json:"turns"`
}

// ErrorResponse is the body of every failed request. Stage is set when a
// query failed inside the pipeline.
type ErrorResponse struct {
	Error string `json:"error"`
	Stage string `json:"stage,omitempty"`
}
