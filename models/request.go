package models

// IngestDocumentsRequest is the body of POST /api/v1/documents.
type IngestDocumentsRequest struct {
	Documents []Document `json:"documents" binding:"required,min=1"`
}

// QueryRequest is the body of POST /api/v1/query. When History is set the
// call is stateless and SessionID is ignored.
type QueryRequest struct {
	Question  string `json:"question" binding:"required"`
	SessionID string `json:"session_id,omitempty"`
	History   []Turn `json:"history,omitempty"`
}

// RetrieveRequest is the body of POST /api/v1/retrieve.
type RetrieveRequest struct {
	Query string `json:"query" binding:"required"`
	K     int    `json:"k,omitempty"`
}
