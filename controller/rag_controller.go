package controller

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github/itish2003/convrag/models"
	"github/itish2003/convrag/services"
)

// DocumentService ingests documents and lists what is indexed.
type DocumentService interface {
	IngestDocuments(ctx context.Context, docs []models.Document) (services.IngestResult, error)
	IngestFile(ctx context.Context, path string) (services.IngestResult, error)
	RemoveSource(ctx context.Context, source string) error
	ListChunks(ctx context.Context) ([]models.Chunk, error)
}

// RAGController handles the HTTP requests for our RAG API. It owns the
// conversation histories of its clients and appends a turn only after a
// successful query.
type RAGController struct {
	ragService services.RAGService
	documents  DocumentService
	files      *services.FileActions
	sessions   *SessionStore
	retry      services.RetryPolicy
	topK       int
}

// NewRAGController creates a controller. files may be nil, which disables
// uploads.
func NewRAGController(rag services.RAGService, documents DocumentService, files *services.FileActions, sessions *SessionStore, retry services.RetryPolicy, topK int) *RAGController {
	if topK < 1 {
		topK = services.DefaultTopK
	}
	return &RAGController{
		ragService: rag,
		documents:  documents,
		files:      files,
		sessions:   sessions,
		retry:      retry,
		topK:       topK,
	}
}

// QueryRAG is the Gin handler for POST /api/v1/query. With an explicit
// history the call is stateless; otherwise the session's history is used
// and extended. A new session is only created by a successful query.
func (c *RAGController) QueryRAG(ctx *gin.Context) {
	var req models.QueryRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body: " + err.Error()})
		return
	}

	if len(req.History) > 0 {
		history := models.NewConversationHistory(req.History...)
		resp, err := services.QueryWithRetry(ctx.Request.Context(), c.ragService, req.Question, history, c.retry)
		if err != nil {
			c.fail(ctx, err)
			return
		}
		ctx.JSON(http.StatusOK, models.QueryResponse{AnswerResponse: *resp})
		return
	}

	lease := c.sessions.Acquire(req.SessionID)
	defer lease.Release()

	resp, err := services.QueryWithRetry(ctx.Request.Context(), c.ragService, req.Question, lease.History(), c.retry)
	if err != nil {
		c.fail(ctx, err)
		return
	}
	sessionID := lease.Commit(req.Question, resp.Answer)

	ctx.JSON(http.StatusOK, models.QueryResponse{AnswerResponse: *resp, SessionID: sessionID})
}

// RetrieveSimilar is the Gin handler for POST /api/v1/retrieve.
func (c *RAGController) RetrieveSimilar(ctx *gin.Context) {
	var req models.RetrieveRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body: " + err.Error()})
		return
	}
	k := req.K
	if k == 0 {
		k = c.topK
	}

	results, err := c.ragService.RetrieveSimilar(ctx.Request.Context(), req.Query, k)
	if err != nil {
		c.fail(ctx, err)
		return
	}
	if results == nil {
		results = models.RetrievalResult{}
	}
	ctx.JSON(http.StatusOK, models.RetrieveResponse{Query: req.Query, Results: results})
}

// IngestDocuments is the Gin handler for POST /api/v1/documents.
func (c *RAGController) IngestDocuments(ctx *gin.Context) {
	var req models.IngestDocumentsRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body: " + err.Error()})
		return
	}

	result, err := c.documents.IngestDocuments(ctx.Request.Context(), req.Documents)
	if err != nil {
		c.fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, ingestResponse(result))
}

// UploadFile is the Gin handler for POST /api/v1/files. The file is stored
// in the documents directory and indexed right away.
func (c *RAGController) UploadFile(ctx *gin.Context) {
	if c.files == nil {
		ctx.JSON(http.StatusNotFound, models.ErrorResponse{Error: "uploads are disabled"})
		return
	}
	header, err := ctx.FormFile("file")
	if err != nil {
		ctx.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "missing form file 'file': " + err.Error()})
		return
	}
	f, err := header.Open()
	if err != nil {
		ctx.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}
	defer f.Close()

	path, err := c.files.SaveFile(header.Filename, f)
	if err != nil {
		if errors.Is(err, services.ErrUnsupportedFile) {
			ctx.JSON(http.StatusUnsupportedMediaType, models.ErrorResponse{Error: err.Error()})
			return
		}
		ctx.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}

	result, err := c.documents.IngestFile(ctx.Request.Context(), path)
	if err != nil {
		c.fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, ingestResponse(result))
}

// DeleteFile is the Gin handler for DELETE /api/v1/files/:name.
func (c *RAGController) DeleteFile(ctx *gin.Context) {
	if c.files == nil {
		ctx.JSON(http.StatusNotFound, models.ErrorResponse{Error: "uploads are disabled"})
		return
	}
	path, err := c.files.DeleteFile(ctx.Param("name"))
	if err != nil {
		ctx.JSON(http.StatusNotFound, models.ErrorResponse{Error: err.Error()})
		return
	}
	if err := c.documents.RemoveSource(ctx.Request.Context(), path); err != nil {
		c.fail(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

// GetAllChunks is the Gin handler for GET /api/v1/chunks.
func (c *RAGController) GetAllChunks(ctx *gin.Context) {
	chunks, err := c.documents.ListChunks(ctx.Request.Context())
	if err != nil {
		c.fail(ctx, err)
		return
	}
	if chunks == nil {
		chunks = []models.Chunk{}
	}
	ctx.JSON(http.StatusOK, models.ChunkListResponse{Count: len(chunks), Chunks: chunks})
}

// GetSession is the Gin handler for GET /api/v1/sessions/:id.
func (c *RAGController) GetSession(ctx *gin.Context) {
	id := ctx.Param("id")
	turns, ok := c.sessions.Turns(id)
	if !ok {
		ctx.JSON(http.StatusNotFound, models.ErrorResponse{Error: "session not found"})
		return
	}
	ctx.JSON(http.StatusOK, models.HistoryResponse{SessionID: id, Turns: turns})
}

// ClearSession is the Gin handler for DELETE /api/v1/sessions/:id.
func (c *RAGController) ClearSession(ctx *gin.Context) {
	if !c.sessions.Clear(ctx.Param("id")) {
		ctx.JSON(http.StatusNotFound, models.ErrorResponse{Error: "session not found"})
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (c *RAGController) fail(ctx *gin.Context, err error) {
	status, body := errorResponse(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "component", "controller", "path", ctx.FullPath(), "error", err)
	}
	ctx.JSON(status, body)
}

func errorResponse(err error) (int, models.ErrorResponse) {
	body := models.ErrorResponse{Error: err.Error()}
	var pe *services.PipelineError
	if errors.As(err, &pe) {
		body.Stage = string(pe.Stage)
	}

	switch {
	case errors.Is(err, services.ErrEmptyQuestion),
		errors.Is(err, services.ErrInvalidK),
		errors.Is(err, services.ErrMissingSource):
		return http.StatusBadRequest, body
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, body
	case errors.Is(err, context.Canceled):
		return 499, body
	}

	var ef *services.EmbeddingFailure
	var gf *services.GenerationFailure
	if errors.As(err, &ef) || errors.As(err, &gf) || errors.Is(err, services.ErrNothingIndexed) {
		return http.StatusBadGateway, body
	}
	return http.StatusInternalServerError, body
}

func ingestResponse(result services.IngestResult) models.IngestResponse {
	resp := models.IngestResponse{Chunks: result.Chunks, Indexed: result.Indexed}
	for _, f := range result.Failed {
		resp.Failed = append(resp.Failed, models.IndexFailure{ChunkID: f.ChunkID, SourceID: f.SourceID, Error: f.Err.Error()})
	}
	return resp
}
