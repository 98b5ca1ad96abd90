package http

import (
	"fmt"
	"net/http"
	"unicode/utf8"

	"github.com/fyrsmithlabs/ragserve/internal/rag"
	"github.com/fyrsmithlabs/ragserve/internal/ragerr"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

func (s *Server) handlePing(c echo.Context) error {
	return c.JSON(http.StatusOK, PingResponse{Status: "ok"})
}

func (s *Server) handleHealth(c echo.Context) error {
	stats, stored := s.deps.Stats.Stats()
	return c.JSON(http.StatusOK, HealthResponse{
		Status:             "ok",
		Version:            s.config.Version,
		Index:              stats,
		StoredItems:        stored,
		EmbeddingDimension: s.deps.EmbeddingDimension,
	})
}

func (s *Server) handleQuery(c echo.Context) error {
	var req QueryRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn(c.Request().Context(), "invalid query request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := s.config.Limits.checkQuery(req); err != nil {
		return err
	}

	dedupe := true
	if req.RemoveDuplicates != nil {
		dedupe = *req.RemoveDuplicates
	}
	items, err := s.deps.Retriever.Retrieve(c.Request().Context(), rag.Query{
		Text:             req.Query,
		Tags:             req.Tags,
		NumItems:         req.NumItems,
		RemoveDuplicates: dedupe,
	})
	if err != nil {
		return err
	}

	resp := QueryResponse{Items: make([]ScoredDocument, len(items))}
	for i, it := range items {
		resp.Items[i] = ScoredDocument{
			Document: Document{ItemID: it.ID, Content: it.Content, Tags: it.Tags},
			Score:    it.Score,
		}
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleAddDocuments(c echo.Context) error {
	var req AddDocumentsRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn(c.Request().Context(), "invalid add request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := s.config.Limits.checkDocuments(req.Documents); err != nil {
		return err
	}

	items := make([]rag.Item, len(req.Documents))
	for i, d := range req.Documents {
		items[i] = rag.Item{ID: d.ItemID, Content: d.Content, Tags: d.Tags}
	}
	if err := s.deps.Ingester.Ingest(c.Request().Context(), items); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleRemove(c echo.Context) error {
	if err := s.deps.Ingester.Remove(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (l Limits) checkQuery(req QueryRequest) error {
	if n := utf8.RuneCountInString(req.Query); l.MaxQueryChars > 0 && n > l.MaxQueryChars {
		return fmt.Errorf("%w: query is %d chars, limit is %d", ragerr.ErrInvalidInput, n, l.MaxQueryChars)
	}
	if req.NumItems < 0 {
		return fmt.Errorf("%w: num_items must not be negative", ragerr.ErrInvalidInput)
	}
	if l.MaxNumItems > 0 && req.NumItems > l.MaxNumItems {
		return fmt.Errorf("%w: num_items is %d, limit is %d", ragerr.ErrInvalidInput, req.NumItems, l.MaxNumItems)
	}
	return nil
}

func (l Limits) checkDocuments(docs []Document) error {
	if l.MaxBatch > 0 && len(docs) > l.MaxBatch {
		return fmt.Errorf("%w: batch has %d documents, limit is %d", ragerr.ErrInvalidInput, len(docs), l.MaxBatch)
	}
	for _, d := range docs {
		if n := utf8.RuneCountInString(d.Content); l.MaxDocumentChars > 0 && n > l.MaxDocumentChars {
			return fmt.Errorf("%w: document %q is %d chars, limit is %d",
				ragerr.ErrInvalidInput, d.ItemID, n, l.MaxDocumentChars)
		}
	}
	return nil
}
