package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/vooshlabs/newsrag/internal/pipeline"
	"github.com/vooshlabs/newsrag/internal/session"
)

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// CreateSessionResponse is the response body for POST /api/session.
type CreateSessionResponse struct {
	SessionID string `json:"sessionId"`
}

// TranscriptResponse is the response body for GET /api/session/:id.
type TranscriptResponse struct {
	SessionID string            `json:"sessionId"`
	Messages  []session.Message `json:"messages"`
}

// MessageRequest is the request body for POST /api/message.
type MessageRequest struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

// MessageResponse is the response body for POST /api/message.
type MessageResponse struct {
	Response string                      `json:"response"`
	Articles []pipeline.RetrievedArticle `json:"articles"`
}

// answerEvent is the payload broadcast after each answered message.
type answerEvent struct {
	SessionID string                      `json:"sessionId"`
	Response  string                      `json:"response"`
	Articles  []pipeline.RetrievedArticle `json:"articles"`
	Timestamp time.Time                   `json:"timestamp"`
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleCreateSession starts a new chat session.
func (s *Server) handleCreateSession(c echo.Context) error {
	id, err := s.sessions.Create(c.Request().Context())
	if err != nil {
		s.logger.Error("failed to create session", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to create session")
	}
	return c.JSON(http.StatusCreated, CreateSessionResponse{SessionID: id})
}

// handleListSessions returns summaries of the most recent sessions.
func (s *Server) handleListSessions(c echo.Context) error {
	summaries, err := s.sessions.ListRecent(c.Request().Context(), 50)
	if err != nil {
		s.logger.Error("failed to list sessions", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list sessions")
	}
	return c.JSON(http.StatusOK, summaries)
}

// handleGetSession returns a session's transcript, serving from the
// cache when possible.
func (s *Server) handleGetSession(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	if s.cache != nil {
		if cached, ok, err := s.cache.Get(ctx, transcriptKey(id)); err != nil {
			s.logger.Warn("transcript cache read failed", zap.Error(err))
		} else if ok {
			var messages []session.Message
			if err := json.Unmarshal(cached, &messages); err == nil {
				return c.JSON(http.StatusOK, TranscriptResponse{SessionID: id, Messages: messages})
			}
			s.logger.Warn("discarding malformed cached transcript", zap.String("session_id", id))
		}
	}

	messages, err := s.sessions.Messages(ctx, id)
	if errors.Is(err, session.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	if err != nil {
		s.logger.Error("failed to load transcript", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load session")
	}

	s.cacheTranscript(c, id, messages)
	return c.JSON(http.StatusOK, TranscriptResponse{SessionID: id, Messages: messages})
}

// handleClearSession empties a session's transcript.
func (s *Server) handleClearSession(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	err := s.sessions.Clear(ctx, id)
	if errors.Is(err, session.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	if err != nil {
		s.logger.Error("failed to clear session", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to clear session")
	}

	if s.cache != nil {
		if err := s.cache.Delete(ctx, transcriptKey(id)); err != nil {
			s.logger.Warn("transcript cache delete failed", zap.Error(err))
		}
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "session cleared"})
}

// handleMessage answers a user message within a session.
func (s *Server) handleMessage(c echo.Context) error {
	ctx := c.Request().Context()

	var req MessageRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid message request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.SessionID == "" || req.Message == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "sessionId and message fields are required")
	}

	userMsg := session.Message{
		Role:      session.RoleUser,
		Content:   req.Message,
		Timestamp: time.Now(),
	}
	err := s.sessions.Append(ctx, req.SessionID, userMsg)
	if errors.Is(err, session.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	if err != nil {
		s.logger.Error("failed to record user message", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to record message")
	}

	answer, err := s.answerer.AnswerQuery(ctx, req.Message)
	if errors.Is(err, pipeline.ErrNotReady) {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "news index is still initializing, try again shortly")
	}
	if err != nil {
		s.logger.Error("failed to answer query", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to generate answer")
	}

	assistantMsg := session.Message{
		Role:      session.RoleAssistant,
		Content:   answer.Text,
		Articles:  answer.Articles,
		Timestamp: time.Now(),
	}
	if err := s.sessions.Append(ctx, req.SessionID, assistantMsg); err != nil {
		s.logger.Error("failed to record assistant message", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to record message")
	}

	if messages, err := s.sessions.Messages(ctx, req.SessionID); err == nil {
		s.cacheTranscript(c, req.SessionID, messages)
	}
	s.broadcastAnswer(c, req.SessionID, answer)

	return c.JSON(http.StatusOK, MessageResponse{
		Response: answer.Text,
		Articles: answer.Articles,
	})
}

// handleRefreshNews re-fetches and reindexes the article collection.
func (s *Server) handleRefreshNews(c echo.Context) error {
	if err := s.answerer.Refresh(c.Request().Context()); err != nil {
		s.logger.Error("news refresh failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to refresh news")
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "news articles refreshed"})
}

func (s *Server) cacheTranscript(c echo.Context, id string, messages []session.Message) {
	if s.cache == nil {
		return
	}
	encoded, err := json.Marshal(messages)
	if err != nil {
		return
	}
	if err := s.cache.SetWithExpiry(c.Request().Context(), transcriptKey(id), encoded, s.config.CacheTTL); err != nil {
		s.logger.Warn("transcript cache write failed", zap.Error(err))
	}
}

func (s *Server) broadcastAnswer(c echo.Context, id string, answer *pipeline.Answer) {
	event := answerEvent{
		SessionID: id,
		Response:  answer.Text,
		Articles:  answer.Articles,
		Timestamp: time.Now(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := s.broadcaster.Broadcast(c.Request().Context(), s.config.BroadcastSubject, payload); err != nil {
		s.logger.Warn("answer broadcast failed", zap.Error(err))
	}
}

func transcriptKey(id string) string {
	return "session:" + id
}
