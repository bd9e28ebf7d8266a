package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/valpere/studyspark/internal/action"
	"github.com/valpere/studyspark/internal/completion"
	"github.com/valpere/studyspark/internal/conversation"
	"github.com/valpere/studyspark/internal/markdown"
	"github.com/valpere/studyspark/internal/orchestrator"
	"github.com/valpere/studyspark/internal/pagefetch"
	"github.com/valpere/studyspark/internal/store"
)

// RunRequest is the body of run and turn requests. URL is used when Text is
// empty. Format selects an extra rendering of final text: "html" or "text".
type RunRequest struct {
	Action         string `json:"action" binding:"required"`
	Text           string `json:"text"`
	URL            string `json:"url"`
	TargetLanguage string `json:"target_language"`
	Title          string `json:"title"`
	Format         string `json:"format"`
}

type editRequest struct {
	Text string `json:"text" binding:"required"`
}

func errorBody(err error) gin.H {
	return gin.H{"error": err.Error()}
}

func (s *Server) health(c *gin.Context) {
	status, err := s.service.Availability(c.Request.Context())
	body := gin.H{"service": s.service.Name(), "availability": status}
	if err != nil {
		body["error"] = err.Error()
	}
	if err != nil || status == completion.Unavailable {
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}
	c.JSON(http.StatusOK, body)
}

// prepare decodes the body into a pipeline request. It writes the error
// response itself and returns false on failure.
func (s *Server) prepare(c *gin.Context) (orchestrator.Request, markdown.Format, bool) {
	var body RunRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(err))
		return orchestrator.Request{}, "", false
	}
	a, err := action.Parse(body.Action)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody(err))
		return orchestrator.Request{}, "", false
	}
	format, err := markdown.ParseFormat(body.Format)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody(err))
		return orchestrator.Request{}, "", false
	}

	input := body.Text
	if input == "" {
		input = body.URL
	}
	params := action.Params{TargetLanguage: body.TargetLanguage, Title: body.Title, URL: body.URL}
	req, err := orchestrator.Prepare(c.Request.Context(), s.resolver, a, input, params)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, pagefetch.ErrFetch) {
			status = http.StatusBadGateway
		}
		c.JSON(status, errorBody(err))
		return orchestrator.Request{}, "", false
	}
	return req, format, true
}

func (s *Server) createRun(c *gin.Context) {
	req, format, ok := s.prepare(c)
	if !ok {
		return
	}
	s.stream(c, format, func(handler orchestrator.Handler) error {
		_, err := s.runner.Execute(c.Request.Context(), req, handler)
		return err
	})
}

func (s *Server) listRuns(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody(err))
		return
	}
	runs, err := s.history.ListRuns(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorBody(err))
		return
	}
	if runs == nil {
		runs = []store.Run{}
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (s *Server) getRun(c *gin.Context) {
	run, chunks, err := s.history.GetRun(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, errorBody(err))
	case err != nil:
		c.JSON(http.StatusInternalServerError, errorBody(err))
	default:
		c.JSON(http.StatusOK, gin.H{"run": run, "chunks": chunks})
	}
}

func (s *Server) createConversation(c *gin.Context) {
	conv := s.convs.Create()
	c.JSON(http.StatusCreated, gin.H{"id": conv.ID})
}

// conversation resolves the :id parameter, answering 404 when unknown.
func (s *Server) conversation(c *gin.Context) (*conversation.Conversation, bool) {
	conv, err := s.convs.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, errorBody(err))
		return nil, false
	}
	return conv, true
}

func (s *Server) getConversation(c *gin.Context) {
	conv, ok := s.conversation(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": conv.ID, "active": conv.Active(), "turns": conv.Turns()})
}

func (s *Server) deleteConversation(c *gin.Context) {
	if err := s.convs.Delete(c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, errorBody(err))
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) sendTurn(c *gin.Context) {
	conv, ok := s.conversation(c)
	if !ok {
		return
	}
	req, format, ok := s.prepare(c)
	if !ok {
		return
	}
	s.stream(c, format, func(handler orchestrator.Handler) error {
		_, err := conv.Send(c.Request.Context(), req, handler)
		return err
	})
}

func (s *Server) regenerate(c *gin.Context) {
	conv, ok := s.conversation(c)
	if !ok {
		return
	}
	if len(conv.Turns()) == 0 {
		c.JSON(http.StatusConflict, errorBody(conversation.ErrNoTurns))
		return
	}
	format, err := markdown.ParseFormat(c.Query("format"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody(err))
		return
	}
	s.stream(c, format, func(handler orchestrator.Handler) error {
		_, err := conv.Regenerate(c.Request.Context(), handler)
		return err
	})
}

func (s *Server) editTurn(c *gin.Context) {
	conv, ok := s.conversation(c)
	if !ok {
		return
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 || index >= len(conv.Turns()) {
		c.JSON(http.StatusBadRequest, errorBody(conversation.ErrTurnRange))
		return
	}
	var body editRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(err))
		return
	}
	format, err := markdown.ParseFormat(c.Query("format"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody(err))
		return
	}
	s.stream(c, format, func(handler orchestrator.Handler) error {
		_, err := conv.Edit(c.Request.Context(), index, body.Text, handler)
		return err
	})
}

func (s *Server) cancel(c *gin.Context) {
	conv, ok := s.conversation(c)
	if !ok {
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"cancelled": conv.Cancel()})
}
