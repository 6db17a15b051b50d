package httpapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"lattice/internal/adapter/wire"
	"lattice/internal/domain"
	"lattice/pkg/protocol"
)

func (a *api) health(c *gin.Context) {
	c.JSON(http.StatusOK, protocol.HealthResponse{Status: "ok"})
}

func (a *api) info(c *gin.Context) {
	c.JSON(http.StatusOK, protocol.ServerInfoResponse{
		Version:       a.version,
		PID:           a.pid,
		ProjectRoot:   a.storage.ProjectRoot,
		DataDir:       a.storage.DataDir,
		WorkspaceDir:  a.storage.WorkspaceDir,
		WorkspaceMode: a.storage.WorkspaceMode,
		AgentName:     a.svc.Registry().Default().DisplayName(),
	})
}

func (a *api) listAgents(c *gin.Context) {
	c.JSON(http.StatusOK, wire.AgentList(a.svc.Registry()))
}

// --- threads ---

func (a *api) listThreads(c *gin.Context) {
	ids, err := a.svc.Threads().List(c.Request.Context(), c.Param("session"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, wire.Threads(ids))
}

func (a *api) createThread(c *gin.Context) {
	var req protocol.ThreadCreateRequest
	if err := bindOptional(c, &req); err != nil {
		a.fail(c, err)
		return
	}
	id, err := a.svc.Threads().Create(c.Request.Context(), c.Param("session"), req.ThreadID)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, protocol.ThreadCreateResponse{ThreadID: id})
}

func (a *api) deleteThread(c *gin.Context) {
	thread := c.Param("thread")
	if err := a.svc.Threads().Delete(c.Request.Context(), c.Param("session"), thread); err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, protocol.ThreadDeleteResponse{Deleted: thread})
}

func (a *api) clearThread(c *gin.Context) {
	thread := c.Param("thread")
	if err := a.svc.Threads().Clear(c.Request.Context(), c.Param("session"), thread); err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, protocol.ThreadClearResponse{Cleared: thread})
}

func (a *api) threadMessages(c *gin.Context) {
	msgs, err := a.svc.Threads().Messages(c.Request.Context(), c.Param("session"), c.Param("thread"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, wire.Messages(msgs))
}

// --- agents and models ---

func (a *api) getThreadAgent(c *gin.Context) {
	sel, err := a.svc.ThreadAgent(c.Request.Context(), c.Param("session"), c.Param("thread"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, wire.ThreadAgent(sel))
}

func (a *api) setThreadAgent(c *gin.Context) {
	var req protocol.ThreadAgentRequest
	if err := bindOptional(c, &req); err != nil {
		a.fail(c, err)
		return
	}
	sel, err := a.svc.SetThreadAgent(c.Request.Context(), c.Param("session"), c.Param("thread"), req.Agent)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, wire.ThreadAgent(sel))
}

func (a *api) threadModels(c *gin.Context) {
	def, models, err := a.svc.ThreadModels(c.Request.Context(), c.Param("session"), c.Param("thread"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, protocol.ModelListResponse{DefaultModel: def, Models: models})
}

func (a *api) getSessionModel(c *gin.Context) {
	ms, err := a.svc.SessionModel(c.Request.Context(), c.Param("session"), c.Query("thread_id"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, wire.SessionModel(ms))
}

func (a *api) setSessionModel(c *gin.Context) {
	var req protocol.SessionModelRequest
	if err := bindOptional(c, &req); err != nil {
		a.fail(c, err)
		return
	}
	ms, err := a.svc.SetSessionModel(c.Request.Context(), c.Param("session"), c.Query("thread_id"), req.Model)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, wire.SessionModel(ms))
}

// --- chat ---

func (a *api) chat(c *gin.Context) {
	var req protocol.ChatRequest
	if err := bindOptional(c, &req); err != nil {
		a.fail(c, err)
		return
	}
	if req.ThreadID == "" {
		a.fail(c, domain.NewDomainError("httpapi.chat", domain.ErrInvalidInput, "thread_id is required"))
		return
	}
	sessionID := req.SessionID
	if sessionID == "" {
		id, err := a.sessionID()
		if err != nil {
			a.fail(c, domain.WrapOp("httpapi.chat: default session", err))
			return
		}
		sessionID = id
	}
	turn := wire.TurnRequest(req, sessionID)
	res, err := a.svc.RunTurn(c.Request.Context(), turn)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, wire.Chat(turn, res))
}

// bindOptional decodes a JSON body into v. An empty body leaves v untouched.
func bindOptional(c *gin.Context, v any) error {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return nil
	}
	err := c.ShouldBindJSON(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return fmt.Errorf("%w: decode body: %v", domain.ErrInvalidInput, err)
}

func (a *api) fail(c *gin.Context, err error) {
	status := wire.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		a.log.Error("request failed", "route", c.FullPath(), "error", err)
	}
	c.AbortWithStatusJSON(status, wire.Error(err))
}
