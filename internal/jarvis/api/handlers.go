package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bdobrica/jarvis/common/version"
	"github.com/bdobrica/jarvis/internal/jarvis/observability"
	"github.com/bdobrica/jarvis/internal/jarvis/store"
)

func (s *Server) handleIndex(c *gin.Context) {
	c.String(http.StatusOK, "Welcome to the Jarvis API")
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": version.Version,
		"commit":  version.GitCommit,
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	count := 0
	if n, err := s.cfg.Tasks.TaskCount(c.Request.Context()); err == nil {
		count = n
	} else {
		observability.WithTrace(c.Request.Context()).Warn("status: task count failed", "err", err)
	}
	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"version":        version.Version,
		"commit":         version.GitCommit,
		"build_time":     version.BuildTime,
		"started_at":     s.startedAt,
		"uptime_seconds": time.Since(s.startedAt).Seconds(),
		"task_count":     count,
	})
}

func (s *Server) handleMe(c *gin.Context) {
	u := currentUser(c)
	c.JSON(http.StatusOK, gin.H{
		"id":           u.ID,
		"email":        u.Email,
		"display_name": u.DisplayName,
		"matrix_id":    u.MatrixID.String,
		"created_at":   u.CreatedAt,
	})
}

func (s *Server) handleListItems(c *gin.Context) {
	u := currentUser(c)
	tasks, err := s.cfg.Tasks.ListByStatus(c.Request.Context(), u.ID, "")
	if err != nil {
		serverError(c, "list items", err)
		return
	}
	c.JSON(http.StatusOK, tasks)
}

func (s *Server) handleCreateItem(c *gin.Context) {
	var req struct {
		Task string `json:"task"`
	}
	if err := bindJSON(c, taskSchema, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Task is required"})
		return
	}

	u := currentUser(c)
	id, err := s.cfg.Tasks.InsertTask(c.Request.Context(), u.ID, strings.TrimSpace(req.Task))
	if err != nil {
		serverError(c, "create item", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Todo created successfully", "id": id})
}

func (s *Server) handleDeleteItem(c *gin.Context) {
	id, ok := taskID(c)
	if !ok {
		return
	}
	deleted, err := s.cfg.Tasks.DeleteTask(c.Request.Context(), id, currentUser(c).ID)
	if err != nil {
		serverError(c, "delete item", err)
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"message": "Todo not found or not yours"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Todo deleted successfully"})
}

func (s *Server) handleCompleteItem(c *gin.Context) {
	id, ok := taskID(c)
	if !ok {
		return
	}
	done, err := s.cfg.Tasks.CompleteTask(c.Request.Context(), id, currentUser(c).ID)
	if err != nil {
		serverError(c, "complete item", err)
		return
	}
	if !done {
		c.JSON(http.StatusNotFound, gin.H{"message": "Todo not found or not yours"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Todo marked as completed"})
}

// taskID parses the :id path parameter. Malformed ids answer 404 because no
// such task can exist.
func taskID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusNotFound, gin.H{"message": "Todo not found or not yours"})
		return 0, false
	}
	return id, true
}

func serverError(c *gin.Context, op string, err error) {
	observability.WithTrace(c.Request.Context()).Error("api: store failure", "op", op, "err", err)
	c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
}

// compile-time check that the SQLite store satisfies the REST surface.
var _ TaskStore = (*store.Store)(nil)
