// Package api is the HTTP surface of Jarvis: the chat and NLP endpoints, the
// task CRUD routes and the health/status probes.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bdobrica/jarvis/internal/jarvis/dispatch"
	"github.com/bdobrica/jarvis/internal/jarvis/gateway"
	"github.com/bdobrica/jarvis/internal/jarvis/store"
)

// TaskStore is the task persistence the REST routes need.
type TaskStore interface {
	dispatch.TaskStore
	DeleteTask(ctx context.Context, taskID, userID int64) (bool, error)
	TaskCount(ctx context.Context) (int, error)
}

// Authenticator resolves bearer tokens to users. It returns store.ErrNotFound
// for unknown tokens.
type Authenticator interface {
	UserByToken(ctx context.Context, raw string) (*store.User, error)
}

// Dispatcher handles chat messages.
type Dispatcher interface {
	Dispatch(ctx context.Context, userID int64, text string) dispatch.Outcome
	Recognize(ctx context.Context, userID int64, text string) dispatch.Recognition
}

// Translator renders text in another language.
type Translator interface {
	Translate(ctx context.Context, text, lang string) gateway.Result
}

// Config wires a Server. Every field is required.
type Config struct {
	Tasks      TaskStore
	Auth       Authenticator
	Dispatcher Dispatcher
	Translator Translator
}

// Server owns the gin router and, once started, the listening http.Server.
type Server struct {
	cfg       Config
	router    *gin.Engine
	startedAt time.Time
	server    *http.Server
}

// New builds the router. It does not listen.
func New(cfg Config) (*Server, error) {
	switch {
	case cfg.Tasks == nil:
		return nil, errors.New("api: task store is required")
	case cfg.Auth == nil:
		return nil, errors.New("api: authenticator is required")
	case cfg.Dispatcher == nil:
		return nil, errors.New("api: dispatcher is required")
	case cfg.Translator == nil:
		return nil, errors.New("api: translator is required")
	}

	router := gin.New()
	s := &Server{cfg: cfg, router: router, startedAt: time.Now()}

	router.Use(traceMiddleware(), requestLogger(), gin.CustomRecovery(recoverJSON))

	router.GET("/", s.handleIndex)
	router.GET("/health", s.handleHealth)
	router.GET("/status", s.handleStatus)

	authed := router.Group("/", s.requireUser())
	{
		authed.GET("/me", s.handleMe)

		authed.GET("/items", s.handleListItems)
		authed.POST("/items", s.handleCreateItem)
		authed.DELETE("/items/:id", s.handleDeleteItem)
		authed.PUT("/items/:id/complete", s.handleCompleteItem)

		authed.POST("/api/nlp", s.handleNLP)
		authed.POST("/api/chat", s.handleChat)
		authed.POST("/api/translate", s.handleTranslate)
	}

	return s, nil
}

// ServeHTTP lets tests drive the router without a listener.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Start begins listening on addr in the background. It returns once the
// listener is open and shuts the server down when ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("api: listen %s: %w", addr, err)
	}

	s.server = &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("api server listening", "addr", ln.Addr().String())
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("api server stopped", "err", err)
		}
	}()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() {
	if s.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		slog.Warn("api server shutdown error", "err", err)
	}
}
