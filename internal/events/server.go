package events

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/shogun/internal/agent"
	"github.com/codeready-toolchain/shogun/internal/authz"
	"github.com/codeready-toolchain/shogun/internal/config"
	"github.com/codeready-toolchain/shogun/internal/history"
	"github.com/codeready-toolchain/shogun/internal/ledger"
	"github.com/codeready-toolchain/shogun/internal/mailbox"
	"github.com/codeready-toolchain/shogun/internal/state"
)

// watcherLiveness is satisfied by both mailbox.Watcher and restart.Watcher;
// narrowed to what healthz needs so this package does not import either
// watcher's concrete construction dependencies.
type watcherLiveness interface {
	LastActivity() time.Time
}

// fleet is satisfied by *agent.Manager; narrowed for testability.
type fleet interface {
	Snapshot() []agent.Snapshot
	StopAll()
}

// ServerConfig bundles the dependencies the HTTP/WebSocket surface needs.
type ServerConfig struct {
	StateStore     *state.Store
	HistoryStore   *history.Store
	Writer         *mailbox.Writer
	Fleet          fleet
	Config         *config.Config
	Ledger         *ledger.Ledger
	RestartLedger  *ledger.Ledger
	MailboxWatcher watcherLiveness
	RestartWatcher watcherLiveness
	Hub            *Hub
	Logger         *slog.Logger
	Now            func() time.Time
	StartedAt      time.Time
}

// Server wires the gin HTTP API (spec section 6 "Request endpoints") over
// ServerConfig, grounded on the teacher's cmd/tarsy/main.go router setup.
type Server struct {
	cfg    ServerConfig
	log    *slog.Logger
	engine *gin.Engine
}

// NewServer constructs a Server and registers all routes.
func NewServer(cfg ServerConfig) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if cfg.StartedAt.IsZero() {
		cfg.StartedAt = cfg.Now()
	}

	s := &Server{cfg: cfg, log: cfg.Logger, engine: gin.New()}
	s.engine.Use(gin.Recovery())
	s.registerRoutes()
	return s
}

// Handler returns the http.Handler to pass to an http.Server.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", s.handleHealthz)
	s.engine.GET("/ws", s.handleWebSocket)
	s.engine.GET("/config", s.handleGetConfig)

	s.engine.GET("/threads", s.handleListThreads)
	s.engine.POST("/threads", s.handleCreateThread)
	s.engine.POST("/threads/:id/select", s.handleSelectThread)
	s.engine.DELETE("/threads/:id", s.handleDeleteThread)
	s.engine.GET("/threads/:id/messages", s.handleListMessages)
	s.engine.POST("/threads/:id/messages", s.handleSubmitKingMessage)

	s.engine.GET("/fleet", s.handleFleetSnapshot)
	s.engine.POST("/fleet/stop", s.handleStopAll)
}

func (s *Server) handleHealthz(c *gin.Context) {
	status := HealthStatus{
		Status:            "ok",
		ActiveConnections: s.cfg.Hub.ActiveConnections(),
		UptimeSeconds:     s.cfg.Now().Sub(s.cfg.StartedAt).Seconds(),
	}
	if s.cfg.Ledger != nil {
		status.LedgerEntries = s.cfg.Ledger.Len()
	}
	if s.cfg.RestartLedger != nil {
		status.RestartLedgerEntries = s.cfg.RestartLedger.Len()
	}
	if s.cfg.MailboxWatcher != nil {
		status.MailboxLastActivity = s.cfg.MailboxWatcher.LastActivity()
	}
	if s.cfg.RestartWatcher != nil {
		status.RestartLastActivity = s.cfg.RestartWatcher.LastActivity()
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) handleGetConfig(c *gin.Context) {
	if s.cfg.Config == nil {
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	c.JSON(http.StatusOK, s.cfg.Config.Stats())
}

func (s *Server) handleWebSocket(c *gin.Context) {
	ws, err := websocket.Accept(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("events: websocket upgrade failed", "error", err)
		return
	}
	s.cfg.Hub.HandleConnection(c.Request.Context(), ws)
}

func (s *Server) handleListThreads(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"threads": s.cfg.StateStore.ListThreads()})
}

type createThreadRequest struct {
	Title string `json:"title"`
}

func (s *Server) handleCreateThread(c *gin.Context) {
	var req createThreadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	th, err := s.cfg.StateStore.CreateThread(req.Title, s.cfg.Now())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.broadcastThreads()
	c.JSON(http.StatusCreated, th.Info())
}

func (s *Server) handleSelectThread(c *gin.Context) {
	id := c.Param("id")
	if err := s.cfg.StateStore.SelectThread(id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	s.broadcastThreads()
	c.Status(http.StatusNoContent)
}

func (s *Server) handleDeleteThread(c *gin.Context) {
	id := c.Param("id")
	if err := s.cfg.StateStore.DeleteThread(id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.broadcastThreads()
	c.Status(http.StatusNoContent)
}

func (s *Server) handleListMessages(c *gin.Context) {
	id := c.Param("id")
	msgs, err := s.cfg.HistoryStore.List(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

type submitMessageRequest struct {
	Body  string `json:"body"`
	Title string `json:"title"`
}

// handleSubmitKingMessage implements the "submit king-message to thread"
// endpoint (spec section 6): writes a mailbox file from "king" to "shogun"
// (spec section 4.6: the sole recipient of a king-originated message). The
// "message" transport event is emitted later, by the mailbox watcher's
// handler, once the file has actually been parsed - not here.
func (s *Server) handleSubmitKingMessage(c *gin.Context) {
	threadID := c.Param("id")
	var req submitMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, ok := s.cfg.StateStore.GetThread(threadID); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown thread"})
		return
	}
	id, err := s.cfg.Writer.Write(threadID, string(authz.RoleShogun), string(authz.RoleKing), req.Title, req.Body)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	_ = s.cfg.StateStore.TouchThread(threadID, s.cfg.Now())
	s.broadcastThreads()
	c.JSON(http.StatusAccepted, gin.H{"id": id})
}

func (s *Server) handleFleetSnapshot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"agents": s.cfg.Fleet.Snapshot()})
}

// handleStopAll implements the "stop all" request (spec section 6),
// brokering the "stop" event's requested/completed bracket.
func (s *Server) handleStopAll(c *gin.Context) {
	s.cfg.Hub.Broadcast(StopRequested())
	s.cfg.Fleet.StopAll()
	s.cfg.Hub.Broadcast(StopCompleted())
	c.Status(http.StatusAccepted)
}

func (s *Server) broadcastThreads() {
	s.cfg.Hub.Broadcast(ThreadsEvent(s.cfg.StateStore.ListThreads()))
}
