package server

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/xhad/readmit/internal/types"
	"github.com/xhad/readmit/pkg/export"
	"github.com/xhad/readmit/pkg/metrics"
	"github.com/xhad/readmit/pkg/store"
)

//go:embed templates/index.html
var templates embed.FS

// Message is the websocket envelope in both directions.
type Message struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	Data    any    `json:"data,omitempty"`
}

const (
	MsgGenerate = "generate"
	MsgStatus   = "status"
	MsgSummary  = "summary"
	MsgError    = "error"
	MsgDone     = "done"
	MsgBusy     = "busy"
)

type Config struct {
	Retriever     types.Retriever
	Summarizer    types.Summarizer
	Normalizer    types.Normalizer
	Store         *store.ArtifactStore
	DefaultTerms  string
	OverviewTitle string
	AbstractsFile string
	DeckFile      string
	GinMode       string
	Logger        *slog.Logger
	Metrics       *metrics.Recorder // optional; enables /metrics
}

type WSServer struct {
	config   Config
	logger   *slog.Logger
	upgrader websocket.Upgrader
	router   *gin.Engine
}

func NewWSServer(config Config) (*WSServer, error) {
	if config.Retriever == nil || config.Summarizer == nil {
		return nil, errors.New("retriever and summarizer are required")
	}
	if config.Store == nil {
		return nil, errors.New("artifact store is required")
	}
	if config.AbstractsFile == "" {
		config.AbstractsFile = "pubmed_abstracts.pdf"
	}
	if config.DeckFile == "" {
		config.DeckFile = "readmission_summary_deck.pptx"
	}
	if config.OverviewTitle == "" {
		config.OverviewTitle = export.DefaultOverviewTitle
	}
	if config.GinMode == "" {
		config.GinMode = gin.ReleaseMode
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &WSServer{
		config: config,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}

	router, err := s.newRouter()
	if err != nil {
		return nil, err
	}
	s.router = router

	return s, nil
}

// Handler returns the HTTP handler serving every route.
func (s *WSServer) Handler() http.Handler { return s.router }

func (s *WSServer) newRouter() (*gin.Engine, error) {
	tmpl, err := template.ParseFS(templates, "templates/index.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	gin.SetMode(s.config.GinMode)
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())
	router.SetHTMLTemplate(tmpl)

	router.GET("/", s.handleIndex)
	router.GET("/ws", s.handleWebSocket)
	router.GET("/download/:run/:file", s.handleDownload)
	router.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	if s.config.Metrics != nil {
		router.GET("/metrics", gin.WrapH(s.config.Metrics.Handler()))
	}

	return router, nil
}

func (s *WSServer) handleIndex(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", gin.H{
		"DefaultTerms": s.config.DefaultTerms,
	})
}

func (s *WSServer) handleDownload(c *gin.Context) {
	name := c.Param("file")
	path, err := s.config.Store.Path(c.Param("run"), name)
	if err != nil {
		c.String(http.StatusNotFound, "not found")
		return
	}
	c.FileAttachment(path, name)
}

func (s *WSServer) handleWebSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	sess := newSession(s, conn)
	defer sess.wait()
	defer cancel()

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("error reading message", "error", err)
			}
			return
		}
		sess.handle(ctx, msg)
	}
}

func (s *WSServer) downloadPath(runID, name string) string {
	return fmt.Sprintf("/download/%s/%s", runID, name)
}

func (s *WSServer) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *WSServer) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
