package httpserver

import (
	"context"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tinytelemetry/storefeed/internal/feed"
	"github.com/tinytelemetry/storefeed/internal/ingest"
	"github.com/tinytelemetry/storefeed/internal/model"
)

// maxImportBody caps POST /api/products bodies.
const maxImportBody = 32 << 20

// CatalogStore is the narrow store contract required by the HTTP API.
type CatalogStore interface {
	model.CatalogReader
	ImportRuns(ctx context.Context, limit int) ([]model.ImportRun, error)
	RecordImportRun(run model.ImportRun) error
}

// ServerConfig holds optional collaborators for the HTTP API.
type ServerConfig struct {
	// Planner places interruption slots in /api/feed responses.
	// The zero value uses feed.DefaultPlanner.
	Planner *feed.Planner
	// Sink receives imported products. Without one, POST /api/products
	// answers 503.
	Sink ingest.ProductSink
}

// Server provides an HTTP API over the product catalog.
type Server struct {
	addr      string
	store     CatalogStore
	planner   feed.Planner
	sink      ingest.ProductSink
	server    *http.Server
	listener  net.Listener
	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time
}

// NewServer creates a new HTTP API server.
func NewServer(addr string, store CatalogStore, conf ...ServerConfig) *Server {
	if addr == "" {
		addr = "127.0.0.1:3000"
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		addr:    addr,
		store:   store,
		planner: feed.DefaultPlanner(),
		ctx:     ctx,
		cancel:  cancel,
	}
	if len(conf) > 0 {
		if conf[0].Planner != nil {
			s.planner = *conf[0].Planner
		}
		s.sink = conf[0].Sink
	}
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	api := r.Group("/api")
	api.GET("/health", s.handleHealth)
	api.GET("/feed", s.handleFeed)
	api.GET("/sellers/top", s.handleTopSellers)
	api.GET("/products/trending", s.handleTrending)
	api.GET("/products", s.handleProductsByIDs)
	api.POST("/products", s.handleImport)
	api.GET("/imports", s.handleImportRuns)
	return r
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)

	s.server = &http.Server{
		Handler:           s.routes(),
		BaseContext:       func(_ net.Listener) context.Context { return s.ctx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	s.listener = listener
	s.startTime = time.Now()

	go s.server.Serve(listener)
	return nil
}

// Addr returns the active listen address.
// Before Start, it returns the configured address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	s.cancel()
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	count, err := s.store.TotalProductCount(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read health metrics"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"uptime":        time.Since(s.startTime).String(),
		"product_count": count,
	})
}

type feedEntry struct {
	Position int           `json:"position"`
	Product  model.Product `json:"product"`
	Slot     string        `json:"slot,omitempty"`
}

func (s *Server) handleFeed(c *gin.Context) {
	page, ok := intQuery(c, "page", 0)
	if !ok || page < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "page must be a non-negative integer"})
		return
	}
	size, ok := intQuery(c, "size", model.DefaultPageSize)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "size must be an integer"})
		return
	}
	size = model.ClampPageSize(size)
	offset, ok := model.PageOffset(page, size)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "page out of range"})
		return
	}

	result, err := s.store.FetchPage(c.Request.Context(), page, size)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	entries := make([]feedEntry, len(result.Items))
	for i, p := range result.Items {
		pos := offset + i
		entries[i] = feedEntry{Position: pos, Product: p}
		if slot, ok := s.planner.SlotFor(pos + 1); ok {
			entries[i].Slot = slot.Kind.String()
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"page":     page,
		"size":     size,
		"has_more": result.HasMore,
		"total":    result.Total,
		"items":    entries,
	})
}

func (s *Server) handleTopSellers(c *gin.Context) {
	limit, ok := intQuery(c, "limit", model.DefaultCarouselLimit)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer"})
		return
	}
	sellers, err := s.store.TopSellers(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sellers": sellers})
}

func (s *Server) handleTrending(c *gin.Context) {
	limit, ok := intQuery(c, "limit", model.DefaultCarouselLimit)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer"})
		return
	}
	products, err := s.store.TrendingProducts(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

func (s *Server) handleProductsByIDs(c *gin.Context) {
	var ids []string
	for _, id := range strings.Split(c.Query("ids"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ids query parameter is required"})
		return
	}
	products, err := s.store.ProductsByIDs(c.Request.Context(), ids)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

func (s *Server) handleImport(c *gin.Context) {
	if s.sink == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "imports are disabled"})
		return
	}
	format := c.Query("format")
	if format == "" {
		format = formatFromContentType(c.ContentType())
	}

	body := http.MaxBytesReader(c.Writer, c.Request.Body, maxImportBody)
	stats, err := ingest.Import(c.Request.Context(), body, format, s.sink)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "accepted": stats.Accepted})
		return
	}

	if err := s.store.RecordImportRun(model.ImportRun{
		Source:   "http",
		Accepted: stats.Accepted,
		Rejected: stats.Rejected,
	}); err != nil {
		log.Printf("httpserver: record import run: %v", err)
	}

	c.JSON(http.StatusAccepted, gin.H{
		"accepted": stats.Accepted,
		"rejected": stats.Rejected,
	})
}

func (s *Server) handleImportRuns(c *gin.Context) {
	limit, ok := intQuery(c, "limit", 20)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer"})
		return
	}
	runs, err := s.store.ImportRuns(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

// intQuery reads an integer query parameter, returning def when absent.
func intQuery(c *gin.Context, key string, def int) (int, bool) {
	raw, present := c.GetQuery(key)
	if !present || raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

func formatFromContentType(ct string) string {
	switch ct {
	case "application/json":
		return ingest.FormatJSON
	case "application/yaml", "application/x-yaml", "text/yaml":
		return ingest.FormatYAML
	default:
		return ingest.FormatNDJSON
	}
}
