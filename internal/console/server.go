// Package console serves the operations console API.
//
// Routes:
//
//	GET  /healthz             liveness and push channel state
//	GET  /orders?status=S     visible orders, most recent first
//	GET  /orders/:id          one order with its pending change
//	GET  /stats               dashboard counters
//	POST /orders/:id/status   operator status change {"status": "..."}
//	GET  /metrics             Prometheus exposition
package console

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/ordersync/internal/channel"
	"github.com/roach88/ordersync/internal/engine"
	"github.com/roach88/ordersync/internal/order"
)

// Orders is the engine surface the console uses.
type Orders interface {
	List(statuses ...order.Status) []order.Order
	Get(id int64) (order.Order, bool)
	Pending(id int64) (order.PendingAction, bool)
	Stats(now time.Time) engine.Stats
	RequestStatusChange(ctx context.Context, id int64, to order.Status) (*engine.StatusChange, error)
}

// ChannelState reports the push channel state.
type ChannelState interface {
	Status() channel.Status
}

// Server is the console HTTP API.
type Server struct {
	orders         Orders
	channel        ChannelState
	gatherer       prometheus.Gatherer
	now            func() time.Time
	waitTimeout    time.Duration
	requestTimeout time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithGatherer sets the metrics source for /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithNow sets the wall clock used by /stats.
func WithNow(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithWaitTimeout bounds how long a status change request waits for the
// order service before answering 202 Accepted.
func WithWaitTimeout(d time.Duration) Option {
	return func(s *Server) { s.waitTimeout = d }
}

// NewServer creates a console over orders. ch may be nil.
func NewServer(orders Orders, ch ChannelState, opts ...Option) *Server {
	s := &Server{
		orders:         orders,
		channel:        ch,
		gatherer:       prometheus.DefaultGatherer,
		now:            time.Now,
		waitTimeout:    5 * time.Second,
		requestTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the gin router.
func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger())

	router.GET("/healthz", s.health)
	router.GET("/orders", s.listOrders)
	router.GET("/orders/:id", s.getOrder)
	router.GET("/stats", s.stats)
	router.POST("/orders/:id/status", s.changeStatus)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	return router
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("console listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Debug("console request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

type orderView struct {
	order.Order
	Pending *pendingView `json:"pending,omitempty"`
}

type pendingView struct {
	To       order.Status `json:"to"`
	IssuedAt time.Time    `json:"issued_at"`
	Token    string       `json:"token"`
}

func (s *Server) view(o order.Order) orderView {
	v := orderView{Order: o}
	if pa, ok := s.orders.Pending(o.ID); ok {
		v.Pending = &pendingView{To: pa.To, IssuedAt: pa.IssuedAt, Token: pa.Token}
	}
	return v
}

func (s *Server) health(c *gin.Context) {
	state := "UNKNOWN"
	if s.channel != nil {
		state = s.channel.Status().String()
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "channel": state})
}

func (s *Server) listOrders(c *gin.Context) {
	var filter []order.Status
	if raw := c.Query("status"); raw != "" && !strings.EqualFold(raw, "TODOS") && !strings.EqualFold(raw, "ALL") {
		for _, part := range strings.Split(raw, ",") {
			st, err := order.ParseStatus(part)
			if err != nil {
				writeError(c, http.StatusBadRequest, "BAD_REQUEST", err.Error())
				return
			}
			filter = append(filter, st)
		}
	}

	orders := s.orders.List(filter...)
	views := make([]orderView, 0, len(orders))
	for _, o := range orders {
		views = append(views, s.view(o))
	}
	c.JSON(http.StatusOK, views)
}

func (s *Server) getOrder(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	o, found := s.orders.Get(id)
	if !found {
		writeOrderError(c, order.NewNotFoundError(id))
		return
	}
	c.JSON(http.StatusOK, s.view(o))
}

func (s *Server) stats(c *gin.Context) {
	c.JSON(http.StatusOK, s.orders.Stats(s.now()))
}

type statusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (s *Server) changeStatus(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	to, err := order.ParseStatus(req.Status)
	if err != nil {
		writeError(c, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	// The update outlives this request if the service is slow.
	updateCtx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), s.requestTimeout)
	sc, err := s.orders.RequestStatusChange(updateCtx, id, to)
	if err != nil {
		cancel()
		writeOrderError(c, err)
		return
	}
	go func() {
		<-sc.Done()
		cancel()
	}()

	waitCtx, stop := context.WithTimeout(c.Request.Context(), s.waitTimeout)
	defer stop()
	o, err := sc.Wait(waitCtx)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, s.view(o))
	case waitCtx.Err() != nil && order.CodeOf(err) == "":
		current, _ := s.orders.Get(id)
		c.JSON(http.StatusAccepted, s.view(current))
	default:
		writeOrderError(c, err)
	}
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(c, http.StatusBadRequest, "BAD_REQUEST", "invalid order id")
		return 0, false
	}
	return id, true
}

var statusForCode = map[order.ErrorCode]int{
	order.ErrCodeNotFound:          http.StatusNotFound,
	order.ErrCodeConflict:          http.StatusConflict,
	order.ErrCodeInvalidTransition: http.StatusUnprocessableEntity,
	order.ErrCodeNetwork:           http.StatusBadGateway,
	order.ErrCodeDecode:            http.StatusBadGateway,
	order.ErrCodeClosed:            http.StatusServiceUnavailable,
}

func writeOrderError(c *gin.Context, err error) {
	code := order.CodeOf(err)
	status, ok := statusForCode[code]
	if !ok {
		writeError(c, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}
	body := gin.H{"error": string(code), "message": err.Error()}
	var oe *order.Error
	if errors.As(err, &oe) && oe.Reason != "" {
		body["reason"] = oe.Reason
	}
	c.JSON(status, body)
}

func writeError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{"error": code, "message": message})
}
