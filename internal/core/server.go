package core

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/awsl-project/appforge/internal/handler"
	"github.com/awsl-project/appforge/internal/jsonx"
)

const shutdownGrace = 3 * time.Second

// ServerConfig 服务器配置
type ServerConfig struct {
	Addr       string
	DataDir    string
	InstanceID string
	Components *ServerComponents
	// 前端构建目录，为空时不提供静态文件
	WebDir string
}

// ManagedServer owns the HTTP listener and the components behind it
type ManagedServer struct {
	config  *ServerConfig
	handler http.Handler

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
	startedAt  time.Time
	cancel     context.CancelFunc
	done       chan struct{}
}

func NewManagedServer(config *ServerConfig) (*ManagedServer, error) {
	if config.Components == nil {
		return nil, errors.New("server components are required")
	}
	s := &ManagedServer{config: config}
	s.handler = handler.LoggingMiddleware(handler.RecoverMiddleware(s.routes()))
	return s, nil
}

func (s *ManagedServer) routes() *http.ServeMux {
	c := s.config.Components
	auth := c.TokenAuth
	mux := http.NewServeMux()

	// 生成接口不走管理令牌
	mux.Handle("/api/generate", c.GenerateHandler)
	mux.Handle("/api/", auth.Wrap(c.AdminHandler))
	mux.Handle("/ws", auth.Wrap(http.HandlerFunc(c.WebSocketHub.HandleWebSocket)))
	mux.HandleFunc("/health", s.health)

	if s.config.WebDir != "" {
		mux.Handle("/", handler.NewStaticHandler(s.config.WebDir))
		log.Printf("[Server] Serving web UI from %s", s.config.WebDir)
	}
	if auth.IsEnabled() {
		log.Printf("[Server] Admin token authentication enabled")
	}
	return mux
}

type healthStatus struct {
	Status     string `json:"status"`
	InstanceID string `json:"instanceId"`
	Uptime     string `json:"uptime,omitempty"`
	Sandboxes  int    `json:"sandboxes"`
	WSClients  int    `json:"wsClients"`
}

func (s *ManagedServer) health(w http.ResponseWriter, r *http.Request) {
	c := s.config.Components
	st := healthStatus{
		Status:     "ok",
		InstanceID: s.config.InstanceID,
		Sandboxes:  len(c.Sandboxes.Sessions()),
		WSClients:  c.WebSocketHub.ClientCount(),
	}
	s.mu.Lock()
	if !s.startedAt.IsZero() {
		st.Uptime = time.Since(s.startedAt).Round(time.Second).String()
	}
	s.mu.Unlock()

	body, err := jsonx.Marshal(st)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

// Handler 返回带中间件的根处理器
func (s *ManagedServer) Handler() http.Handler {
	return s.handler
}

// Start binds the listen address and serves in the background. A bind
// failure is returned instead of logged so the caller can exit.
func (s *ManagedServer) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.httpServer != nil {
		return nil
	}

	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.config.Addr, err)
	}

	// 生成流跟随这个 ctx，Stop 时先取消
	serveCtx, cancel := context.WithCancel(ctx)
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return serveCtx },
	}
	done := make(chan struct{})

	go func() {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[Server] Serve error: %v", err)
		}
	}()

	s.httpServer = srv
	s.listener = ln
	s.cancel = cancel
	s.done = done
	s.startedAt = time.Now()
	log.Printf("[Server] Listening on %s", ln.Addr())
	return nil
}

// Stop cancels in-flight generations, drains the listener and shuts the
// components down
func (s *ManagedServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv, cancel, done := s.httpServer, s.cancel, s.done
	s.httpServer, s.listener, s.cancel, s.done = nil, nil, nil, nil
	s.startedAt = time.Time{}
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	cancel()

	shutdownCtx, stop := context.WithTimeout(ctx, shutdownGrace)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[Server] Graceful shutdown failed: %v, forcing close", err)
		_ = srv.Close()
	}
	<-done

	s.config.Components.Shutdown(ctx)
	log.Printf("[Server] Stopped")
	return nil
}

func (s *ManagedServer) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.httpServer != nil
}

// GetAddr returns the bound address once started, the configured one before
func (s *ManagedServer) GetAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.config.Addr
}

func (s *ManagedServer) GetInstanceID() string {
	return s.config.InstanceID
}
