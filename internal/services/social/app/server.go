// Package server wires the social runtime and HTTP lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sattsat-tdu/reportalk-core/internal/platform/config"
	socialhttp "github.com/sattsat-tdu/reportalk-core/internal/services/social/api/http"
	socialws "github.com/sattsat-tdu/reportalk-core/internal/services/social/api/ws"
	"github.com/sattsat-tdu/reportalk-core/internal/services/social/domain"
	"github.com/sattsat-tdu/reportalk-core/internal/services/social/notices"
	"github.com/sattsat-tdu/reportalk-core/internal/services/social/render"
	"github.com/sattsat-tdu/reportalk-core/internal/services/social/rooms"
	"github.com/sattsat-tdu/reportalk-core/internal/services/social/storage"
	socialsqlite "github.com/sattsat-tdu/reportalk-core/internal/services/social/storage/sqlite"
)

const shutdownGrace = 10 * time.Second

type serverEnv struct {
	DBPath string `env:"REPORTALK_SOCIAL_DB_PATH"`
	Locale string `env:"REPORTALK_SOCIAL_LOCALE"`
}

func loadServerEnv() serverEnv {
	var cfg serverEnv
	_ = config.ParseEnv(&cfg)
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = filepath.Join("data", "social.db")
	}
	if strings.TrimSpace(cfg.Locale) == "" {
		cfg.Locale = "en"
	}
	return cfg
}

// Server hosts the social HTTP API and storage lifecycle.
type Server struct {
	listener   net.Listener
	httpServer *http.Server
	store      *socialsqlite.Store
	hub        *socialws.Hub
	notifier   *socialws.Notifier
	stopHub    context.CancelFunc
}

// New creates a configured social server listening on the provided port.
func New(port int) (*Server, error) {
	return NewWithAddr(fmt.Sprintf(":%d", port))
}

// NewWithAddr creates a configured social server for the provided address.
func NewWithAddr(addr string) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	srvEnv := loadServerEnv()
	store, err := openSocialStore(srvEnv.DBPath)
	if err != nil {
		_ = listener.Close()
		return nil, err
	}

	noticeService := notices.NewService(store, nil, nil, render.PrinterFor(srvEnv.Locale))
	directory := rooms.NewDirectory(store, store, nil)
	resolver := domain.NewResolver(userLoader{store: store}, noticeService)

	notifier := socialws.NewNotifier(noticeService)
	hub := socialws.NewHub(notifier.Hooks())
	notifier.Bind(hub)
	hubCtx, stopHub := context.WithCancel(context.Background())
	go hub.Run(hubCtx)

	router := mux.NewRouter()
	handler := socialhttp.NewHandler(store, directory, noticeService, resolver)
	handler.Register(router)
	router.HandleFunc("/ws/notices", func(w http.ResponseWriter, r *http.Request) {
		socialws.ServeWS(hub, w, r)
	}).Methods(http.MethodGet)

	httpServer := &http.Server{
		Handler:           otelhttp.NewHandler(router, "social.api"),
		ReadHeaderTimeout: 5 * time.Second,
	}

	return &Server{
		listener:   listener,
		httpServer: httpServer,
		store:      store,
		hub:        hub,
		notifier:   notifier,
		stopHub:    stopHub,
	}, nil
}

// Addr returns the listener address for the server.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Run creates and serves a social server until context cancellation.
func Run(ctx context.Context, port int) error {
	server, err := New(port)
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}

// Serve starts the HTTP server until context cancellation.
func (s *Server) Serve(ctx context.Context) error {
	if s == nil {
		return errors.New("server is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	defer s.Close()

	log.Printf("social server listening at %v", s.listener.Addr())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.httpServer.Serve(s.listener)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		err := <-serveErr
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	case err := <-serveErr:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

// Close releases social server resources.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if s.notifier != nil {
		s.notifier.Close()
	}
	if s.stopHub != nil {
		s.stopHub()
	}
	if s.httpServer != nil {
		_ = s.httpServer.Close()
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			log.Printf("close social store: %v", err)
		}
	}
}

// userLoader adapts the sqlite store to the resolver's identity contract.
type userLoader struct {
	store *socialsqlite.Store
}

func (l userLoader) GetUser(ctx context.Context, userID string) (domain.User, error) {
	record, err := l.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.User{}, domain.ErrUserNotFound
		}
		return domain.User{}, err
	}
	return domain.User{
		ID:       record.ID,
		Handle:   record.Handle,
		UserName: record.UserName,
		Friends:  record.Friends,
		Rooms:    record.Rooms,
	}, nil
}

func openSocialStore(path string) (*socialsqlite.Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	store, err := socialsqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open social sqlite store: %w", err)
	}
	return store, nil
}
