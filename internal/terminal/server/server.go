package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
	"tradebridge/internal/errors"
	"tradebridge/internal/logger"
	"tradebridge/internal/terminal/protocol"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

type Options struct {
	AuthToken         string
	LockoutThreshold  int
	LockoutWindow     time.Duration
	TelemetryInterval time.Duration
	// ReplayCapacity bounds how many mutating replies are kept for replay
	// when a request id is retried.
	ReplayCapacity int
}

// Server is the terminal end of the bridge: a request/reply command
// endpoint and a separate push-only telemetry endpoint.
type Server struct {
	broker   Broker
	guard    *Guard
	log      *logger.Logger
	interval time.Duration
	now      func() time.Time
	table    map[protocol.CommandType]handlerFunc
	router   *mux.Router
	upgrader websocket.Upgrader

	mu       sync.Mutex
	replies  map[string]protocol.Reply
	order    []string
	capacity int
}

func New(opts Options, broker Broker, log *logger.Logger) *Server {
	if opts.TelemetryInterval <= 0 {
		opts.TelemetryInterval = time.Second
	}
	if opts.ReplayCapacity <= 0 {
		opts.ReplayCapacity = 1024
	}
	s := &Server{
		broker:   broker,
		guard:    NewGuard(opts.AuthToken, opts.LockoutThreshold, opts.LockoutWindow),
		log:      log,
		interval: opts.TelemetryInterval,
		now:      time.Now,
		replies:  make(map[string]protocol.Reply),
		capacity: opts.ReplayCapacity,
	}
	s.table = s.handlers()

	r := mux.NewRouter()
	r.HandleFunc("/command", s.serveCommand)
	r.HandleFunc("/telemetry", s.serveTelemetry)
	r.HandleFunc("/health", s.serveHealth).Methods(http.MethodGet)
	s.router = r
	return s
}

func (s *Server) logEntry() *logrus.Entry {
	return s.log.WithComponent("terminal_server")
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Guard() *Guard {
	return s.guard
}

// ListenAndServe blocks until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logEntry().WithField("addr", addr).Info("Терминал слушает.")
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

// Process answers one request. Authentication comes first, so a locked out
// client learns nothing else.
func (s *Server) Process(ctx context.Context, req protocol.Request) protocol.Reply {
	if err := s.guard.Check(req.AuthToken); err != nil {
		s.logEntry().WithError(err).WithField("request_id", req.RequestID).Warn("Запрос отклонён авторизацией.")
		if errors.HasCode(err, errors.ErrCodeLockedOut) {
			return protocol.Fail(req.RequestID, protocol.CodeLockedOut, err.Error())
		}
		return protocol.Fail(req.RequestID, protocol.CodeAuthFailed, err.Error())
	}

	handler, ok := s.table[req.CommandType]
	if !ok {
		return protocol.Fail(req.RequestID, protocol.CodeUnknownCommand, "Неизвестная команда "+string(req.CommandType))
	}

	if req.CommandType.Mutating() && req.RequestID != "" {
		if reply, ok := s.replayed(req.RequestID); ok {
			s.logEntry().WithField("request_id", req.RequestID).Info("Повтор запроса, возвращаем сохранённый ответ.")
			return reply
		}
	}

	data, err := handler(ctx, req)
	var reply protocol.Reply
	if err != nil {
		reply = protocol.Fail(req.RequestID, replyCode(err), err.Error())
	} else if reply, err = protocol.OK(req.RequestID, data); err != nil {
		reply = protocol.Fail(req.RequestID, protocol.CodeExecution, err.Error())
	}

	if req.CommandType.Mutating() && req.RequestID != "" {
		s.remember(req.RequestID, reply)
	}
	return reply
}

func (s *Server) replayed(id string) (protocol.Reply, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reply, ok := s.replies[id]
	return reply, ok
}

func (s *Server) remember(id string, reply protocol.Reply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.replies[id]; ok {
		return
	}
	s.replies[id] = reply
	s.order = append(s.order, id)
	if len(s.order) > s.capacity {
		delete(s.replies, s.order[0])
		s.order = s.order[1:]
	}
}

func (s *Server) serveCommand(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logEntry().WithError(err).Warn("Не удалось открыть командный канал.")
		return
	}
	defer conn.Close()
	conn.SetReadLimit(2 << 20)

	s.logEntry().WithField("remote", r.RemoteAddr).Info("Командный канал открыт.")
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.logEntry().WithError(err).Debug("Командный канал закрыт.")
			return
		}

		var req protocol.Request
		var reply protocol.Reply
		if err := json.Unmarshal(data, &req); err != nil {
			reply = protocol.Fail("", protocol.CodeInvalidRequest, "Некорректный JSON запроса")
		} else {
			reply = s.Process(r.Context(), req)
		}

		if err := conn.WriteJSON(reply); err != nil {
			s.logEntry().WithError(err).Warn("Не удалось отправить ответ.")
			return
		}
	}
}

func (s *Server) serveTelemetry(w http.ResponseWriter, r *http.Request) {
	if err := s.guard.Check(r.Header.Get(protocol.AuthHeader)); err != nil {
		status := http.StatusUnauthorized
		if errors.HasCode(err, errors.ErrCodeLockedOut) {
			status = http.StatusTooManyRequests
		}
		http.Error(w, err.Error(), status)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logEntry().WithError(err).Warn("Не удалось открыть канал телеметрии.")
		return
	}
	defer conn.Close()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if err := conn.WriteJSON(s.Telemetry()); err != nil {
			s.logEntry().WithError(err).Debug("Канал телеметрии закрыт.")
			return
		}
		select {
		case <-r.Context().Done():
			return
		case <-closed:
			return
		case <-ticker.C:
		}
	}
}

func (s *Server) Telemetry() protocol.Telemetry {
	return protocol.Telemetry{
		Account:   s.broker.Account(),
		Prices:    s.broker.Prices(),
		Timestamp: s.now().UnixMilli(),
	}
}

func (s *Server) serveHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"version": protocol.Version,
		"locked":  s.guard.Locked(),
	})
}
