package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
)

// HandlerFunc serves one request pattern. The returned value is marshalled
// into the response frame; a returned error becomes a transport-level Err.
type HandlerFunc func(ctx context.Context, data json.RawMessage) (any, error)

// Server listens for JSON-over-TCP requests and dispatches them by pattern.
type Server struct {
	log      *log.Logger
	addr     string
	handlers map[string]HandlerFunc

	mu   sync.Mutex
	ln   net.Listener
	wg   sync.WaitGroup
	stop chan struct{}
}

func NewServer(logger *log.Logger, addr string) *Server {
	return &Server{
		log:      logger,
		addr:     addr,
		handlers: make(map[string]HandlerFunc),
		stop:     make(chan struct{}),
	}
}

// Handle registers a handler for pattern. Registration must happen before
// Start.
func (s *Server) Handle(pattern string, h HandlerFunc) {
	s.handlers[pattern] = h
}

// Addr returns the bound listener address, useful when starting on port 0.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return s.addr
	}
	return s.ln.Addr().String()
}

// Start binds the listener and serves connections until Shutdown. It blocks.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}

	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	s.log.Printf("rpc server listening on %s", ln.Addr())

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.stop:
				return nil
			default:
				return fmt.Errorf("accept: %w", err)
			}
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(conn)
		}()
	}
}

// Shutdown closes the listener and waits for in-flight connections, bounded
// by ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	close(s.stop)

	s.mu.Lock()
	if s.ln != nil {
		s.ln.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) serveConn(conn net.Conn) {
	defer conn.Close()

	r := bufio.NewReaderSize(conn, 4096)
	enc := json.NewEncoder(conn)

	for {
		line, err := readFrame(r)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				s.log.Printf("rpc: read: %v", err)
			}
			return
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.log.Printf("rpc: bad frame from %s: %v", conn.RemoteAddr(), err)
			enc.Encode(&Response{Err: "malformed request"})
			continue
		}

		resp := s.dispatch(&req)
		if err := enc.Encode(resp); err != nil {
			s.log.Printf("rpc: write response: %v", err)
			return
		}
	}
}

func (s *Server) dispatch(req *Request) *Response {
	h, ok := s.handlers[req.Pattern]
	if !ok {
		return &Response{Id: req.Id, Err: fmt.Sprintf("unknown pattern %q", req.Pattern)}
	}

	result, err := h(context.Background(), req.Data)
	if err != nil {
		s.log.Printf("rpc: %s: %v", req.Pattern, err)
		return &Response{Id: req.Id, Err: err.Error()}
	}

	data, err := json.Marshal(result)
	if err != nil {
		s.log.Printf("rpc: %s: marshal result: %v", req.Pattern, err)
		return &Response{Id: req.Id, Err: "internal error"}
	}

	return &Response{Id: req.Id, Data: data}
}
