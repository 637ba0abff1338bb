package tcpserver

import (
	"bufio"
	"context"
	"errors"
	"log"
	"net"
	"sync"

	"github.com/tinytelemetry/storefeed/internal/model"
)

const (
	// DefaultLineChannelSize is the default buffer size for the incoming line channel.
	DefaultLineChannelSize = 10_000

	// DefaultMaxLineSize is the default maximum size (in bytes) of a single line.
	DefaultMaxLineSize = 1024 * 1024 // 1MB
)

// ServerConfig holds tunable parameters for the TCP server.
type ServerConfig struct {
	LineChannelSize int
	MaxLineSize     int
}

// Server listens for newline-delimited product JSON over TCP. Every
// connection is its own stream: lines are tagged "tcp:<remote addr>" and the
// stream ends with an EOF marker when the peer disconnects.
type Server struct {
	listener    net.Listener
	addr        string
	lineChan    chan model.IngestLine
	maxLineSize int
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	stopOnce    sync.Once
}

// NewServer creates a new TCP server. Default addr is "127.0.0.1:4000".
func NewServer(addr string, conf ...ServerConfig) *Server {
	if addr == "" {
		addr = "127.0.0.1:4000"
	}
	lineChannelSize := DefaultLineChannelSize
	maxLineSize := DefaultMaxLineSize
	if len(conf) > 0 {
		if conf[0].LineChannelSize > 0 {
			lineChannelSize = conf[0].LineChannelSize
		}
		if conf[0].MaxLineSize > 0 {
			maxLineSize = conf[0].MaxLineSize
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:        addr,
		lineChan:    make(chan model.IngestLine, lineChannelSize),
		maxLineSize: maxLineSize,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start begins accepting TCP connections.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = listener

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
					continue
				}
			}
			s.wg.Add(1)
			go s.handleConnection(conn)
		}
	}()

	return nil
}

func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	source := "tcp:" + conn.RemoteAddr().String()
	defer s.send(model.IngestLine{Source: source, EOF: true})

	// Unblock the scanner on shutdown.
	stop := context.AfterFunc(s.ctx, func() { _ = conn.Close() })
	defer stop()

	scanner := bufio.NewScanner(conn)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, s.maxLineSize)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if !s.send(model.IngestLine{Source: source, Line: line}) {
			return
		}
	}
	if err := scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			log.Printf("tcpserver: dropped connection %s due to line exceeding max size (%d bytes)", conn.RemoteAddr(), s.maxLineSize)
			return
		}
		if s.ctx.Err() == nil {
			log.Printf("tcpserver: scanner error from %s: %v", conn.RemoteAddr(), err)
		}
	}
}

func (s *Server) send(line model.IngestLine) bool {
	select {
	case s.lineChan <- line:
		return true
	case <-s.ctx.Done():
		return false
	}
}

// Stop closes the listener and every open connection, then closes Lines.
func (s *Server) Stop() error {
	s.stopOnce.Do(func() {
		s.cancel()
		if s.listener != nil {
			s.listener.Close()
		}
		s.wg.Wait()
		close(s.lineChan)
	})
	return nil
}

// Lines returns the channel of received lines.
func (s *Server) Lines() <-chan model.IngestLine {
	return s.lineChan
}

// Addr returns the active listen address.
// Before Start, it returns the configured address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}
