package stream

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"

	"github.com/dg645-sim/internal/config"
	"github.com/dg645-sim/internal/protocol"
)

// Line terminators of the DG645 remote interface
const (
	InTerminator  = "\n"
	OutTerminator = "\r\n"
)

const maxLineLength = 4096

// Server serves the line protocol over TCP
type Server struct {
	config            *config.Config
	dispatcher        *protocol.Dispatcher
	listener          net.Listener
	stopChan          chan struct{}
	activeConnections map[string]net.Conn
	connectionsMutex  sync.RWMutex
	maxConnections    int
	idleTimeout       time.Duration
	allowed           []*net.IPNet
	verbose           bool
	wg                sync.WaitGroup
}

// NewServer creates a new stream server
func NewServer(cfg *config.Config, dispatcher *protocol.Dispatcher) *Server {
	s := &Server{
		config:            cfg,
		dispatcher:        dispatcher,
		stopChan:          make(chan struct{}),
		activeConnections: make(map[string]net.Conn),
		maxConnections:    cfg.Network.Stream.MaxConnections,
		idleTimeout:       time.Duration(cfg.Network.Stream.IdleTimeoutSec) * time.Second,
		verbose:           cfg.Logging.Verbose,
	}

	for _, cidrStr := range cfg.Network.Stream.AllowedCIDRs {
		_, network, err := net.ParseCIDR(cidrStr)
		if err != nil {
			log.Printf("Invalid CIDR in config: %s", cidrStr)
			continue
		}
		s.allowed = append(s.allowed, network)
	}

	return s
}

// ListenAndServe starts the stream server on the configured port
func (s *Server) ListenAndServe() error {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", s.config.Network.Stream.Port))
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to listen on port %d", s.config.Network.Stream.Port)
	}
	return s.Serve(listener)
}

// Serve accepts connections on listener until Close is called
func (s *Server) Serve(listener net.Listener) error {
	s.connectionsMutex.Lock()
	s.listener = listener
	s.connectionsMutex.Unlock()

	log.Printf("Stream server listening on %s", listener.Addr())

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-s.stopChan:
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Printf("Failed to accept connection: %v", err)
			continue
		}

		// Check if connection is from allowed CIDR
		if !s.isAllowedConnection(conn) {
			log.Printf("Rejected connection from %s (not in allowed CIDRs)", conn.RemoteAddr())
			conn.Close()
			continue
		}

		id, ok := s.track(conn)
		if !ok {
			log.Printf("Rejected connection from %s (closing or limit of %d reached)", conn.RemoteAddr(), s.maxConnections)
			conn.Close()
			continue
		}

		go s.handleConnection(id, conn)
	}
}

// Addr returns the listening address, or nil before Serve
func (s *Server) Addr() net.Addr {
	s.connectionsMutex.RLock()
	defer s.connectionsMutex.RUnlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// track registers a connection under a fresh session id and counts it in
// wg. It refuses connections once Close has started so that Close never
// misses a session.
func (s *Server) track(conn net.Conn) (string, bool) {
	s.connectionsMutex.Lock()
	defer s.connectionsMutex.Unlock()

	select {
	case <-s.stopChan:
		return "", false
	default:
	}
	if len(s.activeConnections) >= s.maxConnections {
		return "", false
	}
	id := uuid.NewString()
	s.activeConnections[id] = conn
	s.wg.Add(1)
	return id, true
}

func (s *Server) untrack(id string) {
	s.connectionsMutex.Lock()
	defer s.connectionsMutex.Unlock()
	delete(s.activeConnections, id)
}

// ActiveConnections returns the number of open sessions
func (s *Server) ActiveConnections() int {
	s.connectionsMutex.RLock()
	defer s.connectionsMutex.RUnlock()
	return len(s.activeConnections)
}

// handleConnection runs one session: each line is dispatched and its reply
// written before the next line is read
func (s *Server) handleConnection(id string, conn net.Conn) {
	defer s.wg.Done()
	defer s.untrack(id)
	defer conn.Close()

	log.Printf("Session %s opened: client=%s", id, conn.RemoteAddr())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := bufio.NewReaderSize(conn, maxLineLength)
	writer := bufio.NewWriter(conn)

	for {
		if s.idleTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(s.idleTimeout))
		}
		line, ok, err := readLine(reader)
		if err != nil {
			if err != io.EOF {
				select {
				case <-s.stopChan:
				default:
					log.Printf("Session %s read failed: %v", id, err)
				}
			}
			break
		}
		if !ok {
			log.Printf("Session %s dropped a line longer than %d bytes", id, maxLineLength)
			continue
		}

		if s.verbose {
			log.Printf("Session %s received: %q", id, line)
		}

		reply := s.dispatcher.Dispatch(ctx, line)
		if !reply.Send {
			continue
		}

		if _, err := writer.WriteString(reply.Line + OutTerminator); err != nil {
			log.Printf("Session %s write failed: %v", id, err)
			return
		}
		if err := writer.Flush(); err != nil {
			log.Printf("Session %s write failed: %v", id, err)
			return
		}
	}

	log.Printf("Session %s closed", id)
}

// readLine returns the next line without its terminator. A line that does
// not fit the reader buffer is consumed up to its terminator and reported
// with ok false. An unterminated last line is returned before io.EOF.
func readLine(r *bufio.Reader) (line string, ok bool, err error) {
	data, err := r.ReadSlice(InTerminator[0])
	if err == bufio.ErrBufferFull {
		for err == bufio.ErrBufferFull {
			_, err = r.ReadSlice(InTerminator[0])
		}
		if err != nil {
			return "", false, err
		}
		return "", false, nil
	}
	if err != nil && (err != io.EOF || len(data) == 0) {
		return "", false, err
	}
	return strings.TrimRight(string(data), "\r\n"), true, nil
}

// isAllowedConnection checks if the connection is from an allowed CIDR
func (s *Server) isAllowedConnection(conn net.Conn) bool {
	clientAddr := conn.RemoteAddr()
	host, _, err := net.SplitHostPort(clientAddr.String())
	if err != nil {
		return false
	}

	clientIP := net.ParseIP(host)
	if clientIP == nil {
		return false
	}

	for _, network := range s.allowed {
		if network.Contains(clientIP) {
			return true
		}
	}

	return false
}

// Close shuts down the stream server and drops open sessions
func (s *Server) Close() error {
	select {
	case <-s.stopChan:
		// Already closed
		return nil
	default:
		close(s.stopChan)
	}

	s.connectionsMutex.Lock()
	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	for _, conn := range s.activeConnections {
		conn.Close()
	}
	s.connectionsMutex.Unlock()

	s.wg.Wait()
	return err
}
