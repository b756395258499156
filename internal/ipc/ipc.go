package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	log "log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const DefaultSocketPath = "/tmp/sahyatri.sock"

type Command string

const (
	LISTEN Command = "listen"
	STOP   Command = "stop"
	MUTE   Command = "mute"
	UNMUTE Command = "unmute"
	SAY    Command = "say"
)

var ErrUnknownCommand = errors.New("unknown command")

type ControlMessage struct {
	Cmd  Command `json:"cmd"`
	Text string  `json:"text,omitempty"`
}

func (m ControlMessage) Validate() error {
	switch m.Cmd {
	case LISTEN, STOP, MUTE, UNMUTE:
		return nil
	case SAY:
		if m.Text == "" {
			return errors.New("say needs text")
		}
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownCommand, m.Cmd)
}

type Reply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type Handler func(ControlMessage) error

// Server accepts one ControlMessage per connection and answers with a Reply.
type Server struct {
	path    string
	ln      net.Listener
	handler Handler
	wg      sync.WaitGroup
}

func Listen(path string, handler Handler) (*Server, error) {
	if path == "" {
		path = DefaultSocketPath
	}
	// a stale socket from a crashed daemon blocks Listen
	_ = os.Remove(path)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("socket dir: %w", err)
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}

	s := &Server{path: path, ln: ln, handler: handler}
	s.wg.Add(1)
	go s.serve()
	log.Debug("Control socket ready", "path", path)
	return s, nil
}

func (s *Server) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Warn("Failed to accept control connection", "err", err)
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

	var msg ControlMessage
	reply := Reply{OK: true}
	if err := json.NewDecoder(conn).Decode(&msg); err != nil {
		reply = Reply{Error: fmt.Sprintf("decode: %v", err)}
	} else if err := msg.Validate(); err != nil {
		reply = Reply{Error: err.Error()}
	} else if err := s.handler(msg); err != nil {
		reply = Reply{Error: err.Error()}
	}

	if reply.Error != "" {
		log.Warn("Control command failed", "cmd", msg.Cmd, "err", reply.Error)
	}
	if err := json.NewEncoder(conn).Encode(reply); err != nil {
		log.Debug("Failed to write control reply", "err", err)
	}
}

func (s *Server) Close() error {
	err := s.ln.Close()
	s.wg.Wait()
	_ = os.Remove(s.path)
	return err
}

// Send delivers msg to the daemon and waits for its reply.
func Send(ctx context.Context, path string, msg ControlMessage) error {
	if path == "" {
		path = DefaultSocketPath
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return err
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if err := json.NewEncoder(conn).Encode(msg); err != nil {
		return fmt.Errorf("send: %w", err)
	}

	var reply Reply
	if err := json.NewDecoder(conn).Decode(&reply); err != nil {
		return fmt.Errorf("read reply: %w", err)
	}
	if !reply.OK {
		return errors.New(reply.Error)
	}
	return nil
}
