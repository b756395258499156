package protocol

import (
	"encoding/json"
	log "log/slog"
	"net/http"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"
)

// Conn is a websocket carrying Events. Writes are serialised; reads must come
// from a single goroutine.
type Conn struct {
	conn    *ws.Conn
	writeMu sync.Mutex
	timeout time.Duration
}

var upgrader = ws.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Accept upgrades an HTTP request to an event connection.
func Accept(w http.ResponseWriter, r *http.Request, timeout time.Duration) (*Conn, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	log.Debug("Accepted websocket", "remote", r.RemoteAddr)
	return &Conn{conn: conn, timeout: timeout}, nil
}

// Dial opens a client connection, used by tools and tests.
func Dial(url string, timeout time.Duration) (*Conn, error) {
	log.Debug("Dial websocket", "url", url)
	conn, _, err := ws.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}
	return &Conn{conn: conn, timeout: timeout}, nil
}

func (c *Conn) Send(e *Event) error {
	payload, err := e.Bytes()
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.timeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.timeout))
	}
	log.Debug("Write ws", "kind", e.Kind)
	return c.conn.WriteMessage(ws.TextMessage, payload)
}

type IncomeKind uint

const (
	CONN_CLOSE IncomeKind = iota
	READ_FAILURE
	READ_OK
)

type Income struct {
	Kind  IncomeKind
	Event *Event
	Err   error
}

// Read blocks for the next frame.
func (c *Conn) Read() Income {
	_, msg, err := c.conn.ReadMessage()
	if err != nil {
		// gorilla connections are unusable after any read error
		if !IsClosed(err) {
			log.Warn("Websocket read failed", "err", err)
		}
		return Income{Kind: CONN_CLOSE, Err: err}
	}

	e, err := Parse(msg)
	if err != nil {
		return Income{Kind: READ_FAILURE, Err: err}
	}
	return Income{Kind: READ_OK, Event: e}
}

// ReadEvent is Read for callers that only care about events.
func (c *Conn) ReadEvent() (*Event, error) {
	_, msg, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	var e Event
	if err := json.Unmarshal(msg, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (c *Conn) Close() error {
	return c.conn.Close()
}

func IsClosed(err error) bool {
	return ws.IsCloseError(err,
		ws.CloseNormalClosure,
		ws.CloseGoingAway,
		ws.CloseAbnormalClosure,
		ws.CloseNoStatusReceived)
}
