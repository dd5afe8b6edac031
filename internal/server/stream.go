package server

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"github.com/aiassistantthx/browser-ai-agent/internal/events"
	"github.com/aiassistantthx/browser-ai-agent/internal/logger"
)

var connSeq atomic.Int64

// wsSubscriber adapts one websocket connection to events.Subscriber. Sends
// are queued and written by a single goroutine.
type wsSubscriber struct {
	id           string
	conn         *websocket.Conn
	send         chan interface{}
	writeTimeout time.Duration
	logger       *logger.Logger

	closeOnce sync.Once
	done      chan struct{}
}

func newWSSubscriber(conn *websocket.Conn, buffer int, writeTimeout time.Duration, l *logger.Logger) *wsSubscriber {
	if buffer <= 0 {
		buffer = 64
	}
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	return &wsSubscriber{
		id:           fmt.Sprintf("ws-%d", connSeq.Add(1)),
		conn:         conn,
		send:         make(chan interface{}, buffer),
		writeTimeout: writeTimeout,
		logger:       l,
		done:         make(chan struct{}),
	}
}

func (w *wsSubscriber) ID() string { return w.id }

// Send queues the event; a full buffer drops the subscriber
func (w *wsSubscriber) Send(e events.Event) error {
	return w.enqueue(e)
}

func (w *wsSubscriber) enqueue(msg interface{}) error {
	select {
	case <-w.done:
		return events.ErrSubscriberClosed
	default:
	}
	select {
	case w.send <- msg:
		return nil
	default:
		w.close()
		return events.ErrSubscriberSlow
	}
}

func (w *wsSubscriber) close() {
	w.closeOnce.Do(func() {
		close(w.done)
		_ = w.conn.Close()
	})
}

// writeLoop drains the send queue until the subscriber closes
func (w *wsSubscriber) writeLoop() {
	defer w.close()
	for {
		select {
		case <-w.done:
			return
		case msg := <-w.send:
			_ = w.conn.SetWriteDeadline(time.Now().Add(w.writeTimeout))
			if err := w.conn.WriteJSON(msg); err != nil {
				w.logger.Debug("Stream write failed", logger.Fields{"subscriber": w.id, "error": err})
				return
			}
		}
	}
}

// readLoop handles client messages. Only ping is understood; anything else
// is logged and ignored. It returns when the connection fails.
func (w *wsSubscriber) readLoop(readLimit int64) {
	defer w.close()
	if readLimit > 0 {
		w.conn.SetReadLimit(readLimit)
	}
	for {
		_, data, err := w.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				w.logger.Warn("Stream read failed", logger.Fields{"subscriber": w.id, "error": err})
			}
			return
		}

		if !gjson.ValidBytes(data) {
			w.logger.Warn("Ignoring malformed stream message", logger.Fields{"subscriber": w.id, "bytes": len(data)})
			continue
		}
		switch kind := gjson.GetBytes(data, "type").String(); kind {
		case "ping":
			if err := w.enqueue(map[string]string{"type": "pong"}); err != nil {
				return
			}
		default:
			w.logger.Debug("Ignoring stream message", logger.Fields{"subscriber": w.id, "type": kind})
		}
	}
}

// handleStream upgrades the request and subscribes the connection to task
// events until either side closes it
func (s *Server) handleStream(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("Websocket upgrade failed", logger.Fields{"error": err.Error()})
		return
	}

	sub := newWSSubscriber(conn, s.cfg.Stream.SendBuffer, s.cfg.Stream.WriteTimeout, s.logger)
	b := s.orch.Broadcaster()
	b.Subscribe(sub)
	s.logger.Info("Stream subscriber connected", logger.Fields{"subscriber": sub.id})

	go sub.writeLoop()
	sub.readLoop(s.cfg.Stream.ReadLimit)

	b.Unsubscribe(sub.id)
	s.logger.Info("Stream subscriber disconnected", logger.Fields{"subscriber": sub.id})
}
