package api

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = pongWait * 9 / 10
	frameBacklog = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// CORS is enforced on the REST routes
		return true
	},
}

// knownChannels lists what a client may subscribe to.
var knownChannels = map[string]bool{ChannelTrades: true}

// TradeStream fans trade prints out to websocket subscribers, one text frame
// per message. Publish never blocks: a subscriber whose backlog is full
// misses the frame.
type TradeStream struct {
	log *zap.SugaredLogger

	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	closed bool
}

func NewTradeStream(log *zap.SugaredLogger) *TradeStream {
	return &TradeStream{
		log:  log,
		subs: make(map[*subscriber]struct{}),
	}
}

// Subscribers returns the number of open connections.
func (ts *TradeStream) Subscribers() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return len(ts.subs)
}

// Publish encodes v once and queues it for every subscriber of channel.
func (ts *TradeStream) Publish(channel string, v any) {
	frame, err := json.Marshal(v)
	if err != nil {
		ts.log.Errorw("marshal_failed", "channel", channel, "err", err)
		return
	}

	ts.mu.Lock()
	defer ts.mu.Unlock()
	for sub := range ts.subs {
		if !sub.wants(channel) {
			continue
		}
		if !sub.enqueue(frame) {
			ts.log.Debugw("frame_dropped", "client", sub.id, "channel", channel)
		}
	}
}

// Close ends every subscription with a normal close frame. Later connections
// are refused.
func (ts *TradeStream) Close() {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.closed {
		return
	}
	ts.closed = true
	for sub := range ts.subs {
		delete(ts.subs, sub)
		close(sub.frames)
	}
}

func (ts *TradeStream) add(sub *subscriber) bool {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.closed {
		return false
	}
	ts.subs[sub] = struct{}{}
	ts.log.Infow("client_connected", "client", sub.id, "total", len(ts.subs))
	return true
}

func (ts *TradeStream) remove(sub *subscriber) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if _, ok := ts.subs[sub]; !ok {
		return
	}
	delete(ts.subs, sub)
	close(sub.frames)
	ts.log.Infow("client_disconnected", "client", sub.id, "total", len(ts.subs))
}

// ack queues a subscription acknowledgement unless sub is already gone.
func (ts *TradeStream) ack(sub *subscriber, msg WSAck) {
	frame, err := json.Marshal(msg)
	if err != nil {
		return
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if _, ok := ts.subs[sub]; ok {
		sub.enqueue(frame)
	}
}

type subscriber struct {
	id     string
	conn   *websocket.Conn
	frames chan []byte

	mu       sync.Mutex
	channels map[string]bool
}

func (s *subscriber) wants(channel string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channels[channel]
}

// apply updates the channel set and returns the channels now subscribed.
func (s *subscriber) apply(req WSSubscribeRequest) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range req.Channels {
		if !knownChannels[ch] {
			continue
		}
		if req.Op == "subscribe" {
			s.channels[ch] = true
		} else {
			delete(s.channels, ch)
		}
	}
	active := make([]string, 0, len(s.channels))
	for ch := range s.channels {
		active = append(active, ch)
	}
	sort.Strings(active)
	return active
}

// enqueue must be called with the stream lock held.
func (s *subscriber) enqueue(frame []byte) bool {
	select {
	case s.frames <- frame:
		return true
	default:
		return false
	}
}

// readRequests applies subscribe/unsubscribe requests until the peer goes
// away or stops answering pings.
func (ts *TradeStream) readRequests(sub *subscriber) {
	defer func() {
		ts.remove(sub)
		sub.conn.Close()
	}()

	sub.conn.SetReadLimit(4096)
	sub.conn.SetReadDeadline(time.Now().Add(pongWait))
	sub.conn.SetPongHandler(func(string) error {
		return sub.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var req WSSubscribeRequest
		if err := sub.conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				ts.log.Warnw("read_failed", "client", sub.id, "err", err)
			}
			return
		}
		if req.Op != "subscribe" && req.Op != "unsubscribe" {
			ts.log.Debugw("unknown_op", "client", sub.id, "op", req.Op)
			continue
		}
		active := sub.apply(req)
		ts.log.Debugw("subscriptions_changed", "client", sub.id, "op", req.Op, "active", active)
		ts.ack(sub, WSAck{Type: "subscriptions", Channels: active})
	}
}

// writeFrames sends each queued frame as its own websocket message and keeps
// the connection alive with pings.
func (ts *TradeStream) writeFrames(sub *subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		sub.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-sub.frames:
			sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				bye := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "stream closed")
				sub.conn.WriteMessage(websocket.CloseMessage, bye)
				return
			}
			if err := sub.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				ts.log.Debugw("write_failed", "client", sub.id, "err", err)
				return
			}

		case <-ticker.C:
			sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sub.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnw("ws_upgrade_failed", "err", err)
		return
	}

	sub := &subscriber{
		id:       conn.RemoteAddr().String(),
		conn:     conn,
		frames:   make(chan []byte, frameBacklog),
		channels: make(map[string]bool),
	}
	if !s.stream.add(sub) {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}

	go s.stream.writeFrames(sub)
	go s.stream.readRequests(sub)
}
