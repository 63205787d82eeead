package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"arena/internal/game"
	"arena/internal/matchmaking"
	"arena/internal/registry"
	"arena/internal/spectate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	maxMessageSize = 4096
	sessionQueue   = 128
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if IsAllowedOrigin(origin) {
			return true
		}
		log.Printf("ws: rejected origin %q", origin)
		RecordConnectionRejected("origin")
		return false
	},
}

// clientMessage is the envelope for every client-to-server message.
// Fields beyond Type are read per message kind.
type clientMessage struct {
	Type string `json:"type"`

	MatchID     string `json:"match_id,omitempty"`
	PlayerID    string `json:"player_id,omitempty"`
	SpectatorID string `json:"spectator_id,omitempty"`

	Action   game.Action     `json:"action,omitempty"`
	Params   json.RawMessage `json:"params,omitempty"`
	ClientTs int64           `json:"client_ts,omitempty"`

	Mode      string `json:"mode,omitempty"`
	Region    string `json:"region,omitempty"`
	LatencyMs int    `json:"latency_ms,omitempty"`

	Ts int64 `json:"ts,omitempty"`
}

// Gateway terminates WebSocket connections and routes protocol messages
// to the registry and matchmaker.
type Gateway struct {
	registry   *registry.Registry
	matchmaker *matchmaking.Matchmaker
	limiter    *ConnLimiter

	mu       sync.Mutex
	byPlayer map[string]*session

	connSeq uint64
}

// NewGateway creates a gateway with the given connection caps.
func NewGateway(reg *registry.Registry, mm *matchmaking.Matchmaker, maxConns, maxPerIP int) *Gateway {
	return &Gateway{
		registry:   reg,
		matchmaker: mm,
		limiter:    NewConnLimiter(maxConns, maxPerIP),
		byPlayer:   make(map[string]*session),
	}
}

// session is one live WebSocket connection. All mutation happens on the
// reader goroutine; the writer drains out.
type session struct {
	gw   *Gateway
	conn *websocket.Conn
	id   string
	ip   string

	out  chan []byte
	done chan struct{}
	once sync.Once

	playerID string
	matchID  string

	spectatorID string
	spectMatch  string

	stopForward context.CancelFunc
}

// HandleWS upgrades the connection and runs the session until the socket
// closes.
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	ip := ClientIP(r)
	if !g.limiter.Acquire(ip) {
		RecordConnectionRejected("conn_limit")
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.limiter.Release(ip)
		log.Printf("ws: upgrade from %s: %v", ip, err)
		return
	}

	s := &session{
		gw:   g,
		conn: conn,
		id:   fmt.Sprintf("conn_%d", atomic.AddUint64(&g.connSeq, 1)),
		ip:   ip,
		out:  make(chan []byte, sessionQueue),
		done: make(chan struct{}),
	}
	SetWSConnections(g.limiter.Active())

	go s.writeLoop()
	s.readLoop()
}

// send queues a frame for the writer, dropping it when the session's own
// queue is full or the session has ended. out is never closed; done is
// the teardown signal, so a late sender drops instead of panicking. The
// broadcaster applies its slow-consumer rule upstream; this guard only
// covers direct replies.
func (s *session) send(frame []byte) {
	select {
	case <-s.done:
	case s.out <- frame:
	default:
		log.Printf("ws: %s reply queue full, dropping frame", s.id)
	}
}

func (s *session) sendJSON(v any) {
	frame, err := json.Marshal(v)
	if err != nil {
		log.Printf("ws: %s marshal reply: %v", s.id, err)
		return
	}
	s.send(frame)
}

func (s *session) sendError(reason string) {
	s.sendJSON(map[string]string{"type": "error", "reason": reason})
}

func (s *session) writeLoop() {
	defer s.conn.Close()
	for {
		select {
		case <-s.done:
			return
		case frame := <-s.out:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
			CountWSMessage("out")
		}
	}
}

func (s *session) readLoop() {
	defer s.teardown()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		CountWSMessage("in")

		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			// malformed frames are dropped, not answered
			continue
		}
		s.dispatch(msg)
	}
}

func (s *session) dispatch(msg clientMessage) {
	switch msg.Type {
	case "join_match":
		s.handleJoin(msg)
	case "input":
		s.handleInput(msg)
	case "spectate":
		s.handleSpectate(msg)
	case "ping":
		s.sendJSON(map[string]any{"type": "pong", "ts": msg.Ts, "server_ts": time.Now().UnixMilli()})
	case "queue_join":
		s.handleQueueJoin(msg)
	case "queue_leave":
		s.gw.matchmaker.Dequeue(msg.PlayerID)
		s.sendJSON(map[string]string{"type": "left"})
	default:
		// unknown types are dropped silently, same as malformed frames
	}
}

func (s *session) handleJoin(msg clientMessage) {
	if msg.PlayerID == "" || msg.MatchID == "" {
		s.sendError("invalid_join")
		return
	}
	if s.matchID != "" {
		s.sendError("already_joined")
		return
	}
	h, ok := s.gw.registry.Get(msg.MatchID)
	if !ok {
		s.sendError("match_not_found")
		return
	}
	if err := h.Match.Join(msg.PlayerID, msg.PlayerID); err != nil {
		s.sendError(err.Error())
		return
	}

	s.playerID = msg.PlayerID
	s.matchID = msg.MatchID
	s.gw.register(msg.PlayerID, s)
	s.forward(h.Room.Broadcaster().Subscribe("player:" + msg.PlayerID))

	s.sendJSON(map[string]string{"type": "joined", "match_id": msg.MatchID})
	if snap, live := h.Match.SnapshotNow(); live {
		if frame, err := json.Marshal(map[string]any{
			"type": "state_full", "match_id": snap.MatchID, "tick": snap.Tick,
			"ts": time.Now().UnixMilli(), "snapshot": snap,
		}); err == nil {
			s.send(frame)
		}
	}
}

func (s *session) handleInput(msg clientMessage) {
	if s.matchID == "" {
		return
	}
	h, ok := s.gw.registry.Get(s.matchID)
	if !ok {
		return
	}
	// invalid or late inputs are dropped without a reply
	_ = h.Match.SubmitInput(game.Input{
		PlayerID: s.playerID,
		Action:   msg.Action,
		Params:   msg.Params,
		ClientTs: msg.ClientTs,
	})
}

func (s *session) handleSpectate(msg clientMessage) {
	spectatorID := msg.SpectatorID
	if spectatorID == "" {
		spectatorID = s.id
	}
	if msg.MatchID == "" {
		s.sendError("invalid_spectate")
		return
	}
	if s.spectMatch != "" {
		s.sendError("already_joined")
		return
	}
	h, ok := s.gw.registry.Get(msg.MatchID)
	if !ok {
		s.sendError("match_not_found")
		return
	}

	var ch <-chan []byte
	var err error
	for attempt := 0; attempt < spectate.JoinRetries; attempt++ {
		ch, err = h.Room.Join(spectatorID)
		if err != spectate.ErrOperationPending {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		s.sendError(err.Error())
		return
	}

	s.spectatorID = spectatorID
	s.spectMatch = msg.MatchID
	s.forward(ch)

	s.sendJSON(map[string]any{
		"type": "welcome", "spectator_id": spectatorID, "match_id": msg.MatchID,
		"spectators": h.Room.Count(),
	})
	if snap, live := h.Match.SnapshotNow(); live {
		if frame, err := json.Marshal(map[string]any{
			"type": "state_full", "match_id": snap.MatchID, "tick": snap.Tick,
			"ts": time.Now().UnixMilli(), "snapshot": snap,
		}); err == nil {
			s.send(frame)
		}
	}
}

func (s *session) handleQueueJoin(msg clientMessage) {
	if msg.PlayerID == "" {
		s.sendError("invalid_queue_join")
		return
	}
	pos, err := s.gw.matchmaker.Enqueue(msg.PlayerID, msg.Mode, matchmaking.Region(msg.Region), msg.LatencyMs)
	if err != nil {
		s.sendError(err.Error())
		return
	}
	s.playerID = msg.PlayerID
	s.gw.register(msg.PlayerID, s)
	s.sendJSON(map[string]any{"type": "queued", "position": pos})
}

// forward pumps a broadcaster subscription into the session's writer
// until the subscription closes or the session ends.
func (s *session) forward(ch <-chan []byte) {
	ctx, cancel := context.WithCancel(context.Background())
	s.stopForward = cancel
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case frame, ok := <-ch:
				if !ok {
					return
				}
				s.send(frame)
			}
		}
	}()
}

func (s *session) teardown() {
	s.once.Do(func() {
		if s.stopForward != nil {
			s.stopForward()
		}
		if s.matchID != "" {
			if h, ok := s.gw.registry.Get(s.matchID); ok {
				h.Match.Leave(s.playerID)
				h.Room.Broadcaster().Unsubscribe("player:" + s.playerID)
			}
		}
		if s.spectMatch != "" {
			if h, ok := s.gw.registry.Get(s.spectMatch); ok {
				h.Room.Leave(s.spectatorID)
			}
		}
		if s.playerID != "" {
			s.gw.matchmaker.Dequeue(s.playerID)
			s.gw.unregister(s.playerID, s)
		}

		close(s.done)
		s.conn.Close()
		s.gw.limiter.Release(s.ip)
		SetWSConnections(s.gw.limiter.Active())
	})
}

func (g *Gateway) register(playerID string, s *session) {
	g.mu.Lock()
	g.byPlayer[playerID] = s
	g.mu.Unlock()
}

func (g *Gateway) unregister(playerID string, s *session) {
	g.mu.Lock()
	if g.byPlayer[playerID] == s {
		delete(g.byPlayer, playerID)
	}
	g.mu.Unlock()
}

func (g *Gateway) lookup(playerID string) (*session, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.byPlayer[playerID]
	return s, ok
}

// RunQueueEvents pushes matchmaker outcomes to the affected sessions
// until the context is cancelled.
func (g *Gateway) RunQueueEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-g.matchmaker.Events():
			g.deliverQueueEvent(ev)
		}
	}
}

func (g *Gateway) deliverQueueEvent(ev matchmaking.Event) {
	switch ev.Kind {
	case matchmaking.EventMatchFound:
		for _, playerID := range ev.Players {
			if s, ok := g.lookup(playerID); ok {
				s.sendJSON(map[string]any{
					"type": "match_found", "match_id": ev.MatchID, "role": "player", "mode": ev.Mode,
				})
			}
		}
	case matchmaking.EventQueueExpired:
		for _, playerID := range ev.Players {
			if s, ok := g.lookup(playerID); ok {
				s.sendJSON(map[string]string{"type": "queue_expired"})
			}
		}
	case matchmaking.EventMatchCreateFailed:
		// players stay queued at the head but are told the attempt failed
		for _, playerID := range ev.Players {
			if s, ok := g.lookup(playerID); ok {
				s.sendJSON(map[string]string{"type": "match_create_failed"})
			}
		}
	}
}
