// Package matchmaking runs the queueing and pairing pipeline. One
// long-lived goroutine owns the per-(mode, region) queues and the skill
// rating table; connections talk to it through Enqueue/Dequeue/Status
// and consume pairing outcomes from the event stream.
package matchmaking

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

var (
	ErrAlreadyQueued = errors.New("already_queued")
	ErrNotInQueue    = errors.New("not_in_queue")
	ErrUnknownRegion = errors.New("unknown_region")
)

// Entry is one queued player. JoinedAt is preserved across requeues so a
// failed match creation does not reset wait-widening.
type Entry struct {
	PlayerID  string    `json:"playerId"`
	Rating    int       `json:"rating"`
	LatencyMs int       `json:"latencyMs"`
	Mode      string    `json:"mode"`
	Region    Region    `json:"region"`
	JoinedAt  time.Time `json:"joinedAt"`
}

// EventKind tags matchmaker outcomes.
type EventKind string

const (
	EventMatchFound        EventKind = "match_found"
	EventQueueExpired      EventKind = "queue_expired"
	EventMatchCreateFailed EventKind = "match_create_failed"
)

// Event is one pairing outcome delivered to the connection layer.
type Event struct {
	Kind    EventKind
	MatchID string
	Players []string
	Mode    string
	Region  Region
}

// QueueStatus answers a status query for one queued player.
type QueueStatus struct {
	Position int   `json:"position"`
	WaitMs   int64 `json:"waitMs"`
	EtaMs    int64 `json:"etaMs"`
}

// Config carries the matchmaker tunables.
type Config struct {
	TickMs         int64
	BaseSkillTol   int
	MaxSkillTol    int
	LatencyTolMs   int
	QueueTimeoutMs int64
}

// CreateMatch materialises a match for the paired players and returns
// its id. A failure requeues the players at the head of their queue.
type CreateMatch func(players []Entry, mode string) (string, error)

type queueKey struct {
	mode   string
	region Region
}

// Matchmaker owns the queues and rating table.
type Matchmaker struct {
	cfg     Config
	ratings *RatingTable
	create  CreateMatch

	mu     sync.Mutex
	queues map[queueKey][]*Entry
	queued map[string]queueKey

	events chan Event
	now    func() time.Time

	partySizes map[string]int
}

// New creates a matchmaker. The events channel is buffered; consume it
// promptly or outcomes are dropped with a log line.
func New(cfg Config, ratings *RatingTable, create CreateMatch) *Matchmaker {
	return &Matchmaker{
		cfg:     cfg,
		ratings: ratings,
		create:  create,
		queues:  make(map[queueKey][]*Entry),
		queued:  make(map[string]queueKey),
		events:  make(chan Event, 256),
		now:     time.Now,
		partySizes: map[string]int{
			"1v1": 2,
			"2v2": 4,
			"ffa": 4,
		},
	}
}

// Events exposes the outcome stream.
func (m *Matchmaker) Events() <-chan Event {
	return m.events
}

// Enqueue inserts a player, returning their 1-based queue position.
// Duplicate enqueues are rejected; the rating snapshot is taken here.
func (m *Matchmaker) Enqueue(playerID, mode string, region Region, latencyMs int) (int, error) {
	if !KnownRegion(region) {
		return 0, ErrUnknownRegion
	}
	rating := m.ratings.Get(playerID)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, dup := m.queued[playerID]; dup {
		return 0, ErrAlreadyQueued
	}
	key := queueKey{mode: mode, region: region}
	entry := &Entry{
		PlayerID:  playerID,
		Rating:    rating.Rating,
		LatencyMs: latencyMs,
		Mode:      mode,
		Region:    region,
		JoinedAt:  m.now(),
	}
	m.queues[key] = append(m.queues[key], entry)
	m.queued[playerID] = key
	return len(m.queues[key]), nil
}

// Dequeue removes a player. Removing a player who is not queued is a
// silent no-op.
func (m *Matchmaker) Dequeue(playerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(playerID)
}

func (m *Matchmaker) removeLocked(playerID string) {
	key, ok := m.queued[playerID]
	if !ok {
		return
	}
	delete(m.queued, playerID)
	q := m.queues[key]
	for i, e := range q {
		if e.PlayerID == playerID {
			m.queues[key] = append(q[:i], q[i+1:]...)
			return
		}
	}
}

// Status reports a queued player's position and wait, or not_in_queue.
func (m *Matchmaker) Status(playerID string) (QueueStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key, ok := m.queued[playerID]
	if !ok {
		return QueueStatus{}, ErrNotInQueue
	}
	for i, e := range m.queues[key] {
		if e.PlayerID == playerID {
			waited := m.now().Sub(e.JoinedAt).Milliseconds()
			return QueueStatus{
				Position: i + 1,
				WaitMs:   waited,
				EtaMs:    int64(i+1) * m.cfg.TickMs,
			}, nil
		}
	}
	return QueueStatus{}, ErrNotInQueue
}

// Depth returns the total number of queued players.
func (m *Matchmaker) Depth() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queued)
}

// Run executes pairing passes every TickMs until the context is
// cancelled.
func (m *Matchmaker) Run(ctx context.Context) {
	interval := time.Duration(m.cfg.TickMs) * time.Millisecond
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Tick()
		}
	}
}

// SkillTolerance is the wait-widened rating gap allowed for a head entry
// that has waited waitS seconds.
func (m *Matchmaker) SkillTolerance(waitS int64) int {
	tol := m.cfg.BaseSkillTol + int(waitS)*10
	if tol > m.cfg.MaxSkillTol {
		tol = m.cfg.MaxSkillTol
	}
	return tol
}

// Tick runs one pairing pass: expire stale entries, then try to fill a
// party for each queue's longest waiter.
func (m *Matchmaker) Tick() {
	now := m.now()
	m.expire(now)

	m.mu.Lock()
	// Queues are visited longest-head-wait first so starved queues get
	// first pick of cross-region candidates.
	keys := make([]queueKey, 0, len(m.queues))
	for key, q := range m.queues {
		if len(q) > 0 {
			keys = append(keys, key)
		}
	}
	sortByHeadWait(keys, m.queues)

	type created struct {
		players []Entry
		mode    string
		key     queueKey
	}
	var pending []created

	for _, key := range keys {
		for {
			party, ok := m.fillPartyLocked(key, now)
			if !ok {
				break
			}
			pending = append(pending, created{players: party, mode: key.mode, key: key})
		}
	}
	m.mu.Unlock()

	// Match creation runs outside the lock; failures requeue at the head
	// with JoinedAt preserved.
	for _, c := range pending {
		matchID, err := m.create(c.players, c.mode)
		if err != nil {
			log.Printf("matchmaking: create for %v failed: %v", playerIDs(c.players), err)
			m.requeueHead(c.players)
			m.emit(Event{
				Kind:    EventMatchCreateFailed,
				Players: playerIDs(c.players),
				Mode:    c.mode,
				Region:  c.key.region,
			})
			continue
		}
		m.emit(Event{
			Kind:    EventMatchFound,
			MatchID: matchID,
			Players: playerIDs(c.players),
			Mode:    c.mode,
			Region:  c.key.region,
		})
	}
}

// fillPartyLocked pops the head entry and scans the remainder in FIFO
// order for compatible teammates. On success all members are removed; on
// failure the head keeps its position.
func (m *Matchmaker) fillPartyLocked(key queueKey, now time.Time) ([]Entry, bool) {
	q := m.queues[key]
	if len(q) == 0 {
		return nil, false
	}
	partySize := m.partySizes[key.mode]
	if partySize == 0 {
		partySize = 2
	}

	head := q[0]
	waitS := int64(now.Sub(head.JoinedAt).Seconds())
	tol := m.SkillTolerance(waitS)

	party := []*Entry{head}
	accept := func(cand *Entry) {
		if len(party) == partySize {
			return
		}
		// Every gate holds between all pairs of party members, not just
		// against the head.
		for _, member := range party {
			if abs(member.Rating-cand.Rating) > tol {
				return
			}
			if abs(member.LatencyMs-cand.LatencyMs) > m.cfg.LatencyTolMs {
				return
			}
			if !RegionsCompatible(member.Region, cand.Region) {
				return
			}
		}
		party = append(party, cand)
	}

	for _, cand := range q[1:] {
		accept(cand)
	}
	// Fall back to policy-compatible region queues of the same mode when
	// the home queue cannot fill the party.
	if len(party) < partySize {
		for otherKey, otherQ := range m.queues {
			if otherKey == key || otherKey.mode != key.mode {
				continue
			}
			if !RegionsCompatible(head.Region, otherKey.region) {
				continue
			}
			for _, cand := range otherQ {
				accept(cand)
			}
		}
	}
	if len(party) < partySize {
		return nil, false
	}

	out := make([]Entry, 0, partySize)
	for _, e := range party {
		out = append(out, *e)
		m.removeLocked(e.PlayerID)
	}
	return out, true
}

// requeueHead returns failed-match players to the front of their own
// (mode, region) queue. A cross-region fallback party spans queues, so
// the key comes from each entry, not from the head's queue.
func (m *Matchmaker) requeueHead(players []Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	// Reinsert in reverse so the original head ends up first again
	for i := len(players) - 1; i >= 0; i-- {
		e := players[i]
		if _, dup := m.queued[e.PlayerID]; dup {
			continue
		}
		key := queueKey{mode: e.Mode, region: e.Region}
		cp := e
		m.queues[key] = append([]*Entry{&cp}, m.queues[key]...)
		m.queued[e.PlayerID] = key
	}
}

// expire removes entries that outlived the queue timeout and emits
// queue_expired for each.
func (m *Matchmaker) expire(now time.Time) {
	timeout := time.Duration(m.cfg.QueueTimeoutMs) * time.Millisecond
	if timeout <= 0 {
		return
	}

	var expired []*Entry
	m.mu.Lock()
	for key, q := range m.queues {
		kept := q[:0]
		for _, e := range q {
			if now.Sub(e.JoinedAt) >= timeout {
				expired = append(expired, e)
				delete(m.queued, e.PlayerID)
			} else {
				kept = append(kept, e)
			}
		}
		m.queues[key] = kept
	}
	m.mu.Unlock()

	for _, e := range expired {
		m.emit(Event{
			Kind:    EventQueueExpired,
			Players: []string{e.PlayerID},
			Mode:    e.Mode,
			Region:  e.Region,
		})
	}
}

func (m *Matchmaker) emit(ev Event) {
	select {
	case m.events <- ev:
	default:
		log.Printf("matchmaking: event stream full, dropped %s for %v", ev.Kind, ev.Players)
	}
}

// Ratings exposes the rating table for outcome recording.
func (m *Matchmaker) Ratings() *RatingTable {
	return m.ratings
}

// NextMatchID yields ids for created matches.
var matchSeq struct {
	mu sync.Mutex
	n  uint64
}

// NewMatchID returns a process-unique match id.
func NewMatchID() string {
	matchSeq.mu.Lock()
	defer matchSeq.mu.Unlock()
	matchSeq.n++
	return fmt.Sprintf("match_%d", matchSeq.n)
}

func sortByHeadWait(keys []queueKey, queues map[queueKey][]*Entry) {
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0; j-- {
			if queues[keys[j]][0].JoinedAt.Before(queues[keys[j-1]][0].JoinedAt) {
				keys[j], keys[j-1] = keys[j-1], keys[j]
			} else {
				break
			}
		}
	}
}

func playerIDs(entries []Entry) []string {
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.PlayerID
	}
	return ids
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
