package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/wricardo/morpion/game/board"
	"github.com/wricardo/morpion/game/room"
)

var (
	ErrStopped   = errors.New("coordinator stopped")
	ErrRoomFull  = errors.New("room is full")
	ErrMalformed = errors.New("malformed event")
)

const (
	defaultMailboxSize  = 1024
	defaultResultBuffer = 256
	sinkTimeout         = 5 * time.Second
)

// Config tunes a Coordinator. Zero values fall back to defaults.
type Config struct {
	MailboxSize  int
	ResultBuffer int
	Logger       zerolog.Logger
	Sinks        []ResultSink
}

type disconnectMsg struct {
	connID string
}

type roomsQuery struct {
	reply chan []RoomInfo
}

type roomQuery struct {
	code  string
	reply chan *RoomInfo
}

type statsQuery struct {
	reply chan Stats
}

// Coordinator serializes all room events through one goroutine.
type Coordinator struct {
	registry *room.Registry
	ledger   *room.Ledger
	games    map[string]*board.Snapshot
	gateway  *Gateway
	sender   Sender
	sinks    []ResultSink

	mailbox chan any
	results chan Result
	done    chan struct{}

	log zerolog.Logger
	now func() time.Time
}

// New creates a coordinator that delivers through sender. Call Run to start
// processing.
func New(sender Sender, cfg Config) *Coordinator {
	if cfg.MailboxSize <= 0 {
		cfg.MailboxSize = defaultMailboxSize
	}
	if cfg.ResultBuffer <= 0 {
		cfg.ResultBuffer = defaultResultBuffer
	}

	registry := room.NewRegistry()
	log := cfg.Logger.With().Str("component", "coordinator").Logger()

	return &Coordinator{
		registry: registry,
		ledger:   room.NewLedger(),
		games:    make(map[string]*board.Snapshot),
		gateway:  NewGateway(registry, sender, log),
		sender:   sender,
		sinks:    cfg.Sinks,
		mailbox:  make(chan any, cfg.MailboxSize),
		results:  make(chan Result, cfg.ResultBuffer),
		done:     make(chan struct{}),
		log:      log,
		now:      time.Now,
	}
}

// Run processes the mailbox until ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context) {
	c.log.Info().Msg("coordinator started")

	sinksDone := make(chan struct{})
	go c.runSinks(sinksDone)

	defer func() {
		close(c.done)
		close(c.results)
		<-sinksDone
		c.log.Info().Msg("coordinator stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-c.mailbox:
			c.dispatch(msg)
		}
	}
}

// Submit enqueues an inbound event. It blocks only while the mailbox is full.
func (c *Coordinator) Submit(ctx context.Context, in Inbound) error {
	return c.enqueue(ctx, in)
}

// Disconnect enqueues the disconnect of connID.
func (c *Coordinator) Disconnect(ctx context.Context, connID string) error {
	return c.enqueue(ctx, disconnectMsg{connID: connID})
}

// Rooms returns a copy of every known room, sorted by code.
func (c *Coordinator) Rooms(ctx context.Context) ([]RoomInfo, error) {
	q := roomsQuery{reply: make(chan []RoomInfo, 1)}
	if err := c.enqueue(ctx, q); err != nil {
		return nil, err
	}
	select {
	case rooms := <-q.reply:
		return rooms, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrStopped
	}
}

// Room returns a copy of one room. The boolean is false when the room has
// neither members nor scores.
func (c *Coordinator) Room(ctx context.Context, code string) (RoomInfo, bool, error) {
	q := roomQuery{code: code, reply: make(chan *RoomInfo, 1)}
	if err := c.enqueue(ctx, q); err != nil {
		return RoomInfo{}, false, err
	}
	select {
	case info := <-q.reply:
		if info == nil {
			return RoomInfo{}, false, nil
		}
		return *info, true, nil
	case <-ctx.Done():
		return RoomInfo{}, false, ctx.Err()
	case <-c.done:
		return RoomInfo{}, false, ErrStopped
	}
}

// Stats returns connection and room counts.
func (c *Coordinator) Stats(ctx context.Context) (Stats, error) {
	q := statsQuery{reply: make(chan Stats, 1)}
	if err := c.enqueue(ctx, q); err != nil {
		return Stats{}, err
	}
	select {
	case s := <-q.reply:
		return s, nil
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	case <-c.done:
		return Stats{}, ErrStopped
	}
}

func (c *Coordinator) enqueue(ctx context.Context, msg any) error {
	select {
	case <-c.done:
		return ErrStopped
	default:
	}

	select {
	case c.mailbox <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrStopped
	}
}

// dispatch handles one mailbox message. A panic in a handler is logged and
// does not stop the loop.
func (c *Coordinator) dispatch(msg any) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error().Interface("panic", r).Msg("event handler panicked")
		}
	}()

	switch m := msg.(type) {
	case Inbound:
		c.handleInbound(m)
	case disconnectMsg:
		c.handleDisconnect(m.connID)
	case roomsQuery:
		m.reply <- c.rooms()
	case roomQuery:
		m.reply <- c.room(m.code)
	case statsQuery:
		m.reply <- c.stats()
	default:
		c.log.Warn().Str("type", fmt.Sprintf("%T", msg)).Msg("unknown mailbox message")
	}
}

func (c *Coordinator) handleInbound(in Inbound) {
	var err error
	switch in.Event {
	case EventJoinRoom:
		err = c.handleJoin(in)
	case EventMakeMove:
		err = c.handleMove(in)
	case EventGameWon:
		err = c.handleWin(in)
	case EventResetGame:
		err = c.handleReset(in)
	default:
		err = fmt.Errorf("%w: unknown event %q", ErrMalformed, in.Event)
	}

	if err != nil {
		c.log.Warn().Err(err).Str("conn", in.ConnID).Str("event", in.Event).Msg("event dropped")
	}
}

func (c *Coordinator) handleJoin(in Inbound) error {
	var req JoinRequest
	if err := json.Unmarshal(in.Data, &req); err != nil {
		c.ack(in, JoinAck{Error: "invalid payload"})
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if req.Username == "" || req.RoomCode == "" {
		c.ack(in, JoinAck{Error: "username and roomCode are required"})
		return fmt.Errorf("%w: missing username or roomCode", ErrMalformed)
	}

	members := c.registry.MembersOf(req.RoomCode)
	seated := false
	for _, m := range members {
		if m.ConnID == in.ConnID {
			seated = true
			break
		}
	}
	if !seated && len(members) >= RoomCapacity {
		c.ack(in, JoinAck{Error: ErrRoomFull.Error()})
		c.log.Info().Str("room", req.RoomCode).Str("conn", in.ConnID).Str("player", req.Username).Msg("join refused, room full")
		return nil
	}

	previous, hadPrevious := c.registry.Get(in.ConnID)

	c.registry.Put(in.ConnID, req.Username, req.RoomCode)
	c.ledger.EnsureRoom(req.RoomCode)
	c.ledger.EnsurePlayer(req.RoomCode, req.Username)

	c.log.Info().Str("room", req.RoomCode).Str("conn", in.ConnID).Str("player", req.Username).Msg("player joined room")

	if hadPrevious && previous.RoomCode != req.RoomCode {
		c.leftRoom(previous.RoomCode)
	}

	members = c.registry.MembersOf(req.RoomCode)
	if len(members) != RoomCapacity {
		c.ack(in, JoinAck{Success: true})
		return nil
	}

	for _, m := range members {
		c.ledger.EnsurePlayer(req.RoomCode, m.Name)
	}
	scores := c.ledger.Snapshot(req.RoomCode)
	first, second := members[0].Name, members[1].Name

	c.gateway.ToRoom(req.RoomCode, EventGameReady, GameReady{
		FirstPlayer:  first,
		SecondPlayer: second,
		Scores:       scores,
	})
	c.ack(in, JoinAck{
		Success:     true,
		GameReady:   true,
		FirstPlayer: first,
		Scores:      scores,
	})
	return nil
}

func (c *Coordinator) handleMove(in Inbound) error {
	var req MoveRequest
	if err := json.Unmarshal(in.Data, &req); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if req.RoomCode == "" {
		return fmt.Errorf("%w: missing roomCode", ErrMalformed)
	}
	b, err := board.FromCells(req.Board)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	next, err := board.ParsePlayer(req.NextPlayer)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if g := c.gameFor(req.RoomCode); g != nil {
		g.Apply(b, next)
	}
	c.gateway.ToRoomExcept(req.RoomCode, in.ConnID, EventOpponentMove, OpponentMove{
		Board:      b,
		NextPlayer: next,
	})

	c.log.Debug().Str("room", req.RoomCode).Str("conn", in.ConnID).Str("next", string(next)).Msg("move relayed")
	return nil
}

func (c *Coordinator) handleWin(in Inbound) error {
	var req WinRequest
	if err := json.Unmarshal(in.Data, &req); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if req.RoomCode == "" || req.Winner == "" {
		return fmt.Errorf("%w: missing winner or roomCode", ErrMalformed)
	}
	if !c.ledger.HasRoom(req.RoomCode) {
		c.log.Debug().Str("room", req.RoomCode).Msg("win for untracked room ignored")
		return nil
	}

	scores := c.ledger.Increment(req.RoomCode, req.Winner)
	if g := c.gameFor(req.RoomCode); g != nil {
		g.SetWinner(req.Winner)
	}

	c.gateway.ToRoom(req.RoomCode, EventScoreUpdate, scores)
	c.gateway.ToRoom(req.RoomCode, EventGameWon, GameWon{
		Winner:       req.Winner,
		WinningCells: req.WinningCells,
	})

	c.log.Info().Str("room", req.RoomCode).Str("winner", req.Winner).Int("score", scores[req.Winner]).Msg("game won")

	c.publish(Result{
		Kind:         ResultWon,
		RoomCode:     req.RoomCode,
		Winner:       req.Winner,
		WinningCells: req.WinningCells,
		Scores:       scores,
		At:           c.now(),
	})
	return nil
}

func (c *Coordinator) handleReset(in Inbound) error {
	var req ResetRequest
	if err := json.Unmarshal(in.Data, &req); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if req.RoomCode == "" {
		return fmt.Errorf("%w: missing roomCode", ErrMalformed)
	}

	scores := c.ledger.Snapshot(req.RoomCode)
	fresh := board.NewSnapshot()
	if len(c.registry.MembersOf(req.RoomCode)) > 0 {
		c.games[req.RoomCode] = &fresh
	} else {
		delete(c.games, req.RoomCode)
	}

	c.gateway.ToRoom(req.RoomCode, EventGameReset, GameReset{
		CurrentGame: fresh,
		LastWinner:  req.LastWinner,
		Scores:      scores,
	})

	c.log.Info().Str("room", req.RoomCode).Msg("game reset")

	c.publish(Result{
		Kind:       ResultReset,
		RoomCode:   req.RoomCode,
		LastWinner: req.LastWinner,
		Scores:     scores,
		At:         c.now(),
	})
	return nil
}

func (c *Coordinator) handleDisconnect(connID string) {
	entry, ok := c.registry.Remove(connID)
	if !ok {
		return
	}
	c.log.Info().Str("room", entry.RoomCode).Str("conn", connID).Str("player", entry.Name).Msg("player disconnected")
	c.leftRoom(entry.RoomCode)
}

// leftRoom notifies a room that lost a member.
func (c *Coordinator) leftRoom(roomCode string) {
	remaining := c.registry.MembersOf(roomCode)
	if len(remaining) < RoomCapacity {
		c.gateway.ToRoom(roomCode, EventPlayerDisconnected, PlayerDisconnected{})
	}
	if len(remaining) == 0 {
		delete(c.games, roomCode)
	}
}

func (c *Coordinator) ack(in Inbound, payload any) {
	if in.Ack == nil {
		return
	}
	if !c.sender.Ack(in.ConnID, *in.Ack, payload) {
		c.log.Warn().Str("conn", in.ConnID).Str("event", in.Event).Msg("dropped ack")
	}
}

// gameFor returns the snapshot of an occupied room, creating it on first use.
// Rooms without members get nil so unknown codes hold no memory.
func (c *Coordinator) gameFor(roomCode string) *board.Snapshot {
	if len(c.registry.MembersOf(roomCode)) == 0 {
		return nil
	}
	g, ok := c.games[roomCode]
	if !ok {
		fresh := board.NewSnapshot()
		g = &fresh
		c.games[roomCode] = g
	}
	return g
}

func (c *Coordinator) room(code string) *RoomInfo {
	members := c.registry.MembersOf(code)
	if len(members) == 0 && !c.ledger.HasRoom(code) {
		return nil
	}

	players := make([]PlayerInfo, 0, len(members))
	for _, m := range members {
		players = append(players, PlayerInfo{Name: m.Name, ConnID: m.ConnID})
	}

	game := board.NewSnapshot()
	if g, ok := c.games[code]; ok {
		game = g.Clone()
	}

	return &RoomInfo{
		Code:        code,
		State:       stateFor(len(members)),
		Players:     players,
		Scores:      c.ledger.Snapshot(code),
		CurrentGame: game,
	}
}

func (c *Coordinator) rooms() []RoomInfo {
	codes := c.ledger.Rooms()
	known := make(map[string]bool, len(codes))
	for _, code := range codes {
		known[code] = true
	}
	for _, code := range c.registry.Rooms() {
		if !known[code] {
			codes = append(codes, code)
		}
	}

	infos := make([]RoomInfo, 0, len(codes))
	for _, code := range codes {
		if info := c.room(code); info != nil {
			infos = append(infos, *info)
		}
	}
	return infos
}

func (c *Coordinator) stats() Stats {
	s := Stats{Connections: c.registry.Len()}
	for _, code := range c.registry.Rooms() {
		s.Rooms++
		if len(c.registry.MembersOf(code)) >= RoomCapacity {
			s.ReadyRooms++
		}
	}
	return s
}
