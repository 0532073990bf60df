package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wricardo/morpion/game/board"
	"github.com/wricardo/morpion/game/room"
)

type sent struct {
	ConnID  string
	Event   string
	AckID   int64
	Payload any
}

// recordingSender captures everything the coordinator sends.
type recordingSender struct {
	mu     sync.Mutex
	msgs   []sent
	refuse map[string]bool
}

func newRecordingSender() *recordingSender {
	return &recordingSender{refuse: make(map[string]bool)}
}

func (s *recordingSender) Send(connID, event string, payload any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refuse[connID] {
		return false
	}
	s.msgs = append(s.msgs, sent{ConnID: connID, Event: event, Payload: payload})
	return true
}

func (s *recordingSender) Ack(connID string, ackID int64, payload any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, sent{ConnID: connID, Event: "ack", AckID: ackID, Payload: payload})
	return true
}

func (s *recordingSender) For(connID string) []sent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []sent
	for _, m := range s.msgs {
		if m.ConnID == connID {
			out = append(out, m)
		}
	}
	return out
}

func (s *recordingSender) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = nil
}

type harness struct {
	t      *testing.T
	c      *Coordinator
	sender *recordingSender
	ackSeq int64
}

func startCoordinator(t *testing.T, sinks ...ResultSink) *harness {
	t.Helper()

	sender := newRecordingSender()
	c := New(sender, Config{Logger: zerolog.Nop(), Sinks: sinks})
	c.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(stopped)
	}()
	t.Cleanup(func() {
		cancel()
		<-stopped
	})

	return &harness{t: t, c: c, sender: sender}
}

func (h *harness) submit(connID, event string, data any) int64 {
	h.t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(h.t, err)
	h.ackSeq++
	id := h.ackSeq
	require.NoError(h.t, h.c.Submit(context.Background(), Inbound{ConnID: connID, Event: event, Ack: &id, Data: raw}))
	return id
}

// sync waits until every message queued so far has been handled.
func (h *harness) sync() {
	h.t.Helper()
	_, err := h.c.Stats(context.Background())
	require.NoError(h.t, err)
}

func (h *harness) join(connID, name, roomCode string) {
	h.submit(connID, EventJoinRoom, JoinRequest{Username: name, RoomCode: roomCode})
}

func events(msgs []sent) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Event)
	}
	return out
}

func emptyCells() []board.Mark {
	return make([]board.Mark, board.Size)
}

func TestCoordinator_JoinFirstPlayerWaits(t *testing.T) {
	h := startCoordinator(t)

	id := h.submit("c1", EventJoinRoom, JoinRequest{Username: "alice", RoomCode: "R1"})
	h.sync()

	msgs := h.sender.For("c1")
	require.Len(t, msgs, 1)
	assert.Equal(t, "ack", msgs[0].Event)
	assert.Equal(t, id, msgs[0].AckID)
	assert.Equal(t, JoinAck{Success: true}, msgs[0].Payload)

	info, ok, err := h.c.Room(context.Background(), "R1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, StateWaiting, info.State)
	assert.Equal(t, room.Scores{"alice": 0}, info.Scores)
}

func TestCoordinator_SecondJoinStartsGame(t *testing.T) {
	h := startCoordinator(t)

	h.join("c1", "alice", "R1")
	h.sync()
	h.sender.Reset()

	h.join("c2", "bob", "R1")
	h.sync()

	want := GameReady{FirstPlayer: "alice", SecondPlayer: "bob", Scores: room.Scores{"alice": 0, "bob": 0}}

	alice := h.sender.For("c1")
	require.Len(t, alice, 1)
	assert.Equal(t, EventGameReady, alice[0].Event)
	assert.Equal(t, want, alice[0].Payload)

	bob := h.sender.For("c2")
	assert.Equal(t, []string{EventGameReady, "ack"}, events(bob))
	assert.Equal(t, want, bob[0].Payload)
	assert.Equal(t, JoinAck{
		Success:     true,
		GameReady:   true,
		FirstPlayer: "alice",
		Scores:      room.Scores{"alice": 0, "bob": 0},
	}, bob[1].Payload)
}

func TestCoordinator_ThirdJoinIsRefused(t *testing.T) {
	h := startCoordinator(t)

	h.join("c1", "alice", "R1")
	h.join("c2", "bob", "R1")
	h.sync()
	h.sender.Reset()

	h.join("c3", "carol", "R1")
	h.sync()

	carol := h.sender.For("c3")
	require.Len(t, carol, 1)
	assert.Equal(t, JoinAck{Error: "room is full"}, carol[0].Payload)
	assert.Empty(t, h.sender.For("c1"))
	assert.Empty(t, h.sender.For("c2"))

	info, _, err := h.c.Room(context.Background(), "R1")
	require.NoError(t, err)
	assert.Len(t, info.Players, 2)
	assert.NotContains(t, info.Scores, "carol")
}

func TestCoordinator_MemberRejoinIsAccepted(t *testing.T) {
	h := startCoordinator(t)

	h.join("c1", "alice", "R1")
	h.join("c2", "bob", "R1")
	h.sync()
	h.sender.Reset()

	h.join("c2", "bob", "R1")
	h.sync()

	bob := h.sender.For("c2")
	assert.Equal(t, []string{EventGameReady, "ack"}, events(bob))
	// seat order survives the re-join
	assert.Equal(t, "alice", bob[0].Payload.(GameReady).FirstPlayer)
}

func TestCoordinator_JoinWithoutAckID(t *testing.T) {
	h := startCoordinator(t)

	raw, _ := json.Marshal(JoinRequest{Username: "alice", RoomCode: "R1"})
	require.NoError(t, h.c.Submit(context.Background(), Inbound{ConnID: "c1", Event: EventJoinRoom, Data: raw}))
	h.sync()

	assert.Empty(t, h.sender.For("c1"))
	stats, err := h.c.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Connections)
}

func TestCoordinator_JoinRejectsMissingFields(t *testing.T) {
	h := startCoordinator(t)

	h.submit("c1", EventJoinRoom, JoinRequest{RoomCode: "R1"})
	h.sync()

	msgs := h.sender.For("c1")
	require.Len(t, msgs, 1)
	ack := msgs[0].Payload.(JoinAck)
	assert.False(t, ack.Success)
	assert.NotEmpty(t, ack.Error)

	_, ok, err := h.c.Room(context.Background(), "R1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCoordinator_MoveRelayedToOpponentOnly(t *testing.T) {
	h := startCoordinator(t)

	h.join("c1", "alice", "R1")
	h.join("c2", "bob", "R1")
	h.sync()
	h.sender.Reset()

	cells := emptyCells()
	cells[4] = board.X
	h.submit("c1", EventMakeMove, MoveRequest{Board: cells, NextPlayer: "O", RoomCode: "R1"})
	h.sync()

	assert.Empty(t, h.sender.For("c1"))
	bob := h.sender.For("c2")
	require.Len(t, bob, 1)
	assert.Equal(t, EventOpponentMove, bob[0].Event)

	move := bob[0].Payload.(OpponentMove)
	assert.Equal(t, board.X, move.Board[4])
	assert.Equal(t, board.O, move.NextPlayer)

	info, _, err := h.c.Room(context.Background(), "R1")
	require.NoError(t, err)
	assert.Equal(t, board.O, info.CurrentGame.CurrentPlayer)
	assert.Equal(t, board.X, info.CurrentGame.Board[4])
}

func TestCoordinator_MalformedMoveDropped(t *testing.T) {
	tests := []struct {
		name string
		req  MoveRequest
	}{
		{"short board", MoveRequest{Board: make([]board.Mark, 3), NextPlayer: "O", RoomCode: "R1"}},
		{"bad cell", MoveRequest{Board: append(emptyCells()[:8], board.Mark("Z")), NextPlayer: "O", RoomCode: "R1"}},
		{"bad next player", MoveRequest{Board: emptyCells(), NextPlayer: "Q", RoomCode: "R1"}},
		{"no room", MoveRequest{Board: emptyCells(), NextPlayer: "O"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := startCoordinator(t)
			h.join("c1", "alice", "R1")
			h.join("c2", "bob", "R1")
			h.sync()
			h.sender.Reset()

			h.submit("c1", EventMakeMove, tt.req)
			h.sync()

			assert.Empty(t, h.sender.For("c2"))
		})
	}
}

func TestCoordinator_WinUpdatesScores(t *testing.T) {
	var mu sync.Mutex
	var results []Result
	sink := ResultSinkFunc(func(_ context.Context, r Result) error {
		mu.Lock()
		defer mu.Unlock()
		results = append(results, r)
		return nil
	})

	h := startCoordinator(t, sink)
	h.join("c1", "alice", "R1")
	h.join("c2", "bob", "R1")
	h.sync()
	h.sender.Reset()

	h.submit("c1", EventGameWon, WinRequest{Winner: "alice", WinningCells: []int{0, 1, 2}, RoomCode: "R1"})
	h.sync()

	for _, conn := range []string{"c1", "c2"} {
		msgs := h.sender.For(conn)
		require.Equal(t, []string{EventScoreUpdate, EventGameWon}, events(msgs), conn)
		assert.Equal(t, room.Scores{"alice": 1, "bob": 0}, msgs[0].Payload)
		assert.Equal(t, GameWon{Winner: "alice", WinningCells: []int{0, 1, 2}}, msgs[1].Payload)
	}

	info, _, err := h.c.Room(context.Background(), "R1")
	require.NoError(t, err)
	require.NotNil(t, info.CurrentGame.Winner)
	assert.Equal(t, "alice", *info.CurrentGame.Winner)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(results) == 1
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, ResultWon, results[0].Kind)
	assert.Equal(t, "R1", results[0].RoomCode)
	assert.Equal(t, room.Scores{"alice": 1, "bob": 0}, results[0].Scores)
}

func TestCoordinator_WinsAccumulate(t *testing.T) {
	h := startCoordinator(t)
	h.join("c1", "alice", "R1")
	h.join("c2", "bob", "R1")

	h.submit("c1", EventGameWon, WinRequest{Winner: "alice", RoomCode: "R1"})
	h.submit("c2", EventGameWon, WinRequest{Winner: "bob", RoomCode: "R1"})
	h.submit("c1", EventGameWon, WinRequest{Winner: "alice", RoomCode: "R1"})
	h.sync()

	info, _, err := h.c.Room(context.Background(), "R1")
	require.NoError(t, err)
	assert.Equal(t, room.Scores{"alice": 2, "bob": 1}, info.Scores)
}

func TestCoordinator_WinForUnknownRoomIgnored(t *testing.T) {
	h := startCoordinator(t)
	h.join("c1", "alice", "R1")
	h.sync()
	h.sender.Reset()

	h.submit("c1", EventGameWon, WinRequest{Winner: "alice", RoomCode: "NOPE"})
	h.submit("c1", EventGameWon, WinRequest{RoomCode: "R1"})
	h.sync()

	assert.Empty(t, h.sender.For("c1"))
	_, ok, err := h.c.Room(context.Background(), "NOPE")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCoordinator_ResetKeepsScores(t *testing.T) {
	h := startCoordinator(t)
	h.join("c1", "alice", "R1")
	h.join("c2", "bob", "R1")

	cells := emptyCells()
	cells[0] = board.X
	h.submit("c1", EventMakeMove, MoveRequest{Board: cells, NextPlayer: "O", RoomCode: "R1"})
	h.submit("c1", EventGameWon, WinRequest{Winner: "alice", RoomCode: "R1"})
	h.sync()
	h.sender.Reset()

	winner := "alice"
	h.submit("c2", EventResetGame, ResetRequest{RoomCode: "R1", LastWinner: &winner})
	h.sync()

	for _, conn := range []string{"c1", "c2"} {
		msgs := h.sender.For(conn)
		require.Len(t, msgs, 1, conn)
		reset := msgs[0].Payload.(GameReset)
		assert.Equal(t, board.NewSnapshot(), reset.CurrentGame)
		assert.Equal(t, room.Scores{"alice": 1, "bob": 0}, reset.Scores)
		require.NotNil(t, reset.LastWinner)
		assert.Equal(t, "alice", *reset.LastWinner)
	}

	info, _, err := h.c.Room(context.Background(), "R1")
	require.NoError(t, err)
	assert.Equal(t, board.NewSnapshot(), info.CurrentGame)
}

func TestCoordinator_SnapshotsArePerRoom(t *testing.T) {
	h := startCoordinator(t)
	h.join("c1", "alice", "R1")
	h.join("c2", "bob", "R1")
	h.join("c3", "carol", "R2")
	h.join("c4", "dave", "R2")

	cells := emptyCells()
	cells[8] = board.O
	h.submit("c1", EventMakeMove, MoveRequest{Board: cells, NextPlayer: "X", RoomCode: "R1"})
	h.submit("c3", EventGameWon, WinRequest{Winner: "carol", RoomCode: "R2"})
	h.sync()

	r1, _, err := h.c.Room(context.Background(), "R1")
	require.NoError(t, err)
	r2, _, err := h.c.Room(context.Background(), "R2")
	require.NoError(t, err)

	assert.Equal(t, board.O, r1.CurrentGame.Board[8])
	assert.Nil(t, r1.CurrentGame.Winner)
	assert.Equal(t, board.Empty, r2.CurrentGame.Board[8])
	require.NotNil(t, r2.CurrentGame.Winner)
	assert.Equal(t, room.Scores{"alice": 0, "bob": 0}, r1.Scores)
	assert.Equal(t, room.Scores{"carol": 1, "dave": 0}, r2.Scores)
}

func TestCoordinator_DisconnectNotifiesRemainingPlayer(t *testing.T) {
	h := startCoordinator(t)
	h.join("c1", "alice", "R1")
	h.join("c2", "bob", "R1")
	h.submit("c1", EventGameWon, WinRequest{Winner: "alice", RoomCode: "R1"})
	h.sync()
	h.sender.Reset()

	require.NoError(t, h.c.Disconnect(context.Background(), "c1"))
	h.sync()

	bob := h.sender.For("c2")
	require.Len(t, bob, 1)
	assert.Equal(t, EventPlayerDisconnected, bob[0].Event)

	info, ok, err := h.c.Room(context.Background(), "R1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, StateWaiting, info.State)
	assert.Equal(t, room.Scores{"alice": 1, "bob": 0}, info.Scores)
}

func TestCoordinator_DisconnectLastPlayerDropsBoard(t *testing.T) {
	h := startCoordinator(t)
	h.join("c1", "alice", "R1")
	cells := emptyCells()
	cells[0] = board.X
	h.submit("c1", EventMakeMove, MoveRequest{Board: cells, NextPlayer: "O", RoomCode: "R1"})
	h.sync()

	require.NoError(t, h.c.Disconnect(context.Background(), "c1"))
	require.NoError(t, h.c.Disconnect(context.Background(), "unknown"))
	h.sync()

	info, ok, err := h.c.Room(context.Background(), "R1")
	require.NoError(t, err)
	require.True(t, ok, "scores outlive the players")
	assert.Equal(t, StateEmpty, info.State)
	assert.Empty(t, info.Players)
	assert.Equal(t, board.NewSnapshot(), info.CurrentGame)
}

func TestCoordinator_JoinOtherRoomLeavesPrevious(t *testing.T) {
	h := startCoordinator(t)
	h.join("c1", "alice", "R1")
	h.join("c2", "bob", "R1")
	h.sync()
	h.sender.Reset()

	h.join("c2", "bob", "R2")
	h.sync()

	alice := h.sender.For("c1")
	require.Len(t, alice, 1)
	assert.Equal(t, EventPlayerDisconnected, alice[0].Event)

	rooms, err := h.c.Rooms(context.Background())
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.Equal(t, "R1", rooms[0].Code)
	assert.Len(t, rooms[0].Players, 1)
	assert.Equal(t, "R2", rooms[1].Code)
	assert.Equal(t, []PlayerInfo{{Name: "bob", ConnID: "c2"}}, rooms[1].Players)
}

func TestCoordinator_Stats(t *testing.T) {
	h := startCoordinator(t)
	h.join("c1", "alice", "R1")
	h.join("c2", "bob", "R1")
	h.join("c3", "carol", "R2")

	stats, err := h.c.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{Connections: 3, Rooms: 2, ReadyRooms: 1}, stats)
}

func TestCoordinator_UnknownEventIgnored(t *testing.T) {
	h := startCoordinator(t)
	h.join("c1", "alice", "R1")
	h.sync()
	h.sender.Reset()

	require.NoError(t, h.c.Submit(context.Background(), Inbound{ConnID: "c1", Event: "chat", Data: json.RawMessage(`{}`)}))
	require.NoError(t, h.c.Submit(context.Background(), Inbound{ConnID: "c1", Event: EventMakeMove, Data: json.RawMessage(`not json`)}))
	h.sync()

	assert.Empty(t, h.sender.For("c1"))
}

type panickingSender struct{ *recordingSender }

func (p panickingSender) Send(connID, event string, payload any) bool {
	if event == EventGameReady {
		panic("boom")
	}
	return p.recordingSender.Send(connID, event, payload)
}

func TestCoordinator_RecoversFromPanic(t *testing.T) {
	sender := panickingSender{newRecordingSender()}
	c := New(sender, Config{Logger: zerolog.Nop()})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	for i, name := range []string{"alice", "bob"} {
		raw, _ := json.Marshal(JoinRequest{Username: name, RoomCode: "R1"})
		require.NoError(t, c.Submit(ctx, Inbound{ConnID: name, Event: EventJoinRoom, Data: raw}), i)
	}

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Connections)
}

func TestCoordinator_StoppedRejectsWork(t *testing.T) {
	c := New(newRecordingSender(), Config{Logger: zerolog.Nop()})

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	assert.ErrorIs(t, c.Submit(context.Background(), Inbound{ConnID: "c1"}), ErrStopped)
	assert.ErrorIs(t, c.Disconnect(context.Background(), "c1"), ErrStopped)
	_, err := c.Rooms(context.Background())
	assert.ErrorIs(t, err, ErrStopped)
}

func TestLogSink_Record(t *testing.T) {
	var buf bytes.Buffer
	sink := LogSink{Log: zerolog.New(&buf)}

	err := sink.Record(context.Background(), Result{
		Kind:     ResultWon,
		RoomCode: "R1",
		Winner:   "alice",
		Scores:   room.Scores{"alice": 1},
	})
	require.NoError(t, err)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "won", line["kind"])
	assert.Equal(t, "R1", line["room"])
	assert.Equal(t, "alice", line["winner"])
	assert.Equal(t, "game result", line["message"])
}

func TestCoordinator_UnoccupiedRoomsHoldNoBoard(t *testing.T) {
	h := startCoordinator(t)
	h.join("c1", "alice", "R1")

	cells := emptyCells()
	cells[4] = board.X
	for i := 0; i < 50; i++ {
		code := fmt.Sprintf("ghost-%d", i)
		h.submit("c1", EventMakeMove, MoveRequest{Board: cells, NextPlayer: "O", RoomCode: code})
		h.submit("c1", EventResetGame, ResetRequest{RoomCode: code})
	}
	h.submit("c1", EventMakeMove, MoveRequest{Board: cells, NextPlayer: "O", RoomCode: "R1"})
	h.sync()

	// the sync round trip orders these reads after every handled message
	assert.Len(t, h.c.games, 1)
	assert.Contains(t, h.c.games, "R1")

	rooms, err := h.c.Rooms(context.Background())
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, board.X, rooms[0].CurrentGame.Board[4])

	require.NoError(t, h.c.Disconnect(context.Background(), "c1"))
	h.submit("c2", EventResetGame, ResetRequest{RoomCode: "R1"})
	h.sync()
	assert.Empty(t, h.c.games)
}

func TestCoordinator_ConcurrentConnections(t *testing.T) {
	const (
		conns         = 120
		roomCount     = 6
		winsPerPlayer = 10
	)
	h := startCoordinator(t)
	ctx := context.Background()

	submit := func(connID, event string, data any) {
		raw, err := json.Marshal(data)
		if !assert.NoError(t, err) {
			return
		}
		assert.NoError(t, h.c.Submit(ctx, Inbound{ConnID: connID, Event: event, Data: raw}))
	}
	connName := func(i int) string { return fmt.Sprintf("c%d", i) }
	roomOf := func(i int) string { return fmt.Sprintf("R%d", i%roomCount) }

	// every connection races for a seat while readers inspect the rooms
	var wg sync.WaitGroup
	for i := 0; i < conns; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			submit(connName(i), EventJoinRoom, JoinRequest{Username: fmt.Sprintf("p%d", i), RoomCode: roomOf(i)})
		}(i)
		go func() {
			defer wg.Done()
			rooms, err := h.c.Rooms(ctx)
			if assert.NoError(t, err) {
				for _, r := range rooms {
					assert.LessOrEqual(t, len(r.Players), RoomCapacity, r.Code)
				}
			}
		}()
	}
	wg.Wait()
	h.sync()

	rooms, err := h.c.Rooms(ctx)
	require.NoError(t, err)
	require.Len(t, rooms, roomCount)
	for _, r := range rooms {
		require.Len(t, r.Players, RoomCapacity, r.Code)
	}

	// seated players report wins concurrently
	for _, r := range rooms {
		for _, p := range r.Players {
			wg.Add(1)
			go func(code, name string) {
				defer wg.Done()
				for k := 0; k < winsPerPlayer; k++ {
					submit("observer", EventGameWon, WinRequest{Winner: name, RoomCode: code})
				}
			}(r.Code, p.Name)
		}
	}
	wg.Wait()
	h.sync()

	rooms, err = h.c.Rooms(ctx)
	require.NoError(t, err)
	for _, r := range rooms {
		total := 0
		for _, n := range r.Scores {
			total += n
		}
		assert.Equal(t, RoomCapacity*winsPerPlayer, total, r.Code)
		for _, p := range r.Players {
			assert.Equal(t, winsPerPlayer, r.Scores[p.Name], p.Name)
		}
	}

	// everyone leaves at once, seated or not
	for i := 0; i < conns; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, h.c.Disconnect(ctx, connName(i)))
		}(i)
	}
	wg.Wait()

	stats, err := h.c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{}, stats)
	assert.Empty(t, h.c.games)
}
