/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seededRNG(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed))
}

func testConfig() *Config {
	return &Config{
		spinDelay:    0,
		startDelay:   0,
		turnDelay:    0,
		timeoutGrace: time.Minute,
	}
}

func newTestClient(id string) *Client {
	return &Client{
		send: make(chan any, 64),
		id:   id,
	}
}

// await drains a client's outbox until a message of type T arrives,
// skipping everything else.
func await[T any](t *testing.T, c *Client) T {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case msg := <-c.send:
			if m, ok := msg.(T); ok {
				return m
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %T", *new(T))
		}
	}
}

// expectNone asserts that no message of type T arrives within the window.
func expectNone[T any](t *testing.T, c *Client) {
	t.Helper()

	deadline := time.After(150 * time.Millisecond)
	for {
		select {
		case msg := <-c.send:
			if m, ok := msg.(T); ok {
				t.Fatalf("unexpected %T: %+v", m, m)
			}
		case <-deadline:
			return
		}
	}
}

// duelBank builds a bank where every question's correct option is index 1,
// so tests control correctness without caring which question was drawn.
func duelBank(t *testing.T) *QuestionBank {
	t.Helper()

	contents := `{"questions": [`
	id := 0
	for _, topic := range []string{"alpha", "beta", "gamma", "delta"} {
		for i := 0; i < 3; i++ {
			if id > 0 {
				contents += ","
			}
			id++
			contents += fmt.Sprintf(
				`{"id": %d, "topic": %q, "text": "q%d?", "options": ["wrong", "right", "also wrong"], "answer": 1, "difficulty": 2}`,
				id, topic, id,
			)
		}
	}
	contents += `]}`

	bank, err := LoadQuestions(writeQuestionFile(t, contents))
	require.NoError(t, err)

	return bank
}

// startDuel seats two configured players and waits the match in.
func startDuel(t *testing.T, seed uint64) (*Room, *Client, *Client) {
	t.Helper()

	return startDuelWith(t, testConfig(), seed)
}

func startDuelWith(t *testing.T, cfg *Config, seed uint64) (*Room, *Client, *Client) {
	t.Helper()

	room, c0, c1 := seatPlayersWith(t, cfg, seed)

	room.configure(c0.id, "ada", "owl", []string{"alpha", "beta"})
	room.configure(c1.id, "bob", "fox", []string{"gamma", "delta"})

	started := await[GameStartedMessage](t, c0)
	require.Equal(t, []string{"alpha", "beta", "gamma", "delta"}, started.TopicsInPlay)

	await[GameStartedMessage](t, c1)
	await[TurnUpdatedMessage](t, c0)
	await[TurnUpdatedMessage](t, c1)

	return room, c0, c1
}

func seatPlayers(t *testing.T, seed uint64) (*Room, *Client, *Client) {
	t.Helper()

	return seatPlayersWith(t, testConfig(), seed)
}

func seatPlayersWith(t *testing.T, cfg *Config, seed uint64) (*Room, *Client, *Client) {
	t.Helper()

	room := newRoom(cfg, duelBank(t), "ABCDEF", "test room", seededRNG(seed))

	c0 := newTestClient("p0")
	c1 := newTestClient("p1")

	slot, err := room.addPlayer(c0)
	require.NoError(t, err)
	require.Equal(t, 0, slot)

	slot, err = room.addPlayer(c1)
	require.NoError(t, err)
	require.Equal(t, 1, slot)

	return room, c0, c1
}

// spinAndShow runs one spin by the active player through to question-shown.
func spinAndShow(t *testing.T, room *Room, active *Client) QuestionShownMessage {
	t.Helper()

	room.spinWheel(active.id)
	await[WheelSpunMessage](t, active)

	return await[QuestionShownMessage](t, active)
}

func TestJoinAndConfigureStartsMatch(t *testing.T) {
	room, c0, c1 := seatPlayers(t, 1)

	if _, err := room.addPlayer(newTestClient("p2")); assert.Error(t, err) {
		assert.ErrorIs(t, err, errRoomFull)
	}

	room.configure(c0.id, "ada", "owl", []string{"alpha", "beta"})
	room.configure(c1.id, "bob", "fox", []string{"gamma", "delta"})

	started := await[GameStartedMessage](t, c0)
	assert.Equal(t, 1, started.Round)
	assert.Equal(t, 0, started.ActivePlayer)
	assert.Equal(t, []string{"alpha", "beta", "gamma", "delta"}, started.TopicsInPlay)

	prompt := await[TurnUpdatedMessage](t, c1)
	assert.Equal(t, 0, prompt.ActivePlayer)
	assert.Equal(t, 1, prompt.Round)

	_, err := room.addPlayer(newTestClient("p3"))
	assert.ErrorIs(t, err, errAlreadyStarted)
}

func TestConfigureUnknownConnectionIsNoOp(t *testing.T) {
	room, _, _ := seatPlayers(t, 1)

	room.configure("ghost", "eve", "bat", []string{"alpha", "beta"})

	room.mu.Lock()
	defer room.mu.Unlock()
	assert.False(t, room.started)
	for _, p := range room.players {
		assert.False(t, p.Ready)
	}
}

func TestWheelSpinAnnouncesConsistentIndex(t *testing.T) {
	room, c0, c1 := startDuel(t, 1)

	room.spinWheel(c0.id)

	spun := await[WheelSpunMessage](t, c1)
	assert.Equal(t, 0, spun.SpinningPlayer)
	require.Less(t, spun.TopicIndex, len(spun.TopicsInPlay))
	assert.Equal(t, spun.TopicsInPlay[spun.TopicIndex], spun.Topic)

	shown := await[QuestionShownMessage](t, c1)
	assert.Equal(t, spun.Topic, shown.Question.Topic)
	assert.Equal(t, 0, shown.ActivePlayer)
	assert.False(t, shown.IsSecondChance)
	assert.Equal(t, 13, shown.Question.TimeLimitSec)
}

func TestCorrectAnswerDamagesOpponent(t *testing.T) {
	room, c0, c1 := startDuel(t, 1)

	spinAndShow(t, room, c0)
	room.answer(c0.id, 1)

	result := await[RoundResultMessage](t, c1)
	assert.True(t, result.Correct)
	assert.Equal(t, 15, result.Damage)
	assert.Equal(t, 100, result.Players[0].Life)
	assert.Equal(t, 85, result.Players[1].Life)
	assert.False(t, result.GameOver)
	assert.Equal(t, 1, result.Round)

	next := await[TurnUpdatedMessage](t, c0)
	assert.Equal(t, 2, next.Round)
	assert.Equal(t, 1, next.ActivePlayer)
}

func TestWrongAnswerDamagesSelf(t *testing.T) {
	room, c0, _ := startDuel(t, 1)

	spinAndShow(t, room, c0)
	room.answer(c0.id, 0)

	result := await[RoundResultMessage](t, c0)
	assert.False(t, result.Correct)
	assert.Equal(t, 8, result.Damage)
	assert.Equal(t, 92, result.Players[0].Life)
	assert.Equal(t, 100, result.Players[1].Life)
}

func TestTimeoutGrantsSecondChance(t *testing.T) {
	room, c0, c1 := startDuel(t, 1)

	shown := spinAndShow(t, room, c0)
	room.timeout(c0.id)

	second := await[SecondChanceMessage](t, c1)
	assert.Equal(t, 5, second.Damage)
	assert.Equal(t, 95, second.Players[0].Life)
	assert.Equal(t, 100, second.Players[1].Life)
	assert.Equal(t, 1, second.NewActivePlayer)
	assert.Equal(t, 0, second.OriginalPlayer)
	assert.Equal(t, shown.Question.ID, second.Question.ID, "second chance must re-use the same question")
}

func TestDoubleTimeoutEndsTurnAtHalfDamage(t *testing.T) {
	room, c0, c1 := startDuel(t, 1)

	spinAndShow(t, room, c0)
	room.timeout(c0.id)
	await[SecondChanceMessage](t, c0)

	room.timeout(c1.id)

	final := await[TimeoutFinalMessage](t, c0)
	assert.Equal(t, 3, final.Damage, "round(5*0.5) rounds half up")
	assert.Equal(t, 95, final.Players[0].Life)
	assert.Equal(t, 97, final.Players[1].Life)
	assert.False(t, final.GameOver)
	assert.Equal(t, 1, final.Round)

	next := await[TurnUpdatedMessage](t, c0)
	assert.Equal(t, 2, next.Round)
	assert.Equal(t, 0, next.ActivePlayer)
}

func TestSecondChanceAnswerAtHalfDamage(t *testing.T) {
	room, c0, c1 := startDuel(t, 1)

	spinAndShow(t, room, c0)
	room.timeout(c0.id)
	await[SecondChanceMessage](t, c1)

	room.answer(c1.id, 1)

	result := await[RoundResultMessage](t, c0)
	assert.True(t, result.Correct)
	assert.True(t, result.IsSecondChance)
	assert.Equal(t, 8, result.Damage, "round(15*0.5) rounds half up")
	assert.Equal(t, 87, result.Players[0].Life, "95 minus the halved hit")
}

func TestGameOverRecordsWinner(t *testing.T) {
	room, c0, c1 := startDuel(t, 1)

	room.mu.Lock()
	room.playerAtLocked(1).Life = 10
	room.mu.Unlock()

	spinAndShow(t, room, c0)
	room.answer(c0.id, 1)

	result := await[RoundResultMessage](t, c1)
	assert.True(t, result.GameOver)
	assert.Equal(t, 0, result.Players[1].Life, "life floors at zero")
	require.NotNil(t, result.Winner)
	assert.Equal(t, "ada", result.Winner.Name)
	assert.Equal(t, 1, result.Round)

	expectNone[TurnUpdatedMessage](t, c0)

	room.spinWheel(c0.id)
	assert.NotEmpty(t, await[ErrorMessage](t, c0).Text)
}

func TestSpinOutOfTurnIsRejected(t *testing.T) {
	room, c0, c1 := startDuel(t, 1)

	room.spinWheel(c1.id)
	assert.NotEmpty(t, await[ErrorMessage](t, c1).Text)
	expectNone[WheelSpunMessage](t, c0)
}

func TestSpinWhileQuestionActiveIsRejected(t *testing.T) {
	room, c0, _ := startDuel(t, 1)

	spinAndShow(t, room, c0)
	room.spinWheel(c0.id)

	assert.NotEmpty(t, await[ErrorMessage](t, c0).Text)

	room.mu.Lock()
	assert.True(t, room.questionActive)
	assert.NotNil(t, room.currentQuestion)
	room.mu.Unlock()
}

func TestSpinDuringTurnGapIsRejected(t *testing.T) {
	cfg := testConfig()
	cfg.turnDelay = 500 * time.Millisecond
	room, c0, c1 := startDuelWith(t, cfg, 1)

	spinAndShow(t, room, c0)
	room.answer(c0.id, 1)
	await[RoundResultMessage](t, c0)

	// The question resolved but the turn flip is still pending; spinning
	// now must not cancel it and hand the same player another go.
	room.spinWheel(c0.id)
	assert.NotEmpty(t, await[ErrorMessage](t, c0).Text)
	expectNone[WheelSpunMessage](t, c1)

	next := await[TurnUpdatedMessage](t, c1)
	assert.Equal(t, 2, next.Round)
	assert.Equal(t, 1, next.ActivePlayer)
}

func TestSpinDuringTimeoutGapIsRejected(t *testing.T) {
	cfg := testConfig()
	cfg.turnDelay = 500 * time.Millisecond
	room, c0, c1 := startDuelWith(t, cfg, 1)

	spinAndShow(t, room, c0)
	room.timeout(c0.id)
	await[SecondChanceMessage](t, c0)
	room.timeout(c1.id)
	await[TimeoutFinalMessage](t, c1)

	room.spinWheel(c1.id)
	assert.NotEmpty(t, await[ErrorMessage](t, c1).Text)
	expectNone[WheelSpunMessage](t, c0)

	next := await[TurnUpdatedMessage](t, c0)
	assert.Equal(t, 2, next.Round)
	assert.Equal(t, 0, next.ActivePlayer)
}

func TestServerClockForcesTimeout(t *testing.T) {
	cfg := testConfig()
	// Pull the 13s question budget down to roughly 100ms so the room's
	// own countdown fires without any client signal.
	cfg.timeoutGrace = 100*time.Millisecond - 13*time.Second
	room, c0, c1 := startDuelWith(t, cfg, 1)

	spinAndShow(t, room, c0)

	second := await[SecondChanceMessage](t, c1)
	assert.Equal(t, 5, second.Damage)
	assert.Equal(t, 1, second.NewActivePlayer)

	final := await[TimeoutFinalMessage](t, c1)
	assert.Equal(t, 3, final.Damage)

	next := await[TurnUpdatedMessage](t, c0)
	assert.Equal(t, 2, next.Round)

	// A tardy client timeout signal after the turn resolved changes nothing.
	room.timeout(c0.id)
	expectNone[TimeoutFinalMessage](t, c0)

	room.mu.Lock()
	assert.Equal(t, 95, room.playerAtLocked(0).Life)
	assert.Equal(t, 97, room.playerAtLocked(1).Life)
	room.mu.Unlock()
}

func TestSpinWithUnstockedTopicStaysIdle(t *testing.T) {
	room, c0, c1 := seatPlayers(t, 1)

	// Topics nobody wrote questions for still pass the shape checks.
	room.configure(c0.id, "ada", "owl", []string{"myths", "legends"})
	room.configure(c1.id, "bob", "fox", []string{"fables", "sagas"})
	await[GameStartedMessage](t, c0)
	await[TurnUpdatedMessage](t, c0)

	room.spinWheel(c0.id)
	assert.Contains(t, await[ErrorMessage](t, c0).Text, "No questions available")
	expectNone[WheelSpunMessage](t, c1)

	room.mu.Lock()
	assert.False(t, room.spinning)
	assert.False(t, room.questionActive)
	assert.Equal(t, -1, room.turnOrigin)
	room.topicsInPlay = []string{"alpha"}
	room.mu.Unlock()

	// The turn is still retryable once a stocked topic is on the wheel.
	shown := spinAndShow(t, room, c0)
	assert.Equal(t, "alpha", shown.Question.Topic)
}

func TestReplayedAnswerIsNoOp(t *testing.T) {
	room, c0, c1 := startDuel(t, 1)

	spinAndShow(t, room, c0)
	room.answer(c0.id, 1)
	await[RoundResultMessage](t, c0)

	room.answer(c0.id, 1)
	expectNone[RoundResultMessage](t, c0)

	room.mu.Lock()
	assert.Equal(t, 85, room.playerAtLocked(1).Life, "no double damage")
	room.mu.Unlock()

	_ = c1
}

func TestAnswerOutOfTurnIsNoOp(t *testing.T) {
	room, c0, c1 := startDuel(t, 1)

	spinAndShow(t, room, c0)
	room.answer(c1.id, 1)

	expectNone[RoundResultMessage](t, c1)

	room.mu.Lock()
	assert.True(t, room.questionActive)
	room.mu.Unlock()

	_ = c0
}

func TestTimeoutOutOfTurnIsNoOp(t *testing.T) {
	room, c0, c1 := startDuel(t, 1)

	spinAndShow(t, room, c0)
	room.timeout(c1.id)

	expectNone[SecondChanceMessage](t, c1)
	expectNone[TimeoutFinalMessage](t, c1)

	_ = c0
}

func TestSeededRoomsReplayIdentically(t *testing.T) {
	for round := 0; round < 3; round++ {
		roomA, a0, _ := startDuel(t, 42)
		roomB, b0, _ := startDuel(t, 42)

		shownA := spinAndShow(t, roomA, a0)
		shownB := spinAndShow(t, roomB, b0)

		assert.Equal(t, shownA.Question.ID, shownB.Question.ID)
		assert.Equal(t, shownA.Question.Topic, shownB.Question.Topic)
	}
}

func TestDisconnectNotifiesRemainingPlayer(t *testing.T) {
	room, c0, c1 := startDuel(t, 1)

	remaining, started := room.removePlayer(c0.id)
	assert.Equal(t, 1, remaining)
	assert.True(t, started)

	left := await[PlayerDisconnectedMessage](t, c1)
	require.Len(t, left.Players, 1)
	assert.Equal(t, 1, left.Players[0].Slot)

	// A lone survivor can no longer advance the match.
	room.spinWheel(c1.id)
	expectNone[WheelSpunMessage](t, c1)
}

func TestCloseCancelsPendingTimers(t *testing.T) {
	room, c0, c1 := seatPlayers(t, 1)

	room.configure(c0.id, "ada", "owl", []string{"alpha", "beta"})
	room.configure(c1.id, "bob", "fox", []string{"gamma", "delta"})
	room.close()

	room.mu.Lock()
	assert.Empty(t, room.timers)
	room.mu.Unlock()
}

func TestLifeStaysWithinBounds(t *testing.T) {
	p := &Player{Life: 4, MaxLife: maxLife}
	p.hit(15)
	assert.Equal(t, 0, p.Life)
}
