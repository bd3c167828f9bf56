// Quizduel trivia duel
//
// Two players join a room, each picks a display name, an avatar, and two
// topics. Once both are ready, the match starts with the union of the four
// topics on the wheel. Players alternate turns: the active player spins the
// wheel, gets a random question from the chosen topic, and answers against
// a difficulty-based clock.
//
// Features:
// - One room per match, identified by a 6-char code with server-side collision check
// - Public room listing pushed to every connected client in the lobby
// - Correct answers damage the opponent, wrong answers damage yourself
// - Timing out hands the same question to the opponent once, at half damage ("second chance")
// - The server runs the authoritative question clock; client countdowns are cosmetic
// - A player reaching zero life ends the match, the survivor wins
// - In-browser QR button to share a room code, backed by go-qrcode

package main

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"
)

const (
	maxLife       = 100
	correctDamage = 15
	wrongDamage   = 8
	timeoutDamage = 5
)

// Player holds the data we store server-side for one seat in a room.
type Player struct {
	ID       string
	Slot     int
	Name     string
	Avatar   string
	Topics   []string
	Life     int
	MaxLife  int
	Ready    bool
	JoinedAt time.Time

	client *Client
}

func (p *Player) hit(damage int) {
	p.Life -= damage
	if p.Life < 0 {
		p.Life = 0
	}
}

// Room owns the full state machine of one two-player match. Every
// operation takes r.mu, so room state never sees interleaved mutation;
// separate rooms share nothing mutable and proceed fully in parallel.
type Room struct {
	code      string
	name      string
	createdAt time.Time

	cfg  *Config
	deck *Deck
	rng  *rand.Rand

	mu      sync.Mutex
	players []*Player

	started         bool
	gameOver        bool
	round           int
	active          int
	secondChance    bool
	spinning        bool
	questionActive  bool
	topicsInPlay    []string
	currentTopic    string
	currentQuestion *Question
	turnOrigin      int

	// gen invalidates scheduled callbacks when a superseding transition
	// lands first; closed invalidates everything.
	gen    uint64
	timers map[*time.Timer]struct{}
	closed bool
}

func newRoom(cfg *Config, bank *QuestionBank, code, name string, rng *rand.Rand) *Room {
	return &Room{
		code:       code,
		name:       name,
		createdAt:  time.Now(),
		cfg:        cfg,
		deck:       bank.NewDeck(rng),
		rng:        rng,
		turnOrigin: -1,
		timers:     make(map[*time.Timer]struct{}),
	}
}

// scheduleLocked arms a cancellable delay. The callback runs under r.mu
// and is dropped if the room closed or the turn generation moved on.
func (r *Room) scheduleLocked(d time.Duration, fn func()) {
	gen := r.gen

	var t *time.Timer
	t = time.AfterFunc(d, func() {
		r.mu.Lock()
		defer r.mu.Unlock()

		delete(r.timers, t)
		if r.closed || gen != r.gen {
			return
		}
		fn()
	})
	r.timers[t] = struct{}{}
}

func (r *Room) supersedeLocked() {
	r.gen++
}

// close tears the room down and cancels every pending timer, so no stale
// broadcast can fire into a deleted room.
func (r *Room) close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	r.gen++
	for t := range r.timers {
		t.Stop()
		delete(r.timers, t)
	}
}

func (r *Room) findLocked(connID string) *Player {
	for _, p := range r.players {
		if p.ID == connID {
			return p
		}
	}
	return nil
}

// playerAtLocked resolves a slot number to its player. Slots survive a
// mid-match disconnect, so this never indexes the roster slice directly.
func (r *Room) playerAtLocked(slot int) *Player {
	for _, p := range r.players {
		if p.Slot == slot {
			return p
		}
	}
	return nil
}

func (r *Room) publicPlayersLocked() []PublicPlayer {
	out := make([]PublicPlayer, 0, len(r.players))
	for _, p := range r.players {
		out = append(out, PublicPlayer{
			Slot:     p.Slot,
			Name:     p.Name,
			Avatar:   p.Avatar,
			Topics:   p.Topics,
			Life:     p.Life,
			MaxLife:  p.MaxLife,
			Ready:    p.Ready,
			JoinedAt: p.JoinedAt,
		})
	}
	return out
}

func (r *Room) broadcastLocked(msg any) {
	for _, p := range r.players {
		if p.client != nil {
			p.client.trySend(msg)
		}
	}
}

func (r *Room) sendErrorLocked(p *Player, text string) {
	if p.client != nil {
		p.client.trySend(ErrorMessage{Type: "error-message", Text: text})
	}
}

func (r *Room) summary() RoomSummary {
	r.mu.Lock()
	defer r.mu.Unlock()

	status := "waiting for an opponent"
	if len(r.players) >= 2 {
		status = "full"
	}

	return RoomSummary{
		Code:        r.code,
		Name:        r.name,
		PlayerCount: len(r.players),
		Status:      status,
		Joinable:    len(r.players) < 2 && !r.started,
		CreatedAt:   r.createdAt,
	}
}

func (r *Room) isStarted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started
}

func (r *Room) playerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.players)
}

// addPlayer seats a new connection, slot order following join order.
func (r *Room) addPlayer(c *Client) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.players) >= 2 {
		return 0, errRoomFull
	}
	if r.started {
		return 0, errAlreadyStarted
	}

	slot := len(r.players)
	r.players = append(r.players, &Player{
		ID:       c.id,
		Slot:     slot,
		Topics:   []string{},
		Life:     maxLife,
		MaxLife:  maxLife,
		JoinedAt: time.Now(),
		client:   c,
	})

	logf(r.cfg, "GAMES: Player %s joined room %s as player %d", c.id, r.code, slot+1)

	r.broadcastLocked(RoomUpdatedMessage{
		Type:    "room-updated",
		Players: r.publicPlayersLocked(),
		Started: r.started,
	})

	return slot, nil
}

// configure records a player's profile and readiness. Topic-count
// validation happens at the gateway; unknown connections are a no-op.
func (r *Room) configure(connID, name, avatar string, topics []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.findLocked(connID)
	if p == nil {
		return
	}

	p.Name = name
	p.Avatar = avatar
	p.Topics = topics
	p.Ready = true

	logf(r.cfg, "GAMES: Player %q configured in room %s", p.Name, r.code)

	allReady := len(r.players) == 2
	for _, p := range r.players {
		if !p.Ready {
			allReady = false
		}
	}

	r.broadcastLocked(RoomUpdatedMessage{
		Type:     "room-updated",
		Players:  r.publicPlayersLocked(),
		Started:  r.started,
		AllReady: allReady,
	})

	if allReady && !r.started {
		r.scheduleLocked(r.cfg.startDelay, r.startGameLocked)
	}
}

func (r *Room) startGameLocked() {
	if r.started || len(r.players) != 2 {
		return
	}

	r.started = true
	r.round = 1
	r.active = 0
	r.secondChance = false
	r.spinning = false
	r.questionActive = false
	r.currentTopic = ""
	r.currentQuestion = nil
	r.turnOrigin = -1

	// Union of both players' topics, first appearance wins.
	seen := make(map[string]bool)
	r.topicsInPlay = r.topicsInPlay[:0]
	for _, p := range r.players {
		for _, topic := range p.Topics {
			if !seen[topic] {
				seen[topic] = true
				r.topicsInPlay = append(r.topicsInPlay, topic)
			}
		}
	}

	logf(r.cfg, "GAMES: Match started in room %s with topics %v", r.code, r.topicsInPlay)

	r.broadcastLocked(GameStartedMessage{
		Type:         "game-started",
		Players:      r.publicPlayersLocked(),
		TopicsInPlay: r.topicsInPlay,
		ActivePlayer: r.active,
		Round:        r.round,
	})

	r.scheduleLocked(r.cfg.startDelay, func() {
		first := r.playerAtLocked(r.active)
		if first == nil {
			return
		}
		r.broadcastLocked(TurnUpdatedMessage{
			Type:         "turn-updated",
			ActivePlayer: r.active,
			Players:      r.publicPlayersLocked(),
			Round:        r.round,
			Message:      fmt.Sprintf("%s's turn - spin the wheel!", first.Name),
		})
	})
}

// spinWheel picks a topic and pre-selects its question, then reveals the
// question once the animation window elapses.
func (r *Room) spinWheel(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.findLocked(connID)
	if p == nil {
		return
	}

	if !r.started || r.gameOver || len(r.players) != 2 {
		r.sendErrorLocked(p, "The match is not in progress")
		return
	}
	if p.Slot != r.active {
		r.sendErrorLocked(p, "It is not your turn to spin the wheel")
		return
	}
	if r.spinning {
		r.sendErrorLocked(p, "The wheel is already spinning")
		return
	}
	if r.questionActive {
		r.sendErrorLocked(p, "Answer the current question before spinning again")
		return
	}
	if r.turnOrigin != -1 {
		// The previous question resolved but the turn flip is still
		// pending; a spin here would cancel it and let the same player
		// go again.
		r.sendErrorLocked(p, "Wait for the next turn to begin")
		return
	}

	topicIndex := r.rng.IntN(len(r.topicsInPlay))
	topic := r.topicsInPlay[topicIndex]

	question, err := r.deck.Draw(topic)
	if err != nil {
		// Topic with no questions at all; log and fall back to idle so
		// the turn can be retried instead of wedging the room.
		logf(r.cfg, "GAMES: Room %s cannot serve topic %q: %v", r.code, topic, err)
		r.sendErrorLocked(p, fmt.Sprintf("No questions available for topic %q, spin again", topic))
		return
	}

	r.supersedeLocked()
	r.spinning = true
	r.turnOrigin = r.active
	r.currentTopic = topic
	r.currentQuestion = question

	logf(r.cfg, "GAMES: %q spun %q in room %s", p.Name, topic, r.code)

	r.broadcastLocked(WheelSpunMessage{
		Type:           "wheel-spun",
		Topic:          topic,
		TopicIndex:     topicIndex,
		TopicsInPlay:   r.topicsInPlay,
		SpinningPlayer: p.Slot,
	})

	r.scheduleLocked(r.cfg.spinDelay, r.revealQuestionLocked)
}

func (r *Room) revealQuestionLocked() {
	r.spinning = false
	if r.currentQuestion == nil {
		return
	}
	r.questionActive = true

	r.broadcastLocked(QuestionShownMessage{
		Type:           "question-shown",
		Question:       viewOf(r.currentQuestion),
		ActivePlayer:   r.active,
		IsSecondChance: r.secondChance,
	})

	r.armQuestionClockLocked()
}

// armQuestionClockLocked starts the authoritative server-side countdown.
// The client may report its own timeout earlier; whichever side fires
// first resolves the turn and invalidates the other.
func (r *Room) armQuestionClockLocked() {
	budget := time.Duration(r.currentQuestion.TimeLimit())*time.Second + r.cfg.timeoutGrace
	r.scheduleLocked(budget, func() {
		if !r.questionActive {
			return
		}
		logf(r.cfg, "GAMES: Server-side timeout in room %s, round %d", r.code, r.round)
		r.resolveTimeoutLocked()
	})
}

func (r *Room) damageFactorLocked() float64 {
	if r.secondChance {
		return 0.5
	}
	return 1
}

func scaledDamage(base int, factor float64) int {
	return int(math.Round(float64(base) * factor))
}

func (r *Room) outcomeLocked() (bool, *PublicPlayer) {
	for i, p := range r.players {
		if p.Life == 0 {
			views := r.publicPlayersLocked()
			winner := views[1-i]
			return true, &winner
		}
	}
	return false, nil
}

// answer resolves the active player's choice. Anything out of turn or
// after the question already resolved is a silent no-op, so replayed
// answers can never apply damage twice.
func (r *Room) answer(connID string, choice int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.findLocked(connID)
	if p == nil || len(r.players) != 2 {
		return
	}
	if !r.questionActive || r.currentQuestion == nil {
		return
	}
	if p.Slot != r.active {
		return
	}

	r.supersedeLocked()
	r.questionActive = false

	question := r.currentQuestion
	r.currentQuestion = nil

	correct := choice == question.Answer
	factor := r.damageFactorLocked()

	var damage int
	if correct {
		damage = scaledDamage(correctDamage, factor)
		r.playerAtLocked(1 - p.Slot).hit(damage)
	} else {
		damage = scaledDamage(wrongDamage, factor)
		p.hit(damage)
	}

	logf(r.cfg, "GAMES: %q answered %d (correct: %t, damage: %d) in room %s", p.Name, choice, correct, damage, r.code)

	gameOver, winner := r.outcomeLocked()
	r.gameOver = gameOver

	r.broadcastLocked(RoundResultMessage{
		Type:           "round-result",
		Correct:        correct,
		Damage:         damage,
		Players:        r.publicPlayersLocked(),
		GameOver:       gameOver,
		Winner:         winner,
		Round:          r.round,
		IsSecondChance: r.secondChance,
	})

	if !gameOver {
		r.scheduleLocked(r.cfg.turnDelay, r.nextTurnLocked)
	}
}

// timeout handles the client-reported countdown expiry for the active
// player. Out-of-turn or stale signals are dropped.
func (r *Room) timeout(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.findLocked(connID)
	if p == nil || len(r.players) != 2 {
		return
	}
	if !r.questionActive || r.currentQuestion == nil {
		return
	}
	if p.Slot != r.active {
		return
	}

	logf(r.cfg, "GAMES: %q timed out in room %s", p.Name, r.code)
	r.resolveTimeoutLocked()
}

func (r *Room) resolveTimeoutLocked() {
	current := r.playerAtLocked(r.active)
	if current == nil || len(r.players) != 2 {
		return
	}

	damage := scaledDamage(timeoutDamage, r.damageFactorLocked())
	current.hit(damage)

	if !r.secondChance {
		// First expiry this turn: the same question passes to the other
		// player for one retry, at half damage.
		r.supersedeLocked()
		r.secondChance = true
		r.active = 1 - r.active

		gameOver, winner := r.outcomeLocked()
		if gameOver {
			r.gameOver = gameOver
			r.questionActive = false
			r.currentQuestion = nil
			r.broadcastLocked(TimeoutFinalMessage{
				Type:     "timeout-final",
				Damage:   damage,
				Players:  r.publicPlayersLocked(),
				GameOver: gameOver,
				Winner:   winner,
				Round:    r.round,
			})
			return
		}

		r.broadcastLocked(SecondChanceMessage{
			Type:            "second-chance",
			Damage:          damage,
			Players:         r.publicPlayersLocked(),
			NewActivePlayer: r.active,
			OriginalPlayer:  r.turnOrigin,
			Question:        viewOf(r.currentQuestion),
			Message:         fmt.Sprintf("Second chance for %s", r.playerAtLocked(r.active).Name),
		})

		r.armQuestionClockLocked()
		return
	}

	// Both players let the clock run out; the turn ends.
	r.supersedeLocked()
	r.secondChance = false
	r.questionActive = false
	r.currentQuestion = nil

	gameOver, winner := r.outcomeLocked()
	r.gameOver = gameOver

	r.broadcastLocked(TimeoutFinalMessage{
		Type:     "timeout-final",
		Damage:   damage,
		Players:  r.publicPlayersLocked(),
		GameOver: gameOver,
		Winner:   winner,
		Round:    r.round,
	})

	if !gameOver {
		r.scheduleLocked(r.cfg.turnDelay, r.nextTurnLocked)
	}
}

func (r *Room) nextTurnLocked() {
	if r.gameOver || len(r.players) != 2 {
		return
	}

	r.secondChance = false
	r.active = 1 - r.active
	r.round++
	r.currentQuestion = nil
	r.currentTopic = ""
	r.spinning = false
	r.questionActive = false
	r.turnOrigin = -1

	r.broadcastLocked(TurnUpdatedMessage{
		Type:         "turn-updated",
		ActivePlayer: r.active,
		Players:      r.publicPlayersLocked(),
		Round:        r.round,
		Message:      fmt.Sprintf("Round %d - %s's turn", r.round, r.playerAtLocked(r.active).Name),
	})
}

// removePlayer drops a disconnected player and notifies the remainder.
// The registry decides whether the room survives.
func (r *Room) removePlayer(connID string) (remaining int, started bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	dst := r.players[:0]
	for _, p := range r.players {
		if p.ID == connID {
			logf(r.cfg, "GAMES: %q left room %s", p.Name, r.code)
			continue
		}
		dst = append(dst, p)
	}
	r.players = dst

	r.broadcastLocked(PlayerDisconnectedMessage{
		Type:    "player-disconnected",
		Players: r.publicPlayersLocked(),
	})

	return len(r.players), r.started
}
