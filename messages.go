/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import "time"

// Messages coming from clients
type Intent struct {
	Type     string   `json:"type"`                  // "create-room", "join-room", "request-room-list", "configure-player", "spin-wheel", "answer-question", "question-timeout", "get-server-stats"
	RoomName string   `json:"roomName,omitempty"`    // create-room
	RoomCode string   `json:"roomCode,omitempty"`    // create-room (optional explicit code) / join-room
	Name     string   `json:"name,omitempty"`        // configure-player
	Avatar   string   `json:"avatar,omitempty"`      // configure-player
	Topics   []string `json:"topics,omitempty"`      // configure-player
	Choice   *int     `json:"choiceIndex,omitempty"` // answer-question
}

// PublicPlayer is the client-visible view of a player.
type PublicPlayer struct {
	Slot     int       `json:"playerNumber"`
	Name     string    `json:"name"`
	Avatar   string    `json:"avatar"`
	Topics   []string  `json:"topics"`
	Life     int       `json:"life"`
	MaxLife  int       `json:"maxLife"`
	Ready    bool      `json:"ready"`
	JoinedAt time.Time `json:"joinedAt"`
}

// QuestionView is the client-visible view of a question. The correct
// answer index stays server-side; answers are only ever checked here.
type QuestionView struct {
	ID           int      `json:"id"`
	Topic        string   `json:"topic"`
	Text         string   `json:"text"`
	Options      []string `json:"options"`
	Difficulty   int      `json:"difficulty"`
	TimeLimitSec int      `json:"timeLimitSec"`
}

func viewOf(q *Question) QuestionView {
	return QuestionView{
		ID:           q.ID,
		Topic:        q.Topic,
		Text:         q.Text,
		Options:      q.Options,
		Difficulty:   q.Difficulty,
		TimeLimitSec: q.TimeLimit(),
	}
}

// RoomSummary is one entry of the public room listing.
type RoomSummary struct {
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	PlayerCount int       `json:"playerCount"`
	Status      string    `json:"status"`
	Joinable    bool      `json:"joinable"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Messages sent to clients
type RoomListMessage struct {
	Type  string        `json:"type"` // "room-list-updated"
	Rooms []RoomSummary `json:"rooms"`
}

// RoomResultMessage answers both create-room and join-room intents.
type RoomResultMessage struct {
	Type     string `json:"type"` // "room-creation-result" or "room-join-result"
	Success  bool   `json:"success"`
	RoomCode string `json:"roomCode,omitempty"`
	Slot     *int   `json:"slot,omitempty"`
	Error    string `json:"error,omitempty"`
}

type RoomUpdatedMessage struct {
	Type     string         `json:"type"` // "room-updated"
	Players  []PublicPlayer `json:"players"`
	Started  bool           `json:"started"`
	AllReady bool           `json:"allReady"`
}

type GameStartedMessage struct {
	Type         string         `json:"type"` // "game-started"
	Players      []PublicPlayer `json:"players"`
	TopicsInPlay []string       `json:"topicsInPlay"`
	ActivePlayer int            `json:"activePlayer"`
	Round        int            `json:"round"`
}

type TurnUpdatedMessage struct {
	Type         string         `json:"type"` // "turn-updated"
	ActivePlayer int            `json:"activePlayer"`
	Players      []PublicPlayer `json:"players"`
	Round        int            `json:"round"`
	Message      string         `json:"message"`
}

type WheelSpunMessage struct {
	Type           string   `json:"type"` // "wheel-spun"
	Topic          string   `json:"topic"`
	TopicIndex     int      `json:"topicIndex"`
	TopicsInPlay   []string `json:"topicsInPlay"`
	SpinningPlayer int      `json:"spinningPlayer"`
}

type QuestionShownMessage struct {
	Type           string       `json:"type"` // "question-shown"
	Question       QuestionView `json:"question"`
	ActivePlayer   int          `json:"activePlayer"`
	IsSecondChance bool         `json:"isSecondChance"`
}

type SecondChanceMessage struct {
	Type            string         `json:"type"` // "second-chance"
	Damage          int            `json:"damage"`
	Players         []PublicPlayer `json:"players"`
	NewActivePlayer int            `json:"newActivePlayer"`
	OriginalPlayer  int            `json:"originalPlayer"`
	Question        QuestionView   `json:"question"`
	Message         string         `json:"message"`
}

type RoundResultMessage struct {
	Type           string         `json:"type"` // "round-result"
	Correct        bool           `json:"correct"`
	Damage         int            `json:"damage"`
	Players        []PublicPlayer `json:"players"`
	GameOver       bool           `json:"gameOver"`
	Winner         *PublicPlayer  `json:"winner,omitempty"`
	Round          int            `json:"round"`
	IsSecondChance bool           `json:"isSecondChance"`
}

type TimeoutFinalMessage struct {
	Type     string         `json:"type"` // "timeout-final"
	Damage   int            `json:"damage"`
	Players  []PublicPlayer `json:"players"`
	GameOver bool           `json:"gameOver"`
	Winner   *PublicPlayer  `json:"winner,omitempty"`
	Round    int            `json:"round"`
}

type ErrorMessage struct {
	Type string `json:"type"` // "error-message"
	Text string `json:"text"`
}

type PlayerDisconnectedMessage struct {
	Type    string         `json:"type"` // "player-disconnected"
	Players []PublicPlayer `json:"players"`
}

type ServerStatsMessage struct {
	Type         string `json:"type"` // "server-stats"
	TotalRooms   int    `json:"totalRooms"`
	ActiveGames  int    `json:"activeGames"`
	WaitingRooms int    `json:"waitingRooms"`
	TotalPlayers int    `json:"totalPlayers"`
}
