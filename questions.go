/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"os"
)

type Question struct {
	ID         int      `json:"id"`
	Topic      string   `json:"topic"`
	Text       string   `json:"text"`
	Options    []string `json:"options"`
	Answer     int      `json:"answer"`
	Difficulty int      `json:"difficulty"`
}

// TimeLimit returns the answer budget in seconds for this question.
// Difficulty 1 = 15s, 2 = 13s, 3 = 11s, floored at 10s.
func (q *Question) TimeLimit() int {
	limit := 17 - 2*q.Difficulty
	if limit < 10 {
		limit = 10
	}
	return limit
}

// QuestionBank indexes the full question set by topic. It is immutable
// once loaded and safe to share between rooms; per-room draw state lives
// in a Deck instead.
type QuestionBank struct {
	byTopic map[string][]*Question
	topics  []string
}

type questionFile struct {
	Questions []*Question `json:"questions"`
}

func LoadQuestions(path string) (*QuestionBank, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading question file: %w", err)
	}

	var qf questionFile
	if err := json.Unmarshal(data, &qf); err != nil {
		return nil, fmt.Errorf("parsing question file: %w", err)
	}
	if len(qf.Questions) == 0 {
		return nil, fmt.Errorf("question file %q contains no questions", path)
	}

	bank := &QuestionBank{
		byTopic: make(map[string][]*Question),
	}

	for i, q := range qf.Questions {
		switch {
		case q.Topic == "":
			return nil, fmt.Errorf("question %d has no topic", i)
		case q.Text == "":
			return nil, fmt.Errorf("question %d has no text", i)
		case len(q.Options) < 2:
			return nil, fmt.Errorf("question %d needs at least two options", i)
		case q.Answer < 0 || q.Answer >= len(q.Options):
			return nil, fmt.Errorf("question %d has an out-of-range answer index: %d", i, q.Answer)
		case q.Difficulty < 1 || q.Difficulty > 3:
			return nil, fmt.Errorf("question %d has an invalid difficulty: %d", i, q.Difficulty)
		}

		if _, ok := bank.byTopic[q.Topic]; !ok {
			bank.topics = append(bank.topics, q.Topic)
		}
		bank.byTopic[q.Topic] = append(bank.byTopic[q.Topic], q)
	}

	return bank, nil
}

// Topics lists every topic in the bank, in file order.
func (b *QuestionBank) Topics() []string {
	out := make([]string, len(b.topics))
	copy(out, b.topics)
	return out
}

func (b *QuestionBank) Size() int {
	total := 0
	for _, pool := range b.byTopic {
		total += len(pool)
	}
	return total
}

// A Deck tracks which questions a single room has already used. Each room
// owns its own Deck, so rooms never contend over draw state and one room
// exhausting a topic never resets another room's pool.
type Deck struct {
	bank *QuestionBank
	rng  *rand.Rand
	used map[*Question]bool
}

func (b *QuestionBank) NewDeck(rng *rand.Rand) *Deck {
	return &Deck{
		bank: b,
		rng:  rng,
		used: make(map[*Question]bool),
	}
}

// Draw picks a uniformly random unused question for the topic, marking it
// used. An exhausted topic is reset and drawn from again, so pools are
// cyclic. Errors only when the topic has no questions defined at all.
func (d *Deck) Draw(topic string) (*Question, error) {
	pool := d.bank.byTopic[topic]
	if len(pool) == 0 {
		return nil, fmt.Errorf("no questions defined for topic %q", topic)
	}

	candidates := make([]*Question, 0, len(pool))
	for _, q := range pool {
		if !d.used[q] {
			candidates = append(candidates, q)
		}
	}

	if len(candidates) == 0 {
		for _, q := range pool {
			delete(d.used, q)
		}
		candidates = append(candidates, pool...)
	}

	q := candidates[d.rng.IntN(len(candidates))]
	d.used[q] = true

	return q, nil
}
