package events

import "sort"

// Score is one player's tally.
type Score struct {
	PlayerID string `json:"playerId"`
	Kills    int    `json:"kills"`
	Deaths   int    `json:"deaths"`
}

// Scoreboard is the ranked tally at a tick.
type Scoreboard struct {
	Tick   uint64  `json:"tick"`
	Scores []Score `json:"scores"`
}

func (s *Stream) scoreLocked(id string) *Score {
	score, ok := s.scores[id]
	if !ok {
		score = &Score{PlayerID: id}
		s.scores[id] = score
	}
	return score
}

// Scoreboard ranks players by kills, then fewer deaths, then id.
func (s *Stream) Scoreboard() Scoreboard {
	if s == nil {
		return Scoreboard{Scores: []Score{}}
	}
	s.mu.Lock()
	board := Scoreboard{Tick: s.lastTick, Scores: make([]Score, 0, len(s.scores))}
	for _, score := range s.scores {
		board.Scores = append(board.Scores, *score)
	}
	s.mu.Unlock()
	sort.Slice(board.Scores, func(i, j int) bool {
		a, b := board.Scores[i], board.Scores[j]
		if a.Kills != b.Kills {
			return a.Kills > b.Kills
		}
		if a.Deaths != b.Deaths {
			return a.Deaths < b.Deaths
		}
		return a.PlayerID < b.PlayerID
	})
	return board
}
