package state

// Snapshot is the complete authoritative world at the end of one tick. It owns
// copies of every collection and is never mutated after construction.
type Snapshot struct {
	Tick        uint64
	Players     []PlayerView
	Projectiles []Projectile
	Craters     []Crater
}

// Player finds a player view by id.
func (s Snapshot) Player(id string) (PlayerView, bool) {
	for _, player := range s.Players {
		if player.ID == id {
			return player, true
		}
	}
	return PlayerView{}, false
}
