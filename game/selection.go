package game

import (
	crand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
)

// NewRand returns a PRNG seeded from crypto/rand. Draws are persisted with
// the game, so reproducibility across processes is not needed; tests pass a
// fixed-seed source instead.
func NewRand() *rand.Rand {
	var b [16]byte
	if _, err := crand.Read(b[:]); err != nil {
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return rand.New(rand.NewPCG(binary.LittleEndian.Uint64(b[:8]), binary.LittleEndian.Uint64(b[8:])))
}

// SelectRandom returns count distinct items from pool in random order. A
// count larger than the pool returns the whole pool, shuffled. pool is not
// modified.
func SelectRandom[T any](rng *rand.Rand, pool []T, count int) []T {
	if count <= 0 || len(pool) == 0 {
		return nil
	}
	out := make([]T, len(pool))
	copy(out, pool)
	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	if count < len(out) {
		out = out[:count]
	}
	return out
}

// SelectReplacement picks one task from pool whose id is not in exclude. With
// avoidBonus set, bonus-tier tasks are skipped as long as a regular task is
// still available. ok is false when nothing is left.
func SelectReplacement(rng *rand.Rand, pool []Task, exclude map[string]bool, avoidBonus bool) (Task, bool) {
	var regular, bonus []Task
	for _, t := range pool {
		if exclude[t.ID] {
			continue
		}
		if t.Bonus {
			bonus = append(bonus, t)
		} else {
			regular = append(regular, t)
		}
	}

	candidates := append(regular, bonus...)
	if avoidBonus && len(regular) > 0 {
		candidates = regular
	}
	if len(candidates) == 0 {
		return Task{}, false
	}
	return candidates[rng.IntN(len(candidates))], true
}

// dealTasks draws count tasks for one player holding at most one bonus-tier
// task. If the pool has too few regular tasks the hand is topped up from
// the remaining bonus tasks.
func dealTasks(rng *rand.Rand, pool []Task, count int) []Task {
	shuffled := SelectRandom(rng, pool, len(pool))
	hand := make([]Task, 0, count)
	var spare []Task
	haveBonus := false
	for _, t := range shuffled {
		if len(hand) == count {
			break
		}
		if t.Bonus {
			if haveBonus {
				spare = append(spare, t)
				continue
			}
			haveBonus = true
		}
		hand = append(hand, t)
	}
	for _, t := range spare {
		if len(hand) == count {
			break
		}
		hand = append(hand, t)
	}
	return hand
}
