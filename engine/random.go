package engine

import (
	crand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
)

// dice is the randomness gate for one action. Every draw first consumes a
// value recorded in the action (replay); only when none is left does it
// draw fresh. Everything consumed or drawn is written to out, which the
// service stores back into the log entry.
type dice struct {
	recorded *Randomness
	out      Randomness
	used     map[string]int
	rng      *rand.Rand
}

func newDice(recorded *Randomness, rng *rand.Rand) *dice {
	return &dice{recorded: recorded, used: make(map[string]int), rng: rng}
}

// roll returns a d6 value for the named use.
func (d *dice) roll(key string) int {
	i := d.used[key]
	d.used[key]++
	var v int
	if d.recorded != nil && i < len(d.recorded.Dice[key]) {
		v = d.recorded.Dice[key][i]
	} else {
		v = d.rng.IntN(6) + 1
	}
	if d.out.Dice == nil {
		d.out.Dice = make(map[string][]int)
	}
	d.out.Dice[key] = append(d.out.Dice[key], v)
	return v
}

// shuffle returns the draw stack for this action: the recorded one when
// replaying, otherwise a fresh permutation of cards.
func (d *dice) shuffle(cards []CardID) []CardID {
	var stack []CardID
	if d.recorded != nil && d.recorded.DrawStack != nil {
		stack = append([]CardID{}, d.recorded.DrawStack...)
	} else {
		stack = append([]CardID{}, cards...)
		d.rng.Shuffle(len(stack), func(i, j int) { stack[i], stack[j] = stack[j], stack[i] })
	}
	d.out.DrawStack = append([]CardID{}, stack...)
	return stack
}

func (d *dice) result() *Randomness {
	if d.out.Empty() {
		return nil
	}
	r := d.out
	return &r
}

// newSeed reads a seed from crypto/rand.
func newSeed() uint64 {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		panic("engine: read random seed: " + err.Error())
	}
	return binary.LittleEndian.Uint64(b[:])
}
