package scene

import (
	"sync"

	"github.com/go-gl/mathgl/mgl32"
)

// Action is a movement input, bound to keys by the window.
type Action uint8

const (
	MoveForward Action = iota
	MoveBackward
	MoveLeft
	MoveRight
	MoveUp
	MoveDown
	TurnLeft
	TurnRight
	actionCount
)

// Controls tracks which actions are held. It is written by the window's
// event callbacks and read by the scene update.
type Controls struct {
	mu   sync.Mutex
	held [actionCount]bool
}

func NewControls() *Controls {
	return &Controls{}
}

func (c *Controls) Set(a Action, held bool) {
	if a >= actionCount {
		return
	}
	c.mu.Lock()
	c.held[a] = held
	c.mu.Unlock()
}

func (c *Controls) Held(a Action) bool {
	if a >= actionCount {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.held[a]
}

// Axes returns the movement direction in camera space and the turn
// direction, each component in [-1, 1].
func (c *Controls) Axes() (move mgl32.Vec3, turn float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	axis := func(pos, neg Action) float32 {
		var v float32
		if c.held[pos] {
			v++
		}
		if c.held[neg] {
			v--
		}
		return v
	}
	move = mgl32.Vec3{
		axis(MoveRight, MoveLeft),
		axis(MoveUp, MoveDown),
		axis(MoveForward, MoveBackward),
	}
	return move, axis(TurnLeft, TurnRight)
}
