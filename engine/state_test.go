package engine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEngineState_ForwardOnlyTransitions(t *testing.T) {
	var s engineState
	assert.Equal(t, StateIdle, s.load())

	assert.True(t, s.cas(StateIdle, StateRunning))
	assert.Equal(t, StateRunning, s.load())

	assert.False(t, s.cas(StateIdle, StateDraining), "cannot CAS from a state the cell isn't in")
	assert.True(t, s.cas(StateRunning, StateDraining))
	assert.True(t, s.cas(StateDraining, StateStopped))
}

func TestEngineState_ConcurrentCASOnlyOneWinnerPerTransition(t *testing.T) {
	var s engineState
	s.cas(StateIdle, StateRunning)

	var wg sync.WaitGroup
	wins := make(chan bool, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			wins <- s.cas(StateRunning, StateDraining)
		}()
	}
	wg.Wait()
	close(wins)

	winCount := 0
	for w := range wins {
		if w {
			winCount++
		}
	}
	assert.Equal(t, 1, winCount)
	assert.Equal(t, StateDraining, s.load())
}
