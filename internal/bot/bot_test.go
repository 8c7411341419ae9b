package bot

import (
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/resolvehub/songra/internal/assistant"
	"github.com/resolvehub/songra/internal/notify"
)

// Updates for the same chat are dispatched on separate goroutines, so stage
// reads and writes must be safe to interleave. Run with -race.
func TestChatStateStageConcurrentAccess(t *testing.T) {
	queue := notify.NewQueue(time.Minute)
	cs := &chatState{
		engine: assistant.NewEngine(nil, queue, zap.NewNop()),
		queue:  queue,
		stage:  stageAskPhone,
	}

	stages := []stage{stageAskPhone, stageAskCategory, stageAskProblem, stageConversing}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				cs.setStage(stages[(i+j)%len(stages)])
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = cs.currentStage()
			}
		}()
	}
	wg.Wait()

	got := cs.currentStage()
	valid := false
	for _, s := range stages {
		if got == s {
			valid = true
		}
	}
	if !valid {
		t.Fatalf("stage = %d", got)
	}
}
