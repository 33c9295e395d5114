package session

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/intervox/intervox/pkg/turns"
)

func testConfig() Config {
	return Config{TimeBudget: 300 * time.Second, SilenceThreshold: 3 * time.Second}
}

func TestDrainPendingJoinsInOrder(t *testing.T) {
	s := New("c1", time.Now(), testConfig())
	s.PushFragment("first part")
	s.PushFragment("second part")
	s.PushFragment("third")

	got := s.DrainPending()
	if got != "first part second part third" {
		t.Fatalf("unexpected drained text: %q", got)
	}
	if s.DrainPending() != "" {
		t.Fatal("buffer must be empty after drain")
	}
}

func TestDrainPendingConcurrentWithPush(t *testing.T) {
	s := New("c1", time.Now(), testConfig())
	const n = 200

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			s.PushFragment("x")
		}
	}()

	var drained []string
	for i := 0; i < 50; i++ {
		if text := s.DrainPending(); text != "" {
			drained = append(drained, text)
		}
	}
	wg.Wait()
	if text := s.DrainPending(); text != "" {
		drained = append(drained, text)
	}

	total := 0
	for _, d := range drained {
		total += len(strings.Fields(d))
	}
	if total != n {
		t.Fatalf("fragments lost or duplicated across drains: got %d, want %d", total, n)
	}
}

func TestConsumeSilence(t *testing.T) {
	base := time.Now()
	s := New("c1", base, testConfig())

	if s.ConsumeSilence(base.Add(10 * time.Second)) {
		t.Fatal("silence must not fire before any voice was detected")
	}

	s.MarkVoice(base)
	if s.ConsumeSilence(base.Add(2 * time.Second)) {
		t.Fatal("silence fired below threshold")
	}
	if !s.ConsumeSilence(base.Add(3 * time.Second)) {
		t.Fatal("silence did not fire at threshold")
	}
	if s.ConsumeSilence(base.Add(10 * time.Second)) {
		t.Fatal("same silence window fired twice")
	}
}

func TestBeginReplySingleSlot(t *testing.T) {
	s := New("c1", time.Now(), testConfig())

	if !s.BeginReply() {
		t.Fatal("first BeginReply must succeed")
	}
	if s.BeginReply() {
		t.Fatal("second BeginReply must fail while a cycle is running")
	}
	if s.State() != StateGeneratingReply {
		t.Fatalf("state = %s, want GENERATING_REPLY", s.State())
	}
	s.EndReply()
	if s.State() != StateAwaitingSpeech {
		t.Fatalf("state = %s, want AWAITING_SPEECH", s.State())
	}
	if !s.BeginReply() {
		t.Fatal("BeginReply must succeed after EndReply")
	}
}

func TestSynthesisHandleOwnership(t *testing.T) {
	s := New("c1", time.Now(), testConfig())

	_, cancel1 := context.WithCancel(context.Background())
	done1 := make(chan struct{})
	if !s.BeginSynthesis(cancel1, done1) {
		t.Fatal("first BeginSynthesis must succeed")
	}
	if s.State() != StateSpeaking {
		t.Fatalf("state = %s, want SPEAKING", s.State())
	}

	_, cancel2 := context.WithCancel(context.Background())
	if s.BeginSynthesis(cancel2, make(chan struct{})) {
		t.Fatal("second BeginSynthesis must fail while handle is held")
	}

	// Barge-in detaches the handle; the stale task's Finish is a no-op.
	if _, ok := s.CancelSynthesis(); !ok {
		t.Fatal("CancelSynthesis must report an active task")
	}
	if s.State() != StateAwaitingSpeech {
		t.Fatalf("state = %s, want AWAITING_SPEECH after barge-in", s.State())
	}

	done3 := make(chan struct{})
	_, cancel3 := context.WithCancel(context.Background())
	if !s.BeginSynthesis(cancel3, done3) {
		t.Fatal("BeginSynthesis must succeed after cancellation cleared the handle")
	}
	s.FinishSynthesis(done1) // stale token
	if !s.SynthesisActive() {
		t.Fatal("stale FinishSynthesis must not clear the successor's handle")
	}
	s.FinishSynthesis(done3)
	if s.SynthesisActive() {
		t.Fatal("FinishSynthesis with the live token must clear the handle")
	}
}

func TestGateOpen(t *testing.T) {
	base := time.Now()
	s := New("c1", base, testConfig())

	// No window yet, no synthesis: open.
	if !s.GateOpen(base) {
		t.Fatal("gate must be open before any reply was dispatched")
	}

	s.SetSpeechWindow(base, 4*time.Second)
	if s.GateOpen(base.Add(2 * time.Second)) {
		t.Fatal("gate must be closed inside the speaking window")
	}
	if !s.GateOpen(base.Add(5 * time.Second)) {
		t.Fatal("gate must reopen after the speaking window")
	}

	_, cancel := context.WithCancel(context.Background())
	s.BeginSynthesis(cancel, make(chan struct{}))
	if s.GateOpen(base.Add(time.Minute)) {
		t.Fatal("gate must be closed while a synthesis task is active")
	}
}

func TestTerminateOnce(t *testing.T) {
	s := New("c1", time.Now(), testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	s.BeginSynthesis(cancel, make(chan struct{}))

	cancelFn, first := s.Terminate()
	if !first {
		t.Fatal("first Terminate must report first=true")
	}
	if cancelFn == nil {
		t.Fatal("Terminate must hand back the active synthesis cancel")
	}
	cancelFn()
	if ctx.Err() == nil {
		t.Fatal("synthesis context must be cancelled")
	}

	if _, again := s.Terminate(); again {
		t.Fatal("second Terminate must be a no-op")
	}
	if s.BeginReply() {
		t.Fatal("no reply cycle may start after termination")
	}
	if s.BeginSynthesis(func() {}, make(chan struct{})) {
		t.Fatal("no synthesis may start after termination")
	}
}

func TestHistoryAppendOnlySnapshot(t *testing.T) {
	s := New("c1", time.Now(), testConfig())
	s.AppendTurn(turns.System("seed"))
	s.AppendTurn(turns.Agent("hello"))

	snap := s.History()
	snap[0] = turns.Human("tampered")
	if got := s.History()[0]; got.Speaker != turns.SpeakerSystem {
		t.Fatalf("history snapshot must be a copy, got %v", got)
	}
}
