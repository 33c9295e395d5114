// Package session owns the mutable state of one in-progress conversation and
// the process-wide registry of live conversations. All cross-goroutine
// coordination inside a conversation happens through a Session's methods;
// every method takes the session lock, and no lock is ever held across I/O.
package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/intervox/intervox/pkg/turns"
)

// State is the conversation's position in the turn-taking state machine.
type State int

const (
	// StateAwaitingSpeech: listening, no reply in flight.
	StateAwaitingSpeech State = iota
	// StateGeneratingReply: a reply cycle is running.
	StateGeneratingReply
	// StateSpeaking: a synthesis task is streaming the reply's audio.
	StateSpeaking
	// StateTerminated: terminal, entered exactly once.
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateAwaitingSpeech:
		return "AWAITING_SPEECH"
	case StateGeneratingReply:
		return "GENERATING_REPLY"
	case StateSpeaking:
		return "SPEAKING"
	case StateTerminated:
		return "TERMINATED"
	default:
		return "UNKNOWN"
	}
}

// Config is captured at session start and immutable afterwards.
type Config struct {
	TimeBudget       time.Duration
	SilenceThreshold time.Duration
}

// Session is the state record for one conversation. Created on connection
// accept, destroyed on teardown, owned by a single orchestrator instance.
type Session struct {
	id        string
	startedAt time.Time
	cfg       Config

	mu              sync.Mutex
	state           State
	history         []turns.Turn
	pending         []string
	lastVoice       time.Time
	windowEnd       time.Time
	windowEstimate  time.Duration
	processingReply bool

	// At most one synthesis task; synthDone doubles as the identity token
	// so a stale task cannot clear a successor's handle.
	synthCancel context.CancelFunc
	synthDone   chan struct{}
}

func New(id string, startedAt time.Time, cfg Config) *Session {
	return &Session{
		id:        id,
		startedAt: startedAt,
		cfg:       cfg,
		state:     StateAwaitingSpeech,
	}
}

func (s *Session) ID() string           { return s.id }
func (s *Session) StartedAt() time.Time { return s.startedAt }
func (s *Session) Config() Config       { return s.cfg }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// AppendTurn records a turn in history. History is append-only.
func (s *Session) AppendTurn(t turns.Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, t)
}

// History returns a snapshot of the transcript so far.
func (s *Session) History() []turns.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]turns.Turn, len(s.history))
	copy(out, s.history)
	return out
}

// PushFragment appends a final transcript fragment to the pending buffer.
func (s *Session) PushFragment(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, text)
}

// DrainPending consumes the pending buffer as one atomic step: the joined
// text is returned and the buffer is cleared under the same lock hold, so no
// fragment is ever lost or duplicated across a consume.
func (s *Session) DrainPending() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return ""
	}
	text := strings.TrimSpace(strings.Join(s.pending, " "))
	s.pending = nil
	return text
}

// MarkVoice records the instant of the most recent detected speech.
func (s *Session) MarkVoice(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastVoice = now
}

// ConsumeSilence reports whether uninterrupted quiet since the last detected
// speech has reached the silence threshold. When it fires the voice
// timestamp is cleared so the same silence window cannot trigger twice.
func (s *Session) ConsumeSilence(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastVoice.IsZero() {
		return false
	}
	if now.Sub(s.lastVoice) < s.cfg.SilenceThreshold {
		return false
	}
	s.lastVoice = time.Time{}
	return true
}

// SetSpeechWindow records when the agent's last reply was dispatched and how
// long it is estimated to stay audible.
func (s *Session) SetSpeechWindow(end time.Time, estimate time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.windowEnd = end
	s.windowEstimate = estimate
}

// GateOpen reports whether inbound audio may be forwarded to transcription:
// the agent's speaking window must have elapsed and no synthesis task may be
// active. This keeps the agent's own synthesized speech from being
// re-transcribed as input.
func (s *Session) GateOpen(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.synthCancel != nil {
		return false
	}
	return now.Sub(s.windowEnd) > s.windowEstimate
}

// InSpeakingWindow reports whether now still falls inside the agent's
// speaking window extended by grace.
func (s *Session) InSpeakingWindow(now time.Time, grace time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.windowEnd.IsZero() {
		return false
	}
	return now.Before(s.windowEnd.Add(s.windowEstimate + grace))
}

// BeginReply claims the single reply-generation slot. It fails when a reply
// cycle is already running or the session is terminated.
func (s *Session) BeginReply() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.processingReply || s.state == StateTerminated {
		return false
	}
	s.processingReply = true
	s.state = StateGeneratingReply
	return true
}

// EndReply releases the reply-generation slot. The session returns to
// listening unless it moved on (Speaking, Terminated) in the meantime.
func (s *Session) EndReply() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processingReply = false
	if s.state == StateGeneratingReply {
		s.state = StateAwaitingSpeech
	}
}

// ProcessingReply reports whether a reply cycle is in flight.
func (s *Session) ProcessingReply() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processingReply
}

// BeginSynthesis stores the handle for a new synthesis task. It fails when a
// previous handle has not been cleared yet or the session is terminated, so
// at most one synthesis task is ever active.
func (s *Session) BeginSynthesis(cancel context.CancelFunc, done chan struct{}) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.synthCancel != nil || s.state == StateTerminated {
		return false
	}
	s.synthCancel = cancel
	s.synthDone = done
	s.state = StateSpeaking
	return true
}

// CancelSynthesis detaches the active synthesis handle (barge-in) and
// returns its cancel func for the caller to invoke outside the lock. The
// second return is false when no task was active.
func (s *Session) CancelSynthesis() (context.CancelFunc, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.synthCancel == nil {
		return nil, false
	}
	cancel := s.synthCancel
	s.synthCancel = nil
	s.synthDone = nil
	if s.state == StateSpeaking {
		s.state = StateAwaitingSpeech
	}
	return cancel, true
}

// FinishSynthesis clears the handle when the task identified by done
// completes normally. A task that was already cancelled finds a different
// (or no) handle and leaves it alone.
func (s *Session) FinishSynthesis(done chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.synthDone != done {
		return
	}
	s.synthCancel = nil
	s.synthDone = nil
	if s.state == StateSpeaking {
		s.state = StateAwaitingSpeech
	}
}

// SynthesisActive reports whether a synthesis task holds the slot.
func (s *Session) SynthesisActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.synthCancel != nil
}

// Terminate moves the session to its terminal state. The first call wins and
// receives the active synthesis cancel func (if any) to invoke outside the
// lock; later calls are no-ops.
func (s *Session) Terminate() (cancel context.CancelFunc, first bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateTerminated {
		return nil, false
	}
	s.state = StateTerminated
	cancel = s.synthCancel
	s.synthCancel = nil
	s.synthDone = nil
	return cancel, true
}
