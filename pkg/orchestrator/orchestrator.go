// Package orchestrator runs the turn-taking state machine for one live
// conversation: it forwards inbound audio to transcription, ingests
// transcript events, decides when the human's turn is over, generates and
// speaks replies, and enforces the wall-clock time budget.
package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/intervox/intervox/pkg/adapters/stt"
	"github.com/intervox/intervox/pkg/adapters/tts"
	"github.com/intervox/intervox/pkg/channel"
	"github.com/intervox/intervox/pkg/errorsx"
	"github.com/intervox/intervox/pkg/llm"
	"github.com/intervox/intervox/pkg/session"
	"github.com/intervox/intervox/pkg/timing"
	"github.com/intervox/intervox/pkg/turns"
)

// Persistence is the transcript sink the orchestrator writes through. All
// calls are fire-and-forget from the conversation's point of view: failures
// are logged and never block turn progress.
type Persistence interface {
	// AppendQuestion records a new agent question.
	AppendQuestion(ctx context.Context, conversationID, text string) error
	// RecordAnswer sets the human's answer on the most recent question.
	RecordAnswer(ctx context.Context, conversationID, text string) error
	// AppendAnswer appends trailing speech to the most recent answer
	// (used when a connection drops mid-turn).
	AppendAnswer(ctx context.Context, conversationID, text string) error
	// MarkConcluded marks the conversation finished.
	MarkConcluded(ctx context.Context, conversationID string) error
}

// Config carries the per-conversation prompts and cadence settings.
type Config struct {
	// SeedPrompt is the single SYSTEM turn recorded first in history.
	SeedPrompt string
	// OpeningLine is the agent's first utterance.
	OpeningLine string
	// OpeningReadingTime is the assumed audibility of the opening line.
	OpeningReadingTime time.Duration

	PollInterval    time.Duration
	PostWindowGrace time.Duration
	ReadingGrace    time.Duration
	TimeoutMargin   time.Duration
	CloseDelay      time.Duration
	SpeechDelay     time.Duration

	FallbackReply     string
	ClosingLine       string
	TimeoutLine       string
	ShortenDirective  string
	ConcludeDirective string
}

func (c *Config) applyDefaults() {
	if c.OpeningReadingTime <= 0 {
		c.OpeningReadingTime = 4 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 500 * time.Millisecond
	}
	if c.PostWindowGrace <= 0 {
		c.PostWindowGrace = time.Second
	}
	if c.ReadingGrace <= 0 {
		c.ReadingGrace = time.Second
	}
	if c.TimeoutMargin <= 0 {
		c.TimeoutMargin = 5 * time.Second
	}
	if c.CloseDelay <= 0 {
		c.CloseDelay = 2 * time.Second
	}
	if c.FallbackReply == "" {
		c.FallbackReply = "Could you repeat that?"
	}
	if c.ClosingLine == "" {
		c.ClosingLine = "Our time is up. Thank you for your responses. I will now end the interview."
	}
	if c.TimeoutLine == "" {
		c.TimeoutLine = "Time is up."
	}
	if c.ShortenDirective == "" {
		c.ShortenDirective = "You have less than 40 seconds remaining. Ask exactly one very short, simple question that can be answered in 20 seconds. Do not conclude yet."
	}
	if c.ConcludeDirective == "" {
		c.ConcludeDirective = "Time is almost up. Conclude the interview now with a closing statement."
	}
}

// Deps bundles the collaborators for one conversation.
type Deps struct {
	Channel     channel.ClientChannel
	Transcriber stt.Transcriber
	Synthesizer tts.Synthesizer
	Generator   llm.Generator
	Persistence Persistence
	// OnConcluded fires once, after the conversation is marked concluded
	// (deferred scoring hook). Best-effort.
	OnConcluded func(conversationID string)
}

// Orchestrator drives one conversation to completion.
type Orchestrator struct {
	sess   *session.Session
	deps   Deps
	policy timing.Policy
	cfg    Config
	logger *slog.Logger

	now func() time.Time

	synthWg       sync.WaitGroup
	concludedOnce sync.Once
}

func New(sess *session.Session, deps Deps, policy timing.Policy, cfg Config, logger *slog.Logger) *Orchestrator {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		sess:   sess,
		deps:   deps,
		policy: policy,
		cfg:    cfg,
		logger: logger.With(slog.String("conversation_id", sess.ID())),
		now:    time.Now,
	}
}

// Run seeds the conversation and drives the three loops until the session
// terminates or the transport drops. It blocks for the conversation's
// lifetime and always performs finalization before returning.
func (o *Orchestrator) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := o.deps.Transcriber.Start(ctx); err != nil {
		o.finalize()
		return errorsx.Wrap(err, errorsx.ReasonSTTConnect)
	}
	defer func() { _ = o.deps.Transcriber.Close() }()

	o.seed(ctx)

	// The channel reader has no context plumbing of its own; closing the
	// channel is what unblocks it once any loop ends the session.
	go func() {
		<-ctx.Done()
		_ = o.deps.Channel.Close()
	}()

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		defer cancel()
		o.forwardAudio(ctx)
	}()
	go func() {
		defer wg.Done()
		defer cancel()
		o.ingestTranscripts(ctx)
	}()
	go func() {
		defer wg.Done()
		defer cancel()
		o.supervise(ctx)
	}()
	wg.Wait()
	cancel()

	o.finalize()
	o.synthWg.Wait()
	return nil
}

// seed records the SYSTEM turn and the opening question, then delivers and
// speaks the opening.
func (o *Orchestrator) seed(ctx context.Context) {
	o.sess.AppendTurn(turns.System(o.cfg.SeedPrompt))
	o.sess.AppendTurn(turns.Agent(o.cfg.OpeningLine))
	if err := o.deps.Persistence.AppendQuestion(ctx, o.sess.ID(), o.cfg.OpeningLine); err != nil {
		o.logger.Warn("persist opening question failed", slog.String("error", err.Error()))
	}
	o.sess.SetSpeechWindow(o.now(), o.cfg.OpeningReadingTime)
	o.send(channel.Message{
		Type:        channel.TypeAIResponse,
		Text:        o.cfg.OpeningLine,
		ReadingTime: o.cfg.OpeningReadingTime.Seconds(),
	})
	o.speak(ctx, o.cfg.OpeningLine, false)
}

// forwardAudio relays binary frames from the client to the transcriber,
// gated so the agent's own synthesized speech is not re-transcribed.
func (o *Orchestrator) forwardAudio(ctx context.Context) {
	for {
		data, err := o.deps.Channel.ReadAudio()
		if err != nil {
			if ctx.Err() == nil {
				o.logger.Debug("client channel closed", slog.String("error", err.Error()))
			}
			return
		}
		if !o.sess.GateOpen(o.now()) {
			continue
		}
		if err := o.deps.Transcriber.SendAudio(data); err != nil {
			o.logger.Warn("audio forward failed",
				slog.String("reason", string(errorsx.Reason(err))),
				slog.String("error", err.Error()))
		}
	}
}

// ingestTranscripts consumes transcription events: any non-empty fragment
// counts as detected voice and preempts an active synthesis task (barge-in);
// final fragments land in the pending buffer.
func (o *Orchestrator) ingestTranscripts(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case res, ok := <-o.deps.Transcriber.Results():
			if !ok {
				return
			}
			if res.Text == "" {
				continue
			}
			o.sess.MarkVoice(o.now())
			if cancelSynth, active := o.sess.CancelSynthesis(); active {
				o.logger.Info("barge-in, cancelling synthesis")
				cancelSynth()
			}
			o.send(channel.Message{Type: channel.TypeSTTPartial, Text: res.Text})
			if res.IsFinal {
				o.sess.PushFragment(res.Text)
				o.send(channel.Message{Type: channel.TypeSTTFinal, Text: res.Text})
			}
		}
	}
}

// supervise polls for silence and enforces the global time budget.
func (o *Orchestrator) supervise(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		now := o.now()
		elapsed := now.Sub(o.sess.StartedAt())
		if elapsed >= o.sess.Config().TimeBudget+o.cfg.TimeoutMargin {
			o.forceTimeout(ctx)
			return
		}

		// The agent speaking (or having just spoken) must not be misread
		// as human silence.
		if o.sess.SynthesisActive() || o.sess.InSpeakingWindow(now, o.cfg.PostWindowGrace) {
			continue
		}
		if o.sess.ConsumeSilence(now) {
			o.replyCycle(ctx)
		}
	}
}

// replyCycle drains the human's turn, applies time-budget escalation,
// generates the next reply, persists and delivers it, and spawns its
// synthesis task. Guarded so at most one cycle runs at a time.
func (o *Orchestrator) replyCycle(ctx context.Context) {
	if !o.sess.BeginReply() {
		return
	}

	now := o.now()
	timeLeft := o.sess.Config().TimeBudget - now.Sub(o.sess.StartedAt())

	human := o.sess.DrainPending()
	if human != "" {
		o.sess.AppendTurn(turns.Human(human))
		if err := o.deps.Persistence.RecordAnswer(ctx, o.sess.ID(), human); err != nil {
			o.logger.Warn("record answer failed", slog.String("error", err.Error()))
		}
	}

	var reply string
	isFinal := false
	band := o.policy.BandFor(timeLeft)

	switch {
	case band == timing.BandHardStop:
		reply = o.cfg.ClosingLine
		isFinal = true
	case human == "" && timeLeft > 0:
		// Nothing to respond to yet.
		o.sess.EndReply()
		return
	default:
		switch band {
		case timing.BandShorten:
			o.sess.AppendTurn(turns.System(o.cfg.ShortenDirective))
		case timing.BandConclude:
			o.sess.AppendTurn(turns.System(o.cfg.ConcludeDirective))
			isFinal = true
		}
		generated, err := o.deps.Generator.Reply(ctx, o.sess.History())
		if err != nil {
			o.logger.Warn("reply generation failed",
				slog.String("reason", string(errorsx.Reason(err))),
				slog.String("error", err.Error()))
			generated = o.cfg.FallbackReply
		}
		reply = generated
	}

	o.sess.AppendTurn(turns.Agent(reply))
	if err := o.deps.Persistence.AppendQuestion(ctx, o.sess.ID(), reply); err != nil {
		o.logger.Warn("persist question failed", slog.String("error", err.Error()))
	}

	if isFinal {
		o.concludePersistence()
	}

	estimate := o.policy.EstimateSpeakingDuration(reply) + o.cfg.ReadingGrace
	o.sess.SetSpeechWindow(o.now(), estimate)

	left := timeLeft.Seconds()
	o.send(channel.Message{
		Type:        channel.TypeAIResponse,
		Text:        reply,
		ReadingTime: estimate.Seconds(),
		IsFinal:     isFinal,
		TimeLeft:    &left,
	})

	o.sess.EndReply()
	o.speak(ctx, reply, isFinal)
}

// speak spawns the single cancellable synthesis task for a reply. For a
// final reply the session is shut down once the audio finishes (or is
// preempted).
func (o *Orchestrator) speak(ctx context.Context, text string, isFinal bool) {
	sctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	if !o.sess.BeginSynthesis(cancel, done) {
		cancel()
		return
	}
	o.synthWg.Add(1)
	go func() {
		defer o.synthWg.Done()
		defer o.sess.FinishSynthesis(done)
		defer close(done)

		if o.cfg.SpeechDelay > 0 {
			select {
			case <-sctx.Done():
			case <-time.After(o.cfg.SpeechDelay):
			}
		}
		o.streamSpeech(sctx, text)

		if isFinal {
			o.shutdown()
		}
	}()
}

// streamSpeech streams one utterance's audio to the client. Cancellation is
// reported as an informational notice, never as an error; the reply text was
// already delivered.
func (o *Orchestrator) streamSpeech(ctx context.Context, text string) {
	chunks, err := o.deps.Synthesizer.Speak(ctx, text)
	if err != nil {
		if ctx.Err() != nil {
			o.send(channel.Message{Type: channel.TypeAudioCancelled})
			return
		}
		o.logger.Warn("synthesis failed",
			slog.String("reason", string(errorsx.Reason(err))),
			slog.String("error", err.Error()))
		o.send(channel.Message{Type: channel.TypeAudioError, Error: "speech synthesis unavailable"})
		return
	}

	sentMeta := false
	for {
		select {
		case <-ctx.Done():
			o.send(channel.Message{Type: channel.TypeAudioCancelled})
			return
		case c, ok := <-chunks:
			if !ok {
				return
			}
			if !sentMeta {
				mime := c.MIME
				if mime == "" {
					mime = "audio/wav"
				}
				o.send(channel.Message{Type: channel.TypeAudioMeta, MIME: mime})
				sentMeta = true
			}
			if err := o.deps.Channel.SendAudio(c.Data); err != nil {
				return
			}
		}
	}
}

// forceTimeout handles the hard end of the time budget. Idempotent: only the
// first trigger terminates the session.
func (o *Orchestrator) forceTimeout(ctx context.Context) {
	cancelSynth, first := o.sess.Terminate()
	if !first {
		return
	}
	if cancelSynth != nil {
		cancelSynth()
	}
	o.logger.Info("time budget exhausted, terminating")
	o.concludePersistence()
	o.send(channel.Message{Type: channel.TypeAIResponse, Text: o.cfg.TimeoutLine, IsFinal: true})
	select {
	case <-ctx.Done():
	case <-time.After(o.cfg.CloseDelay):
	}
	_ = o.deps.Channel.Close()
}

// shutdown ends the session after a final reply was delivered.
func (o *Orchestrator) shutdown() {
	if cancelSynth, first := o.sess.Terminate(); first && cancelSynth != nil {
		cancelSynth()
	}
	_ = o.deps.Channel.Close()
}

// finalize runs the teardown sequence: flush trailing speech into the last
// answer, mark the conversation concluded, trigger deferred scoring. All
// best-effort; the conversation is ending regardless.
func (o *Orchestrator) finalize() {
	if cancelSynth, _ := o.sess.Terminate(); cancelSynth != nil {
		cancelSynth()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if leftover := o.sess.DrainPending(); leftover != "" {
		if err := o.deps.Persistence.AppendAnswer(ctx, o.sess.ID(), leftover); err != nil {
			o.logger.Warn("flush pending answer failed", slog.String("error", err.Error()))
		}
	}
	o.concludePersistence()
}

// concludePersistence marks the conversation concluded and fires the
// deferred scoring hook, exactly once.
func (o *Orchestrator) concludePersistence() {
	o.concludedOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := o.deps.Persistence.MarkConcluded(ctx, o.sess.ID()); err != nil {
			o.logger.Warn("mark concluded failed", slog.String("error", err.Error()))
		}
		if o.deps.OnConcluded != nil {
			o.deps.OnConcluded(o.sess.ID())
		}
	})
}

func (o *Orchestrator) send(msg channel.Message) {
	if err := o.deps.Channel.Send(msg); err != nil {
		o.logger.Debug("send failed",
			slog.String("type", msg.Type),
			slog.String("error", err.Error()))
	}
}
