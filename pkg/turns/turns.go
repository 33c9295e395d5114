// Package turns holds the conversation transcript model shared by the
// orchestrator, the answer generator and persistence.
package turns

// Speaker identifies who produced a turn.
type Speaker string

const (
	SpeakerSystem Speaker = "system"
	SpeakerAgent  Speaker = "assistant"
	SpeakerHuman  Speaker = "user"
)

// Turn is one recorded utterance. Turns are append-only: once recorded they
// are never mutated or reordered.
type Turn struct {
	Speaker Speaker
	Text    string
}

func System(text string) Turn { return Turn{Speaker: SpeakerSystem, Text: text} }
func Agent(text string) Turn  { return Turn{Speaker: SpeakerAgent, Text: text} }
func Human(text string) Turn  { return Turn{Speaker: SpeakerHuman, Text: text} }
