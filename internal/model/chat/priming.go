package chat

import "strings"

const (
	defaultInstruction    = "Kamu adalah seorang tenaga medis. Tuliskan penyakit yang perlu di diagnosis. Jawaban singkat dan jelas. Tolak pertanyaan selain tentang penyakit"
	defaultAcknowledgment = "Baik! Tuliskan penyakit yang perlu di diagnosis."
)

// Priming is the synthetic user/assistant pair that sets the assistant persona
// before any real input.
type Priming struct {
	Instruction    string `json:"instruction"`
	Acknowledgment string `json:"acknowledgment"`
}

// DefaultPriming returns the medical assistant persona.
func DefaultPriming() Priming {
	return Priming{
		Instruction:    defaultInstruction,
		Acknowledgment: defaultAcknowledgment,
	}
}

// Empty reports whether priming is disabled.
func (p Priming) Empty() bool {
	return strings.TrimSpace(p.Instruction) == "" && strings.TrimSpace(p.Acknowledgment) == ""
}

// Turns returns the pair in transcript order, or nil when priming is disabled.
func (p Priming) Turns() []Turn {
	if p.Empty() {
		return nil
	}
	return []Turn{UserTurn(p.Instruction), AssistantTurn(p.Acknowledgment)}
}
