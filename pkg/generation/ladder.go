package generation

import "strings"

// StructuredOnlyInstruction is appended to a prompt once the backend answered
// with something that could not be parsed.
const StructuredOnlyInstruction = "IMPORTANT: You MUST return ONLY valid JSON. " +
	"No markdown, no code blocks, no explanations. Just the raw JSON object."

// Ladder describes the prompt variants used on consecutive attempts.
// Step 0 is the ordinary prompt, every further step appends its instruction.
type Ladder struct {
	steps []string
}

func DefaultLadder() Ladder {
	return NewLadder(StructuredOnlyInstruction)
}

func NewLadder(instructions ...string) Ladder {
	return Ladder{steps: append([]string{""}, instructions...)}
}

// Steps returns the number of prompt variants.
func (l Ladder) Steps() int {
	return len(l.steps)
}

// Prompt returns the prompt for the given step. Steps beyond the end use the
// last variant.
func (l Ladder) Prompt(base string, step int) string {
	step = min(max(step, 0), len(l.steps)-1)
	if step == 0 {
		return base
	}
	var sb strings.Builder
	sb.WriteString(base)
	for _, s := range l.steps[1 : step+1] {
		sb.WriteString("\n\n")
		sb.WriteString(s)
	}
	return sb.String()
}

// Next returns the step to use after a failed attempt. Only output that could
// not be parsed escalates, transport failures retry the same prompt.
func (l Ladder) Next(step int, parseFailure bool) int {
	if parseFailure {
		return min(step+1, len(l.steps)-1)
	}
	return step
}
