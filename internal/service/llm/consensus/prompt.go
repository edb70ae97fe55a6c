package consensus

import (
	"fmt"
	"strings"

	"council/internal/domain/models/llm"
)

const synthesisSystemPrompt = `You merge answers from several AI models into one response for the user.
Write the merged answer directly. Do not mention that you are merging answers unless you are flagging a claim.`

const (
	disagreementInstruction = "- If the models materially disagree, say so explicitly and state each position."
	singleModelInstruction  = "- Keep every claim made by only one model and mark it as lower-confidence (for example \"(reported by one model only)\")."
)

// SynthesisPrompt renders the user message for a synthesis call. Answers must
// already be sorted by model ID so the prompt does not depend on arrival order.
func SynthesisPrompt(question string, answers []llm.ModelRunOutcome) string {
	var sb strings.Builder

	sb.WriteString("The user asked:\n<question>\n")
	sb.WriteString(strings.TrimSpace(question))
	sb.WriteString("\n</question>\n\n")

	fmt.Fprintf(&sb, "%d models answered independently:\n\n", len(answers))
	for _, a := range answers {
		fmt.Fprintf(&sb, "<answer model=%q>\n%s\n</answer>\n\n", a.ModelID, strings.TrimSpace(a.Answer()))
	}

	sb.WriteString("Write a single answer to the question.\n")
	sb.WriteString("- Where the models disagree, prefer the position held by the majority.\n")
	sb.WriteString(disagreementInstruction + "\n")
	sb.WriteString(singleModelInstruction + "\n")
	sb.WriteString("- Do not invent facts that none of the answers contain.\n")

	return sb.String()
}
