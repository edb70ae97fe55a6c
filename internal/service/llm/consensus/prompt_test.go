package consensus

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"council/internal/domain/models/llm"
)

func TestSynthesisPrompt(t *testing.T) {
	prompt := SynthesisPrompt("  Which city?  ", []llm.ModelRunOutcome{
		answered("alpha", "Paris"),
		answered("beta", "Lyon, and it has a river"),
	})

	tests := []struct {
		name string
		want string
	}{
		{"question", "<question>\nWhich city?\n</question>"},
		{"answer count", "2 models answered independently"},
		{"first answer", "<answer model=\"alpha\">\nParis\n</answer>"},
		{"second answer", "<answer model=\"beta\">\nLyon, and it has a river\n</answer>"},
		{"flags disagreement", "materially disagree, say so explicitly"},
		{"keeps single-model claims", "Keep every claim made by only one model and mark it as lower-confidence"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, prompt, tt.want)
		})
	}

	assert.NotContains(t, prompt, "only if they are useful")
}
