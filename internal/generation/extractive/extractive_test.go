package extractive

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragcorpus/internal/domain"
)

const contextText = `# Chunk 1 (contract.txt)
The agreement starts on 1 March. Payment is due within 30 days of the invoice.
Late payment incurs a fee of 2 percent.

# Chunk 2 (faq.txt)
Support is available on weekdays.`

func TestGenerate_QuotesMatchingSentences(t *testing.T) {
	g := NewGenerator(2)
	answer, err := g.Generate(context.Background(), domain.Prompt{
		Question: "When is payment due?",
		Context:  contextText,
	})
	require.NoError(t, err)
	assert.Equal(t, "Payment is due within 30 days of the invoice. Late payment incurs a fee of 2 percent.", answer)
	assert.NotContains(t, answer, "# Chunk")
}

func TestGenerate_Insufficient(t *testing.T) {
	g := NewGenerator(0)
	ctx := context.Background()

	tests := []domain.Prompt{
		{Question: "Who won the 1998 world cup?", Context: contextText},
		{Question: "payment", Context: ""},
		{Question: "what is it", Context: contextText},
	}
	for _, p := range tests {
		answer, err := g.Generate(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, domain.InsufficientInformation, answer, p.Question)
	}
}
