package chat

import (
	"github.com/tiktoken-go/tokenizer"
)

// EstimateTokens counts the tokens a transcript will occupy for the given
// model, falling back to cl100k_base for models the tokenizer does not
// know and to a bytes/4 heuristic when encoding fails. Used for request
// size logging, not billing.
func EstimateTokens(msgs []Message, model string) int {
	codec, err := tokenizer.ForModel(tokenizer.Model(model))
	if err != nil {
		codec, err = tokenizer.Get(tokenizer.Cl100kBase)
		if err != nil {
			return roughEstimate(msgs)
		}
	}

	total := 0
	for _, m := range msgs {
		ids, _, err := codec.Encode(m.Content)
		if err != nil {
			return roughEstimate(msgs)
		}
		// 4 tokens of per-message framing, mirroring the OpenAI cookbook
		total += len(ids) + 4
		for _, c := range m.ToolCalls {
			ids, _, err := codec.Encode(c.Function.Name + c.Function.Arguments)
			if err != nil {
				continue
			}
			total += len(ids)
		}
	}
	return total
}

func roughEstimate(msgs []Message) int {
	n := 0
	for _, m := range msgs {
		n += len(m.Content)
		for _, c := range m.ToolCalls {
			n += len(c.Function.Arguments)
		}
	}
	return n / 4
}
