package engine

import (
	"strings"

	"ollamad/pkg/types"
)

const (
	instOpen  = "[INST]"
	instClose = "[/INST]"
	bosText   = "<s>"
	eosText   = "</s>"
)

// RenderChatPrompt renders chat turns with the Llama-2 instruction template.
//
// system, when empty, falls back to the first system message; later system
// messages are ignored. The preamble goes inside the first instruction span:
//
//	<s>[INST] <<SYS>>
//	{system}
//	<</SYS>>
//
//	{user} [/INST] {assistant} </s><s>[INST] {user} [/INST]
func RenderChatPrompt(messages []types.Message, system string) string {
	if system == "" {
		for _, m := range messages {
			if m.Role == types.RoleSystem {
				system = m.Content
				break
			}
		}
	}
	var b strings.Builder
	open := false
	preamble := system != ""
	openSpan := func() {
		b.WriteString(bosText + instOpen + " ")
		if preamble {
			b.WriteString("<<SYS>>\n" + system + "\n<</SYS>>\n\n")
			preamble = false
		}
		open = true
	}
	for _, m := range messages {
		switch m.Role {
		case types.RoleUser:
			if open {
				// consecutive user turns share one span
				b.WriteString("\n")
			} else {
				openSpan()
			}
			b.WriteString(m.Content)
		case types.RoleAssistant:
			if !open {
				openSpan()
			}
			b.WriteString(" " + instClose + " " + m.Content + " " + eosText)
			open = false
		}
	}
	if b.Len() == 0 {
		openSpan()
	}
	out := b.String()
	if !strings.HasSuffix(out, instClose) {
		if open {
			out = strings.TrimRight(out, " ") + " " + instClose
		} else {
			out += bosText + instOpen + " " + instClose
		}
	}
	return out
}

// RenderGeneratePrompt joins the optional system text and the prompt.
func RenderGeneratePrompt(prompt, system string) string {
	if system == "" {
		return prompt
	}
	return system + "\n\n" + prompt
}
