package companion

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

// ──────────────────────────────────────────────
// Prompt Assembler — deterministic rendering with a size budget
// ──────────────────────────────────────────────

// Message is one chat-completion message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// RenderedPrompt is the model-ready request body.
type RenderedPrompt struct {
	Messages []Message
}

// Size returns the total rune count across all messages.
func (p RenderedPrompt) Size() int {
	total := 0
	for _, m := range p.Messages {
		total += utf8.RuneCountInString(m.Content)
	}
	return total
}

// DefaultPromptBudget is the total rune budget for one request.
const DefaultPromptBudget = 6000

// directiveInstructions tells the model how to emit inline directives.
// Kept in one place so the tag parser and the prompt stay in sync.
const directiveInstructions = "【记忆指令】：当用户明确提供长期稳定信息时，回复末尾另起一行输出 " +
	"[UPDATE_PROFILE:键=值]（可多条）。值得长期记住的事可输出 [REMEMBER:内容]。" +
	"每次回复末尾另起一行输出 [MOOD_CHANGE:x]。\n" +
	"【格式要求】：以上标签必须单独占一行，且放在消息最后，不要和正文写在同一行。"

// PromptAssembler renders persona + world + fused memory + mood into a
// model request. Pure and deterministic: identical inputs yield identical
// output, with no hidden randomness.
type PromptAssembler struct {
	BudgetRunes int // total budget; <=0 uses DefaultPromptBudget
}

// NewPromptAssembler creates an assembler with the given budget.
func NewPromptAssembler(budget int) *PromptAssembler {
	if budget <= 0 {
		budget = DefaultPromptBudget
	}
	return &PromptAssembler{BudgetRunes: budget}
}

// Assemble renders the full prompt. When the budget is exceeded it drops
// recalled memories first (lowest relevance first; equal scores drop the
// older record), then the oldest recent turns. The persona, the system
// context, and the current user message are never truncated.
func (a *PromptAssembler) Assemble(persona Persona, world WorldState, fused *FusedContext, mood MoodSnapshot, userText string, extraSystem []string) RenderedPrompt {
	recalled := orderRecalled(fused.Recalled)
	turns := fused.RecentTurns

	for {
		prompt := a.render(persona, world, fused, recalled, turns, mood, userText, extraSystem)
		if prompt.Size() <= a.BudgetRunes {
			return prompt
		}
		if len(recalled) > 0 {
			recalled = recalled[:len(recalled)-1]
			continue
		}
		if len(turns) > 0 {
			turns = turns[1:]
			continue
		}
		// Only the protected sections remain.
		return prompt
	}
}

// orderRecalled sorts best-first; ties keep the newer record first so the
// older one is dropped first under budget pressure.
func orderRecalled(recalled []RecalledMemory) []RecalledMemory {
	out := make([]RecalledMemory, len(recalled))
	copy(out, recalled)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (a *PromptAssembler) render(persona Persona, world WorldState, fused *FusedContext, recalled []RecalledMemory, turns []Turn, mood MoodSnapshot, userText string, extraSystem []string) RenderedPrompt {
	messages := []Message{{Role: "system", Content: persona.SystemPrompt}}

	for _, extra := range extraSystem {
		if extra != "" {
			messages = append(messages, Message{Role: "system", Content: extra})
		}
	}

	var b strings.Builder
	b.WriteString(world.FormatForPrompt())
	b.WriteString("\n")
	fmt.Fprintf(&b, "【当前心情】：%s（心情值:%d）\n", mood.Description, mood.Value)
	if mood.Instruction != "" {
		b.WriteString(mood.Instruction)
		b.WriteString("\n")
	}

	b.WriteString("【你记得的用户信息】：\n")
	b.WriteString(formatFacts(fused.Facts))
	b.WriteString("\n")

	if len(recalled) > 0 {
		b.WriteString("【相关的长期记忆】：\n")
		for _, r := range recalled {
			fmt.Fprintf(&b, "- %s\n", r.Text)
		}
	}
	if len(fused.Notes) > 0 {
		b.WriteString("【用户的备忘】：\n")
		for _, n := range fused.Notes {
			fmt.Fprintf(&b, "- %s\n", n.Content)
		}
	}

	b.WriteString(directiveInstructions)
	messages = append(messages, Message{Role: "system", Content: b.String()})

	for _, t := range turns {
		if t.Role == RoleUser || t.Role == RoleAssistant {
			messages = append(messages, Message{Role: t.Role, Content: t.Text})
		}
	}

	messages = append(messages, Message{Role: "user", Content: userText})
	return RenderedPrompt{Messages: messages}
}

func formatFacts(facts map[string]string) string {
	if len(facts) == 0 {
		return "目前还不了解用户的个人信息。"
	}
	keys := make([]string, 0, len(facts))
	for k := range facts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("- %s: %s", k, facts[k]))
	}
	return strings.Join(lines, "\n")
}
