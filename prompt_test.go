package companion

import (
	"strings"
	"testing"
	"time"
)

// ══════════════════════════════════════════════
// Prompt assembler
// ══════════════════════════════════════════════

func testWorld() WorldState {
	return BuildWorldState(time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC), nil, "")
}

func TestAssembleDeterministic(t *testing.T) {
	a := NewPromptAssembler(0)
	fused := &FusedContext{
		RecentTurns: []Turn{{Role: RoleUser, Text: "你好"}},
		Facts:       map[string]string{"昵称": "小明", "城市": "上海"},
	}
	mood := MoodSnapshot{Value: 10, Description: "平静"}

	p1 := a.Assemble(DefaultPersona(), testWorld(), fused, mood, "在吗", nil)
	p2 := a.Assemble(DefaultPersona(), testWorld(), fused, mood, "在吗", nil)

	if len(p1.Messages) != len(p2.Messages) {
		t.Fatal("non-deterministic message count")
	}
	for i := range p1.Messages {
		if p1.Messages[i] != p2.Messages[i] {
			t.Fatalf("message %d differs between renders", i)
		}
	}
}

func TestAssembleStructure(t *testing.T) {
	a := NewPromptAssembler(0)
	fused := &FusedContext{
		RecentTurns: []Turn{
			{Role: RoleUser, Text: "昨天的电影真好看"},
			{Role: RoleAssistant, Text: "对吧！"},
		},
		Recalled: []RecalledMemory{{Text: "用户喜欢科幻片", Score: 0.9}},
		Notes:    []Memo{{Content: "周五取快递"}},
		Facts:    map[string]string{"昵称": "阿树"},
	}
	prompt := a.Assemble(DefaultPersona(), testWorld(), fused, MoodSnapshot{Description: "开心"}, "推荐部电影", nil)

	first := prompt.Messages[0]
	if first.Role != "system" || first.Content != DefaultPersona().SystemPrompt {
		t.Fatal("persona must be the first system message")
	}
	last := prompt.Messages[len(prompt.Messages)-1]
	if last.Role != "user" || last.Content != "推荐部电影" {
		t.Fatalf("last message = %+v", last)
	}

	var ctx string
	for _, m := range prompt.Messages {
		if m.Role == "system" && strings.Contains(m.Content, "【现实环境感知】") {
			ctx = m.Content
		}
	}
	for _, want := range []string{"用户喜欢科幻片", "周五取快递", "阿树", "MOOD_CHANGE"} {
		if !strings.Contains(ctx, want) {
			t.Fatalf("system context missing %q", want)
		}
	}
}

func TestAssembleBudgetDropsRecallFirst(t *testing.T) {
	a := NewPromptAssembler(2600)

	fused := &FusedContext{
		RecentTurns: []Turn{{Role: RoleUser, Text: strings.Repeat("聊天内容", 20)}},
		Recalled: []RecalledMemory{
			{Text: strings.Repeat("高分记忆", 100), Score: 0.9},
			{Text: strings.Repeat("低分记忆", 100), Score: 0.5},
		},
		Facts: map[string]string{},
	}
	prompt := a.Assemble(DefaultPersona(), testWorld(), fused, MoodSnapshot{Description: "平静"}, "嗯", nil)

	text := ""
	for _, m := range prompt.Messages {
		text += m.Content
	}
	if strings.Contains(text, "低分记忆") && !strings.Contains(text, "高分记忆") {
		t.Fatal("dropped the higher-relevance memory first")
	}
	// Turns survive while recall is still droppable.
	hasRecall := strings.Contains(text, "高分记忆") || strings.Contains(text, "低分记忆")
	if hasRecall && !strings.Contains(text, "聊天内容") {
		t.Fatal("dropped turns before exhausting recall")
	}
}

func TestAssembleNeverDropsProtectedSections(t *testing.T) {
	a := NewPromptAssembler(10) // absurdly small

	fused := &FusedContext{
		RecentTurns: []Turn{{Role: RoleUser, Text: "旧消息"}},
		Recalled:    []RecalledMemory{{Text: "一条记忆", Score: 0.9}},
		Facts:       map[string]string{},
	}
	prompt := a.Assemble(DefaultPersona(), testWorld(), fused, MoodSnapshot{Description: "平静"}, "当前消息", nil)

	if prompt.Messages[0].Content != DefaultPersona().SystemPrompt {
		t.Fatal("persona dropped under budget pressure")
	}
	last := prompt.Messages[len(prompt.Messages)-1]
	if last.Content != "当前消息" {
		t.Fatal("current message dropped under budget pressure")
	}
}

func TestOrderRecalledTieBreaksNewerFirst(t *testing.T) {
	older := RecalledMemory{Text: "旧", Score: 0.8, CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	newer := RecalledMemory{Text: "新", Score: 0.8, CreatedAt: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)}

	got := orderRecalled([]RecalledMemory{older, newer})
	if got[0].Text != "新" {
		t.Fatalf("tie break order = %v", got)
	}
}
