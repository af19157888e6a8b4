package companion

import (
	"strings"
	"testing"
)

// ══════════════════════════════════════════════
// Tag parser
// ══════════════════════════════════════════════

func TestParseTagsMoodChange(t *testing.T) {
	display, directives := ParseTags("今天也要加油哦！\n[MOOD_CHANGE:3]")

	if display != "今天也要加油哦！" {
		t.Fatalf("display = %q", display)
	}
	if len(directives) != 1 {
		t.Fatalf("directives = %v", directives)
	}
	if directives[0].Kind != DirectiveMoodDelta || directives[0].MoodDelta != 3 {
		t.Fatalf("directive = %+v", directives[0])
	}
}

func TestParseTagsNegativeMoodAndFullwidthColon(t *testing.T) {
	_, directives := ParseTags("哼。[MOOD_CHANGE：-4]")
	if len(directives) != 1 || directives[0].MoodDelta != -4 {
		t.Fatalf("directives = %+v", directives)
	}
}

func TestParseTagsProfileUpdate(t *testing.T) {
	raw := "记住啦！[UPDATE_PROFILE:生日=3月14日]\n[UPDATE_PROFILE:城市=上海]"
	display, directives := ParseTags(raw)

	if strings.Contains(display, "UPDATE_PROFILE") {
		t.Fatalf("tag leaked into display: %q", display)
	}
	if len(directives) != 2 {
		t.Fatalf("want 2 directives, got %+v", directives)
	}
	if directives[0].Key != "生日" || directives[0].Value != "3月14日" {
		t.Fatalf("directive[0] = %+v", directives[0])
	}
	if directives[1].Key != "城市" || directives[1].Value != "上海" {
		t.Fatalf("directive[1] = %+v", directives[1])
	}
}

func TestParseTagsRemember(t *testing.T) {
	_, directives := ParseTags("好～[REMEMBER:用户喜欢半糖的奶茶]")
	if len(directives) != 1 || directives[0].Kind != DirectiveMemoryCommit {
		t.Fatalf("directives = %+v", directives)
	}
	if directives[0].Text != "用户喜欢半糖的奶茶" {
		t.Fatalf("Text = %q", directives[0].Text)
	}
}

func TestParseTagsMixedOrder(t *testing.T) {
	raw := "[MOOD_CHANGE:2]嗯嗯！[UPDATE_PROFILE:爱好=爬山] 明天见~ [MOOD_CHANGE:-1]"
	display, directives := ParseTags(raw)

	if display != "嗯嗯！ 明天见~" {
		t.Fatalf("display = %q", display)
	}
	// Two mood deltas, in order of appearance.
	var deltas []int
	for _, d := range directives {
		if d.Kind == DirectiveMoodDelta {
			deltas = append(deltas, d.MoodDelta)
		}
	}
	if len(deltas) != 2 || deltas[0] != 2 || deltas[1] != -1 {
		t.Fatalf("deltas = %v", deltas)
	}
}

func TestParseTagsStripsStageDirections(t *testing.T) {
	display, directives := ParseTags("[突然凑近看你] 你在干嘛呀（小声）")
	if len(directives) != 0 {
		t.Fatalf("stage direction parsed as directive: %+v", directives)
	}
	if strings.Contains(display, "[") || strings.Contains(display, "（") {
		t.Fatalf("display = %q", display)
	}
	if display != "你在干嘛呀" {
		t.Fatalf("display = %q", display)
	}
}

func TestParseTagsKeepsLongParentheses(t *testing.T) {
	long := "（" + strings.Repeat("这是一段很长的正文内容", 3) + "）"
	display, _ := ParseTags("看这个：" + long)
	if !strings.Contains(display, "这是一段很长的正文内容") {
		t.Fatalf("long parenthesized content was stripped: %q", display)
	}
}

func TestParseTagsMalformedDropped(t *testing.T) {
	display, directives := ParseTags("嗯[UPDATE_PROFILE:=空键]好的[MOOD_CHANGE:abc]")
	if len(directives) != 0 {
		t.Fatalf("malformed tags produced directives: %+v", directives)
	}
	if strings.Contains(display, "[") {
		t.Fatalf("malformed tag left in display: %q", display)
	}
}

func TestParseTagsIdempotentOnDisplay(t *testing.T) {
	cases := []string{
		"嗯  [突然凑近] 好",
		"[MOOD_CHANGE:2]嗯嗯！[UPDATE_PROFILE:爱好=爬山] 明天见~（小声）",
		"今天也要加油哦！\n[REMEMBER:用户喜欢半糖的奶茶]\n[表情：wink]",
	}
	for _, raw := range cases {
		display, _ := ParseTags(raw)
		again, directives := ParseTags(display)
		if again != display {
			t.Errorf("re-parse changed display text: %q → %q (raw %q)", display, again, raw)
		}
		if len(directives) != 0 {
			t.Errorf("re-parse produced directives %+v (raw %q)", directives, raw)
		}
	}
}

func TestParseTagsTagOnlyResponse(t *testing.T) {
	display, directives := ParseTags("[MOOD_CHANGE:1]")
	if display != "" {
		t.Fatalf("display = %q; want empty", display)
	}
	if len(directives) != 1 {
		t.Fatalf("directives = %+v", directives)
	}
}
