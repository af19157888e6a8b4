package companion

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ──────────────────────────────────────────────
// Memos — explicit "记一下" notes with #tags
// ──────────────────────────────────────────────

const memoListKey = "memos"

// Memo is a user-tagged note. Append-only; memos never expire.
type Memo struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Content   string    `json:"content"`
	Tags      []string  `json:"tags,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

var memoTagRE = regexp.MustCompile(`#(\S+)`)

// MemoStore persists memos on the key-ordered backend.
type MemoStore struct {
	store MemoryStore
	now   func() time.Time
}

// NewMemoStore creates a memo store.
func NewMemoStore(store MemoryStore) *MemoStore {
	return &MemoStore{store: store, now: time.Now}
}

// SetClock overrides the time source. Used by tests.
func (m *MemoStore) SetClock(now func() time.Time) { m.now = now }

// Add creates a memo, extracting #tags from the content (tags stay in the
// text — that reads more naturally when the memo is shown back).
func (m *MemoStore) Add(userID, content string) (*Memo, error) {
	memo := &Memo{
		ID:        uuid.NewString(),
		UserID:    userID,
		Content:   strings.TrimSpace(content),
		CreatedAt: m.now(),
	}
	for _, match := range memoTagRE.FindAllStringSubmatch(content, -1) {
		memo.Tags = append(memo.Tags, match[1])
	}
	data, _ := json.Marshal(memo)
	if err := m.store.Append(userID, memoListKey, string(data)); err != nil {
		return nil, err
	}
	return memo, nil
}

// Search returns memos whose content or tags contain the keyword, newest
// first. An empty keyword lists the most recent memos.
func (m *MemoStore) Search(userID, keyword string, limit int) ([]Memo, error) {
	if limit <= 0 {
		limit = 5
	}
	raw, err := m.store.GetList(userID, memoListKey, 0)
	if err != nil {
		return nil, err
	}

	keyword = strings.TrimSpace(keyword)
	var matched []Memo
	for i := len(raw) - 1; i >= 0 && len(matched) < limit; i-- {
		var memo Memo
		if json.Unmarshal([]byte(raw[i]), &memo) != nil {
			continue
		}
		if keyword == "" || memoMatches(&memo, keyword) {
			matched = append(matched, memo)
		}
	}
	return matched, nil
}

func memoMatches(memo *Memo, keyword string) bool {
	if strings.Contains(memo.Content, keyword) {
		return true
	}
	for _, tag := range memo.Tags {
		if strings.EqualFold(tag, keyword) {
			return true
		}
	}
	return false
}

// ─── Command handling ───

var memoSavePrefixes = []string{"记一下", "备忘", "添加笔记", "记笔记", "memo "}
var memoSearchPrefixes = []string{"查询笔记", "搜索笔记", "找一下笔记", "查备忘", "找备忘", "搜备忘"}

func stripAnyPrefix(text string, prefixes []string) (string, bool) {
	for _, p := range prefixes {
		if strings.HasPrefix(text, p) {
			return strings.TrimSpace(text[len(p):]), true
		}
	}
	return "", false
}

// TryHandleMemo attempts to treat the input as a memo command.
// Returns (reply, true) when the command was handled.
func (m *MemoStore) TryHandleMemo(userID, input string) (string, bool) {
	text := strings.TrimSpace(input)
	if text == "" {
		return "", false
	}

	if content, ok := memoSaveContent(text); ok {
		if content == "" {
			return "你要我帮你记什么呀？\n比如：记一下明天要买牛奶", true
		}
		if _, err := m.Add(userID, content); err != nil {
			return "唔…小本本刚刚没写上，你再说一次好不好？", true
		}
		return "好哒，记下来了！", true
	}

	if keyword, ok := stripAnyPrefix(text, memoSearchPrefixes); ok {
		results, err := m.Search(userID, keyword, 5)
		if err != nil || len(results) == 0 {
			if keyword != "" {
				return fmt.Sprintf("我翻了一下小本本，没找到关于“%s”的记录呢。", keyword), true
			}
			return "你的备忘录是空的哦。", true
		}
		return formatMemoResults(results, keyword), true
	}

	return "", false
}

// isMemoCommand reports whether text would be handled, without side effects.
func isMemoCommand(input string) bool {
	text := strings.TrimSpace(input)
	if text == "" {
		return false
	}
	if _, ok := memoSaveContent(text); ok {
		return true
	}
	_, ok := stripAnyPrefix(text, memoSearchPrefixes)
	return ok
}

func memoSaveContent(text string) (string, bool) {
	if content, ok := stripAnyPrefix(text, memoSavePrefixes); ok {
		return content, true
	}
	lower := strings.ToLower(text)
	for _, p := range []string{"memo:", "memo："} {
		if strings.HasPrefix(lower, p) {
			return strings.TrimSpace(text[len(p):]), true
		}
	}
	return "", false
}

func formatMemoResults(results []Memo, keyword string) string {
	lines := make([]string, 0, len(results)+1)
	if keyword != "" {
		lines = append(lines, fmt.Sprintf("找到 %d 条记录：", len(results)))
	} else {
		lines = append(lines, "最近的记录：")
	}
	for _, memo := range results {
		content := memo.Content
		if runes := []rune(content); len(runes) > 30 {
			content = string(runes[:29]) + "…"
		}
		lines = append(lines, fmt.Sprintf("- [%s] %s", memo.CreatedAt.Format("01-02 15:04"), content))
	}
	return strings.Join(lines, "\n")
}
