package companion

import (
	"log"
	"regexp"
	"strconv"
	"strings"
)

// ──────────────────────────────────────────────
// Response Tag Parser — directives embedded in model output
// ──────────────────────────────────────────────

// DirectiveKind is the closed set of side effects the model may request.
type DirectiveKind string

const (
	DirectiveMoodDelta     DirectiveKind = "mood_delta"
	DirectiveProfileUpdate DirectiveKind = "profile_update"
	DirectiveMemoryCommit  DirectiveKind = "memory_commit"
)

// Directive is one parsed side-effect instruction.
type Directive struct {
	Kind DirectiveKind

	MoodDelta int    // DirectiveMoodDelta
	Key       string // DirectiveProfileUpdate
	Value     string // DirectiveProfileUpdate
	Text      string // DirectiveMemoryCommit
}

var (
	moodTagRE    = regexp.MustCompile(`\[MOOD_CHANGE[:：]\s*(-?\d+)\s*\]`)
	profileTagRE = regexp.MustCompile(`\[UPDATE_PROFILE[:：]\s*([^\]=:：]+?)\s*[=：:]\s*([^\]]+?)\s*\]`)
	rememberRE   = regexp.MustCompile(`\[REMEMBER[:：]\s*([^\]]+?)\s*\]`)

	// Stage directions like [表情：xxx] / [突然弹你脑门] are stripped, not parsed.
	bracketTagRE = regexp.MustCompile(`\[[^\]]*\]`)
	// Short CJK paren asides are stage whispers, not content. Length-capped
	// so real parenthesized content survives.
	parenAsideRE = regexp.MustCompile(`（[^）]{1,20}）`)

	multiSpaceRE = regexp.MustCompile(`[ \t]+`)
)

// ParseTags extracts every recognized directive from raw model output and
// returns the cleaned display text plus the side effects, in order of
// appearance per kind. Unrecognized or malformed bracket tags are stripped
// from the text and dropped (logged, never an error). Zero, one, or many
// directives per response are all fine.
func ParseTags(raw string) (string, []Directive) {
	var directives []Directive

	for _, m := range moodTagRE.FindAllStringSubmatch(raw, -1) {
		delta, err := strconv.Atoi(m[1])
		if err != nil {
			log.Printf("[TagParser] dropped malformed mood tag %q", m[0])
			continue
		}
		directives = append(directives, Directive{Kind: DirectiveMoodDelta, MoodDelta: delta})
	}

	for _, m := range profileTagRE.FindAllStringSubmatch(raw, -1) {
		key, value := strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
		if key == "" || value == "" {
			log.Printf("[TagParser] dropped malformed profile tag %q", m[0])
			continue
		}
		directives = append(directives, Directive{Kind: DirectiveProfileUpdate, Key: key, Value: value})
	}

	for _, m := range rememberRE.FindAllStringSubmatch(raw, -1) {
		text := strings.TrimSpace(m[1])
		if text == "" {
			continue
		}
		directives = append(directives, Directive{Kind: DirectiveMemoryCommit, Text: text})
	}

	cleaned := moodTagRE.ReplaceAllString(raw, "")
	cleaned = profileTagRE.ReplaceAllString(cleaned, "")
	cleaned = rememberRE.ReplaceAllString(cleaned, "")
	cleaned = bracketTagRE.ReplaceAllString(cleaned, "")
	cleaned = parenAsideRE.ReplaceAllString(cleaned, "")

	lines := strings.Split(cleaned, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(multiSpaceRE.ReplaceAllString(line, " "), " ")
	}
	display := strings.TrimSpace(strings.Join(lines, "\n"))

	return display, directives
}
