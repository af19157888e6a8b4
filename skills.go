package companion

import (
	"fmt"
	"log"
	"sync"

	lua "github.com/yuin/gopher-lua"
)

// ──────────────────────────────────────────────
// Skills — Lua-scripted prompt augmentations
// ──────────────────────────────────────────────

// A skill is a small Lua script with two functions:
//
//	function match(text)   -- return true when the skill applies
//	function context(text) -- return an extra system-prompt block
//
// Skills let operators teach the companion situational behavior (holiday
// greetings, product knowledge, role events) without recompiling.

// Skill is one loaded script.
type Skill struct {
	Name   string
	Source string
}

// SkillSet evaluates skills against inbound text. Each evaluation runs in a
// fresh Lua state so skills cannot clobber each other's globals; Lua states
// are not goroutine-safe, so evaluation is serialized.
type SkillSet struct {
	mu     sync.Mutex
	skills []Skill
}

// NewSkillSet creates an empty set.
func NewSkillSet() *SkillSet {
	return &SkillSet{}
}

// Load compiles and registers one skill. The script must define match and
// context functions.
func (s *SkillSet) Load(name, source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	probe := lua.NewState()
	defer probe.Close()
	if err := probe.DoString(source); err != nil {
		return fmt.Errorf("skill %s: %w", name, err)
	}
	if probe.GetGlobal("match").Type() != lua.LTFunction {
		return fmt.Errorf("skill %s: missing match function", name)
	}
	if probe.GetGlobal("context").Type() != lua.LTFunction {
		return fmt.Errorf("skill %s: missing context function", name)
	}

	s.skills = append(s.skills, Skill{Name: name, Source: source})
	return nil
}

// Len returns the number of loaded skills.
func (s *SkillSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.skills)
}

// Match evaluates every skill against text and returns the context blocks of
// the ones that apply. A broken skill is skipped and logged, never fatal.
func (s *SkillSet) Match(userID, text string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var blocks []string
	for _, skill := range s.skills {
		block, err := s.evalOne(skill, text)
		if err != nil {
			log.Printf("[SkillSet] skill errored, skipped | name=%s user=%s err=%v", skill.Name, userID, err)
			continue
		}
		if block != "" {
			blocks = append(blocks, block)
		}
	}
	return blocks
}

// evalOne runs one skill in a fresh environment so skills cannot clobber
// each other's globals.
func (s *SkillSet) evalOne(skill Skill, text string) (string, error) {
	vm := lua.NewState()
	defer vm.Close()

	if err := vm.DoString(skill.Source); err != nil {
		return "", err
	}

	if err := vm.CallByParam(lua.P{
		Fn:      vm.GetGlobal("match"),
		NRet:    1,
		Protect: true,
	}, lua.LString(text)); err != nil {
		return "", err
	}
	matched := lua.LVAsBool(vm.Get(-1))
	vm.Pop(1)
	if !matched {
		return "", nil
	}

	if err := vm.CallByParam(lua.P{
		Fn:      vm.GetGlobal("context"),
		NRet:    1,
		Protect: true,
	}, lua.LString(text)); err != nil {
		return "", err
	}
	block := lua.LVAsString(vm.Get(-1))
	vm.Pop(1)
	return block, nil
}
