package companion

import (
	"context"
	"log"
)

// ──────────────────────────────────────────────
// Memory Fusion Layer — short-term + recall + notes + facts
// ──────────────────────────────────────────────

// FusedContext is the assembled memory handed to the prompt assembler.
type FusedContext struct {
	RecentTurns []Turn            // oldest first, most-recent-last
	Recalled    []RecalledMemory  // top-K above the relevance floor, best first
	Notes       []Memo            // most recent explicit memos
	Facts       map[string]string // profile facts
}

// FusionConfig tunes recall.
type FusionConfig struct {
	TopK     int     // default 4
	MinScore float32 // relevance floor, default 0.35
	MaxNotes int     // memos injected as explicit notes, default 3
}

// DefaultFusionConfig returns production defaults.
func DefaultFusionConfig() FusionConfig {
	return FusionConfig{TopK: 4, MinScore: 0.35, MaxNotes: 3}
}

// FusionLayer merges the memory tiers into one bounded context.
// Vector-store trouble degrades to recent-turns-only; it never fails a turn.
type FusionLayer struct {
	history  *ShortTermHistory
	longTerm *LongTermMemory
	profiles *ProfileStore
	memos    *MemoStore
	config   FusionConfig
}

// NewFusionLayer wires the memory tiers together. longTerm and memos may be
// nil; the fused context simply omits those tiers.
func NewFusionLayer(history *ShortTermHistory, longTerm *LongTermMemory, profiles *ProfileStore, memos *MemoStore, config FusionConfig) *FusionLayer {
	if config.TopK <= 0 {
		config.TopK = 4
	}
	if config.MinScore <= 0 {
		config.MinScore = 0.35
	}
	if config.MaxNotes <= 0 {
		config.MaxNotes = 3
	}
	return &FusionLayer{
		history:  history,
		longTerm: longTerm,
		profiles: profiles,
		memos:    memos,
		config:   config,
	}
}

// Fuse builds the context for one turn. currentMessage drives vector recall;
// a proactive (empty) message skips recall entirely.
func (f *FusionLayer) Fuse(ctx context.Context, userID, currentMessage string) *FusedContext {
	fused := &FusedContext{Facts: map[string]string{}}

	turns, err := f.history.Recent(userID)
	if err != nil {
		log.Printf("[FusionLayer] history read failed | user=%s err=%v", userID, err)
	} else {
		fused.RecentTurns = turns
	}

	if f.longTerm != nil && currentMessage != "" {
		recalled, err := f.longTerm.Recall(ctx, userID, currentMessage, f.config.TopK, f.config.MinScore)
		if err != nil {
			// Degrade to recent-turns-only context.
			log.Printf("[FusionLayer] recall degraded | user=%s err=%v", userID, err)
		} else {
			fused.Recalled = recalled
		}
	}

	if f.memos != nil {
		notes, err := f.memos.Search(userID, "", f.config.MaxNotes)
		if err == nil {
			fused.Notes = notes
		}
	}

	if f.profiles != nil {
		facts, err := f.profiles.All(userID)
		if err == nil {
			fused.Facts = facts
		}
	}

	return fused
}
