package companion

import (
	"context"
	"fmt"
	"log"
)

// ──────────────────────────────────────────────
// Voice — transcription in, synthesis out
// ──────────────────────────────────────────────

// Transcriber turns an inbound voice payload into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// Synthesizer renders reply text as audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// VoiceSender delivers synthesized audio to a user.
type VoiceSender interface {
	SendVoice(userID string, audio []byte) error
}

// VoicePipeline handles voice turns: transcribe, run the normal turn,
// synthesize the reply. When synthesis fails the reply falls back to text
// so the user is never left hanging.
type VoicePipeline struct {
	transcriber  Transcriber
	synthesizer  Synthesizer
	voiceSender  VoiceSender
	textSender   OutboundSender
	orchestrator *Orchestrator
}

// NewVoicePipeline wires the voice path. synthesizer and voiceSender may be
// nil; replies then always go out as text.
func NewVoicePipeline(transcriber Transcriber, synthesizer Synthesizer, voiceSender VoiceSender, textSender OutboundSender, orchestrator *Orchestrator) *VoicePipeline {
	return &VoicePipeline{
		transcriber:  transcriber,
		synthesizer:  synthesizer,
		voiceSender:  voiceSender,
		textSender:   textSender,
		orchestrator: orchestrator,
	}
}

// HandleVoice processes one inbound voice event end to end.
func (v *VoicePipeline) HandleVoice(ctx context.Context, ev InboundEvent) error {
	if v.transcriber == nil {
		return fmt.Errorf("no transcriber configured")
	}
	text, err := v.transcriber.Transcribe(ctx, ev.Payload)
	if err != nil {
		return fmt.Errorf("transcribe: %w", err)
	}
	if text == "" {
		return nil
	}

	reply, err := v.orchestrator.Respond(ctx, ev.UserID, text)
	if err != nil {
		return fmt.Errorf("respond: %w", err)
	}

	if v.synthesizer != nil && v.voiceSender != nil {
		audio, err := v.synthesizer.Synthesize(ctx, reply)
		if err == nil {
			return v.voiceSender.SendVoice(ev.UserID, audio)
		}
		log.Printf("[Voice] synthesis failed, falling back to text | user=%s err=%v", ev.UserID, err)
	}
	return v.textSender.SendText(ev.UserID, reply)
}
