package companion

import (
	"context"
	"errors"
	"testing"
)

// ══════════════════════════════════════════════
// Voice pipeline
// ══════════════════════════════════════════════

type fakeTranscriber struct{ text string }

func (f fakeTranscriber) Transcribe(ctx context.Context, audio []byte) (string, error) {
	return f.text, nil
}

type fakeSynth struct{ fail bool }

func (f fakeSynth) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if f.fail {
		return nil, errors.New("tts down")
	}
	return []byte("audio:" + text), nil
}

type fakeVoiceSender struct{ got [][]byte }

func (f *fakeVoiceSender) SendVoice(userID string, audio []byte) error {
	f.got = append(f.got, audio)
	return nil
}

func TestVoiceTurnRepliesWithAudio(t *testing.T) {
	f := newOrchFixture(t)
	f.gen.reply = "听到啦！ [MOOD_CHANGE:1]"

	vs := &fakeVoiceSender{}
	v := NewVoicePipeline(fakeTranscriber{text: "早上好"}, fakeSynth{}, vs, f.sender, f.orch)

	err := v.HandleVoice(context.Background(), InboundEvent{
		UserID: "u1", Kind: EventVoice, Payload: []byte("opus"),
	})
	if err != nil {
		t.Fatalf("HandleVoice: %v", err)
	}
	if len(vs.got) != 1 || string(vs.got[0]) != "audio:听到啦！" {
		t.Fatalf("voice sends = %q", vs.got)
	}
	if len(f.sender.all("u1")) != 0 {
		t.Fatal("text fallback used despite working synthesis")
	}
}

func TestVoiceFallsBackToText(t *testing.T) {
	f := newOrchFixture(t)
	f.gen.reply = "听到啦！ [MOOD_CHANGE:0]"

	vs := &fakeVoiceSender{}
	v := NewVoicePipeline(fakeTranscriber{text: "早上好"}, fakeSynth{fail: true}, vs, f.sender, f.orch)

	if err := v.HandleVoice(context.Background(), InboundEvent{UserID: "u1", Kind: EventVoice}); err != nil {
		t.Fatalf("HandleVoice: %v", err)
	}
	sent := f.sender.all("u1")
	if len(sent) != 1 || sent[0] != "听到啦！" {
		t.Fatalf("text fallback = %v", sent)
	}
	if len(vs.got) != 0 {
		t.Fatal("voice sent despite synthesis failure")
	}
}

func TestVoiceEmptyTranscriptIgnored(t *testing.T) {
	f := newOrchFixture(t)
	v := NewVoicePipeline(fakeTranscriber{text: ""}, nil, nil, f.sender, f.orch)

	if err := v.HandleVoice(context.Background(), InboundEvent{UserID: "u1", Kind: EventVoice}); err != nil {
		t.Fatalf("HandleVoice: %v", err)
	}
	if f.gen.calls != 0 {
		t.Fatal("empty transcript reached the generator")
	}
}
