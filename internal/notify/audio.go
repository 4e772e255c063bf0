package notify

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Tone parameters.
const (
	ToneFrequency  = 800.0
	ToneDuration   = 300 * time.Millisecond
	ToneFloor      = 0.01
	ToneSampleRate = 22050
)

// AudioContext renders tones. One is created lazily per process and reused.
type AudioContext struct {
	SampleRate int
}

var (
	audioOnce  sync.Once
	audioCtx   *AudioContext
	audioInits atomic.Int32
)

// SharedAudioContext returns the process-wide context, creating it on first use.
func SharedAudioContext() *AudioContext {
	audioOnce.Do(func() {
		audioInits.Add(1)
		audioCtx = &AudioContext{SampleRate: ToneSampleRate}
	})
	return audioCtx
}

// Samples renders a sine at freq for d whose gain decays exponentially from
// volume to ToneFloor (or stays flat when volume is already at or below it).
func (a *AudioContext) Samples(freq float64, d time.Duration, volume float64) []int16 {
	n := int(float64(a.SampleRate) * d.Seconds())
	out := make([]int16, n)
	if n == 0 || volume <= 0 {
		return out
	}
	volume = math.Min(volume, 1)
	end := math.Min(ToneFloor, volume)
	ratio := end / volume
	for i := range out {
		t := float64(i) / float64(a.SampleRate)
		gain := volume * math.Pow(ratio, float64(i)/float64(n))
		out[i] = int16(gain * math.Sin(2*math.Pi*freq*t) * math.MaxInt16)
	}
	return out
}

// WAV renders the tone as a mono 16-bit PCM RIFF file.
func (a *AudioContext) WAV(freq float64, d time.Duration, volume float64) []byte {
	samples := a.Samples(freq, d, volume)
	dataLen := uint32(len(samples) * 2)
	var buf bytes.Buffer
	buf.Grow(44 + int(dataLen))
	w := func(v any) { _ = binary.Write(&buf, binary.LittleEndian, v) }
	buf.WriteString("RIFF")
	w(36 + dataLen)
	buf.WriteString("WAVEfmt ")
	w(uint32(16))               // fmt chunk size
	w(uint16(1))                // PCM
	w(uint16(1))                // mono
	w(uint32(a.SampleRate))     // sample rate
	w(uint32(a.SampleRate * 2)) // byte rate
	w(uint16(2))                // block align
	w(uint16(16))               // bits per sample
	buf.WriteString("data")
	w(dataLen)
	w(samples)
	return buf.Bytes()
}

// Player outputs rendered audio.
type Player interface {
	Play(ctx context.Context, wav []byte) error
}

// AudioChannel plays the alert tone at the preference volume.
type AudioChannel struct {
	Player Player
}

func (c *AudioChannel) Name() string { return ChannelAudio }

func (c *AudioChannel) Deliver(ctx context.Context, n Notification) error {
	if c.Player == nil {
		return errors.New("no audio player")
	}
	if n.Volume <= 0 {
		return ErrSkipped
	}
	wav := SharedAudioContext().WAV(ToneFrequency, ToneDuration, n.Volume)
	return c.Player.Play(ctx, wav)
}

// HubPlayer sends the WAV to connected clients as base64 over SSE.
type HubPlayer struct {
	Pub Publisher
}

func (h *HubPlayer) Play(_ context.Context, wav []byte) error {
	if h.Pub == nil {
		return errors.New("no publisher")
	}
	h.Pub.PublishJSON(map[string]any{
		"type":   "audio",
		"format": "wav",
		"data":   base64.StdEncoding.EncodeToString(wav),
	})
	return nil
}

// ExecPlayer pipes the WAV into a command such as aplay or afplay.
type ExecPlayer struct {
	Command string
	Args    []string
}

func (e *ExecPlayer) Play(ctx context.Context, wav []byte) error {
	name := e.Command
	if name == "" {
		name = "aplay"
	}
	args := e.Args
	if args == nil && name == "aplay" {
		args = []string{"-q", "-"}
	}
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = bytes.NewReader(wav)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(out)))
	}
	return nil
}
