package notify

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ankittk/agentsync/internal/capabilities"
	"github.com/ankittk/agentsync/internal/preferences"
	"github.com/ankittk/agentsync/pkg/models"
)

type staticPrefs struct{ p models.Preferences }

func (s staticPrefs) Get() models.Preferences { return s.p }

type recordingChannel struct {
	name string
	err  error
	pan  bool
	mu   sync.Mutex
	got  []Notification
}

func (c *recordingChannel) Name() string { return c.name }

func (c *recordingChannel) Deliver(_ context.Context, n Notification) error {
	c.mu.Lock()
	c.got = append(c.got, n)
	c.mu.Unlock()
	if c.pan {
		panic("boom")
	}
	return c.err
}

func (c *recordingChannel) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.got)
}

type recordingPub struct {
	mu     sync.Mutex
	events []any
}

func (p *recordingPub) PublishJSON(v any) {
	p.mu.Lock()
	p.events = append(p.events, v)
	p.mu.Unlock()
}

func newChannels() (Channels, *recordingChannel, *recordingChannel, *recordingChannel) {
	b := &recordingChannel{name: ChannelBanner}
	d := &recordingChannel{name: ChannelDesktop}
	a := &recordingChannel{name: ChannelAudio}
	return Channels{Banner: b, Desktop: d, Audio: a}, b, d, a
}

func TestAnnounce_categoryGateSuppressesEverything(t *testing.T) {
	p := preferences.Defaults()
	p.NotifyOnTaskAssignment = false
	chs, b, d, a := newChannels()
	r := NewRouter(staticPrefs{p}, chs)

	rep := r.Announce(context.Background(), models.CategoryTask, "assigned", Options{})
	assert.True(t, rep.Suppressed)
	assert.Empty(t, rep.Delivered)
	assert.Zero(t, b.count()+d.count()+a.count())

	rep = r.Announce(context.Background(), models.CategoryMessage, "hi", Options{})
	assert.False(t, rep.Suppressed)
	assert.Contains(t, rep.Delivered, ChannelBanner)
	assert.Equal(t, 1, b.count())
}

func TestAnnounce_channelToggles(t *testing.T) {
	p := preferences.Defaults()
	p.DesktopNotifications = false
	p.SoundAlerts = false
	chs, b, d, a := newChannels()
	rep := NewRouter(staticPrefs{p}, chs).Announce(context.Background(), models.CategoryCritical, "x", Options{})
	assert.Equal(t, []string{ChannelBanner}, rep.Delivered)
	assert.Equal(t, 1, b.count())
	assert.Zero(t, d.count())
	assert.Zero(t, a.count())
	assert.Equal(t, SeverityError, b.got[0].Severity)
	assert.Equal(t, "Critical Alert", b.got[0].Title)
}

func TestAnnounce_failingChannelIsolated(t *testing.T) {
	chs, b, d, a := newChannels()
	d.err = errors.New("permission exception")
	r := NewRouter(staticPrefs{preferences.Defaults()}, chs)
	rep := r.Announce(context.Background(), models.CategoryMessage, "hello", Options{})
	assert.Equal(t, []string{ChannelBanner, ChannelAudio}, rep.Delivered)
	assert.Contains(t, rep.Failed[ChannelDesktop], "permission exception")
	assert.Equal(t, 1, b.count())
	assert.Equal(t, 1, a.count())
}

func TestAnnounce_panickingChannelIsolated(t *testing.T) {
	chs, _, d, a := newChannels()
	d.pan = true
	rep := NewRouter(staticPrefs{preferences.Defaults()}, chs).Announce(context.Background(), models.CategoryTask, "t", Options{})
	assert.Contains(t, rep.Failed[ChannelDesktop], "panic")
	assert.Equal(t, 1, a.count())
}

func TestAnnounce_volumeAndOptions(t *testing.T) {
	p := preferences.Defaults()
	p.SoundVolume = 0.25
	chs, b, _, a := newChannels()
	NewRouter(staticPrefs{p}, chs).Announce(context.Background(), models.CategoryTask, "failed run", Options{Title: "Collaboration Failed", Severity: SeverityError})
	require.Equal(t, 1, a.count())
	assert.Equal(t, 0.25, a.got[0].Volume)
	assert.Equal(t, "Collaboration Failed", b.got[0].Title)
	assert.Equal(t, SeverityError, b.got[0].Severity)
}

func TestSeverityAndTitle(t *testing.T) {
	assert.Equal(t, SeverityInfo, SeverityFor(models.CategoryMessage))
	assert.Equal(t, SeveritySuccess, SeverityFor(models.CategoryTask))
	assert.Equal(t, SeverityError, SeverityFor(models.CategoryCritical))
	assert.Equal(t, "New Message", TitleFor(models.CategoryMessage))
	assert.Equal(t, "Task Update", TitleFor(models.CategoryTask))
}

func TestBannerChannel_publishes(t *testing.T) {
	pub := &recordingPub{}
	b := &BannerChannel{Pub: pub, TTL: 2 * time.Second}
	require.NoError(t, b.Deliver(context.Background(), Notification{Category: models.CategoryTask, Title: "Task Update", Text: "added"}))
	require.Len(t, pub.events, 1)
	ev := pub.events[0].(BannerEvent)
	assert.Equal(t, "banner", ev.Type)
	assert.Equal(t, SeveritySuccess, ev.Severity)
	assert.Equal(t, int64(2000), ev.TTLMs)
}

type fakeHost struct {
	state string
	shown []Alert
	err   error
}

func (f *fakeHost) Permission() string                                { return f.state }
func (f *fakeHost) RequestPermission(context.Context) (string, error) { return f.state, nil }
func (f *fakeHost) Show(_ context.Context, a Alert) error {
	f.shown = append(f.shown, a)
	return f.err
}

func TestDesktopChannel_permissionStates(t *testing.T) {
	for _, state := range []string{models.PermissionDenied, models.PermissionDefault, ""} {
		h := &fakeHost{state: state}
		err := (&DesktopChannel{Host: h}).Deliver(context.Background(), Notification{Category: models.CategoryMessage})
		assert.ErrorIs(t, err, ErrSkipped, "state %q", state)
		assert.Empty(t, h.shown)
	}
	h := &fakeHost{state: models.PermissionGranted}
	require.NoError(t, (&DesktopChannel{Host: h}).Deliver(context.Background(), Notification{Category: models.CategoryCritical, Title: "Critical Alert", Text: "x"}))
	require.Len(t, h.shown, 1)
	assert.Equal(t, DesktopIcon, h.shown[0].Icon)
	assert.Equal(t, DesktopBadge, h.shown[0].Badge)
	assert.Equal(t, "Critical Alert", h.shown[0].Title)
}

func TestDesktopSkipIsNotAFailure(t *testing.T) {
	p := preferences.Defaults()
	chs := Channels{Banner: &recordingChannel{name: ChannelBanner}, Desktop: &DesktopChannel{Host: &fakeHost{state: models.PermissionDenied}}}
	rep := NewRouter(staticPrefs{p}, chs).Announce(context.Background(), models.CategoryMessage, "m", Options{})
	assert.Equal(t, []string{ChannelDesktop}, rep.Skipped)
	assert.Empty(t, rep.Failed)
}

func TestHubHost(t *testing.T) {
	pub := &recordingPub{}
	h := NewHubHost(pub)
	assert.Equal(t, models.PermissionDefault, h.Permission())
	state, err := h.RequestPermission(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.PermissionDefault, state)
	assert.Len(t, pub.events, 1, "request is broadcast to clients")

	assert.Error(t, h.SetPermission("maybe"))
	require.NoError(t, h.SetPermission(models.PermissionGranted))
	require.NoError(t, h.Show(context.Background(), Alert{Title: "t"}))
	assert.Len(t, pub.events, 2)
}

func TestExecHost(t *testing.T) {
	var ran []string
	h := &ExecHost{
		GOOS:     "linux",
		LookPath: func(string) (string, error) { return "/usr/bin/notify-send", nil },
		Run: func(_ context.Context, name string, args ...string) error {
			ran = append([]string{name}, args...)
			return nil
		},
	}
	assert.Equal(t, models.PermissionGranted, h.Permission())
	require.NoError(t, h.Show(context.Background(), Alert{Title: "T", Body: "B", Icon: "i"}))
	assert.Equal(t, []string{"notify-send", "--app-name=agentsync", "--icon=i", "T", "B"}, ran)

	h.LookPath = func(string) (string, error) { return "", errors.New("not found") }
	assert.Equal(t, models.PermissionDenied, h.Permission())
}

func TestAudioContext_lazySingleton(t *testing.T) {
	a := SharedAudioContext()
	b := SharedAudioContext()
	assert.Same(t, a, b)
	assert.Equal(t, int32(1), audioInits.Load())
}

func TestAudioContext_toneShape(t *testing.T) {
	ac := &AudioContext{SampleRate: 8000}
	s := ac.Samples(ToneFrequency, ToneDuration, 1)
	require.Len(t, s, 2400)

	peak := func(xs []int16) float64 {
		m := 0.0
		for _, x := range xs {
			m = math.Max(m, math.Abs(float64(x)))
		}
		return m
	}
	head, tail := peak(s[:100]), peak(s[len(s)-100:])
	assert.Greater(t, head, 0.9*math.MaxInt16)
	assert.Less(t, tail, 0.02*math.MaxInt16, "decays toward the floor")

	quiet := ac.Samples(ToneFrequency, ToneDuration, 0.2)
	assert.Less(t, peak(quiet[:100]), 0.21*math.MaxInt16)

	silent := ac.Samples(ToneFrequency, ToneDuration, 0)
	assert.Zero(t, peak(silent))
}

func TestAudioContext_wavHeader(t *testing.T) {
	ac := &AudioContext{SampleRate: 8000}
	wav := ac.WAV(ToneFrequency, 10*time.Millisecond, 0.5)
	require.Len(t, wav, 44+80*2)
	assert.Equal(t, "RIFF", string(wav[0:4]))
	assert.Equal(t, "WAVE", string(wav[8:12]))
	assert.Equal(t, uint32(8000), binary.LittleEndian.Uint32(wav[24:28]))
	assert.Equal(t, uint16(16), binary.LittleEndian.Uint16(wav[34:36]))
	assert.Equal(t, uint32(160), binary.LittleEndian.Uint32(wav[40:44]))
}

type fakePlayer struct {
	n   atomic.Int32
	wav []byte
}

func (f *fakePlayer) Play(_ context.Context, wav []byte) error {
	f.n.Add(1)
	f.wav = wav
	return nil
}

func TestAudioChannel(t *testing.T) {
	p := &fakePlayer{}
	c := &AudioChannel{Player: p}
	require.NoError(t, c.Deliver(context.Background(), Notification{Volume: 0.5}))
	assert.Equal(t, int32(1), p.n.Load())
	assert.Equal(t, "RIFF", string(p.wav[:4]))
	assert.ErrorIs(t, c.Deliver(context.Background(), Notification{Volume: 0}), ErrSkipped)

	pub := &recordingPub{}
	require.NoError(t, (&HubPlayer{Pub: pub}).Play(context.Background(), []byte("RIFF")))
	ev := pub.events[0].(map[string]any)
	raw, err := base64.StdEncoding.DecodeString(ev["data"].(string))
	require.NoError(t, err)
	assert.Equal(t, "RIFF", string(raw))
}

func TestDigestChannel_realtimeAndBuffered(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { hits.Add(1) }))
	defer srv.Close()
	caps := capabilities.NewRegistry()
	caps.Register(capabilities.Webhook{URL: srv.URL})

	freq := models.FrequencyRealtime
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	d := &DigestChannel{Caps: caps, Frequency: func() string { return freq }, Now: func() time.Time { return now }}
	ctx := context.Background()

	require.NoError(t, d.Deliver(ctx, Notification{Category: models.CategoryTask, Title: "Task Update", Text: "a"}))
	assert.Equal(t, int32(1), hits.Load())

	freq = models.FrequencyHourly
	require.NoError(t, d.Deliver(ctx, Notification{Category: models.CategoryTask, Text: "b"}))
	require.NoError(t, d.Deliver(ctx, Notification{Category: models.CategoryMessage, Text: "c"}))
	assert.Equal(t, 2, d.Pending())

	require.NoError(t, d.FlushIfDue(ctx))
	assert.Equal(t, int32(1), hits.Load(), "not due yet")

	now = now.Add(61 * time.Minute)
	require.NoError(t, d.FlushIfDue(ctx))
	assert.Equal(t, int32(2), hits.Load())
	assert.Zero(t, d.Pending())
}

func TestDigestChannel_noCapabilitiesSkips(t *testing.T) {
	d := &DigestChannel{Caps: capabilities.NewRegistry(), Frequency: func() string { return models.FrequencyDaily }}
	assert.ErrorIs(t, d.Deliver(context.Background(), Notification{}), ErrSkipped)
	assert.Equal(t, 24*time.Hour, Period(models.FrequencyDaily))
	assert.Zero(t, Period(models.FrequencyRealtime))
}
