package preferences

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ankittk/agentsync/internal/localstore"
	"github.com/ankittk/agentsync/pkg/models"
)

func TestLoad_missingAndMalformedUseDefaults(t *testing.T) {
	kv := localstore.NewMemKV()
	s := New(kv)
	if diff := cmp.Diff(Defaults(), s.Load()); diff != "" {
		t.Fatalf("missing key (-want +got):\n%s", diff)
	}

	for _, raw := range []string{"{", "null", `"string"`, `[1,2]`} {
		require.NoError(t, kv.Set(localstore.KeyPreferences, raw))
		assert.Equal(t, Defaults(), s.Load(), "raw %q", raw)
	}
}

func TestLoad_partialRecordKeepsDefaultTrue(t *testing.T) {
	kv := localstore.NewMemKV()
	require.NoError(t, kv.Set(localstore.KeyPreferences, `{"sound_alerts":false,"sound_volume":7,"email_frequency":"yearly"}`))
	got := New(kv).Load()
	assert.False(t, got.SoundAlerts)
	assert.True(t, got.DesktopNotifications)
	assert.Equal(t, 1.0, got.SoundVolume)
	assert.Equal(t, models.FrequencyDaily, got.EmailFrequency)
}

func TestSave_persistsAndValidates(t *testing.T) {
	kv := localstore.NewMemKV()
	s := New(kv)
	p := Defaults()
	p.NotifyOnTaskAssignment = false
	p.SoundVolume = 0.2
	p.EmailFrequency = models.FrequencyWeekly
	require.NoError(t, s.Save(p))
	assert.Equal(t, p, s.Get())
	assert.Equal(t, p, New(kv).Load(), "a fresh session reads the saved record")

	bad := p
	bad.SoundVolume = 1.5
	assert.Error(t, s.Save(bad))
	bad = p
	bad.EmailFrequency = "never"
	assert.Error(t, s.Save(bad))
	assert.Equal(t, p, s.Get())
}

func TestSave_writeFailureKeepsMemory(t *testing.T) {
	kv := localstore.NewMemKV()
	s := New(kv)
	kv.FailSet = errors.New("quota exceeded")
	p := Defaults()
	p.SoundAlerts = false
	require.Error(t, s.Save(p))
	assert.True(t, s.Get().SoundAlerts)
}

func TestAllows(t *testing.T) {
	p := Defaults()
	p.NotifyOnTaskAssignment = false
	assert.True(t, Allows(p, models.CategoryMessage))
	assert.False(t, Allows(p, models.CategoryTask))
	assert.True(t, Allows(p, models.CategoryCritical))
	assert.False(t, Allows(p, "weather"))
}
