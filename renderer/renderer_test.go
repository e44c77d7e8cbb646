package renderer

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testProfiles = []Profile{
	{Name: "Xbox 360", UserAgent: "Xbox", Xbox360: true},
	{Name: "Samsung", UserAgent: "SEC_HHP", SubtitleHeader: "CaptionInfo.sec", SubtitleFormats: []string{"srt"}},
	{Name: "Blocked", UserAgent: "BadTV", Blocked: true},
}

func TestMatch(t *testing.T) {
	p, ok := Match(testProfiles, "Xbox/2.0.17559.0 UPnP/1.0 Xbox/2.0.17559.0")
	require.True(t, ok)
	assert.Equal(t, "Xbox 360", p.Name)

	p, ok = Match(testProfiles, "sec_hhp_[TV] Samsung/1.0")
	require.True(t, ok)
	assert.Equal(t, "Samsung", p.Name)

	_, ok = Match(testProfiles, "VLC/3.0")
	assert.False(t, ok)
}

func TestRegistryResolve(t *testing.T) {
	g := NewRegistry(testProfiles, DefaultProfile())

	r := g.Resolve("10.0.0.5:41234", "Xbox/2.0")
	assert.True(t, r.Profile.Xbox360)
	assert.Equal(t, "10.0.0.5", r.Address)
	assert.NotEmpty(t, r.UUID)
	assert.Equal(t, "Xbox/2.0", r.UserAgent())

	again := g.Resolve("10.0.0.5:50000", "")
	assert.Same(t, r, again)
	assert.Equal(t, "Xbox/2.0", again.UserAgent())

	byID, ok := g.ByUUID(r.UUID)
	require.True(t, ok)
	assert.Same(t, r, byID)
	byAddr, ok := g.ByAddress("10.0.0.5:1")
	require.True(t, ok)
	assert.Same(t, r, byAddr)

	other := g.Resolve("10.0.0.6:1", "VLC")
	assert.Equal(t, "Generic", other.Profile.Name)
	assert.NotEqual(t, r.UUID, other.UUID)

	_, ok = g.ByUUID("nope")
	assert.False(t, ok)
}

func TestRegistryConcurrentResolve(t *testing.T) {
	g := NewRegistry(nil, DefaultProfile())
	var wg sync.WaitGroup
	got := make([]*Renderer, 32)
	for i := range got {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got[i] = g.Resolve("192.168.1.20:1000", "TV")
		}()
	}
	wg.Wait()
	for _, r := range got {
		assert.Same(t, got[0], r)
	}
	assert.Len(t, g.Snapshot(), 1)
}

func TestRegistryPutAndSnapshot(t *testing.T) {
	g := NewRegistry(nil, DefaultProfile())
	g.Put(&Renderer{UUID: "b", Address: "10.0.0.9:80", Profile: DefaultProfile()})
	g.Put(&Renderer{UUID: "a", Address: "10.0.0.1", Profile: DefaultProfile()})
	// Same address, new UUID replaces.
	g.Put(&Renderer{UUID: "c", Address: "10.0.0.9", Profile: DefaultProfile()})

	snap := g.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "a", snap[0].UUID)
	assert.Equal(t, "c", snap[1].UUID)
	_, ok := g.ByUUID("b")
	assert.False(t, ok)

	// Snapshots are independent of later changes.
	g.Put(&Renderer{UUID: "d", Address: "10.0.0.10"})
	assert.Len(t, snap, 2)
}

func TestAllowed(t *testing.T) {
	g := NewRegistry(testProfiles, DefaultProfile())
	r := g.Resolve("10.0.0.7", "BadTV 1.0")
	assert.False(t, r.Allowed())
	r.SetAllowed(true)
	assert.True(t, r.Allowed())
}

func TestSupports(t *testing.T) {
	r := &Renderer{Profile: Profile{
		MimeTypes:       []string{"video/mp4"},
		Engines:         []string{"mpegts"},
		SubtitleFormats: []string{"SRT"},
	}}
	assert.True(t, r.SupportsMime("VIDEO/MP4"))
	assert.False(t, r.SupportsMime("image/png"))
	r.AddDMPProfiles("X-PANASONIC-DMP-Profile: PNG_LRG JPEG_SM")
	assert.True(t, r.SupportsMime("image/png"))
	assert.True(t, r.SupportsEngine("MPEGTS"))
	assert.False(t, r.SupportsEngine("mp3"))
	assert.True(t, r.SupportsSubtitleFormat("srt"))

	assert.True(t, (&Renderer{}).SupportsMime("anything/at-all"))

	generic := &Renderer{Profile: DefaultProfile()}
	assert.True(t, generic.SupportsEngine("hls"))
	assert.True(t, generic.SupportsEngine("mpegts"))

	r.SetNowPlaying("Film")
	assert.Equal(t, "Film", r.NowPlaying())
}

func TestParseDMPProfiles(t *testing.T) {
	got := ParseDMPProfiles("X-PANASONIC-DMP-Profile: MPEG_PS_PAL JPEG_LRG JPEG_SM MPEG4_P2_SP_AAC AAC_ISO LPCM unknown")
	assert.Equal(t, []string{"video/mpeg", "image/jpeg", "video/mp4", "audio/mp4", "audio/L16"}, got)
	assert.Nil(t, ParseDMPProfiles("   "))
	assert.Equal(t, []string{"audio/mpeg"}, ParseDMPProfiles("MP3 MP2_MPS"))
}
