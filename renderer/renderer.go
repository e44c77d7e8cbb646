package renderer

import (
	"slices"
	"strings"
	"sync"
	"time"
)

// Profile holds the capabilities and quirks of a class of renderers. It is
// matched against the User-Agent of incoming requests.
type Profile struct {
	Name string `mapstructure:"name"`
	// UserAgent is a case-insensitive substring of the User-Agent header.
	UserAgent string `mapstructure:"user_agent"`
	Blocked   bool   `mapstructure:"blocked"`
	UserID    int    `mapstructure:"user_id"`

	ChunkedTransfer bool `mapstructure:"chunked_transfer"`
	// DLNATreeHack over-reports TotalMatches so firmware keeps paging.
	DLNATreeHack      bool `mapstructure:"dlna_tree_hack"`
	UseMediaInfo      bool `mapstructure:"use_media_info"`
	Xbox360           bool `mapstructure:"xbox360"`
	SearchCapsEnabled bool `mapstructure:"search_caps_enabled"`

	Thumbnails bool `mapstructure:"thumbnails"`

	RemoveTagsFromSRT            bool     `mapstructure:"remove_tags_from_srt"`
	SubtitleHeader               string   `mapstructure:"subtitle_header"`
	SubtitleFormats              []string `mapstructure:"subtitle_formats"`
	StreamSubsForTranscodedVideo bool     `mapstructure:"stream_subs_for_transcoded_video"`

	HLSVersion           int      `mapstructure:"hls_version"`
	HLSMultiVideoQuality bool     `mapstructure:"hls_multi_video_quality"`
	TranscodeToAAC       bool     `mapstructure:"transcode_to_aac"`
	AudioLanguages       []string `mapstructure:"audio_languages"`

	// MimeTypes lists what the renderer plays natively. Empty means
	// anything.
	MimeTypes []string `mapstructure:"mime_types"`
	Engines   []string `mapstructure:"engines"`
}

// DefaultProfile is used for renderers no configured profile matches.
func DefaultProfile() Profile {
	return Profile{
		Name:              "Generic",
		ChunkedTransfer:   true,
		UseMediaInfo:      true,
		SearchCapsEnabled: true,
		Thumbnails:        true,
		SubtitleFormats:   []string{"srt", "vtt"},
		HLSVersion:        3,
		TranscodeToAAC:    true,
		Engines:           []string{"mpegts", "hls"},
	}
}

// Renderer is a client device seen on the network.
type Renderer struct {
	UUID    string
	Address string
	Profile Profile

	mu          sync.Mutex
	userAgent   string
	dmpMimes    []string
	nowPlaying  string
	lastSeen    time.Time
	allowedByUI *bool
}

func (r *Renderer) Allowed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.allowedByUI != nil {
		return *r.allowedByUI
	}
	return !r.Profile.Blocked
}

// SetAllowed overrides the profile's Blocked flag for this device.
func (r *Renderer) SetAllowed(allowed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.allowedByUI = &allowed
}

func (r *Renderer) UserAgent() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.userAgent
}

func (r *Renderer) seen(userAgent string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if userAgent != "" {
		r.userAgent = userAgent
	}
	r.lastSeen = time.Now()
}

func (r *Renderer) LastSeen() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastSeen
}

func (r *Renderer) SetNowPlaying(title string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nowPlaying = title
}

func (r *Renderer) NowPlaying() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.nowPlaying
}

// AddDMPProfiles records the mime types announced in an
// X-PANASONIC-DMP-Profile header.
func (r *Renderer) AddDMPProfiles(header string) {
	mimes := ParseDMPProfiles(header)
	if len(mimes) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range mimes {
		if !slices.Contains(r.dmpMimes, m) {
			r.dmpMimes = append(r.dmpMimes, m)
		}
	}
}

func (r *Renderer) SupportsMime(mime string) bool {
	if len(r.Profile.MimeTypes) == 0 {
		return true
	}
	if containsFold(r.Profile.MimeTypes, mime) {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return containsFold(r.dmpMimes, mime)
}

func (r *Renderer) SupportsEngine(engine string) bool {
	return containsFold(r.Profile.Engines, engine)
}

func (r *Renderer) SupportsSubtitleFormat(format string) bool {
	return containsFold(r.Profile.SubtitleFormats, format)
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
