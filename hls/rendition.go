package hls

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/kksharma1618/mediaserver/store"
	"github.com/kksharma1618/mediaserver/transcode"
)

var ErrUnknownRendition = errors.New("hls: unknown rendition")

// TargetDuration is the length of every segment but the last, in seconds.
const TargetDuration = 6.0

const (
	NoneLabel = "NONE"
	CopyLabel = "COPY"
)

type VideoConfig struct {
	Label        string
	Width        int
	Height       int
	Bandwidth    int
	Codec        string
	MaxBitrate   int
	Transcodable bool
}

type AudioConfig struct {
	Label        string
	Codec        string
	Bitrate      int
	Channels     int
	Transcodable bool
}

// Ordered from the largest picture down; master playlists list variants in
// this order.
var videoConfigs = []VideoConfig{
	{NoneLabel, -1, 0, 0, "", 0, false},
	{CopyLabel, 0, 0, 0, "avc1.640029", 0, false},
	{"UHD2", 7680, 4320, 72000000, "avc1.64003D", 64000000, true},
	{"UHD1", 3840, 2160, 18000000, "avc1.640034", 16000000, true},
	{"QHD", 2560, 1440, 8000000, "avc1.640033", 9600000, true},
	{"FHD", 1920, 1080, 5000000, "avc1.64002A", 4800000, true},
	{"HD", 1280, 720, 2800000, "avc1.64002A", 2400000, true},
	{"SD", 842, 480, 1400000, "avc1.640029", 1200000, true},
	{"LD", 640, 360, 800000, "avc1.4D401E", 600000, true},
	{"ULD", 426, 240, 350000, "avc1.4D401E", 350000, true},
}

var audioConfigs = []AudioConfig{
	{"AAC-LC", "mp4a.40.2", 160000, 2, true},
	{"AAC-LC-6", "mp4a.40.2", 320000, 6, false},
	{"HE-AAC", "mp4a.40.5", 160000, 2, false},
	{"HE-AAC-6", "mp4a.40.5", 160000, 2, false},
	{"HE-AACv2", "mp4a.40.29", 160000, 2, false},
	{"MP3", "mp4a.40.34", 192000, 2, false},
	{"AC3", "ac-3", 384000, 2, true},
	{"AC3-6", "ac-3", 384000, 6, false},
	{"EAC3", "ec-3", 160000, 2, true},
	{"EAC3-6", "ec-3", 192000, 6, false},
	{"EAC3-8", "ec-3", 384000, 8, false},
	{"EAC3-16", "ec-3", 768000, 16, false},
	{NoneLabel, "", 0, 0, false},
	{CopyLabel, "", 0, 0, false},
}

func VideoConfigByLabel(label string) (VideoConfig, bool) {
	for _, c := range videoConfigs {
		if c.Label == label {
			return c, true
		}
	}
	return VideoConfig{}, false
}

func AudioConfigByLabel(label string) (AudioConfig, bool) {
	for _, c := range audioConfigs {
		if c.Label == label {
			return c, true
		}
	}
	return AudioConfig{}, false
}

// AudioConfigFor returns the configuration a source track already
// satisfies, so it can be copied rather than encoded.
func AudioConfigFor(t store.AudioTrack) (AudioConfig, bool) {
	var label string
	switch strings.ToLower(t.Codec) {
	case "aac":
		switch {
		case t.Channels < 3:
			label = "AAC-LC"
		case t.Channels == 6:
			label = "AAC-LC-6"
		}
	case "ac3":
		switch {
		case t.Channels < 3:
			label = "AC3"
		case t.Channels == 6:
			label = "AC3-6"
		}
	case "eac3":
		switch {
		case t.Channels < 3:
			label = "EAC3"
		case t.Channels == 6:
			label = "EAC3-6"
		case t.Channels == 8:
			label = "EAC3-8"
		case t.Channels == 16:
			label = "EAC3-16"
		}
	}
	if label == "" {
		return AudioConfig{}, false
	}
	return AudioConfigByLabel(label)
}

// Rendition is a parsed "VIDEO_AUDIO[_n]" key. n selects the audio stream,
// or the subtitle track when there is no audio.
type Rendition struct {
	Name        string
	Video       VideoConfig
	Audio       AudioConfig
	AudioStream int
	Subtitle    int
}

func ParseRendition(name string) (*Rendition, error) {
	parts := strings.Split(name, "_")
	if len(parts) < 2 {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRendition, name)
	}
	v, vok := VideoConfigByLabel(parts[0])
	a, aok := AudioConfigByLabel(parts[1])
	if !vok || !aok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRendition, name)
	}
	r := &Rendition{Name: name, Video: v, Audio: a, AudioStream: -1, Subtitle: -1}
	if len(parts) == 3 {
		n, err := strconv.Atoi(parts[2])
		if err != nil {
			n = -1
		}
		if a.Label != NoneLabel {
			r.AudioStream = n
		} else {
			r.Subtitle = n
		}
	}
	return r, nil
}

func (r *Rendition) IsSubtitle() bool {
	return r.Subtitle > -1
}

// SegmentRange is the time span of segment n.
func SegmentRange(n int) (start, end float64) {
	start = float64(n) * TargetDuration
	return start, start + TargetDuration
}

// ParseSegment splits "12.ts" into its index and extension.
func ParseSegment(name string) (int, string, error) {
	base, ext, ok := strings.Cut(name, ".")
	if !ok {
		return 0, "", fmt.Errorf("hls: segment %q has no extension", name)
	}
	n, err := strconv.Atoi(base)
	if err != nil || n < 0 {
		return 0, "", fmt.Errorf("hls: bad segment index %q", name)
	}
	return n, ext, nil
}

var audioEncoders = map[string][2]string{
	"AAC-LC":   {"aac", ""},
	"HE-AAC":   {"aac", "aac_he"},
	"HE-AACv2": {"aac", "aac_he_v2"},
	"MP3":      {"libmp3lame", ""},
	"AC3":      {"ac3", ""},
	"EAC3":     {"eac3", ""},
}

// Segment describes segment n of r for the transcoder.
func (r *Rendition) Segment(n int, src *store.Resource) transcode.Segment {
	start, end := SegmentRange(n)
	if src != nil && src.Duration > 0 && end > src.Duration {
		end = src.Duration
	}
	seg := transcode.Segment{Start: start, End: end, Format: "mpegts", AudioStream: -1}
	if r.IsSubtitle() && r.Video.Label == NoneLabel {
		seg.Format = "webvtt"
		seg.SubtitleStream = r.Subtitle
		return seg
	}

	switch r.Video.Label {
	case NoneLabel:
		seg.NoVideo = true
	case CopyLabel:
		seg.VideoCopy = true
	default:
		seg.Width, seg.Height = r.Video.Width, r.Video.Height
		seg.VideoBitrate = r.Video.MaxBitrate
	}

	if r.Audio.Label == NoneLabel {
		return seg
	}
	seg.AudioStream = max(r.AudioStream, 0)
	if r.Audio.Label == CopyLabel || sourceMatches(src, seg.AudioStream, r.Audio) {
		seg.AudioCopy = true
		return seg
	}
	enc, ok := audioEncoders[r.Audio.Label]
	if !ok {
		enc = audioEncoders["AAC-LC"]
	}
	seg.AudioCodec, seg.AudioProfile = enc[0], enc[1]
	seg.AudioBitrate = r.Audio.Bitrate
	seg.AudioChannels = r.Audio.Channels
	return seg
}

func sourceMatches(src *store.Resource, stream int, want AudioConfig) bool {
	if src == nil {
		return false
	}
	for _, t := range src.AudioTracks {
		if t.ID == stream {
			c, ok := AudioConfigFor(t)
			return ok && c.Label == want.Label
		}
	}
	return false
}
