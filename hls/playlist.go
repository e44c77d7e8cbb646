package hls

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/kksharma1618/mediaserver/renderer"
	"github.com/kksharma1618/mediaserver/store"
)

// LanguageName turns an ISO 639 code into an English display name.
func LanguageName(code string) string {
	if code == "" || code == "und" {
		return "Unknown"
	}
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	if name := display.English.Languages().Name(tag); name != "" {
		return name
	}
	return code
}

func defaultAudio(res *store.Resource, languages []string) *store.AudioTrack {
	for _, lang := range languages {
		lang = strings.TrimSpace(lang)
		want, err := language.Parse(lang)
		if err != nil {
			continue
		}
		wantBase, _ := want.Base()
		for i := range res.AudioTracks {
			t := &res.AudioTracks[i]
			got, err := language.Parse(t.Lang)
			if err != nil {
				continue
			}
			if gotBase, _ := got.Base(); gotBase == wantBase {
				return t
			}
		}
	}
	return nil
}

func channelSuffix(ch int) string {
	switch ch {
	case 2:
		return ""
	case 6:
		return " (5.1)"
	case 8:
		return " (7.1)"
	}
	return " (" + strconv.Itoa(ch) + "ch)"
}

// AVCLevelHex estimates the H.264 level from the picture size.
func AVCLevelHex(width, height int) string {
	switch {
	case width <= 0 && height <= 0:
		return "29"
	case width > 3840 || height > 2160:
		return "3D"
	case width > 1920 || height > 1080:
		return "34"
	case width > 842 || height > 480:
		return "2A"
	case width > 640 || height > 360:
		return "29"
	}
	return "1E"
}

func AVCProfileHex(width, height int) string {
	if width > 640 || height > 360 {
		return "6400"
	}
	return "4D00"
}

// MasterPlaylist lists one variant per video configuration and audio
// group. baseURL is the media prefix the resource id is appended to.
func MasterPlaylist(res *store.Resource, p renderer.Profile, baseURL string) string {
	id := res.ID
	var sb strings.Builder
	sb.WriteString("#EXTM3U\n")
	if p.HLSVersion > 1 {
		fmt.Fprintf(&sb, "#EXT-X-VERSION:%d\n", p.HLSVersion)
	}

	var groups []AudioConfig
	var def *store.AudioTrack
	if len(res.AudioTracks) > 0 {
		def = defaultAudio(res, p.AudioLanguages)
		if def != nil {
			if c, ok := AudioConfigFor(*def); ok {
				groups = append(groups, c)
			}
		}
	}
	asked, _ := AudioConfigByLabel("AC3")
	if p.TranscodeToAAC {
		asked, _ = AudioConfigByLabel("AAC-LC")
	}
	if len(groups) == 0 || groups[0].Label != asked.Label {
		groups = append(groups, asked)
	}

	names := map[string]int{}
	for _, g := range groups {
		for _, t := range res.AudioTracks {
			name := LanguageName(t.Lang) + channelSuffix(g.Channels)
			if n, ok := names[name]; ok {
				names[name] = n + 1
				name = fmt.Sprintf("%s [%d]", name, n+1)
			} else {
				names[name] = 0
			}
			fmt.Fprintf(&sb, "#EXT-X-MEDIA:TYPE=AUDIO,GROUP-ID=\"%s\",LANGUAGE=\"%s\",NAME=\"%s\",CHANNELS=%d,AUTOSELECT=YES,DEFAULT=",
				g.Label, t.Lang, name, g.Channels)
			if def != nil && def.ID == t.ID {
				sb.WriteString("YES\n")
			} else {
				fmt.Fprintf(&sb, "NO,URI=\"%s%s/hls/%s_%s_%d.m3u8\"\n", baseURL, id, NoneLabel, g.Label, t.ID)
			}
		}
	}

	subtitles := false
	for _, s := range res.Subtitles {
		if s.External || !s.IsText() {
			continue
		}
		subtitles = true
		name := s.Title
		if name == "" && s.Lang != "" {
			name = LanguageName(s.Lang)
		}
		if name == "" {
			name = strconv.Itoa(s.ID)
		}
		fmt.Fprintf(&sb, "#EXT-X-MEDIA:TYPE=SUBTITLES,GROUP-ID=\"sub1\",CHARACTERISTICS=\"public.accessibility.transcribes-spoken-dialog\",AUTOSELECT=YES,DEFAULT=NO,FORCED=NO,NAME=\"%s\",LANGUAGE=\"%s\",URI=\"%s%s/hls/%s_%s_%d.m3u8\"\n",
			name, s.Lang, baseURL, id, NoneLabel, NoneLabel, s.ID)
	}

	if len(res.Chapters) > 0 {
		fmt.Fprintf(&sb, "#EXT-X-SESSION-DATA:DATA-ID=\"com.apple.hls.chapters\",URI=\"%s%s/hls/chapters.json\"\n", baseURL, id)
	}

	copyConf, _ := VideoConfigByLabel(CopyLabel)
	videos := []VideoConfig{copyConf}
	if p.HLSMultiVideoQuality {
		// 5% slack for cropped borders.
		maxHeight := int(float64(res.Height) * 1.05)
		for _, v := range videoConfigs {
			if !v.Transcodable || res.Height == v.Height || res.Width == v.Width {
				continue
			}
			if (maxHeight >= v.Height && res.Width >= v.Width) || v.Label == "LD" {
				videos = append(videos, v)
			}
		}
	}

	audioID := 0
	if def != nil {
		audioID = def.ID
	}
	for _, v := range videos {
		for _, g := range groups {
			sb.WriteString("#EXT-X-STREAM-INF:BANDWIDTH=")
			if v.Label == CopyLabel {
				fmt.Fprintf(&sb, "%d,RESOLUTION=%dx%d,AUDIO=\"%s\",CODECS=\"avc1.%s%s",
					res.Bitrate, res.Width, res.Height, g.Label,
					AVCProfileHex(res.Width, res.Height), AVCLevelHex(res.Width, res.Height))
			} else {
				fmt.Fprintf(&sb, "%d,RESOLUTION=%dx%d,AUDIO=\"%s\",CODECS=\"%s",
					v.Bandwidth, v.Width, v.Height, g.Label, v.Codec)
			}
			fmt.Fprintf(&sb, ",%s\"", g.Codec)
			if subtitles {
				sb.WriteString(",SUBTITLES=\"sub1\"")
			}
			fmt.Fprintf(&sb, "\n%s%s/hls/%s_%s_%d.m3u8\n", baseURL, id, v.Label, g.Label, audioID)
		}
	}
	return sb.String()
}

// RenditionPlaylist lists the segments of one rendition over the whole
// duration of res.
func RenditionPlaylist(res *store.Resource, p renderer.Profile, baseURL, rendition string) string {
	target := strconv.Itoa(int(math.Ceil(TargetDuration)))
	full := target
	if p.HLSVersion > 2 {
		full = fmt.Sprintf("%.6f", TargetDuration)
	}
	ext := "ts"
	if strings.HasPrefix(rendition, NoneLabel+"_"+NoneLabel+"_") {
		ext = "vtt"
	}

	var sb strings.Builder
	sb.WriteString("#EXTM3U\n")
	if p.HLSVersion > 1 {
		fmt.Fprintf(&sb, "#EXT-X-VERSION:%d\n", p.HLSVersion)
	}
	sb.WriteString("#EXT-X-TARGETDURATION:" + target + "\n")
	sb.WriteString("#EXT-X-MEDIA-SEQUENCE:0\n")
	sb.WriteString("#EXT-X-PLAYLIST-TYPE:VOD\n")
	sb.WriteString("#EXT-X-INDEPENDENT-SEGMENTS\n")
	n := 0
	for left := res.Duration; left > 0; left -= TargetDuration {
		sb.WriteString("#EXTINF:")
		switch {
		case left >= TargetDuration:
			sb.WriteString(full)
		case p.HLSVersion > 2:
			fmt.Fprintf(&sb, "%.6f", left)
		default:
			sb.WriteString(strconv.Itoa(int(math.Ceil(left))))
		}
		fmt.Fprintf(&sb, ",\n%s%s/hls/%s/%d.%s\n", baseURL, res.ID, rendition, n, ext)
		n++
	}
	sb.WriteString("#EXT-X-ENDLIST\n")
	return sb.String()
}
