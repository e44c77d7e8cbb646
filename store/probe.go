package store

import (
	"context"
	"strconv"
	"time"

	"github.com/anacrolix/ffprobe"
)

// ProbeFunc reads media metadata. ffprobe.Run is the default.
type ProbeFunc func(ctx context.Context, path string) (*ffprobe.Info, error)

func runFFprobe(ctx context.Context, path string) (*ffprobe.Info, error) {
	type result struct {
		info *ffprobe.Info
		err  error
	}
	done := make(chan result, 1)
	go func() {
		info, err := ffprobe.Run(path)
		done <- result{info, err}
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		return r.info, r.err
	}
}

// applyProbe copies what ffprobe found onto r.
func applyProbe(r *Resource, info *ffprobe.Info) {
	if d, err := info.Duration(); err == nil {
		r.Duration = d.Seconds()
	}
	if br, err := info.Bitrate(); err == nil {
		r.Bitrate = int(br)
	}
	if tags, ok := info.Format["tags"].(map[string]interface{}); ok {
		r.Artist = tagString(tags, "artist", "ARTIST", "album_artist")
		r.Album = tagString(tags, "album", "ALBUM")
		r.Genre = tagString(tags, "genre", "GENRE")
		r.Date = tagString(tags, "date", "DATE", "creation_time")
		if t := tagString(tags, "title", "TITLE"); t != "" && r.MediaType == MediaAudio {
			r.Title = t
		}
	}
	var audio, subs int
	for _, s := range info.Streams {
		switch s["codec_type"] {
		case "video":
			if r.VideoCodec != "" {
				continue
			}
			r.VideoCodec = str(s["codec_name"])
			r.Width = num(s["width"])
			r.Height = num(s["height"])
		case "audio":
			tags, _ := s["tags"].(map[string]interface{})
			r.AudioTracks = append(r.AudioTracks, AudioTrack{
				ID:       audio,
				Lang:     tagString(tags, "language"),
				Title:    tagString(tags, "title"),
				Codec:    str(s["codec_name"]),
				Channels: num(s["channels"]),
			})
			audio++
		case "subtitle":
			tags, _ := s["tags"].(map[string]interface{})
			r.Subtitles = append(r.Subtitles, Subtitle{
				ID:     subs,
				Lang:   tagString(tags, "language"),
				Title:  tagString(tags, "title"),
				Format: str(s["codec_name"]),
			})
			subs++
		}
	}
	// Audio-only files often carry cover art as a video stream.
	if r.MediaType == MediaAudio {
		r.VideoCodec, r.Width, r.Height = "", 0, 0
	}
	if r.Date != "" {
		if t, err := time.Parse(time.RFC3339Nano, r.Date); err == nil {
			r.Date = t.Format("2006-01-02")
		}
	}
}

func tagString(tags map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if v, ok := tags[k]; ok {
			if s := str(v); s != "" {
				return s
			}
		}
	}
	return ""
}

func str(v interface{}) string {
	s, _ := v.(string)
	return s
}

func num(v interface{}) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case string:
		i, _ := strconv.Atoi(n)
		return i
	}
	return 0
}
