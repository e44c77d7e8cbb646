package transcode

import (
	"fmt"
	"strconv"
)

// SegmentArgs builds the ffmpeg arguments for one HLS segment written to
// stdout.
func SegmentArgs(input string, seg Segment) []string {
	args := []string{
		"-hide_banner", "-loglevel", "error", "-nostdin",
		"-ss", seconds(seg.Start),
		"-i", input,
		"-t", seconds(seg.End - seg.Start),
	}

	if seg.Format == "webvtt" {
		args = append(args,
			"-map", fmt.Sprintf("0:s:%d", max(seg.SubtitleStream, 0)),
			"-c:s", "webvtt",
			"-f", "webvtt", "pipe:1")
		return args
	}

	if seg.NoVideo {
		args = append(args, "-vn")
	} else {
		args = append(args, "-map", "0:v:0")
		if seg.VideoCopy {
			args = append(args, "-c:v", "copy")
		} else {
			args = append(args, "-c:v", "libx264", "-preset", "veryfast")
			if seg.Width > 0 && seg.Height > 0 {
				args = append(args, "-vf", fmt.Sprintf("scale=w=%d:h=%d:force_original_aspect_ratio=decrease:force_divisible_by=2", seg.Width, seg.Height))
			}
			if seg.VideoBitrate > 0 {
				rate := fmt.Sprintf("%dk", seg.VideoBitrate/1000)
				args = append(args, "-b:v", rate, "-maxrate", rate,
					"-bufsize", fmt.Sprintf("%dk", seg.VideoBitrate*2/1000))
			}
			// Keyframe at every segment boundary.
			args = append(args, "-force_key_frames", "expr:gte(t,n_forced*6)")
		}
	}

	if seg.AudioStream < 0 {
		args = append(args, "-an")
	} else {
		args = append(args, "-map", fmt.Sprintf("0:a:%d?", seg.AudioStream))
		args = append(args, audioArgs(seg.AudioCopy, seg.AudioCodec, seg.AudioProfile, seg.AudioBitrate, seg.AudioChannels)...)
	}

	args = append(args,
		"-output_ts_offset", seconds(seg.Start),
		"-muxdelay", "0",
		"-f", "mpegts", "pipe:1")
	return args
}

func audioArgs(copyAudio bool, codec, profile string, bitrate, channels int) []string {
	if copyAudio || codec == "" {
		return []string{"-c:a", "copy"}
	}
	args := []string{"-c:a", codec}
	if profile != "" {
		args = append(args, "-profile:a", profile)
	}
	if bitrate > 0 {
		args = append(args, "-b:a", fmt.Sprintf("%dk", bitrate/1000))
	}
	if channels > 0 {
		args = append(args, "-ac", strconv.Itoa(channels))
	}
	return args
}

// SeekArgs builds the arguments for a time-seek transcode written to
// stdout.
func SeekArgs(input string, s Seek) []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-nostdin"}
	if s.Start > 0 {
		args = append(args, "-ss", seconds(s.Start))
	}
	args = append(args, "-i", input)
	if s.End > s.Start {
		args = append(args, "-t", seconds(s.End-s.Start))
	}
	switch s.Engine {
	case "mp3":
		args = append(args, "-vn", "-c:a", "libmp3lame", "-b:a", "320k", "-f", "mp3")
	default:
		args = append(args,
			"-map", "0:v:0?", "-map", "0:a:0?",
			"-c:v", "libx264", "-preset", "veryfast",
			"-c:a", "aac", "-b:a", "192k", "-ac", "2",
			"-f", "mpegts")
	}
	return append(args, "pipe:1")
}
