package transcode

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"sync"
)

// Segment describes one HLS segment to produce, [Start, End) in seconds.
type Segment struct {
	Start float64
	End   float64
	// Format is "mpegts" or "webvtt".
	Format string

	// NoVideo drops the video stream, VideoCopy passes it through.
	NoVideo      bool
	VideoCopy    bool
	Width        int
	Height       int
	VideoBitrate int

	// AudioStream is the index among audio streams, -1 for none.
	AudioStream   int
	AudioCopy     bool
	AudioCodec    string
	AudioProfile  string
	AudioBitrate  int
	AudioChannels int

	// SubtitleStream selects the text track for webvtt segments.
	SubtitleStream int
}

// Seek describes a whole-file transcode starting at a time offset.
type Seek struct {
	Start float64
	// End is zero for "until the end".
	End float64
	// Engine selects the output: "mpegts" (default) or "mp3".
	Engine string
}

type Transcoder struct {
	FFmpegPath string
	Logger     *slog.Logger
}

func New(ffmpegPath string, logger *slog.Logger) *Transcoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Transcoder{FFmpegPath: ffmpegPath, Logger: logger}
}

func (t *Transcoder) OpenSegment(ctx context.Context, input string, seg Segment) (*Output, error) {
	if seg.End <= seg.Start {
		return nil, fmt.Errorf("transcode: empty segment %.3f-%.3f", seg.Start, seg.End)
	}
	return t.run(ctx, SegmentArgs(input, seg))
}

func (t *Transcoder) OpenSeek(ctx context.Context, input string, s Seek) (*Output, error) {
	return t.run(ctx, SeekArgs(input, s))
}

func (t *Transcoder) run(ctx context.Context, args []string) (*Output, error) {
	ctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx, t.FFmpegPath, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("transcode: starting ffmpeg: %w", err)
	}
	t.Logger.Debug("ffmpeg started", "pid", cmd.Process.Pid, "args", args)
	return &Output{
		r:      bufio.NewReaderSize(stdout, 64<<10),
		cmd:    cmd,
		cancel: cancel,
		logger: t.Logger,
	}, nil
}

// Output is the stdout of a running ffmpeg. Closing it stops the process.
type Output struct {
	r      *bufio.Reader
	cmd    *exec.Cmd
	cancel context.CancelFunc
	logger *slog.Logger
	once   sync.Once
}

func (o *Output) Read(p []byte) (int, error) {
	return o.r.Read(p)
}

// Available reports the bytes ffmpeg has produced and not yet been read,
// waiting for the first output if there is none yet. The final length of a
// transcode is never known.
func (o *Output) Available() int64 {
	if o.r.Buffered() == 0 {
		if _, err := o.r.Peek(1); err != nil {
			return 0
		}
	}
	return int64(o.r.Buffered())
}

func (o *Output) Close() error {
	var err error
	o.once.Do(func() {
		o.cancel()
		err = o.cmd.Wait()
		var exitErr *exec.ExitError
		if errors.Is(err, context.Canceled) {
			err = nil
		} else if errors.As(err, &exitErr) {
			// Killed on purpose or finished early because the reader went
			// away; neither is a failure of the request.
			o.logger.Debug("ffmpeg exited", "status", exitErr.ExitCode())
			err = nil
		}
	})
	return err
}

var _ io.ReadCloser = (*Output)(nil)

func seconds(f float64) string {
	return strconv.FormatFloat(f, 'f', 3, 64)
}
