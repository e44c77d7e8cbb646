package dms

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/kksharma1618/mediaserver/dlna"
	"github.com/kksharma1618/mediaserver/logging"
	"github.com/kksharma1618/mediaserver/misc"
	"github.com/kksharma1618/mediaserver/store"
)

const (
	copyBufferSize = 8 << 10

	// Length overrides for sendStream beyond a plain byte count.
	lengthUnknown   int64 = -1
	lengthAvailable int64 = -2
)

// futureDate is the Expires value for content that never changes under the
// same URL.
func futureDate() string {
	return time.Now().Add(10000000000 * time.Millisecond).UTC().Format(http.TimeFormat)
}

// sendMessage writes a complete in-memory response. An empty body is
// answered with 204, and HEAD requests get the headers only.
func (me *Server) sendMessage(w http.ResponseWriter, r *http.Request, status int, contentType, body string) {
	if body == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	h := w.Header()
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	h.Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(status)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.WriteString(w, body); err != nil {
		me.logWriteError(r, err)
	}
}

func (me *Server) sendError(w http.ResponseWriter, status int) {
	w.Header().Set("Content-Length", "0")
	w.WriteHeader(status)
}

// negotiateLength applies a length override to the response headers and
// returns how many bytes to copy, or -1 for "until EOF".
//
//	0                   empty body
//	> 0                 Content-Length
//	-1 or TransSize     no Content-Length, the body is chunked
//	-2                  whatever the stream reports as available
func negotiateLength(h http.Header, stream store.Stream, override int64) int64 {
	if override == lengthAvailable {
		override = stream.Available()
	}
	switch {
	case override == 0:
		h.Set("Content-Length", "0")
		return 0
	case override > 0 && override != dlna.TransSize:
		h.Set("Content-Length", strconv.FormatInt(override, 10))
		return override
	}
	h.Del("Content-Length")
	return -1
}

// sendStream writes stream as the body of the response. The stream is
// always closed. A nil stream is answered with 204. writeBody false sends
// the headers alone.
func (me *Server) sendStream(w http.ResponseWriter, r *http.Request, status int, stream store.Stream, length int64, writeBody bool) {
	if stream == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	defer stream.Close()
	limit := negotiateLength(w.Header(), stream, length)
	w.WriteHeader(status)
	if !writeBody || limit == 0 || r.Method == http.MethodHead {
		return
	}
	var src io.Reader = stream
	if limit > 0 {
		src = io.LimitReader(stream, limit)
	}
	n, err := copyFlushing(w, src)
	me.Metrics.AddBytesStreamed(n)
	if err != nil {
		me.logWriteError(r, err)
		return
	}
	if limit > 0 && n < limit {
		me.mediaLog.Debug("stream ended early",
			slog.String("path", r.URL.Path),
			slog.Int64("sent", n),
			slog.Int64("announced", limit))
	}
}

// copyFlushing copies src to w in fixed chunks, flushing after each one so
// renderers start playing before the copy completes.
func copyFlushing(w http.ResponseWriter, src io.Reader) (int64, error) {
	rc := http.NewResponseController(w)
	buf := make([]byte, copyBufferSize)
	var written int64
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			m, werr := w.Write(buf[:n])
			written += int64(m)
			if werr != nil {
				return written, werr
			}
			if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
				return written, err
			}
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, fmt.Errorf("reading source: %w", rerr)
		}
	}
}

// logWriteError logs failed writes. Renderers close connections all the
// time while seeking, so those only show at trace level.
func (me *Server) logWriteError(r *http.Request, err error) {
	level := slog.LevelWarn
	if misc.IsPeerDisconnect(err) || r.Context().Err() != nil {
		level = logging.LevelTrace
	}
	me.mediaLog.Log(r.Context(), level, "sending response",
		slog.String("path", r.URL.Path),
		slog.String("remote", r.RemoteAddr),
		slog.String("error", err.Error()))
}
