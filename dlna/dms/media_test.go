package dms

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kksharma1618/mediaserver/dlna"
	"github.com/kksharma1618/mediaserver/renderer"
	"github.com/kksharma1618/mediaserver/store"
)

// mediaRequest builds a request on the media path for the default renderer
// of testClient.
func (e *testEnv) mediaRequest(method, kind, id, sub string) *http.Request {
	rend := e.srv.Renderers.Resolve(testClient, "")
	p := mediaPath + "/" + rend.UUID + "/" + kind + "/" + id
	if sub != "" {
		p += "/" + sub
	}
	r := httptest.NewRequest(method, p, nil)
	r.RemoteAddr = testClient
	return r
}

func TestParseMediaPath(t *testing.T) {
	mr, err := parseMediaPath("/abc/media/v%201/hls/HD_AAC-LC/3.ts")
	require.NoError(t, err)
	assert.Equal(t, mediaRequest{renderer: "abc", kind: kindMedia, id: "v 1", sub: "hls/HD_AAC-LC/3.ts"}, mr)

	mr, err = parseMediaPath("abc/thumbnail/7")
	require.NoError(t, err)
	assert.Equal(t, "7", mr.id)
	assert.Empty(t, mr.sub)

	for _, p := range []string{"", "abc", "abc/media", "abc/video/1", "abc/media/..", "/media/1", "abc/media/%zz"} {
		_, err := parseMediaPath(p)
		assert.ErrorIs(t, err, errBadMediaPath, p)
	}
}

func TestServeMediaWhole(t *testing.T) {
	e := newTestEnv(t)
	r := e.mediaRequest(http.MethodGet, kindMedia, "v1", "")
	r.Header.Set("Range", "bytes=0-")
	r.Header.Set(dlna.TransferModeDomain, "Streaming")
	w := e.serve(r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "video/mp4", w.Header().Get("Content-Type"))
	assert.Equal(t, "1000", w.Header().Get("Content-Length"))
	assert.Equal(t, "Streaming", w.Header().Get(dlna.TransferModeDomain))
	assert.Equal(t, "bytes", w.Header().Get("Accept-Ranges"))
	assert.Empty(t, w.Header().Get("Content-Range"))
	assert.Equal(t, testContent(1000), w.Body.Bytes())
	assert.Zero(t, e.srv.Sessions.Len())
}

func TestServeMediaRange(t *testing.T) {
	e := newTestEnv(t)
	r := e.mediaRequest(http.MethodGet, kindMedia, "v1", "")
	r.Header.Set("Range", "bytes=100-199")
	w := e.serve(r)

	require.Equal(t, http.StatusPartialContent, w.Code)
	assert.Equal(t, "bytes 100-199/1000", w.Header().Get("Content-Range"))
	assert.Equal(t, "100", w.Header().Get("Content-Length"))
	assert.Equal(t, testContent(1000)[100:200], w.Body.Bytes())

	r = e.mediaRequest(http.MethodGet, kindMedia, "v1", "")
	r.Header.Set("Range", "bytes=900-")
	w = e.serve(r)
	require.Equal(t, http.StatusPartialContent, w.Code)
	assert.Equal(t, "bytes 900-999/1000", w.Header().Get("Content-Range"))
	assert.Len(t, w.Body.Bytes(), 100)

	// Past the end is clamped to what is there.
	r = e.mediaRequest(http.MethodGet, kindMedia, "v1", "")
	r.Header.Set("Range", "bytes=990-5000")
	w = e.serve(r)
	require.Equal(t, http.StatusPartialContent, w.Code)
	assert.Equal(t, "bytes 990-999/1000", w.Header().Get("Content-Range"))
	assert.Equal(t, "10", w.Header().Get("Content-Length"))
}

func TestServeMediaMalformedRange(t *testing.T) {
	e := newTestEnv(t)
	r := e.mediaRequest(http.MethodGet, kindMedia, "v1", "")
	r.Header.Set("Range", "bytes=abc")
	w := e.serve(r)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, w.Body.Bytes(), 1000)
}

func TestServeMediaHead(t *testing.T) {
	e := newTestEnv(t)
	r := e.mediaRequest(http.MethodHead, kindMedia, "v1", "")
	r.Header.Set("getcontentfeatures.dlna.org", "1")
	r.Header.Set("getmediainfo.sec", "1")
	w := e.serve(r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1000", w.Header().Get("Content-Length"))
	assert.Empty(t, w.Body.Bytes())
	assert.Contains(t, w.Header().Get(dlna.ContentFeaturesDomain), "DLNA.ORG_OP=11")
	assert.Equal(t, "SEC_Duration=90500;", w.Header().Get("MediaInfo.sec"))
}

func TestServeMediaTranscodedIsChunked(t *testing.T) {
	e := newTestEnv(t)
	w := e.serve(e.mediaRequest(http.MethodGet, kindMedia, "tr", ""))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Content-Length"))
	assert.Equal(t, "video/mp2t", w.Header().Get("Content-Type"))
	assert.Len(t, w.Body.Bytes(), 500)

	r := e.mediaRequest(http.MethodGet, kindMedia, "tr", "")
	r.Header.Set("Range", "bytes=100-")
	w = e.serve(r)
	require.Equal(t, http.StatusPartialContent, w.Code)
	assert.Equal(t, "bytes 100-499/*", w.Header().Get("Content-Range"))
	assert.Empty(t, w.Header().Get("Content-Length"))
	assert.Len(t, w.Body.Bytes(), 400)
}

func TestServeMediaTimeSeek(t *testing.T) {
	e := newTestEnv(t)
	r := e.mediaRequest(http.MethodGet, kindMedia, "tr", "")
	r.Header.Set(dlna.TimeSeekRangeDomain, "npt=10-")
	w := e.serve(r)
	require.Equal(t, http.StatusOK, w.Code)
	v := w.Header().Get(dlna.TimeSeekRangeDomain)
	assert.True(t, strings.HasPrefix(v, "npt="), v)
	assert.Equal(t, v, w.Header().Get("X-Seek-Range"))
}

func TestServeMediaSubtitleHeader(t *testing.T) {
	e := newTestEnv(t)
	p := renderer.DefaultProfile()
	p.SubtitleHeader = "CaptionInfo.sec"
	rend := e.withProfile("192.0.2.77", p)

	r := httptest.NewRequest(http.MethodGet, mediaPath+"/"+rend.UUID+"/media/v1", nil)
	w := e.serve(r)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "http://example.com/get/"+rend.UUID+"/subtitles/v1/subtitle.srt", w.Header().Get("CaptionInfo.sec"))

	r = httptest.NewRequest(http.MethodGet, mediaPath+"/"+rend.UUID+"/media/tr", nil)
	w = e.serve(r)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("CaptionInfo.sec"))
}

func TestServeMediaStatusCodes(t *testing.T) {
	e := newTestEnv(t)
	rend := e.srv.Renderers.Resolve(testClient, "")

	p := renderer.DefaultProfile()
	p.Blocked = true
	blocked := e.withProfile("192.0.2.66", p)

	for _, c := range []struct {
		method, path string
		status       int
	}{
		{http.MethodGet, "/get/x", http.StatusBadRequest},
		{http.MethodGet, "/get/" + rend.UUID + "/bogus/v1", http.StatusBadRequest},
		{http.MethodGet, "/get/unknown-renderer/media/v1", http.StatusForbidden},
		{http.MethodGet, "/get/" + blocked.UUID + "/media/v1", http.StatusUnauthorized},
		{http.MethodGet, "/get/" + rend.UUID + "/media/missing", http.StatusNotFound},
		{http.MethodGet, "/get/" + rend.UUID + "/media/videos", http.StatusNotFound},
		{http.MethodPost, "/get/" + rend.UUID + "/media/v1", http.StatusMethodNotAllowed},
	} {
		r := httptest.NewRequest(c.method, c.path, nil)
		r.RemoteAddr = testClient
		w := e.serve(r)
		assert.Equal(t, c.status, w.Code, "%s %s", c.method, c.path)
	}
}

func TestServeHLS(t *testing.T) {
	e := newTestEnv(t)

	r := e.mediaRequest(http.MethodGet, kindMedia, "v1", hlsMasterName)
	r.Header.Set("getcontentfeatures.dlna.org", "1")
	w := e.serve(r)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, hlsMime, w.Header().Get("Content-Type"))
	assert.Equal(t, "npt=0-90.500/90.500", w.Header().Get(dlna.TimeSeekRangeDomain))
	assert.Equal(t, "npt=0-90.500", w.Header().Get("X-AvailableSeekRange"))
	assert.Equal(t, dlna.HLSContentFeatures, w.Header().Get(dlna.ContentFeaturesDomain))
	assert.True(t, strings.HasPrefix(w.Body.String(), "#EXTM3U"))

	w = e.serve(e.mediaRequest(http.MethodGet, kindMedia, "v1", "hls/HD_AAC-LC.m3u8"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "#EXTINF")

	w = e.serve(e.mediaRequest(http.MethodGet, kindMedia, "v1", "hls/BOGUS_NOPE.m3u8"))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.serve(e.mediaRequest(http.MethodGet, kindMedia, "v1", "hls/HD_AAC-LC/0.ts"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "video/MP2T", w.Header().Get("Content-Type"))
	assert.Empty(t, w.Header().Get("Content-Length"))
	assert.Len(t, w.Body.Bytes(), 1000)

	w = e.serve(e.mediaRequest(http.MethodGet, kindMedia, "v1", "hls/HD_AAC-LC/x.ts"))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.serve(e.mediaRequest(http.MethodGet, kindMedia, "v1", "hls/chapters.vtt"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/vtt", w.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(w.Body.String(), "WEBVTT"))
	assert.Contains(t, w.Body.String(), "One")

	w = e.serve(e.mediaRequest(http.MethodGet, kindMedia, "v1", "hls/chapters.json"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
}

func TestServeImage(t *testing.T) {
	e := newTestEnv(t)
	src := testPNG(t, 32, 24)

	w := e.serve(e.mediaRequest(http.MethodGet, kindMedia, "p1", ""))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, src, w.Body.Bytes())

	r := e.mediaRequest(http.MethodGet, kindMedia, "p1", "")
	r.Header.Set("Range", "bytes=0-9")
	w = e.serve(r)
	require.Equal(t, http.StatusPartialContent, w.Code)
	assert.Equal(t, src[:10], w.Body.Bytes())

	w = e.serve(e.mediaRequest(http.MethodGet, kindMedia, "p1", "JPEG_TN_image.jpg"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/jpeg", w.Header().Get("Content-Type"))
	_, format, err := image.DecodeConfig(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
}

func TestServeImageUnsupported(t *testing.T) {
	e := newTestEnv(t)
	require.NoError(t, e.store.Put(&store.Resource{
		ID: "junk", ParentID: "videos", Kind: store.KindItem, Title: "Junk",
		Mime: "image/png", MediaType: store.MediaImage, Compatible: true,
	}, []byte("definitely not a png")))
	w := e.serve(e.mediaRequest(http.MethodGet, kindMedia, "junk", ""))
	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
}

func TestServeThumbnail(t *testing.T) {
	e := newTestEnv(t)
	r := e.mediaRequest(http.MethodGet, kindThumbnail, "v1", "JPEG_TN_thumb.jpg")
	r.Header.Set("getcontentfeatures.dlna.org", "1")
	w := e.serve(r)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/jpeg", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Header().Get("Expires"))
	assert.Contains(t, w.Header().Get(dlna.ContentFeaturesDomain), "DLNA.ORG_PN=JPEG_TN")
	assert.Equal(t, strconv.Itoa(w.Body.Len()), w.Header().Get("Content-Length"))

	cfg, _, err := image.DecodeConfig(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	assert.LessOrEqual(t, cfg.Width, 160)
	assert.LessOrEqual(t, cfg.Height, 160)

	w = e.serve(e.mediaRequest(http.MethodGet, kindThumbnail, "a1", ""))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServeSubtitles(t *testing.T) {
	e := newTestEnv(t)

	w := e.serve(e.mediaRequest(http.MethodGet, kindSubtitles, "v1", "subtitle.srt"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/plain", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Header().Get("Expires"))
	assert.Contains(t, w.Body.String(), "Hello")

	w = e.serve(e.mediaRequest(http.MethodGet, kindSubtitles, "emb", "subtitle.ass"))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.serve(e.mediaRequest(http.MethodGet, kindSubtitles, "a1", "subtitle.srt"))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestServeSubtitlesStripsTags(t *testing.T) {
	e := newTestEnv(t)
	p := renderer.DefaultProfile()
	p.RemoveTagsFromSRT = true
	rend := e.withProfile("192.0.2.80", p)

	r := httptest.NewRequest(http.MethodGet, mediaPath+"/"+rend.UUID+"/subtitles/v1/subtitle.srt", nil)
	w := e.serve(r)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Hello")
	assert.NotContains(t, w.Body.String(), "<i>")
}

func TestByteRangeStatus(t *testing.T) {
	assert.Equal(t, http.StatusOK, byteRangeStatus(dlna.ByteRange{}))
	assert.Equal(t, http.StatusOK, byteRangeStatus(dlna.ByteRange{Start: 0, End: -1}))
	assert.Equal(t, http.StatusPartialContent, byteRangeStatus(dlna.ByteRange{Start: 0, End: 99}))
	assert.Equal(t, http.StatusPartialContent, byteRangeStatus(dlna.ByteRange{Start: 5, End: -1}))
}

func TestContentRange(t *testing.T) {
	assert.Equal(t, "bytes 0-99/1000", contentRange(0, 99, 1000))
	assert.Equal(t, "bytes 0-99/*", contentRange(0, 99, -1))
	assert.Equal(t, "bytes 10-*/*", contentRange(10, -1, -1))
}

// closeCountingStore counts how often streams it opened were closed.
type closeCountingStore struct {
	*store.MemoryStore
	closed atomic.Int32
}

func (s *closeCountingStore) Open(ctx context.Context, id string, br dlna.ByteRange, tr dlna.TimeRange) (store.Stream, error) {
	st, err := s.MemoryStore.Open(ctx, id, br, tr)
	if err != nil {
		return nil, err
	}
	return &closeCountingStream{Stream: st, closed: &s.closed}, nil
}

type closeCountingStream struct {
	store.Stream
	closed *atomic.Int32
}

func (s *closeCountingStream) Close() error {
	s.closed.Add(1)
	return s.Stream.Close()
}

// droppingWriter takes the first write and then fails the way a socket
// does once the renderer hung up.
type droppingWriter struct {
	header  http.Header
	status  int
	writes  int
	written int
	onWrite func()
}

func (w *droppingWriter) Header() http.Header { return w.header }

func (w *droppingWriter) WriteHeader(status int) { w.status = status }

func (w *droppingWriter) Write(p []byte) (int, error) {
	w.writes++
	if w.writes > 1 {
		return 0, fmt.Errorf("write tcp: %w", syscall.ECONNRESET)
	}
	if w.onWrite != nil {
		w.onWrite()
	}
	w.written += len(p)
	return len(p), nil
}

func TestServeMediaClientDisconnect(t *testing.T) {
	e := newTestEnv(t)
	require.NoError(t, e.store.Put(&store.Resource{
		ID: "big", ParentID: "videos", Kind: store.KindItem, Title: "Big",
		Mime: "video/mp4", MediaType: store.MediaVideo, Compatible: true,
	}, testContent(64<<10)))
	cs := &closeCountingStore{MemoryStore: e.store}
	e.srv.Store = cs

	var during int
	w := &droppingWriter{header: make(http.Header)}
	w.onWrite = func() { during = e.srv.Sessions.Len() }
	e.srv.Handler().ServeHTTP(w, e.mediaRequest(http.MethodGet, kindMedia, "big", ""))

	assert.Equal(t, http.StatusOK, w.status)
	assert.Equal(t, "65536", w.header.Get("Content-Length"))
	assert.Equal(t, 1, during)
	assert.Equal(t, copyBufferSize, w.written)
	assert.Zero(t, e.srv.Sessions.Len())
	assert.EqualValues(t, 1, cs.closed.Load())
	assert.Empty(t, e.srv.Renderers.Resolve(testClient, "").NowPlaying())
}

func TestPlaybackNowPlayingWithTwoStreams(t *testing.T) {
	e := newTestEnv(t)
	rend := e.srv.Renderers.Resolve(testClient, "")
	r := e.mediaRequest(http.MethodGet, kindMedia, "v1", "")

	stopFirst := e.srv.startPlayback(r, rend, &store.Resource{ID: "v1", Title: "Alpha"})
	stopSecond := e.srv.startPlayback(r, rend, &store.Resource{ID: "a1", Title: "Gamma"})
	assert.Equal(t, "Gamma", rend.NowPlaying())

	stopFirst()
	assert.Equal(t, "Gamma", rend.NowPlaying())
	assert.Equal(t, 1, e.srv.Sessions.Len())
	stopSecond()
	assert.Empty(t, rend.NowPlaying())
	assert.Zero(t, e.srv.Sessions.Len())

	stopFirst = e.srv.startPlayback(r, rend, &store.Resource{ID: "v1", Title: "Alpha"})
	stopSecond = e.srv.startPlayback(r, rend, &store.Resource{ID: "a1", Title: "Gamma"})
	stopSecond()
	assert.Equal(t, "Alpha", rend.NowPlaying())
	stopFirst()
	assert.Empty(t, rend.NowPlaying())
}
