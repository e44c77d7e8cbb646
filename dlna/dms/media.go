package dms

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"strconv"
	"strings"
	"unicode"

	"github.com/go-chi/chi/v5"

	"github.com/kksharma1618/mediaserver/dlna"
	"github.com/kksharma1618/mediaserver/hls"
	"github.com/kksharma1618/mediaserver/imaging"
	"github.com/kksharma1618/mediaserver/renderer"
	"github.com/kksharma1618/mediaserver/store"
	"github.com/kksharma1618/mediaserver/subtitle"
)

const (
	getContentFeaturesHeader = "getcontentfeatures.dlna.org"
	getMediaInfoHeader       = "getmediainfo.sec"
	mediaInfoHeader          = "MediaInfo.sec"
	seekRangeHeader          = "X-Seek-Range"
	availableSeekHeader      = "X-AvailableSeekRange"

	maxImageSize = 64 << 20
)

var errBadMediaPath = errors.New("dms: malformed media path")

// mediaRequest is a parsed /get/<renderer>/<kind>/<id>[/<sub path>].
type mediaRequest struct {
	renderer string
	kind     string
	id       string
	sub      string
}

func parseMediaPath(p string) (mediaRequest, error) {
	parts := strings.SplitN(strings.TrimPrefix(p, "/"), "/", 4)
	if len(parts) < 3 {
		return mediaRequest{}, fmt.Errorf("%w: %q", errBadMediaPath, p)
	}
	req := mediaRequest{renderer: parts[0], kind: parts[1]}
	id, err := url.PathUnescape(parts[2])
	if err != nil {
		return mediaRequest{}, fmt.Errorf("%w: %v", errBadMediaPath, err)
	}
	req.id = id
	if len(parts) == 4 {
		req.sub = parts[3]
	}
	switch req.kind {
	case kindMedia, kindThumbnail, kindSubtitles:
	default:
		return mediaRequest{}, fmt.Errorf("%w: kind %q", errBadMediaPath, req.kind)
	}
	if req.renderer == "" || !validID(req.id) {
		return mediaRequest{}, fmt.Errorf("%w: %q", errBadMediaPath, p)
	}
	return req, nil
}

func validID(id string) bool {
	if id == "" || id == "." || id == ".." {
		return false
	}
	return strings.IndexFunc(id, unicode.IsControl) < 0
}

// serveMediaRequest is the media path: streams, images, thumbnails,
// subtitles and the HLS documents of a resource.
func (me *Server) serveMediaRequest(w http.ResponseWriter, r *http.Request) {
	mr, err := parseMediaPath(chi.URLParam(r, "*"))
	if err != nil {
		me.mediaLog.Debug("bad media request", slog.String("error", err.Error()))
		me.sendError(w, http.StatusBadRequest)
		return
	}
	rend, ok := me.Renderers.ByUUID(mr.renderer)
	if !ok {
		me.sendError(w, http.StatusForbidden)
		return
	}
	if !rend.Allowed() {
		me.sendError(w, http.StatusUnauthorized)
		return
	}
	rend.AddDMPProfiles(r.Header.Get(dmpProfileHeader))

	res, err := me.Store.Resource(r.Context(), mr.id)
	if err != nil {
		me.sendStoreError(w, r, mr.id, err)
		return
	}
	if tm := r.Header.Get(dlna.TransferModeDomain); tm != "" {
		w.Header().Set(dlna.TransferModeDomain, tm)
	}
	if res.IsContainer() && mr.kind != kindThumbnail {
		me.sendError(w, http.StatusNotFound)
		return
	}
	switch {
	case mr.kind == kindThumbnail:
		me.serveThumbnail(w, r, rend, res, mr.sub)
	case mr.kind == kindSubtitles:
		me.serveSubtitles(w, r, rend, res)
	case strings.HasSuffix(mr.sub, "chapters.vtt"):
		me.sendMessage(w, r, http.StatusOK, "text/vtt", hls.ChaptersVTT(res.Chapters))
	case strings.HasSuffix(mr.sub, "chapters.json"):
		me.sendMessage(w, r, http.StatusOK, "application/json", hls.ChaptersJSON(res.Chapters))
	case strings.HasSuffix(mr.sub, hlsMasterName):
		me.serveHLSMaster(w, r, rend, res)
	case strings.HasPrefix(mr.sub, "hls/"):
		me.serveHLS(w, r, rend, res, strings.TrimPrefix(mr.sub, "hls/"))
	case res.MediaType == store.MediaImage:
		me.serveImage(w, r, res, mr.sub)
	default:
		me.serveMedia(w, r, rend, res)
	}
}

func (me *Server) sendStoreError(w http.ResponseWriter, r *http.Request, id string, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrUnsupported), errors.Is(err, os.ErrNotExist):
		me.sendError(w, http.StatusNotFound)
	default:
		me.mediaLog.Error("store",
			slog.String("id", id),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()))
		me.sendError(w, http.StatusInternalServerError)
	}
}

func wantsContentFeatures(r *http.Request) bool {
	return r.Header.Get(getContentFeaturesHeader) == "1"
}

func setMediaInfo(h http.Header, r *http.Request, res *store.Resource) {
	if r.Header.Get(getMediaInfoHeader) == "1" && res.Duration > 0 {
		h.Set(mediaInfoHeader, fmt.Sprintf("SEC_Duration=%d;", int64(res.Duration*1000)))
	}
}

// byteRangeStatus is 206 whenever the client asked for anything but the
// whole resource from its start. An open end counts as no end.
func byteRangeStatus(br dlna.ByteRange) int {
	if br.Start != 0 || br.End > 0 {
		return http.StatusPartialContent
	}
	return http.StatusOK
}

// rangeEnd is the requested end byte, 0 when open ended.
func rangeEnd(br dlna.ByteRange) int64 {
	return max(br.End, 0)
}

// setTimeSeekHeaders announces the time range a stream starts at, when
// the client or the resource asked for one.
func setTimeSeekHeaders(h http.Header, tr dlna.TimeRange, res *store.Resource) {
	if !tr.HasStart() {
		return
	}
	total := "*"
	if res.Duration > 0 {
		total = dlna.FormatDuration(res.Duration)
	}
	end := ""
	switch {
	case tr.HasEnd():
		end = dlna.FormatDuration(*tr.End)
	case res.Duration > 0:
		end = total
	}
	v := dlna.NPTRange(dlna.FormatDuration(tr.StartOrZero()), end, total)
	h.Set(dlna.TimeSeekRangeDomain, v)
	h.Set(seekRangeHeader, v)
}

// contentRange is the Content-Range value; unknown ends and totals render
// as "*".
func contentRange(start, end, total int64) string {
	if end < 0 {
		t := "*"
		if total >= 0 {
			t = strconv.FormatInt(total, 10)
		}
		return fmt.Sprintf("bytes %d-*/%s", start, t)
	}
	return dlna.ContentRange(start, end, total)
}

// serveMedia streams the main body of an item with byte-range and
// time-seek negotiation.
func (me *Server) serveMedia(w http.ResponseWriter, r *http.Request, rend *renderer.Renderer, res *store.Resource) {
	br := dlna.ParseByteRange(r.Header.Get("Range"))
	tr := dlna.ParseTimeSeekRange(r.Header.Get(dlna.TimeSeekRangeDomain)).Merge(res.SplitRange)
	status := byteRangeStatus(br)

	total := res.Size
	if res.Engine != "" || tr.HasStart() {
		total = dlna.TransSize
	}
	stream, err := me.Store.Open(r.Context(), res.ID, br, tr)
	if err != nil {
		me.sendStoreError(w, r, res.ID, err)
		return
	}
	h := w.Header()
	if sub, ok := me.sidecarSubtitle(res, rend); ok && rend.Profile.SubtitleHeader != "" &&
		(res.Engine == "" || rend.Profile.StreamSubsForTranscodedVideo) {
		h.Set(rend.Profile.SubtitleHeader, mediaURL(r.Host, rend.UUID, kindSubtitles, res.ID, "subtitle."+sub.Format))
	}
	stop := me.startPlayback(r, rend, res)
	defer stop()

	h.Set("Content-Type", res.Mime)
	if rend.Profile.ChunkedTransfer && total == dlna.TransSize {
		total = lengthUnknown
	}
	remaining := total - br.Start
	requested := rangeEnd(br) - br.Start
	var length int64
	if requested != 0 {
		n := remaining
		if total < 0 || remaining < 0 {
			n = stream.Available()
		}
		if requested > 0 && n > requested {
			n = requested + 1
		}
		end := br.Start + n
		if n > 0 {
			end--
		}
		if n < 0 {
			end = -1
		}
		h.Set("Content-Range", contentRange(br.Start, end, total))
		length = n
		if rend.Profile.ChunkedTransfer && requested < 0 && total < 0 {
			length = lengthUnknown
		}
	} else {
		length = remaining
	}
	if wantsContentFeatures(r) {
		h.Set(dlna.ContentFeaturesDomain, dlna.ContentFeatures{
			SupportRange:    res.Engine == "",
			SupportTimeSeek: res.Duration > 0,
			Transcoded:      res.Engine != "",
			Flags:           streamingFlags,
		}.String())
	}
	setMediaInfo(h, r, res)
	setTimeSeekHeaders(h, tr, res)
	h.Set("Accept-Ranges", "bytes")
	h.Set("Connection", "keep-alive")
	me.sendStream(w, r, status, stream, length, br.Start != dlna.EndFilePos)
}

func (me *Server) serveHLSMaster(w http.ResponseWriter, r *http.Request, rend *renderer.Renderer, res *store.Resource) {
	h := w.Header()
	if wantsContentFeatures(r) && res.Duration > 0 {
		d := fmt.Sprintf("%.3f", res.Duration)
		h.Set(dlna.TimeSeekRangeDomain, "npt=0-"+d+"/"+d)
		h.Set(availableSeekHeader, "npt=0-"+d)
		h.Set(dlna.ContentFeaturesDomain, dlna.HLSContentFeatures)
	}
	setMediaInfo(h, r, res)
	body := hls.MasterPlaylist(res, rend.Profile, mediaBaseURL(r.Host, rend.UUID))
	me.sendMessage(w, r, http.StatusOK, hlsMime, body)
}

// serveHLS serves "<rendition>.m3u8", "chapters.*" and
// "<rendition>/<n>.<ts|vtt>" below a resource's hls/ path.
func (me *Server) serveHLS(w http.ResponseWriter, r *http.Request, rend *renderer.Renderer, res *store.Resource, sub string) {
	name, segment, isSegment := strings.Cut(sub, "/")
	if !isSegment {
		if !strings.HasSuffix(name, ".m3u8") {
			me.sendError(w, http.StatusNotFound)
			return
		}
		name = strings.TrimSuffix(name, ".m3u8")
		if _, err := hls.ParseRendition(name); err != nil {
			me.sendError(w, http.StatusNotFound)
			return
		}
		body := hls.RenditionPlaylist(res, rend.Profile, mediaBaseURL(r.Host, rend.UUID), name)
		me.sendMessage(w, r, http.StatusOK, hlsMime, body)
		return
	}
	rendition, err := hls.ParseRendition(name)
	if err != nil {
		me.sendError(w, http.StatusNotFound)
		return
	}
	n, ext, err := hls.ParseSegment(path.Base(segment))
	if err != nil {
		me.sendError(w, http.StatusNotFound)
		return
	}
	contentType := "video/MP2T"
	switch ext {
	case "ts":
	case "vtt":
		contentType = "text/vtt"
	default:
		me.sendError(w, http.StatusNotFound)
		return
	}
	stream, err := me.Store.OpenSegment(r.Context(), res.ID, rendition.Segment(n, res))
	if err != nil || stream == nil {
		me.mediaLog.Debug("hls segment",
			slog.String("id", res.ID),
			slog.String("segment", sub),
			slog.Any("error", err))
		me.sendError(w, http.StatusNotFound)
		return
	}
	if ext == "ts" {
		stop := me.startPlayback(r, rend, res)
		defer stop()
	}
	w.Header().Set("Content-Type", contentType)
	me.sendStream(w, r, http.StatusOK, stream, dlna.TransSize, true)
}

// serveImage delivers an image item in the DLNA profile the request
// names, or the large profile of its own format.
func (me *Server) serveImage(w http.ResponseWriter, r *http.Request, res *store.Resource, sub string) {
	profile, ok := dlna.ParseImageRequest(sub)
	if !ok {
		profile = dlna.ImageProfileForMime(res.Mime)
	}
	stream, err := me.Store.Open(r.Context(), res.ID, dlna.ByteRange{}, dlna.TimeRange{})
	if err != nil {
		me.sendStoreError(w, r, res.ID, err)
		return
	}
	src, err := readAllLimited(stream, maxImageSize)
	if err != nil {
		me.sendStoreError(w, r, res.ID, err)
		return
	}
	me.sendImage(w, r, src, profile, nil, false)
}

// serveThumbnail renders the thumbnail of a resource with its overlays.
func (me *Server) serveThumbnail(w http.ResponseWriter, r *http.Request, rend *renderer.Renderer, res *store.Resource, sub string) {
	profile, ok := dlna.ParseImageRequest(sub)
	if !ok {
		profile = dlna.JPEGThumb
	}
	rc, err := me.Store.Thumbnail(r.Context(), res.ID)
	if err != nil {
		me.sendStoreError(w, r, res.ID, err)
		return
	}
	src, err := readAllLimited(rc, maxImageSize)
	if err != nil {
		me.sendStoreError(w, r, res.ID, err)
		return
	}
	var filters []imaging.Filter
	if me.ShowFullyPlayed && rend.Profile.Thumbnails && res.FullyPlayed {
		filters = append(filters, imaging.FullyPlayedOverlay())
	}
	if f := imaging.FlagOverlay(res.Flags...); f != nil {
		filters = append(filters, f)
	}
	var filter imaging.Filter
	if len(filters) > 0 {
		filter = imaging.Chain(filters...)
	}
	me.sendImage(w, r, src, profile, filter, true)
}

func readAllLimited(rc io.ReadCloser, limit int64) ([]byte, error) {
	defer rc.Close()
	return io.ReadAll(io.LimitReader(rc, limit))
}

// sendImage transcodes src to profile and sends the part of it the Range
// header asks for.
func (me *Server) sendImage(w http.ResponseWriter, r *http.Request, src []byte, profile dlna.ImageProfile, filter imaging.Filter, converted bool) {
	out, err := imaging.Transcode(src, profile, filter)
	if err != nil {
		me.mediaLog.Debug("image transcode",
			slog.String("path", r.URL.Path),
			slog.String("profile", profile.Name),
			slog.String("error", err.Error()))
		me.sendError(w, http.StatusUnsupportedMediaType)
		return
	}
	converted = converted || !bytes.Equal(out, src)
	h := w.Header()
	h.Set("Content-Type", profile.Mime)
	h.Set("Accept-Ranges", "bytes")
	h.Set("Expires", futureDate())
	h.Set("Connection", "keep-alive")
	if wantsContentFeatures(r) {
		h.Set(dlna.ContentFeaturesDomain, dlna.ImageContentFeatures(profile, converted))
	}
	br := dlna.ParseByteRange(r.Header.Get("Range"))
	body := out[min(br.Start, int64(len(out))):]
	if end := rangeEnd(br); end > 0 && end >= br.Start {
		body = body[:min(end-br.Start+1, int64(len(body)))]
	}
	stream := store.BytesStream(body, dlna.ByteRange{})
	me.sendStream(w, r, byteRangeStatus(br), stream, int64(len(body)), true)
}

// serveSubtitles sends the external subtitle of an item. Embedded tracks
// can only be reached through a transcode.
func (me *Server) serveSubtitles(w http.ResponseWriter, r *http.Request, rend *renderer.Renderer, res *store.Resource) {
	sub, ok := res.ExternalSubtitle()
	if !ok {
		if len(res.Subtitles) > 0 {
			me.sendError(w, http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}
	data, err := os.ReadFile(sub.Path)
	if err != nil {
		me.mediaLog.Debug("subtitle file",
			slog.String("id", res.ID),
			slog.String("error", err.Error()))
		w.WriteHeader(http.StatusNoContent)
		return
	}
	data, err = subtitle.Prepare(data, sub.Format, rend.Profile.RemoveTagsFromSRT)
	if err != nil {
		me.sendStoreError(w, r, res.ID, err)
		return
	}
	h := w.Header()
	h.Set("Expires", futureDate())
	setTimeSeekHeaders(h, dlna.ParseTimeSeekRange(r.Header.Get(dlna.TimeSeekRangeDomain)), res)
	me.sendMessage(w, r, http.StatusOK, "text/plain", string(data))
}
