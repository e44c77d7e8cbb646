package dms

import (
	"fmt"
	"net/url"
	"path"

	"github.com/kksharma1618/mediaserver/dlna"
	"github.com/kksharma1618/mediaserver/misc"
	"github.com/kksharma1618/mediaserver/renderer"
	"github.com/kksharma1618/mediaserver/store"
	"github.com/kksharma1618/mediaserver/upnpav"
)

const (
	kindMedia     = "media"
	kindThumbnail = "thumbnail"
	kindSubtitles = "subtitles"

	hlsMasterName = "_transcoded_to.m3u8"
	hlsMime       = "application/vnd.apple.mpegurl"
	hlsEngine     = "hls"
)

const streamingFlags = dlna.FlagStreamingTransferMode |
	dlna.FlagBackgroundTransferMode |
	dlna.FlagConnectionStall |
	dlna.FlagDLNAV15

// mediaURL addresses a resource on the media path for one renderer.
func mediaURL(host, rendererUUID, kind, id, sub string) string {
	return (&url.URL{
		Scheme: "http",
		Host:   host,
		Path:   path.Join(mediaPath, rendererUUID, kind, id, sub),
	}).String()
}

// mediaBaseURL is the prefix playlists append "<id>/..." to.
func mediaBaseURL(host, rendererUUID string) string {
	return (&url.URL{
		Scheme: "http",
		Host:   host,
		Path:   path.Join(mediaPath, rendererUUID, kindMedia) + "/",
	}).String()
}

// Turns the given resource into a DIDL-Lite container or item as rend
// should see it. fakeParent, when set, replaces the parent id.
func (me *Server) didlObject(res *store.Resource, rend *renderer.Renderer, host, fakeParent string) interface{} {
	obj := upnpav.Object{
		ID:         res.ID,
		ParentID:   res.ParentID,
		Restricted: 1,
		Class:      store.Class(res),
		Title:      res.Title,
	}
	if fakeParent != "" {
		obj.ParentID = fakeParent
	}
	if res.IsContainer() {
		obj.Searchable = 1
		return upnpav.Container{Object: obj, ChildCount: res.ChildCount}
	}
	obj.Creator = res.Artist
	obj.Artist = res.Artist
	obj.Album = res.Album
	obj.Genre = res.Genre
	obj.Date = res.Date

	var thumbURL string
	if res.HasThumbnail && rend.Profile.Thumbnails {
		thumbURL = mediaURL(host, rend.UUID, kindThumbnail, res.ID, dlna.JPEGThumb.Name+"_thumb.jpg")
		obj.Icon = thumbURL
		obj.AlbumArtURI = thumbURL
	}
	item := upnpav.Item{
		Object: obj,
		// Capacity: main, HLS, thumbnail and a subtitle.
		Res: make([]upnpav.Resource, 0, 4),
	}
	item.Res = append(item.Res, mainResource(res, mediaURL(host, rend.UUID, kindMedia, res.ID, "")))
	if res.MediaType == store.MediaVideo && res.Duration > 0 && rend.SupportsEngine(hlsEngine) {
		item.Res = append(item.Res, upnpav.Resource{
			URL:          mediaURL(host, rend.UUID, kindMedia, res.ID, hlsMasterName),
			ProtocolInfo: "http-get:*:" + hlsMime + ":" + dlna.HLSContentFeatures,
			Duration:     misc.FormatDurationSexagesimal(misc.SecondsDuration(res.Duration)),
		})
	}
	if thumbURL != "" {
		item.Res = append(item.Res, upnpav.Resource{
			URL:          thumbURL,
			ProtocolInfo: "http-get:*:" + dlna.JPEGThumb.Mime + ":" + dlna.ImageContentFeatures(dlna.JPEGThumb, true),
		})
	}
	if sub, ok := me.sidecarSubtitle(res, rend); ok {
		subURL := mediaURL(host, rend.UUID, kindSubtitles, res.ID, "subtitle."+sub.Format)
		item.Res = append(item.Res, upnpav.Resource{
			URL:          subURL,
			ProtocolInfo: "http-get:*:text/" + sub.Format + ":*",
		})
		item.Captions = append(item.Captions, upnpav.CaptionInfo{Type: sub.Format, URL: subURL})
	}
	return item
}

func mainResource(res *store.Resource, u string) upnpav.Resource {
	r := upnpav.Resource{
		URL:     u,
		Bitrate: uint(max(res.Bitrate, 0)),
	}
	if res.MediaType == store.MediaImage {
		r.ProtocolInfo = "http-get:*:" + res.Mime + ":" +
			dlna.ImageContentFeatures(dlna.ImageProfileForMime(res.Mime), false)
	} else {
		r.ProtocolInfo = dlna.ProtocolInfo(res.Mime, dlna.ContentFeatures{
			SupportRange:    res.Engine == "",
			SupportTimeSeek: res.Duration > 0,
			Transcoded:      res.Engine != "",
			Flags:           streamingFlags,
		})
	}
	if res.Engine == "" && res.Size > 0 {
		r.Size = uint64(res.Size)
	}
	if res.Duration > 0 {
		r.Duration = misc.FormatDurationSexagesimal(misc.SecondsDuration(res.Duration))
	}
	if res.Width > 0 && res.Height > 0 {
		r.Resolution = fmt.Sprintf("%dx%d", res.Width, res.Height)
	}
	if len(res.AudioTracks) > 0 {
		r.AudioChannel = res.AudioTracks[0].Channels
	}
	return r
}

// sidecarSubtitle is the external subtitle offered next to a video, if
// the renderer takes its format.
func (me *Server) sidecarSubtitle(res *store.Resource, rend *renderer.Renderer) (store.Subtitle, bool) {
	if me.DisableSubtitles || res.MediaType != store.MediaVideo {
		return store.Subtitle{}, false
	}
	sub, ok := res.ExternalSubtitle()
	if !ok || !rend.SupportsSubtitleFormat(sub.Format) {
		return store.Subtitle{}, false
	}
	return sub, true
}
