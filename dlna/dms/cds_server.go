package dms

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kksharma1618/mediaserver/renderer"
	"github.com/kksharma1618/mediaserver/store"
	"github.com/kksharma1618/mediaserver/upnp"
	"github.com/kksharma1618/mediaserver/upnpav"
)

const maxActionBody = 1 << 20

const (
	sortCapabilities   = "upnp:class,dc:title,dc:creator,upnp:artist,upnp:album,upnp:genre"
	searchCapabilities = "dc:creator,dc:date,dc:title,upnp:album,upnp:actor,upnp:artist,upnp:class,upnp:genre,@id,@parentID,@refID"
)

// Actions in the order the SOAPACTION header is matched against them.
var contentDirectoryActions = []string{
	"GetSystemUpdateID",
	"X_SetBookmark",
	"X_GetFeatureList",
	"GetSortCapabilities",
	"GetSearchCapabilities",
	"Browse",
	"Search",
}

// serveProtocol dispatches everything under the protocol path: icons,
// service descriptions, control and eventing.
func (me *Server) serveProtocol(w http.ResponseWriter, r *http.Request) {
	p := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	get := r.Method == http.MethodGet || r.Method == http.MethodHead
	switch {
	case get && isIconPath(p):
		me.serveIcon(w, r, p)
	case get && strings.HasSuffix(p, "ContentDirectory/desc"):
		me.serveServiceDesc(w, r, contentDirectorySCPD)
	case get && strings.HasSuffix(p, "ConnectionManager/desc"):
		me.serveServiceDesc(w, r, connectionManagerSCPD)
	case r.Method == http.MethodPost && strings.HasSuffix(p, "ContentDirectory/action"):
		me.serveContentDirectoryAction(w, r)
	case r.Method == http.MethodPost && strings.HasSuffix(p, "ConnectionManager/action"):
		me.serveConnectionManagerAction(w, r)
	case r.Method == "SUBSCRIBE":
		me.subscribe(w, r)
	case r.Method == "UNSUBSCRIBE":
		w.WriteHeader(http.StatusOK)
	case r.Method == "NOTIFY":
		me.notify(w, r)
	default:
		me.sendError(w, http.StatusNotFound)
	}
}

// soapAction is the SOAPACTION header, or CALLBACK for clients that put
// the action there.
func soapAction(r *http.Request) string {
	if a := r.Header.Get("SOAPACTION"); a != "" {
		return a
	}
	return r.Header.Get("CALLBACK")
}

// matchAction returns the ContentDirectory action named by a SOAPACTION
// value, or "" when it names none this server implements.
func matchAction(header string) string {
	lower := strings.ToLower(header)
	for _, a := range contentDirectoryActions {
		if strings.Contains(lower, "contentdirectory:1#"+strings.ToLower(a)) {
			return a
		}
	}
	return ""
}

func readActionBody(r *http.Request) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r.Body, maxActionBody))
}

func (me *Server) serveContentDirectoryAction(w http.ResponseWriter, r *http.Request) {
	body, err := readActionBody(r)
	if err != nil {
		me.cdsLog.Debug("reading action body", slog.String("error", err.Error()))
		me.sendError(w, http.StatusBadRequest)
		return
	}
	action := matchAction(soapAction(r))
	if action == "" {
		// Clients probing for actions we don't have get an empty event
		// rather than a fault.
		me.cdsLog.Debug("unhandled action", slog.String("soapaction", soapAction(r)))
		me.sendMessage(w, r, http.StatusOK, "text/xml", me.notifyBody())
		return
	}
	me.Metrics.IncSOAPAction("ContentDirectory", action)
	rend := rendererFrom(r)
	args, err := me.handleContentDirectory(r.Context(), action, body, rend, r.Host)
	me.sendActionResponse(w, r, upnpav.ContentDirectoryServiceType, action, args, err)
}

func (me *Server) sendActionResponse(w http.ResponseWriter, r *http.Request, serviceType, action string, args [][2]string, err error) {
	if err != nil {
		ue := upnp.ConvertError(err)
		level := slog.LevelDebug
		var typed *upnp.Error
		if !errors.As(err, &typed) {
			level = slog.LevelWarn
		}
		me.cdsLog.Log(r.Context(), level, "action failed",
			slog.String("action", action),
			slog.String("error", err.Error()))
		me.sendMessage(w, r, http.StatusInternalServerError, upnp.ContentTypeXML, upnp.Fault(ue))
		return
	}
	me.sendMessage(w, r, http.StatusOK, upnp.ContentTypeXML,
		upnp.Envelope(upnp.ActionResponse(serviceType, action, args)))
}

func (me *Server) handleContentDirectory(ctx context.Context, action string, body []byte, rend *renderer.Renderer, host string) ([][2]string, error) {
	switch action {
	case "GetSystemUpdateID":
		return [][2]string{{"Id", me.updateIDString()}}, nil
	case "X_SetBookmark":
		return nil, me.setBookmark(ctx, body, rend)
	case "X_GetFeatureList":
		return [][2]string{{"FeatureList", featureList(me.Store.ID())}}, nil
	case "GetSortCapabilities":
		return [][2]string{{"SortCaps", sortCapabilities}}, nil
	case "GetSearchCapabilities":
		caps := ""
		if rend.Profile.SearchCapsEnabled {
			caps = searchCapabilities
		}
		return [][2]string{{"SearchCaps", caps}}, nil
	case "Browse", "Search":
		var req browseRequest
		if err := upnp.UnmarshalAction(body, &req); err != nil {
			return nil, upnp.Errorf(upnp.InvalidArgsErrorCode, "%s: %s", action, err)
		}
		return me.browseSearch(ctx, rend, req, body, action == "Search", host)
	}
	return nil, upnp.Errorf(upnp.InvalidActionErrorCode, "unknown action %q", action)
}

func (me *Server) updateIDString() string {
	return strconv.FormatUint(me.Counter.Snapshot(), 10)
}

type setBookmarkRequest struct {
	ObjectID  string
	PosSecond int
}

// pathResolver is implemented by stores backed by files.
type pathResolver interface {
	PathOf(id string) (string, error)
}

// setBookmark stores the resume point of an object for the renderer's
// user. A position of 0 is what players send when they start, not a
// bookmark, and is ignored.
func (me *Server) setBookmark(ctx context.Context, body []byte, rend *renderer.Renderer) error {
	var req setBookmarkRequest
	if err := upnp.UnmarshalAction(body, &req); err != nil {
		return upnp.Errorf(upnp.InvalidArgsErrorCode, "X_SetBookmark: %s", err)
	}
	if req.PosSecond == 0 {
		return nil
	}
	res, err := me.Store.Resource(ctx, req.ObjectID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return upnp.Errorf(upnpav.NoSuchObjectErrorCode, "no such object %q", req.ObjectID)
		}
		return err
	}
	p := res.Path
	if pr, ok := me.Store.(pathResolver); ok {
		if fp, err := pr.PathOf(res.ID); err == nil {
			p = fp
		}
	}
	if p == "" {
		return upnp.Errorf(upnp.ArgumentValueInvalidErrorCode, "object %q has no file", req.ObjectID)
	}
	p = canonicalPath(p)
	if me.Bookmarks == nil {
		return nil
	}
	if err := me.Bookmarks.SetBookmark(ctx, p, rend.Profile.UserID, time.Duration(req.PosSecond)*time.Second); err != nil {
		return fmt.Errorf("saving bookmark: %w", err)
	}
	me.cdsLog.Debug("bookmark set",
		slog.String("path", p),
		slog.Int("user_id", rend.Profile.UserID),
		slog.Int("seconds", req.PosSecond))
	return nil
}

func canonicalPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		p = abs
	}
	if real, err := filepath.EvalSymlinks(p); err == nil {
		p = real
	}
	return p
}

// featureList is the Samsung X_GetFeatureList document. It is escaped once
// more when placed in the response.
func featureList(rootID string) string {
	var sb strings.Builder
	sb.WriteString(`<Features xmlns="urn:schemas-upnp-org:av:avs" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" xsi:schemaLocation="urn:schemas-upnp-org:av:avs http://www.upnp.org/schemas/av/avs.xsd">`)
	sb.WriteString(upnp.CRLF)
	sb.WriteString(`<Feature name="samsung.com_BASICVIEW" version="1">`)
	sb.WriteString(upnp.CRLF)
	for _, class := range []string{"object.item.audioItem", "object.item.videoItem", "object.item.imageItem"} {
		fmt.Fprintf(&sb, `<container id="%s" type="%s"/>`, rootID, class)
		sb.WriteString(upnp.CRLF)
	}
	sb.WriteString(`</Feature>`)
	sb.WriteString(upnp.CRLF)
	sb.WriteString(`</Features>`)
	return sb.String()
}
