package dms

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"golang.org/x/net/netutil"

	"github.com/kksharma1618/mediaserver/logging"
	"github.com/kksharma1618/mediaserver/metrics"
	"github.com/kksharma1618/mediaserver/misc"
	"github.com/kksharma1618/mediaserver/playback"
	"github.com/kksharma1618/mediaserver/renderer"
	"github.com/kksharma1618/mediaserver/store"
)

// Version is stamped at build time.
var Version = "dev"

const (
	protocolPath = "/upnp"
	mediaPath    = "/get"
	rootDescPath = "/rootDesc.xml"

	dmpProfileHeader = "X-PANASONIC-DMP-Profile"

	defaultFriendlyName = "Media Server"
	notifyTimeout       = 10 * time.Second
)

var serverField = fmt.Sprintf("%s/%s UPnP/1.0 DLNADOC/1.50 MediaServer/%s",
	runtime.GOOS, misc.OSVersion(), Version)

// Bookmarks persists resume points set by X_SetBookmark.
type Bookmarks interface {
	SetBookmark(ctx context.Context, path string, userID int, position time.Duration) error
}

// Server is the UPnP MediaServer: device and service descriptions, the
// ContentDirectory and ConnectionManager control points, eventing and the
// media path. Fill in the exported fields, then call Init.
type Server struct {
	FriendlyName string
	// UDN is "uuid:..." and doubles as the event subscription id.
	UDN       string
	Store     store.Store
	Counter   *store.UpdateCounter
	Renderers *renderer.Registry
	// Bookmarks may be nil, in which case X_SetBookmark is accepted and
	// dropped.
	Bookmarks Bookmarks
	Sessions  *playback.Sessions
	Metrics   *metrics.Metrics
	Logger    *slog.Logger

	DisableSubtitles bool
	ShowFullyPlayed  bool
	MaxConnections   int
	// MetricsPath is only routed when Metrics is set.
	MetricsPath string

	log      *slog.Logger
	cdsLog   *slog.Logger
	mediaLog *slog.Logger

	rootDescXML []byte
	icons       map[string]icon
	router      chi.Router
	httpServer  *http.Server
	// notifies tracks fire-and-forget event deliveries.
	notifies sync.WaitGroup
}

func (me *Server) Init() error {
	if me.Store == nil {
		return errors.New("dms: no store")
	}
	if me.Logger == nil {
		me.Logger = slog.Default()
	}
	me.log = logging.WithComponent(me.Logger, "dms")
	me.cdsLog = logging.WithComponent(me.Logger, "cds")
	me.mediaLog = logging.WithComponent(me.Logger, "media")
	if me.FriendlyName == "" {
		me.FriendlyName = defaultFriendlyName
	}
	if me.UDN == "" {
		me.UDN = "uuid:" + uuid.NewString()
	}
	if me.Counter == nil {
		me.Counter = store.NewUpdateCounter(0, nil)
	}
	if me.Renderers == nil {
		me.Renderers = renderer.NewRegistry(nil, renderer.DefaultProfile())
	}
	if me.Sessions == nil {
		me.Sessions = playback.NewSessions(nil)
	}
	var err error
	if me.icons, err = makeIcons(); err != nil {
		return fmt.Errorf("dms: icons: %w", err)
	}
	if me.rootDescXML, err = me.rootDescription(); err != nil {
		return fmt.Errorf("dms: root description: %w", err)
	}
	me.router = me.routes()
	me.httpServer = &http.Server{
		Handler:           me.router,
		ReadHeaderTimeout: 30 * time.Second,
	}
	return nil
}

func init() {
	// GENA methods.
	chi.RegisterMethod("SUBSCRIBE")
	chi.RegisterMethod("UNSUBSCRIBE")
	chi.RegisterMethod("NOTIFY")
}

func (me *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(logging.RequestLogger(me.log))
	r.Use(metrics.RequestMiddleware(me.Metrics))
	r.Use(serverHeader)

	r.Group(func(r chi.Router) {
		r.Use(me.resolveRenderer)
		r.Get(rootDescPath, me.serveRootDesc)
		r.HandleFunc(protocolPath+"/*", me.serveProtocol)
	})
	r.Get(mediaPath+"/*", me.serveMediaRequest)
	r.Head(mediaPath+"/*", me.serveMediaRequest)
	if me.Metrics != nil && me.MetricsPath != "" {
		r.Handle(me.MetricsPath, me.Metrics.Handler())
	}
	return r
}

// Handler is the server's router. Init must have been called.
func (me *Server) Handler() http.Handler {
	return me.router
}

// Serve accepts connections on l until Shutdown. At most MaxConnections are
// served at once.
func (me *Server) Serve(l net.Listener) error {
	if me.MaxConnections > 0 {
		l = netutil.LimitListener(l, me.MaxConnections)
	}
	me.log.Info("serving",
		slog.String("addr", l.Addr().String()),
		slog.String("friendly_name", me.FriendlyName),
		slog.String("udn", me.UDN))
	err := me.httpServer.Serve(l)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting requests and waits for in-flight ones and
// pending event deliveries.
func (me *Server) Shutdown(ctx context.Context) error {
	err := me.httpServer.Shutdown(ctx)
	me.notifies.Wait()
	return err
}

func serverHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", serverField)
		next.ServeHTTP(w, r)
	})
}

type rendererKey struct{}

// resolveRenderer identifies the client of a protocol request by address
// and User-Agent. Disallowed renderers get their connection dropped.
func (me *Server) resolveRenderer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rend := me.Renderers.Resolve(r.RemoteAddr, r.UserAgent())
		rend.AddDMPProfiles(r.Header.Get(dmpProfileHeader))
		if !rend.Allowed() {
			me.log.Debug("renderer not allowed",
				slog.String("remote", r.RemoteAddr),
				slog.String("renderer", rend.Profile.Name))
			closeConnection(w)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), rendererKey{}, rend)))
	})
}

func rendererFrom(r *http.Request) *renderer.Renderer {
	if rend, ok := r.Context().Value(rendererKey{}).(*renderer.Renderer); ok {
		return rend
	}
	return &renderer.Renderer{Profile: renderer.DefaultProfile()}
}

// closeConnection drops the client without a response. Writers that can't
// be hijacked get a bare 403.
func closeConnection(w http.ResponseWriter) {
	conn, _, err := http.NewResponseController(w).Hijack()
	if err != nil {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	conn.Close()
}

// startPlayback records a session for the duration of a stream. When it
// ends, the renderer shows the latest of its streams still running.
func (me *Server) startPlayback(r *http.Request, rend *renderer.Renderer, res *store.Resource) (stop func()) {
	client := r.RemoteAddr
	if host, _, err := net.SplitHostPort(client); err == nil {
		client = host
	}
	_, end := me.Sessions.Start(client, rend.UUID, res.ID, res.Title)
	rend.SetNowPlaying(res.Title)
	return func() {
		end()
		playing := ""
		for _, sess := range me.Sessions.Snapshot() {
			if sess.Renderer == rend.UUID {
				playing = sess.Title
			}
		}
		rend.SetNowPlaying(playing)
	}
}
