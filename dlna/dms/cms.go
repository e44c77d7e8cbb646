package dms

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/kksharma1618/mediaserver/upnp"
	"github.com/kksharma1618/mediaserver/upnpav"
)

const invalidConnectionReferenceErrorCode = 706

var sourceProtocolInfo = strings.Join([]string{
	"http-get:*:video/mpeg:*",
	"http-get:*:video/mp4:*",
	"http-get:*:video/mp2t:*",
	"http-get:*:video/vnd.dlna.mpeg-tts:*",
	"http-get:*:video/x-matroska:*",
	"http-get:*:video/avi:*",
	"http-get:*:video/x-ms-wmv:*",
	"http-get:*:" + hlsMime + ":*",
	"http-get:*:audio/mpeg:*",
	"http-get:*:audio/mp4:*",
	"http-get:*:audio/flac:*",
	"http-get:*:audio/wav:*",
	"http-get:*:audio/L16:*",
	"http-get:*:image/jpeg:*",
	"http-get:*:image/png:*",
	"http-get:*:image/gif:*",
	"http-get:*:text/srt:*",
	"http-get:*:text/vtt:*",
}, ",")

type connectionInfoRequest struct {
	ConnectionID int
}

func (me *Server) serveConnectionManagerAction(w http.ResponseWriter, r *http.Request) {
	body, err := readActionBody(r)
	if err != nil {
		me.sendError(w, http.StatusBadRequest)
		return
	}
	header := soapAction(r)
	action := header
	if i := strings.LastIndexByte(header, '#'); i >= 0 {
		action = header[i+1:]
	}
	action = strings.Trim(action, `" `)
	me.Metrics.IncSOAPAction("ConnectionManager", action)
	args, err := handleConnectionManager(action, body)
	if err != nil {
		me.log.Debug("connection manager action",
			slog.String("action", action),
			slog.String("error", err.Error()))
	}
	me.sendActionResponse(w, r, upnpav.ConnectionManagerServiceType, action, args, err)
}

func handleConnectionManager(action string, body []byte) ([][2]string, error) {
	switch action {
	case "GetProtocolInfo":
		return [][2]string{
			{"Source", sourceProtocolInfo},
			{"Sink", ""},
		}, nil
	case "GetCurrentConnectionIDs":
		return [][2]string{{"ConnectionIDs", "0"}}, nil
	case "GetCurrentConnectionInfo":
		var req connectionInfoRequest
		if err := upnp.UnmarshalAction(body, &req); err != nil {
			return nil, upnp.Errorf(upnp.InvalidArgsErrorCode, "%s", err)
		}
		if req.ConnectionID != 0 {
			return nil, upnp.Errorf(invalidConnectionReferenceErrorCode, "invalid connection reference %d", req.ConnectionID)
		}
		return [][2]string{
			{"RcsID", "-1"},
			{"AVTransportID", "-1"},
			{"ProtocolInfo", ""},
			{"PeerConnectionManager", ""},
			{"PeerConnectionID", "-1"},
			{"Direction", "Output"},
			{"Status", "OK"},
		}, nil
	}
	return nil, upnp.Errorf(upnp.InvalidActionErrorCode, "invalid action %q", action)
}
