package dms

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/kksharma1618/mediaserver/upnp"
	"github.com/kksharma1618/mediaserver/upnpav"
)

// subscribe answers a GENA SUBSCRIBE with the device UDN as SID and the
// initial property set. When the request names a callback, the initial
// event is also pushed there on a connection of its own.
func (me *Server) subscribe(w http.ResponseWriter, r *http.Request) {
	h := w.Header()
	h.Set("SID", me.UDN)
	h.Set("TIMEOUT", upnp.SubscribeTimeout)
	if cb := r.Header.Get("CALLBACK"); cb != "" {
		me.pushInitialEvent(cb)
	}
	body := upnp.PropertySet(upnpav.ContentDirectoryServiceType,
		upnp.Property{Name: "TransferIDs"},
		upnp.Property{Name: "ContainerUpdateIDs"},
		upnp.Property{Name: "SystemUpdateID", Value: me.updateIDString()},
	)
	me.sendMessage(w, r, http.StatusOK, upnp.ContentTypeXML, body)
}

func (me *Server) pushInitialEvent(callback string) {
	u, err := upnp.ParseCallback(callback)
	if err != nil {
		me.log.Debug("bad event callback",
			slog.String("callback", callback),
			slog.String("error", err.Error()))
		return
	}
	me.notifies.Add(1)
	go func() {
		defer me.notifies.Done()
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := upnp.SendNotify(ctx, u, u.Path, me.UDN); err != nil {
			me.log.Debug("sending event",
				slog.String("callback", u.String()),
				slog.String("error", err.Error()))
		}
	}()
}

func (me *Server) notifyBody() string {
	return upnp.PropertySet("",
		upnp.Property{Name: "TransferIDs"},
		upnp.Property{Name: "ContainerUpdateIDs"},
		upnp.Property{Name: "SystemUpdateID", Value: me.updateIDString()},
	) + upnp.CRLF
}

// notify answers a NOTIFY with an empty property change carrying the
// current SystemUpdateID.
func (me *Server) notify(w http.ResponseWriter, r *http.Request) {
	h := w.Header()
	h.Set("NT", "upnp:event")
	h.Set("NTS", "upnp:propchange")
	h.Set("SID", me.UDN)
	h.Set("SEQ", "0")
	me.sendMessage(w, r, http.StatusOK, upnp.ContentTypeXML, me.notifyBody())
}
