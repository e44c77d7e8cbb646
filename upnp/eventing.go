package upnp

import (
	"bufio"
	"context"
	"encoding/xml"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

const (
	EventNamespace   = "urn:schemas-upnp-org:event-1-0"
	SubscribeTimeout = "Second-300"
)

// Property is one evented state variable.
type Property struct {
	Name  string
	Value string
}

// PropertySet renders a GENA propertyset. serviceType may be empty.
func PropertySet(serviceType string, props ...Property) string {
	var sb strings.Builder
	sb.WriteString(`<e:propertyset xmlns:e="` + EventNamespace + `"`)
	if serviceType != "" {
		sb.WriteString(` xmlns:s="` + serviceType + `"`)
	}
	sb.WriteString(">")
	for _, p := range props {
		sb.WriteString("<e:property>")
		sb.WriteString("<" + p.Name + ">")
		xml.EscapeText(&sb, []byte(p.Value))
		sb.WriteString("</" + p.Name + ">")
		sb.WriteString("</e:property>")
	}
	sb.WriteString("</e:propertyset>")
	return sb.String()
}

// ParseCallback extracts the first delivery URL from a CALLBACK header value
// such as "<http://10.0.0.5:49152/evt>".
func ParseCallback(cb string) (*url.URL, error) {
	cb = strings.NewReplacer("<", "", ">", "").Replace(strings.TrimSpace(cb))
	if i := strings.IndexAny(cb, " \t"); i >= 0 {
		cb = cb[:i]
	}
	u, err := url.Parse(cb)
	if err != nil {
		return nil, err
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("callback %q has no host", cb)
	}
	return u, nil
}

// SendNotify opens a fresh connection to the callback host and writes the
// initial event NOTIFY for a subscription. The request carries no body.
func SendNotify(ctx context.Context, callback *url.URL, uri, sid string) error {
	port := callback.Port()
	if port == "" {
		port = "80"
	}
	addr := net.JoinHostPort(callback.Hostname(), port)
	d := net.Dialer{Timeout: 5 * time.Second}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	w := bufio.NewWriter(conn)
	fmt.Fprintf(w, "NOTIFY /%s HTTP/1.1%s", strings.TrimPrefix(uri, "/"), CRLF)
	fmt.Fprintf(w, "SID: %s%s", sid, CRLF)
	fmt.Fprintf(w, "SEQ: 0%s", CRLF)
	fmt.Fprintf(w, "NT: upnp:event%s", CRLF)
	fmt.Fprintf(w, "NTS: upnp:propchange%s", CRLF)
	fmt.Fprintf(w, "HOST: %s%s", addr, CRLF)
	w.WriteString(CRLF)
	return w.Flush()
}
