package upnp

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"strings"
)

const (
	CRLF = "\r\n"

	XMLHeader      = `<?xml version="1.0" encoding="utf-8"?>`
	EnvelopeHeader = `<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/" s:encodingStyle="http://schemas.xmlsoap.org/soap/encoding/"><s:Body>`
	EnvelopeFooter = `</s:Body></s:Envelope>`

	ContentTypeXML = `text/xml; charset="utf-8"`
)

var ErrNoAction = errors.New("soap: envelope has no action element")

type soapBody struct {
	Content []byte `xml:",innerxml"`
}

type soapEnvelope struct {
	XMLName xml.Name `xml:"Envelope"`
	Body    soapBody `xml:"Body"`
}

// Envelope wraps an action response payload in the fixed SOAP envelope.
func Envelope(payload string) string {
	var sb strings.Builder
	sb.WriteString(XMLHeader)
	sb.WriteString(CRLF)
	sb.WriteString(EnvelopeHeader)
	sb.WriteString(CRLF)
	sb.WriteString(payload)
	sb.WriteString(CRLF)
	sb.WriteString(EnvelopeFooter)
	sb.WriteString(CRLF)
	return sb.String()
}

// UnmarshalAction decodes the first element inside the SOAP body of raw into
// v. Field binding is by local name, so clients that declare the action
// namespace prefix on the envelope instead of the action still decode.
func UnmarshalAction(raw []byte, v interface{}) error {
	var env soapEnvelope
	if err := xml.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("soap: decoding envelope: %w", err)
	}
	if len(bytes.TrimSpace(env.Body.Content)) == 0 {
		return ErrNoAction
	}
	if err := xml.Unmarshal(env.Body.Content, v); err != nil {
		return fmt.Errorf("soap: decoding action: %w", err)
	}
	return nil
}

// ActionResponse renders <u:{action}Response> holding args in order.
func ActionResponse(serviceType, action string, args [][2]string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, `<u:%sResponse xmlns:u="%s">`, action, serviceType)
	for _, a := range args {
		sb.WriteString(CRLF)
		sb.WriteString("<" + a[0] + ">")
		xml.EscapeText(&sb, []byte(a[1]))
		sb.WriteString("</" + a[0] + ">")
	}
	if len(args) > 0 {
		sb.WriteString(CRLF)
	}
	fmt.Fprintf(&sb, `</u:%sResponse>`, action)
	return sb.String()
}

// Fault renders a complete SOAP envelope reporting err.
func Fault(err *Error) string {
	detail, _ := xml.Marshal(err)
	var sb strings.Builder
	sb.WriteString(`<s:Fault><faultcode>s:Client</faultcode><faultstring>UPnPError</faultstring><detail>`)
	sb.Write(detail)
	sb.WriteString(`</detail></s:Fault>`)
	return Envelope(sb.String())
}
