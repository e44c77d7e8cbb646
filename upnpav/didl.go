package upnpav

import "encoding/xml"

const (
	didlHeader = `<DIDL-Lite` +
		` xmlns="urn:schemas-upnp-org:metadata-1-0/DIDL-Lite/"` +
		` xmlns:dc="http://purl.org/dc/elements/1.1/"` +
		` xmlns:upnp="urn:schemas-upnp-org:metadata-1-0/upnp/"` +
		` xmlns:dlna="urn:schemas-dlna-org:metadata-1-0/"` +
		` xmlns:sec="http://www.sec.co.kr/">`
	didlFooter = `</DIDL-Lite>`
)

// DIDLLite wraps already marshalled objects in a DIDL-Lite document.
func DIDLLite(chardata string) string {
	return didlHeader + chardata + didlFooter
}

// Marshal renders a single Container or Item.
func Marshal(obj interface{}) (string, error) {
	b, err := xml.Marshal(obj)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
