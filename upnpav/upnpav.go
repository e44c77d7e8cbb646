// Package upnpav holds the DIDL-Lite object model returned by Browse and
// Search.
package upnpav

import (
	"encoding/xml"
)

const (
	NoSuchObjectErrorCode = 701

	ContentDirectoryServiceType  = "urn:schemas-upnp-org:service:ContentDirectory:1"
	ConnectionManagerServiceType = "urn:schemas-upnp-org:service:ConnectionManager:1"
)

// Object carries the properties shared by items and containers.
type Object struct {
	ID         string `xml:"id,attr" json:"id"`
	ParentID   string `xml:"parentID,attr" json:"parentID"`
	Restricted int    `xml:"restricted,attr" json:"restricted"`
	Searchable int    `xml:"searchable,attr" json:"searchable"`

	Title   string `xml:"dc:title" json:"dc:title"`
	Creator string `xml:"dc:creator,omitempty" json:"dc:creator,omitempty"`
	Date    string `xml:"dc:date,omitempty" json:"dc:date,omitempty"`
	Class   string `xml:"upnp:class" json:"upnp:class"`
	Icon    string `xml:"upnp:icon,omitempty" json:"upnp:icon,omitempty"`

	Artist      string `xml:"upnp:artist,omitempty" json:"upnp:artist,omitempty"`
	Album       string `xml:"upnp:album,omitempty" json:"upnp:album,omitempty"`
	Genre       string `xml:"upnp:genre,omitempty" json:"upnp:genre,omitempty"`
	AlbumArtURI string `xml:"upnp:albumArtURI,omitempty" json:"upnp:albumArtURI,omitempty"`
}

type Container struct {
	Object
	XMLName    xml.Name `xml:"container" json:"container"`
	ChildCount int      `xml:"childCount,attr" json:"childCount"`
}

type Item struct {
	Object
	XMLName  xml.Name `xml:"item" json:"item"`
	Res      []Resource
	Captions []CaptionInfo `json:"captions,omitempty"`
}

// Resource is one <res> of an item: a URL plus the protocolInfo a renderer
// matches against its sink capabilities.
type Resource struct {
	XMLName      xml.Name `xml:"res" json:"res"`
	ProtocolInfo string   `xml:"protocolInfo,attr" json:"protocolInfo"`
	URL          string   `xml:",chardata" json:"url"`
	Size         uint64   `xml:"size,attr,omitempty" json:"size,omitempty"`
	Duration     string   `xml:"duration,attr,omitempty" json:"duration,omitempty"`
	Bitrate      uint     `xml:"bitrate,attr,omitempty" json:"bitrate,omitempty"`
	Resolution   string   `xml:"resolution,attr,omitempty" json:"resolution,omitempty"`
	AudioChannel int      `xml:"nrAudioChannels,attr,omitempty" json:"nrAudioChannels,omitempty"`
}

// CaptionInfo is the Samsung sidecar subtitle hint.
type CaptionInfo struct {
	XMLName xml.Name `xml:"sec:CaptionInfoEx" json:"-"`
	Type    string   `xml:"sec:type,attr" json:"type"`
	URL     string   `xml:",chardata" json:"url"`
}
