package upnpav

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalContainer(t *testing.T) {
	s, err := Marshal(Container{
		Object: Object{
			ID:         "0$1",
			ParentID:   "0",
			Restricted: 1,
			Class:      "object.container.storageFolder",
			Title:      "Videos & Films",
		},
		ChildCount: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, `<container id="0$1" parentID="0" restricted="1" searchable="0" childCount="3">`+
		`<dc:title>Videos &amp; Films</dc:title><upnp:class>object.container.storageFolder</upnp:class></container>`, s)
}

func TestMarshalItem(t *testing.T) {
	s, err := Marshal(Item{
		Object: Object{ID: "7", ParentID: "0$1", Restricted: 1, Class: "object.item.videoItem", Title: "clip"},
		Res: []Resource{{
			ProtocolInfo: "http-get:*:video/mp4:*",
			URL:          "http://host/get/u/media/7",
			Size:         42,
			Duration:     "0:01:00",
		}},
		Captions: []CaptionInfo{{Type: "srt", URL: "http://host/get/u/subtitles/7"}},
	})
	require.NoError(t, err)
	assert.Contains(t, s, `<res protocolInfo="http-get:*:video/mp4:*" size="42" duration="0:01:00">http://host/get/u/media/7</res>`)
	assert.Contains(t, s, `<sec:CaptionInfoEx sec:type="srt">http://host/get/u/subtitles/7</sec:CaptionInfoEx>`)
	assert.NotContains(t, s, "bitrate=")
}

func TestDIDLLite(t *testing.T) {
	d := DIDLLite("<item/>")
	assert.True(t, strings.HasPrefix(d, "<DIDL-Lite "))
	assert.True(t, strings.HasSuffix(d, "<item/></DIDL-Lite>"))
	assert.Contains(t, d, `xmlns:upnp="urn:schemas-upnp-org:metadata-1-0/upnp/"`)
}
