package dlna

import (
	"fmt"
	"math"
	"strings"
)

const (
	TimeSeekRangeDomain   = "TimeSeekRange.dlna.org"
	ContentFeaturesDomain = "ContentFeatures.DLNA.ORG"
	TransferModeDomain    = "TransferMode.DLNA.ORG"
)

const (
	// TransSize is the length reported by resources that are still being
	// produced, so their final size is unknown.
	TransSize int64 = math.MaxInt64 - math.MaxInt32 - 1

	// EndFilePos is the seek position some renderers send to probe the end
	// of a stream. Headers are answered but no body is written.
	EndFilePos int64 = 99999475712
)

// Flags is the 32 significant bits of DLNA.ORG_FLAGS.
type Flags uint32

const (
	FlagSenderPaced             Flags = 1 << 31
	FlagTimeBasedSeek           Flags = 1 << 30
	FlagByteBasedSeek           Flags = 1 << 29
	FlagPlayContainer           Flags = 1 << 28
	FlagS0Increase              Flags = 1 << 27
	FlagSNIncrease              Flags = 1 << 26
	FlagRTSPPause               Flags = 1 << 25
	FlagStreamingTransferMode   Flags = 1 << 24
	FlagInteractiveTransferMode Flags = 1 << 23
	FlagBackgroundTransferMode  Flags = 1 << 22
	FlagConnectionStall         Flags = 1 << 21
	FlagDLNAV15                 Flags = 1 << 20
)

func (f Flags) String() string {
	return fmt.Sprintf("%08x%024x", uint32(f), 0)
}

type ContentFeatures struct {
	ProfileName     string
	SupportTimeSeek bool
	SupportRange    bool
	// Transcoded sets DLNA.ORG_CI.
	Transcoded bool
	Flags      Flags
}

func BinaryInt(b bool) uint {
	if b {
		return 1
	}
	return 0
}

func (cf ContentFeatures) String() (ret string) {
	params := make([]string, 0, 3)
	if cf.ProfileName != "" {
		params = append(params, "DLNA.ORG_PN="+cf.ProfileName)
	}
	params = append(params, fmt.Sprintf(
		"DLNA.ORG_OP=%b%b;DLNA.ORG_CI=%b",
		BinaryInt(cf.SupportTimeSeek),
		BinaryInt(cf.SupportRange),
		BinaryInt(cf.Transcoded)))
	if cf.Flags != 0 {
		params = append(params, "DLNA.ORG_FLAGS="+cf.Flags.String())
	}
	return strings.Join(params, ";")
}

// HLSContentFeatures is announced for the HLS master playlist: time seek
// only, transcoded, streaming.
const HLSContentFeatures = "DLNA.ORG_OP=10;DLNA.ORG_CI=01;DLNA.ORG_FLAGS=01700000000000000000000000000000"

// ProtocolInfo renders an http-get protocolInfo for a res element.
func ProtocolInfo(mime string, cf ContentFeatures) string {
	return fmt.Sprintf("http-get:*:%s:%s", mime, cf.String())
}
