package upnp

import (
	"encoding/xml"
	"errors"
	"fmt"
)

const (
	InvalidActionErrorCode        = 401
	InvalidArgsErrorCode          = 402
	ActionFailedErrorCode         = 501
	ArgumentValueInvalidErrorCode = 600
)

// Error is a UPnP control error, carried to clients inside a SOAP fault.
type Error struct {
	XMLName xml.Name `xml:"urn:schemas-upnp-org:control-1-0 UPnPError"`
	Code    uint     `xml:"errorCode"`
	Desc    string   `xml:"errorDescription"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d %s", e.Code, e.Desc)
}

func Errorf(code uint, tpl string, args ...interface{}) *Error {
	return &Error{Code: code, Desc: fmt.Sprintf(tpl, args...)}
}

// ConvertError returns err as a *Error, wrapping anything that isn't one as
// an ActionFailed error so backend messages never reach the client.
func ConvertError(err error) *Error {
	if err == nil {
		return nil
	}
	var ue *Error
	if errors.As(err, &ue) {
		return ue
	}
	return Errorf(ActionFailedErrorCode, "action failed")
}
