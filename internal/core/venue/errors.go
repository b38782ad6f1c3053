package venue

import (
	"errors"
	"fmt"
)

// Retcode is the normalized venue return code. Values follow the MT5 trade
// server codes; adapters for other vendors map their responses onto these.
type Retcode int

const (
	RetcodeUnknown       Retcode = 0
	RetcodeRejected      Retcode = 10006
	RetcodeDone          Retcode = 10009
	RetcodeInvalid       Retcode = 10013
	RetcodeInvalidVolume Retcode = 10014
	RetcodeInvalidPrice  Retcode = 10015
	RetcodeTimeout       Retcode = 10012
	RetcodeNoMoney       Retcode = 10019
	RetcodeConnection    Retcode = 10031
)

func (c Retcode) String() string {
	switch c {
	case RetcodeDone:
		return "DONE"
	case RetcodeRejected:
		return "REJECTED"
	case RetcodeTimeout:
		return "TIMEOUT"
	case RetcodeConnection:
		return "CONNECTION"
	case RetcodeInvalid:
		return "INVALID"
	case RetcodeInvalidVolume:
		return "INVALID_VOLUME"
	case RetcodeInvalidPrice:
		return "INVALID_PRICE"
	case RetcodeNoMoney:
		return "NO_MONEY"
	default:
		return fmt.Sprintf("RETCODE_%d", int(c))
	}
}

// Transient reports whether an identical resubmission may succeed.
func (c Retcode) Transient() bool {
	return c == RetcodeTimeout || c == RetcodeConnection
}

// ErrUnavailable wraps connect and health failures.
var ErrUnavailable = errors.New("venue unavailable")

// RejectError is a non-transient venue rejection. Message is the venue's
// own text, surfaced verbatim.
type RejectError struct {
	Venue   string
	Code    Retcode
	Message string
}

func (e *RejectError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s rejected: %s (%d)", e.Venue, e.Code, int(e.Code))
	}
	return fmt.Sprintf("%s rejected: %s (%d)", e.Venue, e.Message, int(e.Code))
}
