package protocol

import (
	"errors"
	"fmt"
)

// DecodeReason classifies why a payload failed to decode.
type DecodeReason int

const (
	// BufferTooShort: the payload is shorter than the format's fixed length.
	BufferTooShort DecodeReason = iota
	// InvalidDiscriminator: the leading byte does not match the decoder.
	InvalidDiscriminator
	// ReservedSentinel: a mandatory field holds its reserved "not available"
	// bit pattern, leaving the sample unidentifiable.
	ReservedSentinel
)

func (r DecodeReason) String() string {
	switch r {
	case BufferTooShort:
		return "buffer too short"
	case InvalidDiscriminator:
		return "invalid discriminator"
	case ReservedSentinel:
		return "reserved sentinel"
	default:
		return "unknown"
	}
}

// DecodeError reports a payload that could not be decoded. Always non-fatal:
// the caller logs it and drops the advertisement.
type DecodeError struct {
	Format Format
	Reason DecodeReason
	Detail string
}

func (e *DecodeError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("decode %s: %s: %s", e.Format, e.Reason, e.Detail)
	}
	return fmt.Sprintf("decode %s: %s", e.Format, e.Reason)
}

// IsDecodeError reports whether err is a DecodeError and, if so, its reason.
func IsDecodeError(err error) (DecodeReason, bool) {
	var de *DecodeError
	if errors.As(err, &de) {
		return de.Reason, true
	}
	return 0, false
}

// Dispatcher outcomes that are not decode failures: the advertisement simply
// is not addressed to us.
var (
	ErrNotRuuvi      = errors.New("not a Ruuvi manufacturer ID")
	ErrUnknownFormat = errors.New("unknown format discriminator")
)
