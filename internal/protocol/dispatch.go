package protocol

// Dispatch inspects an advertisement and routes it to the matching decoder.
//
// Advertisements from other vendors return ErrNotRuuvi; a Ruuvi payload with
// an unrecognized discriminator returns ErrUnknownFormat. There is no
// cross-format fallback: the discriminator selects exactly one decoder, and
// a failure from it is final.
func Dispatch(adv RawAdvertisement) (*Measurement, error) {
	if adv.ManufacturerID != RuuviManufacturerID {
		return nil, ErrNotRuuvi
	}
	if len(adv.Data) == 0 {
		return nil, &DecodeError{Reason: BufferTooShort, Detail: "empty payload"}
	}

	switch Format(adv.Data[0]) {
	case FormatRAWv2:
		return DecodeRAWv2(adv.Data, adv.Address, adv.RSSI)
	case Format6:
		return DecodeFormat6(adv.Data, adv.Address, adv.RSSI)
	case FormatE1:
		return DecodeFormatE1(adv.Data, adv.Address, adv.RSSI)
	default:
		return nil, ErrUnknownFormat
	}
}
