package discovery

import (
	"encoding/binary"
	"errors"
)

// mintLayoutSize is the fixed SPL Mint account size: a 36-byte
// mint-authority COption, an 8-byte supply, a decimals byte, an
// initialized-flag byte, and a 36-byte freeze-authority COption.
const mintLayoutSize = 82

var errMintLayoutTooShort = errors.New("discovery: account data shorter than mint layout")

// MintLayout is the subset of the SPL Mint account the filter reads. The
// two *Option fields are the COption discriminants (0 = None, 1 = Some);
// the filter never needs the authority pubkeys themselves.
type MintLayout struct {
	MintAuthorityOption   uint32
	Supply                uint64
	Decimals              uint8
	IsInitialized         bool
	FreezeAuthorityOption uint32
}

// ParseMintLayout reads the fixed-offset fields out of a raw SPL Mint
// account buffer. Anything beyond byte 82 (Token-2022 TLV extensions) is
// handled separately by ParseExtensionTypes.
func ParseMintLayout(data []byte) (*MintLayout, error) {
	if len(data) < mintLayoutSize {
		return nil, errMintLayoutTooShort
	}
	return &MintLayout{
		MintAuthorityOption:   binary.LittleEndian.Uint32(data[0:4]),
		Supply:                binary.LittleEndian.Uint64(data[36:44]),
		Decimals:              data[44],
		IsInitialized:         data[45] != 0,
		FreezeAuthorityOption: binary.LittleEndian.Uint32(data[46:50]),
	}, nil
}

// ParseExtensionTypes walks the Token-2022 TLV suffix starting at byte 82:
// repeated [u16 type][u16 length][length bytes]. Any truncation — a short
// header or a length that overruns the buffer — discards everything parsed
// so far and returns an empty list, so a malformed suffix reports no
// extensions at all.
func ParseExtensionTypes(data []byte) []int {
	if len(data) <= mintLayoutSize {
		return nil
	}
	buf := data[mintLayoutSize:]
	var types []int
	for len(buf) > 0 {
		if len(buf) < 4 {
			return nil
		}
		typ := binary.LittleEndian.Uint16(buf[0:2])
		length := binary.LittleEndian.Uint16(buf[2:4])
		buf = buf[4:]
		if len(buf) < int(length) {
			return nil
		}
		types = append(types, int(typ))
		buf = buf[length:]
	}
	return types
}
