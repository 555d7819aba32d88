package sourcemap

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidVLQ is returned when a mappings string cannot be decoded.
var ErrInvalidVLQ = errors.New("sourcemap: invalid base64 VLQ")

const (
	vlqBaseShift       = 5
	vlqBase            = 1 << vlqBaseShift
	vlqBaseMask        = vlqBase - 1
	vlqContinuationBit = vlqBase
	base64Alphabet     = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"
)

var base64Index = func() [256]int8 {
	var idx [256]int8
	for i := range idx {
		idx[i] = -1
	}

	for i := range len(base64Alphabet) {
		idx[base64Alphabet[i]] = int8(i) //nolint:gosec // alphabet has 64 entries.
	}

	return idx
}()

// appendVLQ appends the base64 VLQ encoding of value to sb.
func appendVLQ(sb *strings.Builder, value int) {
	vlq := value << 1
	if value < 0 {
		vlq = (-value << 1) | 1
	}

	for {
		digit := vlq & vlqBaseMask
		vlq >>= vlqBaseShift

		if vlq > 0 {
			digit |= vlqContinuationBit
		}

		sb.WriteByte(base64Alphabet[digit])

		if vlq == 0 {
			return
		}
	}
}

// readVLQ decodes one value from s starting at pos and returns it together
// with the position just past it.
func readVLQ(s string, pos int) (value, next int, err error) {
	shift := 0
	result := 0

	for {
		if pos >= len(s) {
			return 0, pos, fmt.Errorf("%w: truncated value", ErrInvalidVLQ)
		}

		digit := int(base64Index[s[pos]])
		if digit < 0 {
			return 0, pos, fmt.Errorf("%w: unexpected %q at %d", ErrInvalidVLQ, s[pos], pos)
		}

		pos++
		result += (digit & vlqBaseMask) << shift
		shift += vlqBaseShift

		if digit&vlqContinuationBit == 0 {
			break
		}
	}

	if result&1 == 1 {
		return -(result >> 1), pos, nil
	}

	return result >> 1, pos, nil
}
