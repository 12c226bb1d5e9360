package record

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ErrMalformed indicates a record whose host or tag is not in written form.
var ErrMalformed = errors.New("malformed record")

// NormalizeTag returns tag in Unicode NFC, the form tags are written in. Two
// spellings of the same tag therefore name the same chain.
func NormalizeTag(tag string) string {
	return norm.NFC.String(tag)
}

// CheckChainName rejects a host or tag containing NUL, and a tag that is not
// NFC normalized.
func CheckChainName(host HostID, tag string) error {
	if strings.IndexByte(string(host), 0) >= 0 {
		return fmt.Errorf("%w: host %q contains NUL", ErrMalformed, host)
	}
	if strings.IndexByte(tag, 0) >= 0 {
		return fmt.Errorf("%w: tag %q contains NUL", ErrMalformed, tag)
	}
	if !norm.NFC.IsNormalString(tag) {
		return fmt.Errorf("%w: tag %q is not NFC normalized", ErrMalformed, tag)
	}
	return nil
}
