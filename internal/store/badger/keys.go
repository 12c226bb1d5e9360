package badger

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/roach88/chainsync/internal/record"
)

var (
	recordPrefix = []byte("r/")
	chainPrefix  = []byte("c/")
	tagPrefix    = []byte("t/")
)

// Host and tag are written as escaped components: NUL becomes 00 ff and
// every component ends in 00 01. No encoded component is a prefix of another
// and byte order matches string order, so scopes never overlap.
const (
	escape     = 0x00
	escapedNul = 0xff
	terminator = 0x01
)

func appendComponent(k []byte, s string) []byte {
	for i := 0; i < len(s); i++ {
		if s[i] == escape {
			k = append(k, escape, escapedNul)
			continue
		}
		k = append(k, s[i])
	}
	return append(k, escape, terminator)
}

// readComponent decodes one component and returns the bytes after it.
func readComponent(k []byte) (string, []byte, error) {
	var out []byte
	for i := 0; i < len(k); i++ {
		if k[i] != escape {
			out = append(out, k[i])
			continue
		}
		if i+1 == len(k) {
			break
		}
		switch k[i+1] {
		case escapedNul:
			out = append(out, escape)
			i++
		case terminator:
			return string(out), k[i+2:], nil
		default:
			return "", nil, fmt.Errorf("bad escape 0x%02x", k[i+1])
		}
	}
	return "", nil, errors.New("unterminated component")
}

func recordKey(id record.ID) []byte {
	return append(append([]byte{}, recordPrefix...), id...)
}

// chainScope is the prefix shared by every index key of one chain.
func chainScope(host record.HostID, tag string) []byte {
	k := appendComponent(append([]byte{}, chainPrefix...), string(host))
	return appendComponent(k, tag)
}

func chainKey(host record.HostID, tag string, idx record.Idx) []byte {
	return binary.BigEndian.AppendUint64(chainScope(host, tag), idx)
}

func tagScope(tag string) []byte {
	return appendComponent(append([]byte{}, tagPrefix...), tag)
}

func tagKey(tag string, host record.HostID, idx record.Idx) []byte {
	k := appendComponent(tagScope(tag), string(host))
	return binary.BigEndian.AppendUint64(k, idx)
}

// parseChainKey splits a chain index key into its parts.
func parseChainKey(k []byte) (record.HostID, string, record.Idx, error) {
	if !bytes.HasPrefix(k, chainPrefix) {
		return "", "", 0, fmt.Errorf("malformed chain key %q: wrong prefix", k)
	}
	host, rest, err := readComponent(k[len(chainPrefix):])
	if err != nil {
		return "", "", 0, fmt.Errorf("malformed chain key %q: host: %w", k, err)
	}
	tag, rest, err := readComponent(rest)
	if err != nil {
		return "", "", 0, fmt.Errorf("malformed chain key %q: tag: %w", k, err)
	}
	if len(rest) != 8 {
		return "", "", 0, fmt.Errorf("malformed chain key %q: idx is %d bytes", k, len(rest))
	}
	return record.HostID(host), tag, binary.BigEndian.Uint64(rest), nil
}
