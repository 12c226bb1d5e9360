package record

import (
	"errors"
	"fmt"
)

// ErrBrokenChain indicates a batch that does not extend its chain contiguously.
var ErrBrokenChain = errors.New("broken chain")

// ValidateChain checks that batch, in the order given, extends prev: every
// record belongs to prev's chain, idx increases by one, and each parent points
// at the record before it. A nil prev means the batch must start at idx 0.
//
// The batch is never reordered; an out-of-order batch is rejected. A host or
// tag that fails CheckChainName is rejected with ErrMalformed.
func ValidateChain[T Payload](prev *Record[T], batch []Record[T]) error {
	if len(batch) == 0 {
		return nil
	}

	host, tag := batch[0].Host, batch[0].Tag
	if err := CheckChainName(host, tag); err != nil {
		return err
	}
	var wantIdx Idx
	var wantParent *ID
	if prev != nil {
		if prev.Host != host || prev.Tag != tag {
			return fmt.Errorf("%w: batch for %s/%s follows record of %s/%s",
				ErrBrokenChain, host, tag, prev.Host, prev.Tag)
		}
		wantIdx = prev.Idx + 1
		id := prev.ID
		wantParent = &id
	}

	for i, r := range batch {
		if r.Host != host || r.Tag != tag {
			return fmt.Errorf("%w: record %s belongs to %s/%s, batch is %s/%s",
				ErrBrokenChain, r.ID, r.Host, r.Tag, host, tag)
		}
		if r.Idx != wantIdx {
			return fmt.Errorf("%w: record %s has idx %d, expected %d",
				ErrBrokenChain, r.ID, r.Idx, wantIdx)
		}
		if !sameParent(r.Parent, wantParent) {
			return fmt.Errorf("%w: record %s (idx %d) has parent %q, expected %q",
				ErrBrokenChain, r.ID, r.Idx, deref(r.Parent), deref(wantParent))
		}
		id := batch[i].ID
		wantParent = &id
		wantIdx++
	}
	return nil
}

func sameParent(a, b *ID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func deref(id *ID) ID {
	if id == nil {
		return ""
	}
	return *id
}
