package recordsync

import (
	"context"
	"fmt"

	"github.com/roach88/chainsync/internal/record"
	"github.com/roach88/chainsync/internal/remote"
	"github.com/roach88/chainsync/internal/store"
)

// Absent is the max idx of a chain a replica does not hold.
const Absent int64 = -1

// DiffEntry compares one chain between the two replicas.
type DiffEntry struct {
	Host record.HostID
	Tag  string
	// Local and Remote are the highest idx each side holds, or Absent.
	Local  int64
	Remote int64
}

// Diff fetches the remote status and compares it with st.
func Diff(ctx context.Context, rc remote.Client, st store.Store) ([]DiffEntry, record.Status, error) {
	local, err := st.Status(ctx)
	if err != nil {
		return nil, record.Status{}, fmt.Errorf("diff: local status: %w", err)
	}
	remoteStatus, err := rc.Status(ctx)
	if err != nil {
		return nil, record.Status{}, fmt.Errorf("diff: remote status: %w", err)
	}
	return Compare(local, remoteStatus), remoteStatus, nil
}

// Compare returns one entry for every chain present in either status, equal
// chains included, sorted by host then tag.
func Compare(local, remote record.Status) []DiffEntry {
	seen := map[record.Chain]bool{}
	var chains []record.Chain
	for _, s := range []record.Status{local, remote} {
		for _, c := range s.Chains() {
			if !seen[c] {
				seen[c] = true
				chains = append(chains, c)
			}
		}
	}
	record.SortChains(chains)

	diffs := make([]DiffEntry, 0, len(chains))
	for _, c := range chains {
		diffs = append(diffs, DiffEntry{
			Host:   c.Host,
			Tag:    c.Tag,
			Local:  maxIdx(local, c),
			Remote: maxIdx(remote, c),
		})
	}
	return diffs
}

func maxIdx(s record.Status, c record.Chain) int64 {
	idx, ok := s.Get(c.Host, c.Tag)
	if !ok {
		return Absent
	}
	return int64(idx)
}
