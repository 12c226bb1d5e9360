package record

import "sort"

// Status maps host -> tag -> highest known idx. It is a compact version vector
// summarizing which prefix of every chain a replica holds.
type Status struct {
	Hosts map[HostID]map[string]Idx `json:"hosts"`
}

// NewStatus returns an empty status.
func NewStatus() Status {
	return Status{Hosts: make(map[HostID]map[string]Idx)}
}

// Set records idx as the tip of the (host, tag) chain.
func (s *Status) Set(host HostID, tag string, idx Idx) {
	if s.Hosts == nil {
		s.Hosts = make(map[HostID]map[string]Idx)
	}
	tags, ok := s.Hosts[host]
	if !ok {
		tags = make(map[string]Idx)
		s.Hosts[host] = tags
	}
	tags[tag] = idx
}

// Get returns the tip of the (host, tag) chain, and false when the chain is
// unknown.
func (s Status) Get(host HostID, tag string) (Idx, bool) {
	tags, ok := s.Hosts[host]
	if !ok {
		return 0, false
	}
	idx, ok := tags[tag]
	return idx, ok
}

// Chain names one (host, tag) pair.
type Chain struct {
	Host HostID
	Tag  string
}

// Chains returns every (host, tag) pair in s, sorted by host then tag.
func (s Status) Chains() []Chain {
	var out []Chain
	for host, tags := range s.Hosts {
		for tag := range tags {
			out = append(out, Chain{Host: host, Tag: tag})
		}
	}
	SortChains(out)
	return out
}

// SortChains orders chains by host then tag.
func SortChains(chains []Chain) {
	sort.Slice(chains, func(i, j int) bool {
		if chains[i].Host != chains[j].Host {
			return chains[i].Host < chains[j].Host
		}
		return chains[i].Tag < chains[j].Tag
	})
}

// Len returns the number of chains in s.
func (s Status) Len() int {
	n := 0
	for _, tags := range s.Hosts {
		n += len(tags)
	}
	return n
}
