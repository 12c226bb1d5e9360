package cli

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/roach88/chainsync/internal/record"
	"github.com/roach88/chainsync/internal/recordsync"
)

// StatusReport is the status command's output.
type StatusReport struct {
	Host   record.HostID          `json:"host"`
	Chains []ChainStatus          `json:"chains"`
	Counts recordsync.Tally       `json:"counts"`
	Ops    []recordsync.Operation `json:"-"`
}

// ChainStatus is one row of a StatusReport.
type ChainStatus struct {
	Host   record.HostID `json:"host"`
	Tag    string        `json:"tag"`
	Local  int64         `json:"local"`
	Remote int64         `json:"remote"`
	Action string        `json:"action"`
}

func newStatusReport(host record.HostID, diffs []recordsync.DiffEntry, ops []recordsync.Operation) StatusReport {
	r := StatusReport{Host: host, Chains: []ChainStatus{}, Counts: recordsync.Counts(ops), Ops: ops}
	for i, d := range diffs {
		r.Chains = append(r.Chains, ChainStatus{
			Host:   d.Host,
			Tag:    d.Tag,
			Local:  d.Local,
			Remote: d.Remote,
			Action: action(ops[i]),
		})
	}
	return r
}

func action(op recordsync.Operation) string {
	switch op.Kind {
	case recordsync.Noop:
		return "up to date"
	default:
		return fmt.Sprintf("%s %d..%d", op.Kind, op.Start, op.End)
	}
}

func idxText(idx int64) string {
	if idx == recordsync.Absent {
		return "-"
	}
	return strconv.FormatInt(idx, 10)
}

func renderStatus(w io.Writer, r StatusReport) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "HOST\tTAG\tLOCAL\tREMOTE\tACTION")
	for _, c := range r.Chains {
		host := string(c.Host)
		if c.Host == r.Host {
			host += " (this host)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", host, c.Tag, idxText(c.Local), idxText(c.Remote), c.Action)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	n := r.Counts
	_, err := fmt.Fprintf(w, "\n%d to upload (%d records), %d to download (%d records), %d up to date\n",
		n.Upload, n.UploadRecords, n.Download, n.DownloadRecords, n.Noop)
	return err
}

// SyncReport is the output of push, pull and sync.
type SyncReport struct {
	Uploaded   int    `json:"uploaded"`
	Downloaded int    `json:"downloaded"`
	Error      string `json:"error,omitempty"`
}

func newSyncReport(res recordsync.Result) SyncReport {
	return SyncReport{Uploaded: res.Uploaded, Downloaded: len(res.Downloaded)}
}

func renderSync(w io.Writer, r SyncReport) error {
	if _, err := fmt.Fprintf(w, "uploaded %d records, downloaded %d records\n", r.Uploaded, r.Downloaded); err != nil {
		return err
	}
	if r.Error != "" {
		_, err := fmt.Fprintf(w, "stopped early: %s\n", r.Error)
		return err
	}
	return nil
}
