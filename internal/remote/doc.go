// Package remote is the Record API between a host and the sync server.
//
// Routes, all JSON, under /api/v0:
//
//	GET  /record                               status: {"hosts": {host: {tag: idx}}}
//	GET  /record/next?host=&tag=&start=&count= contiguous page of one chain
//	POST /record                               append a batch; 409 on conflict
//
// Records travel in their encrypted form; the server never sees a key.
package remote
