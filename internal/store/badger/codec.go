package badger

import (
	"github.com/ugorji/go/codec"

	"github.com/roach88/chainsync/internal/record"
	"github.com/roach88/chainsync/internal/store"
)

var msgpack = &codec.MsgpackHandle{WriteExt: true}

// stored is the on-disk form of a record.
type stored struct {
	ID        string  `codec:"id"`
	Idx       uint64  `codec:"idx"`
	Host      string  `codec:"host"`
	Tag       string  `codec:"tag"`
	Parent    *string `codec:"parent"`
	Timestamp uint64  `codec:"ts"`
	Version   string  `codec:"v"`
	Data      []byte  `codec:"data"`
	CEK       string  `codec:"cek"`
}

func encodeRecord(r store.Record) ([]byte, error) {
	s := stored{
		ID:        string(r.ID),
		Idx:       r.Idx,
		Host:      string(r.Host),
		Tag:       r.Tag,
		Timestamp: r.Timestamp,
		Version:   r.Version,
		Data:      r.Data.Data,
		CEK:       r.Data.ContentEncryptionKey,
	}
	if r.Parent != nil {
		p := string(*r.Parent)
		s.Parent = &p
	}
	var out []byte
	if err := codec.NewEncoderBytes(&out, msgpack).Encode(&s); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeRecord(b []byte) (store.Record, error) {
	var s stored
	if err := codec.NewDecoderBytes(b, msgpack).Decode(&s); err != nil {
		return store.Record{}, err
	}
	r := store.Record{
		ID:        record.ID(s.ID),
		Idx:       s.Idx,
		Host:      record.HostID(s.Host),
		Tag:       s.Tag,
		Timestamp: s.Timestamp,
		Version:   s.Version,
		Data: record.EncryptedData{
			Data:                 s.Data,
			ContentEncryptionKey: s.CEK,
		},
	}
	if s.Parent != nil {
		p := record.ID(*s.Parent)
		r.Parent = &p
	}
	return r, nil
}
