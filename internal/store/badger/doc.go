// Package badger provides a record store on the Badger key-value engine.
//
// # Key Layout
//
//	r/<id>                          -> msgpack record
//	c/<host>\x00<tag>\x00<idx BE64> -> id   (chain index)
//	t/<tag>\x00<host>\x00<idx BE64> -> id   (tag index)
//
// Big-endian idx keeps a chain's index keys in idx order, so chain pages and
// tips come straight off a prefix iterator. Every write touches all three keys
// inside one transaction.
package badger
