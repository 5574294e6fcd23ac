// Package dbn reads and writes market-by-order records in the Databento
// Binary Encoding (DBN), optionally zstd-compressed.
//
// Layout (all integers little-endian):
//
//	metadata: "DBN" | version u8 | length u32 | <length bytes>
//	          dataset [16]byte | schema u16 | start u64 | end u64 | limit u64 |
//	          (v1: record_count u64) | stype_in u8 | stype_out u8 | ts_out u8 | ...
//	record:   length u8 (in 4-byte words) | rtype u8 | publisher_id u16 |
//	          instrument_id u32 | ts_event u64 | body
//	mbo body: order_id u64 | price i64 | size u32 | flags u8 | channel_id u8 |
//	          action u8 | side u8 | ts_recv u64 | ts_in_delta i32 | sequence u32
package dbn

import "errors"

const (
	// RTypeMBO is the record type of market-by-order messages.
	RTypeMBO uint8 = 0xA0

	// SchemaMBO is the metadata schema id of an MBO-only file.
	SchemaMBO uint16 = 0

	// UndefPrice marks a record without a meaningful price (e.g. clear).
	UndefPrice int64 = 1<<63 - 1

	headerSize  = 16
	mboSize     = 56
	preludeSize = 8
	datasetSize = 16

	maxVersion = 3
)

var (
	ErrNotDBN             = errors.New("not a DBN stream")
	ErrUnsupportedVersion = errors.New("unsupported DBN version")
	ErrBadRecord          = errors.New("malformed DBN record")
)

var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}
