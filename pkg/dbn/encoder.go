package dbn

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/uhyunpark/mbobook/pkg/mbo"
)

const (
	encodeVersion   = 2
	symbolCstrLen   = 71
	v2ReservedBytes = 53
)

// Encoder writes a DBN v2 MBO stream. Wrap w in a zstd.Encoder for .dbn.zst.
type Encoder struct {
	w   io.Writer
	buf [mboSize]byte
}

// NewEncoder writes the metadata header for an MBO-only stream.
func NewEncoder(w io.Writer, meta mbo.Metadata) (*Encoder, error) {
	le := binary.LittleEndian

	body := make([]byte, 0, 128)
	var dataset [datasetSize]byte
	copy(dataset[:], meta.Dataset)
	body = append(body, dataset[:]...)
	body = le.AppendUint16(body, meta.Schema)
	body = le.AppendUint64(body, meta.Start)
	body = le.AppendUint64(body, meta.End)
	body = le.AppendUint64(body, meta.Limit)
	var tsOut byte
	if meta.TsOut {
		tsOut = 1
	}
	body = append(body, meta.StypeIn, meta.StypeOut, tsOut)
	body = le.AppendUint16(body, symbolCstrLen)
	body = append(body, make([]byte, v2ReservedBytes)...)
	body = le.AppendUint32(body, 0) // schema_definition_length
	for i := 0; i < 4; i++ {
		body = le.AppendUint32(body, 0) // symbols, partial, not_found, mappings
	}

	prelude := []byte{'D', 'B', 'N', encodeVersion}
	prelude = le.AppendUint32(prelude, uint32(len(body)))
	if _, err := w.Write(prelude); err != nil {
		return nil, fmt.Errorf("write metadata prelude: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return nil, fmt.Errorf("write metadata body: %w", err)
	}
	return &Encoder{w: w}, nil
}

func (e *Encoder) Encode(ev mbo.Event) error {
	le := binary.LittleEndian
	b := e.buf[:]
	clear(b)

	b[0] = mboSize / 4
	b[1] = RTypeMBO
	le.PutUint32(b[4:], ev.InstrumentID)
	le.PutUint64(b[8:], ev.TsEvent)
	le.PutUint64(b[16:], ev.OrderID)
	le.PutUint64(b[24:], uint64(ev.Price))
	le.PutUint32(b[32:], ev.Size)
	b[36] = ev.Flags
	b[38] = byte(ev.Action)
	b[39] = ev.Side.Code()
	le.PutUint64(b[40:], ev.TsRecv)
	le.PutUint32(b[52:], ev.Sequence)

	if _, err := e.w.Write(b); err != nil {
		return fmt.Errorf("write mbo record %d: %w", ev.OrderID, err)
	}
	return nil
}

// EncodeRaw writes an opaque record of another type. body excludes the
// 16-byte header and its length must keep the record a multiple of 4 bytes.
func (e *Encoder) EncodeRaw(rtype uint8, instrumentID uint32, tsEvent uint64, body []byte) error {
	size := headerSize + len(body)
	if size%4 != 0 || size/4 > 255 {
		return fmt.Errorf("record of %d bytes: %w", size, ErrBadRecord)
	}
	rec := make([]byte, size)
	rec[0] = byte(size / 4)
	rec[1] = rtype
	binary.LittleEndian.PutUint32(rec[4:], instrumentID)
	binary.LittleEndian.PutUint64(rec[8:], tsEvent)
	copy(rec[headerSize:], body)
	_, err := e.w.Write(rec)
	return err
}
