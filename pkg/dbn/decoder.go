package dbn

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"

	"github.com/uhyunpark/mbobook/pkg/mbo"
	"github.com/uhyunpark/mbobook/pkg/orderbook"
)

// Decoder iterates the MBO records of a DBN stream. Records of any other
// type are skipped.
type Decoder struct {
	r       *bufio.Reader
	zr      *zstd.Decoder
	meta    mbo.Metadata
	buf     [255 * 4]byte
	skipped uint64
}

// NewDecoder reads the metadata header. zstd input is detected by its frame
// magic and decompressed transparently.
func NewDecoder(r io.Reader) (*Decoder, error) {
	d := &Decoder{r: bufio.NewReaderSize(r, 64*1024)}

	magic, err := d.r.Peek(4)
	if err != nil {
		return nil, fmt.Errorf("peek stream header: %w", ErrNotDBN)
	}
	if bytes.Equal(magic, zstdMagic) {
		zr, err := zstd.NewReader(d.r)
		if err != nil {
			return nil, fmt.Errorf("open zstd stream: %w", err)
		}
		d.zr = zr
		d.r = bufio.NewReaderSize(zr, 64*1024)
	}

	if err := d.readMetadata(); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

func (d *Decoder) readMetadata() error {
	var prelude [preludeSize]byte
	if _, err := io.ReadFull(d.r, prelude[:]); err != nil {
		return fmt.Errorf("read metadata prelude: %w", ErrNotDBN)
	}
	if string(prelude[:3]) != "DBN" {
		return ErrNotDBN
	}
	version := prelude[3]
	if version == 0 || version > maxVersion {
		return fmt.Errorf("version %d: %w", version, ErrUnsupportedVersion)
	}

	length := binary.LittleEndian.Uint32(prelude[4:])
	body := make([]byte, length)
	if _, err := io.ReadFull(d.r, body); err != nil {
		return fmt.Errorf("read metadata body: %w", unexpected(err))
	}

	fixed := datasetSize + 2 + 8 + 8 + 8 + 3
	if version == 1 {
		fixed += 8 // record_count
	}
	if len(body) < fixed {
		return fmt.Errorf("metadata body of %d bytes: %w", len(body), ErrNotDBN)
	}

	m := mbo.Metadata{Version: version}
	m.Dataset = string(bytes.TrimRight(body[:datasetSize], "\x00"))
	off := datasetSize
	m.Schema = binary.LittleEndian.Uint16(body[off:])
	off += 2
	m.Start = binary.LittleEndian.Uint64(body[off:])
	off += 8
	m.End = binary.LittleEndian.Uint64(body[off:])
	off += 8
	m.Limit = binary.LittleEndian.Uint64(body[off:])
	off += 8
	if version == 1 {
		off += 8
	}
	m.StypeIn = body[off]
	m.StypeOut = body[off+1]
	m.TsOut = body[off+2] != 0

	d.meta = m
	return nil
}

func (d *Decoder) Metadata() mbo.Metadata { return d.meta }

// Skipped returns how many non-MBO records were passed over.
func (d *Decoder) Skipped() uint64 { return d.skipped }

// Next returns the next MBO event, or io.EOF at a clean end of stream.
func (d *Decoder) Next() (mbo.Event, error) {
	for {
		words, err := d.r.ReadByte()
		if err == io.EOF {
			return mbo.Event{}, io.EOF
		}
		if err != nil {
			return mbo.Event{}, fmt.Errorf("read record header: %w", err)
		}
		size := int(words) * 4
		if size < headerSize {
			return mbo.Event{}, fmt.Errorf("record length %d: %w", size, ErrBadRecord)
		}

		rec := d.buf[:size]
		rec[0] = words
		if _, err := io.ReadFull(d.r, rec[1:]); err != nil {
			return mbo.Event{}, fmt.Errorf("read record body: %w", unexpected(err))
		}

		if rec[1] != RTypeMBO {
			d.skipped++
			continue
		}
		if size < mboSize {
			return mbo.Event{}, fmt.Errorf("mbo record of %d bytes: %w", size, ErrBadRecord)
		}
		return decodeMBO(rec), nil
	}
}

func decodeMBO(rec []byte) mbo.Event {
	le := binary.LittleEndian
	return mbo.Event{
		InstrumentID: le.Uint32(rec[4:]),
		TsEvent:      le.Uint64(rec[8:]),
		OrderID:      le.Uint64(rec[16:]),
		Price:        int64(le.Uint64(rec[24:])),
		Size:         le.Uint32(rec[32:]),
		Flags:        rec[36],
		Action:       mbo.Action(rec[38]),
		Side:         orderbook.SideFromCode(rec[39]),
		TsRecv:       le.Uint64(rec[40:]),
		Sequence:     le.Uint32(rec[52:]),
	}
}

// Replay implements mbo.Source.
func (d *Decoder) Replay(ctx context.Context, onMeta func(mbo.Metadata), onEvent func(mbo.Event) mbo.KeepGoing) error {
	onMeta(d.meta)
	for n := 0; ; n++ {
		if n%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		ev, err := d.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if onEvent(ev) == mbo.Stop {
			return nil
		}
	}
}

func (d *Decoder) Close() {
	if d.zr != nil {
		d.zr.Close()
		d.zr = nil
	}
}

func unexpected(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

// FileStore is a Decoder over a file on disk.
type FileStore struct {
	*Decoder
	f *os.File
}

// Open opens a .dbn or .dbn.zst file and reads its metadata.
func Open(path string) (*FileStore, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open event source: %w", err)
	}
	d, err := NewDecoder(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &FileStore{Decoder: d, f: f}, nil
}

func (s *FileStore) Close() error {
	s.Decoder.Close()
	return s.f.Close()
}

var _ mbo.Source = (*Decoder)(nil)
