// Package mbo defines the market-by-order feed contract consumed by the
// replay driver.
package mbo

import (
	"context"
	"fmt"
	"time"

	"github.com/uhyunpark/mbobook/pkg/orderbook"
)

// Action is the single-character event action code of the feed.
type Action byte

const (
	ActionAdd    Action = 'A'
	ActionModify Action = 'M'
	ActionCancel Action = 'C'
	ActionClear  Action = 'R'
	ActionFill   Action = 'F'
	ActionTrade  Action = 'T'
	ActionNone   Action = 'N'
)

func (a Action) String() string {
	switch a {
	case ActionAdd:
		return "add"
	case ActionModify:
		return "modify"
	case ActionCancel:
		return "cancel"
	case ActionClear:
		return "clear"
	case ActionFill:
		return "fill"
	case ActionTrade:
		return "trade"
	case ActionNone:
		return "none"
	default:
		return fmt.Sprintf("unknown(%q)", rune(a))
	}
}

// Event is one decoded MBO record. Price is fixed-point, 1e-9 scale.
type Event struct {
	OrderID      uint64
	Price        int64
	Size         uint32
	Action       Action
	Side         orderbook.Side
	Flags        uint8
	InstrumentID uint32
	Sequence     uint32
	TsEvent      uint64 // nanoseconds since the UNIX epoch
	TsRecv       uint64
}

func (e Event) EventTime() time.Time {
	return time.Unix(0, int64(e.TsEvent)).UTC()
}

// Metadata describes the dataset and is delivered once before any event.
type Metadata struct {
	Version  uint8
	Dataset  string
	Schema   uint16
	Start    uint64
	End      uint64
	Limit    uint64
	StypeIn  uint8
	StypeOut uint8
	TsOut    bool
}

// KeepGoing is the per-event answer to the source: continue or stop.
type KeepGoing bool

const (
	Continue KeepGoing = true
	Stop     KeepGoing = false
)

// Source replays a feed: onMeta exactly once, then onEvent per event in feed
// order until the feed ends, onEvent returns Stop or ctx is done.
type Source interface {
	Replay(ctx context.Context, onMeta func(Metadata), onEvent func(Event) KeepGoing) error
}

// SliceSource replays an in-memory event list.
type SliceSource struct {
	Meta   Metadata
	Events []Event
}

func (s *SliceSource) Replay(ctx context.Context, onMeta func(Metadata), onEvent func(Event) KeepGoing) error {
	onMeta(s.Meta)
	for _, ev := range s.Events {
		if err := ctx.Err(); err != nil {
			return err
		}
		if onEvent(ev) == Stop {
			return nil
		}
	}
	return nil
}
