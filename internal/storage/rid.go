package storage

import "fmt"

// ───────────────────────────────────────────────────────────────────────────
// Record identifiers
// ───────────────────────────────────────────────────────────────────────────

// PageKind distinguishes base pages (first image of a record) from tail
// pages (subsequent versions).
type PageKind uint8

const (
	KindBase PageKind = iota
	KindTail
)

// String returns a human-readable label for the page kind.
func (k PageKind) String() string {
	switch k {
	case KindBase:
		return "base"
	case KindTail:
		return "tail"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// RID addresses a single record slot: which page range, which page inside
// it, which slot on the page, and whether the page is a base or tail page.
// RIDs are stable for the lifetime of the slot.
type RID struct {
	Range int
	Page  int
	Slot  int
	Kind  PageKind
}

// String formats the RID as (range, page, slot, kind).
func (r RID) String() string {
	return fmt.Sprintf("(%d,%d,%d,%s)", r.Range, r.Page, r.Slot, r.Kind)
}

// Less orders RIDs by (Range, Page, Slot, Kind). Used to keep index scan
// results stable within a call.
func (r RID) Less(o RID) bool {
	if r.Range != o.Range {
		return r.Range < o.Range
	}
	if r.Page != o.Page {
		return r.Page < o.Page
	}
	if r.Slot != o.Slot {
		return r.Slot < o.Slot
	}
	return r.Kind < o.Kind
}

// ───────────────────────────────────────────────────────────────────────────
// Indirection
// ───────────────────────────────────────────────────────────────────────────

// IndirectionState enumerates the three states an indirection slot can be
// in: no newer version, tombstoned, or forwarding to the next version.
type IndirectionState uint8

const (
	IndNone IndirectionState = iota
	IndTombstone
	IndForward
)

// Indirection is the per-slot chain pointer: either empty (a base slot
// with no updates), a delete tombstone, or a RID. On a base slot the RID
// names the latest tail version; on a tail slot it names the version that
// was latest before that tail was written.
type Indirection struct {
	State IndirectionState
	Next  RID
}

// NoIndirection returns the empty pointer.
func NoIndirection() Indirection { return Indirection{State: IndNone} }

// Tombstone returns the deleted marker.
func Tombstone() Indirection { return Indirection{State: IndTombstone} }

// ForwardTo returns a pointer to the next version.
func ForwardTo(next RID) Indirection {
	return Indirection{State: IndForward, Next: next}
}

// IsNone reports whether no newer version exists.
func (in Indirection) IsNone() bool { return in.State == IndNone }

// IsTombstone reports whether the slot is tombstoned.
func (in Indirection) IsTombstone() bool { return in.State == IndTombstone }

// Forward returns the next RID in the chain, if any.
func (in Indirection) Forward() (RID, bool) {
	if in.State != IndForward {
		return RID{}, false
	}
	return in.Next, true
}

// String formats the indirection for logs.
func (in Indirection) String() string {
	switch in.State {
	case IndNone:
		return "none"
	case IndTombstone:
		return "deleted"
	default:
		return "->" + in.Next.String()
	}
}
