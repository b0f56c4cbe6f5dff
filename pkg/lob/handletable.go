package lob

// Handle is a small integer identifying one open large-object stream for
// the lifetime of a transaction. Handles are reused once their slot is
// freed; identity carries no meaning beyond "currently live".
type Handle int

// MaxHandles is the fixed capacity of the handle table. The bound is shared
// by the whole table instance; a transaction that opens this many handles
// without closing any exhausts the table.
const MaxHandles = 256

// HandleTable maps handles to open streams. The zero value is an empty
// table. A slot is non-nil exactly when the corresponding handle is live.
type HandleTable struct {
	slots [MaxHandles]ObjectStream
	live  int
}

// Allocate stores stream in the first empty slot in ascending order and
// returns its handle. It returns ErrHandlesExhausted, leaving the table
// unchanged, when every slot is occupied.
func (t *HandleTable) Allocate(stream ObjectStream) (Handle, error) {
	for i := range t.slots {
		if t.slots[i] == nil {
			t.slots[i] = stream
			t.live++
			return Handle(i), nil
		}
	}
	return -1, ErrHandlesExhausted
}

// Lookup returns the stream registered under h. It returns
// ErrHandleOutOfRange for handles outside [0, MaxHandles) and
// ErrInvalidHandle for empty slots.
func (t *HandleTable) Lookup(h Handle) (ObjectStream, error) {
	if h < 0 || h >= MaxHandles {
		return nil, ErrHandleOutOfRange
	}
	if t.slots[h] == nil {
		return nil, ErrInvalidHandle
	}
	return t.slots[h], nil
}

// Release clears the slot for h. The caller must already have closed the
// underlying stream. Releasing an empty or out-of-range handle is a no-op.
func (t *HandleTable) Release(h Handle) {
	if h < 0 || h >= MaxHandles {
		return
	}
	if t.slots[h] != nil {
		t.slots[h] = nil
		t.live--
	}
}

// Live returns the number of occupied slots.
func (t *HandleTable) Live() int {
	return t.live
}

// walk calls fn for every occupied slot in slot order.
func (t *HandleTable) walk(fn func(h Handle, stream ObjectStream)) {
	for i := range t.slots {
		if t.slots[i] != nil {
			fn(Handle(i), t.slots[i])
		}
	}
}
