package midireader

const DefaultQueueCap = 256

// Queue is a bounded list of completed frames.
//
// Slots [0, offset) are delivered, [offset, length) are pending and
// [length, cap) are free. Once every pending frame is delivered both indices
// go back to zero; nothing is ever overwritten while still pending.
type Queue struct {
	frames []Frame
	length int
	offset int
}

// NewQueue allocates capacity frames of maxFrame bytes each.
func NewQueue(capacity, maxFrame int) *Queue {
	if capacity <= 0 {
		capacity = DefaultQueueCap
	}
	if maxFrame <= 0 {
		maxFrame = DefaultMaxFrame
	}
	q := &Queue{frames: make([]Frame, capacity)}
	for i := range q.frames {
		q.frames[i].init(maxFrame)
	}
	return q
}

func (q *Queue) Cap() int { return len(q.frames) }

// Len returns the number of used slots, delivered ones included.
func (q *Queue) Len() int { return q.length }

// Pending returns the number of frames waiting for delivery.
func (q *Queue) Pending() int { return q.length - q.offset }

// Full reports whether no slot is free for the producer.
func (q *Queue) Full() bool { return q.length >= len(q.frames) }

// Reserve returns the next free slot, or nil when the queue is full. The slot
// only becomes pending after Commit.
func (q *Queue) Reserve() *Frame {
	if q.Full() {
		return nil
	}
	return &q.frames[q.length]
}

// Commit makes the reserved slot pending.
func (q *Queue) Commit() {
	if q.Full() {
		return
	}
	q.length++
}

// Peek returns the oldest pending frame without delivering it.
func (q *Queue) Peek() *Frame {
	if q.offset >= q.length {
		return nil
	}
	return &q.frames[q.offset]
}

// Pop delivers the oldest pending frame. The returned frame stays readable
// until the next Reserve.
func (q *Queue) Pop() *Frame {
	if q.offset >= q.length {
		return nil
	}
	f := &q.frames[q.offset]
	q.offset++
	if q.offset == q.length {
		q.offset, q.length = 0, 0
	}
	return f
}

// Clear drops every pending frame.
func (q *Queue) Clear() {
	q.offset, q.length = 0, 0
}

func (q *Queue) valid() bool {
	return q.offset >= 0 && q.offset <= q.length && q.length <= len(q.frames)
}
