package device

// DefaultErrorQueueCapacity matches the instrument's error buffer
const DefaultErrorQueueCapacity = 20

// ErrorQueue is a bounded FIFO of error codes. When full, pushing drops the
// oldest entry.
type ErrorQueue struct {
	codes    []ErrorCode
	capacity int
}

// NewErrorQueue creates an empty queue. A non-positive capacity selects the
// default.
func NewErrorQueue(capacity int) *ErrorQueue {
	if capacity <= 0 {
		capacity = DefaultErrorQueueCapacity
	}
	return &ErrorQueue{
		codes:    make([]ErrorCode, 0, capacity),
		capacity: capacity,
	}
}

// Push appends a code
func (q *ErrorQueue) Push(code ErrorCode) {
	if len(q.codes) == q.capacity {
		copy(q.codes, q.codes[1:])
		q.codes = q.codes[:len(q.codes)-1]
	}
	q.codes = append(q.codes, code)
}

// Pop removes and returns the oldest code, or CodeNoError when empty
func (q *ErrorQueue) Pop() ErrorCode {
	if len(q.codes) == 0 {
		return CodeNoError
	}
	code := q.codes[0]
	copy(q.codes, q.codes[1:])
	q.codes = q.codes[:len(q.codes)-1]
	return code
}

// Clear empties the queue
func (q *ErrorQueue) Clear() {
	q.codes = q.codes[:0]
}

// Len returns the number of queued codes
func (q *ErrorQueue) Len() int {
	return len(q.codes)
}

// Cap returns the queue capacity
func (q *ErrorQueue) Cap() int {
	return q.capacity
}

// Entries returns a copy of the queue, oldest first
func (q *ErrorQueue) Entries() []ErrorCode {
	out := make([]ErrorCode, len(q.codes))
	copy(out, q.codes)
	return out
}
