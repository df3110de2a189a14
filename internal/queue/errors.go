package queue

import "errors"

// ErrQueueFull is returned by NewCapture when the queue already holds
// max_queue_size active captures. It is a deliberate backpressure
// signal to the capture initiator, never swallowed.
var ErrQueueFull = errors.New("capture queue full")

// ErrNotFound is returned when an operation targets an id with no
// active row.
var ErrNotFound = errors.New("capture not found")
