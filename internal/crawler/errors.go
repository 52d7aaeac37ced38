package crawler

import "errors"

// Lookup sentinels shared by store and queue implementations.
var (
	ErrTaskNotFound   = errors.New("task not found")
	ErrTaskExists     = errors.New("task already exists")
	ErrBlobNotFound   = errors.New("blob not found")
	ErrQueueClosed    = errors.New("queue closed")
	ErrQueueFull      = errors.New("queue full")
)
