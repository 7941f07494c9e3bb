// Copyright 2017 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package storage

import (
	"context"
	"io"
	"sync"
)

const transferChunkSize = 256 << 10

// TransferListener observes the progress of a transfer. Callbacks run on the goroutine
// performing the transfer.
type TransferListener interface {
	OnProgress(c *Controller)
	OnPaused(c *Controller)
}

type transferState int

const (
	transferPending transferState = iota
	transferRunning
	transferPaused
	transferCanceled
	transferDone
)

// Controller pauses, resumes and cancels a transfer, and reports its progress.
//
// A Controller is created before the transfer starts and is attached to exactly one transfer.
// Pause and Resume only take effect on a running transfer. Cancel may be called before the
// transfer starts, in which case the transfer fails immediately.
type Controller struct {
	mu          sync.Mutex
	state       transferState
	transferred int64
	total       int64
	resumed     chan struct{}
	cancel      context.CancelFunc
	notified    bool
}

// NewController creates a Controller for a transfer that has not started yet.
func NewController() *Controller {
	return &Controller{total: -1}
}

// Pause pauses a running transfer. It returns false when the transfer is not running.
func (c *Controller) Pause() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != transferRunning {
		return false
	}
	c.state = transferPaused
	c.resumed = make(chan struct{})
	c.notified = false
	return true
}

// Resume resumes a paused transfer. It returns false when the transfer is not paused.
func (c *Controller) Resume() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != transferPaused {
		return false
	}
	c.state = transferRunning
	close(c.resumed)
	return true
}

// Cancel stops the transfer. It returns false when the transfer has already completed or has
// been canceled before.
func (c *Controller) Cancel() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case transferCanceled, transferDone:
		return false
	case transferPaused:
		close(c.resumed)
	}
	c.state = transferCanceled
	if c.cancel != nil {
		c.cancel()
	}
	return true
}

// IsPaused reports whether the transfer is paused.
func (c *Controller) IsPaused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == transferPaused
}

// BytesTransferred returns the number of bytes transferred so far.
func (c *Controller) BytesTransferred() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transferred
}

// TotalBytes returns the size of the transfer, or -1 while it is unknown.
func (c *Controller) TotalBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

func (c *Controller) canceled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == transferCanceled
}

// start attaches the controller to a transfer of total bytes.
func (c *Controller) start(cancel context.CancelFunc, total int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case transferCanceled:
		return NewError(ErrorCancelled, "")
	case transferPending:
	default:
		return newErrorf(ErrorInvalidArgument, "controller is already attached to a transfer")
	}
	c.state = transferRunning
	c.cancel = cancel
	c.total = total
	return nil
}

// commit marks a transfer whose data has been fully copied as done, so that it can no longer be
// paused or canceled while its result is being made visible. It fails when the transfer was
// canceled first.
func (c *Controller) commit() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == transferCanceled {
		return NewError(ErrorCancelled, "")
	}
	c.state = transferDone
	return nil
}

func (c *Controller) finish() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == transferRunning || c.state == transferPaused {
		c.state = transferDone
	}
	if c.cancel != nil {
		c.cancel()
	}
}

func (c *Controller) setTotal(total int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.total = total
}

// checkpoint blocks while the transfer is paused. It fails when the transfer is canceled.
func (c *Controller) checkpoint(ctx context.Context, l TransferListener) error {
	for {
		c.mu.Lock()
		switch c.state {
		case transferCanceled:
			c.mu.Unlock()
			return NewError(ErrorCancelled, "")
		case transferPaused:
			resumed := c.resumed
			notify := !c.notified
			c.notified = true
			c.mu.Unlock()
			if notify && l != nil {
				l.OnPaused(c)
			}
			select {
			case <-resumed:
			case <-ctx.Done():
				return wrapError(ctx.Err())
			}
		default:
			c.mu.Unlock()
			return nil
		}
	}
}

// copy moves src to dst in chunks, honoring pause and cancel requests between chunks.
func (c *Controller) copy(ctx context.Context, dst io.Writer, src io.Reader, l TransferListener) (int64, error) {
	buf := make([]byte, transferChunkSize)
	var written int64
	for {
		if err := c.checkpoint(ctx, l); err != nil {
			return written, err
		}
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return written, err
			}
			written += int64(n)
			c.mu.Lock()
			c.transferred = written
			c.mu.Unlock()
			if l != nil {
				l.OnProgress(c)
			}
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, rerr
		}
	}
}
