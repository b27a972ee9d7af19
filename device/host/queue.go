package host

import (
	"errors"
	"fmt"

	"github.com/notargets/vadd/device"
	"golang.org/x/sync/errgroup"
)

// command is one submitted kernel launch
type command struct {
	done chan struct{}
}

// Queue is an in-order command queue. Launches run asynchronously, each
// waiting for its predecessor; transfers drain the queue first.
type Queue struct {
	ctx      *Context
	released bool
	tail     *command
	faults   []error
}

func (q *Queue) Write(mem device.Memory, src []float32) error {
	b, err := q.transferTarget(mem, len(src))
	if err != nil {
		return err
	}
	q.drain()

	d := q.ctx.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	if b.released {
		return fmt.Errorf("%w: buffer released during write", device.ErrTransfer)
	}
	copy(b.data, src)
	return nil
}

func (q *Queue) Read(mem device.Memory, dst []float32) error {
	b, err := q.transferTarget(mem, len(dst))
	if err != nil {
		return err
	}
	q.drain()

	d := q.ctx.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	if b.released {
		return fmt.Errorf("%w: buffer released during read", device.ErrTransfer)
	}
	copy(dst, b.data)
	return nil
}

func (q *Queue) transferTarget(mem device.Memory, n int) (*Buffer, error) {
	d := q.ctx.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	if q.released {
		return nil, fmt.Errorf("%w: command queue released", device.ErrTransfer)
	}
	b, err := q.ctx.ownBuffer(mem)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", device.ErrTransfer, err)
	}
	if n > len(b.data) {
		return nil, fmt.Errorf("%w: %d bytes exceeds buffer size %d", device.ErrTransfer, n*4, b.Size())
	}
	return b, nil
}

func (q *Queue) Enqueue(k device.Kernel, global, local int) error {
	d := q.ctx.dev
	d.mu.Lock()
	if q.released {
		d.mu.Unlock()
		return fmt.Errorf("%w: command queue released", device.ErrLaunch)
	}
	kern, ok := k.(*Kernel)
	if !ok || kern == nil || kern.program.ctx != q.ctx {
		d.mu.Unlock()
		return fmt.Errorf("%w: kernel does not belong to this context", device.ErrLaunch)
	}
	if kern.released {
		d.mu.Unlock()
		return fmt.Errorf("%w: kernel %s released", device.ErrLaunch, kern.decl.Name)
	}
	switch {
	case global <= 0 || local <= 0:
		d.mu.Unlock()
		return fmt.Errorf("%w: invalid work size global=%d local=%d", device.ErrLaunch, global, local)
	case local > d.spec.MaxWorkGroupSize:
		d.mu.Unlock()
		return fmt.Errorf("%w: work-group size %d exceeds device maximum %d",
			device.ErrLaunch, local, d.spec.MaxWorkGroupSize)
	case global%local != 0:
		d.mu.Unlock()
		return fmt.Errorf("%w: global size %d is not a multiple of work-group size %d",
			device.ErrLaunch, global, local)
	}

	// Snapshot the argument state; the kernel may be rebound after submission
	args := make([]*Buffer, len(kern.args))
	for i, b := range kern.args {
		if b == nil {
			d.mu.Unlock()
			return fmt.Errorf("%w: kernel %s argument %d (%s) is not set",
				device.ErrLaunch, kern.decl.Name, i, kern.decl.Params[i].Name)
		}
		if b.released {
			d.mu.Unlock()
			return fmt.Errorf("%w: kernel %s argument %d refers to a released buffer",
				device.ErrLaunch, kern.decl.Name, i)
		}
		args[i] = b
	}
	for _, b := range args {
		b.inFlight++
	}
	prev := q.tail
	cmd := &command{done: make(chan struct{})}
	q.tail = cmd
	d.mu.Unlock()

	go q.run(cmd, prev, kern, args, global, local)
	return nil
}

func (q *Queue) run(cmd *command, prev *command, kern *Kernel, args []*Buffer, global, local int) {
	if prev != nil {
		<-prev.done
	}

	data := make([][]float32, len(args))
	for i, b := range args {
		data[i] = b.data
	}

	var g errgroup.Group
	g.SetLimit(q.ctx.dev.spec.Workers)
	groups := global / local
	for group := 0; group < groups; group++ {
		r := Range{Group: group, Start: group * local, End: (group + 1) * local}
		g.Go(func() (err error) {
			defer func() {
				if p := recover(); p != nil {
					err = fmt.Errorf("%w: kernel %s work-group %d [%d,%d): %v",
						device.ErrExecution, kern.decl.Name, r.Group, r.Start, r.End, p)
				}
			}()
			kern.body.Run(r, kern.decl.Defines, data)
			return nil
		})
	}
	err := g.Wait()

	d := q.ctx.dev
	d.mu.Lock()
	for _, b := range args {
		b.inFlight--
	}
	if err != nil {
		q.faults = append(q.faults, err)
	}
	d.mu.Unlock()
	close(cmd.done)
}

// drain waits for all submitted commands without consuming their faults
func (q *Queue) drain() {
	d := q.ctx.dev
	d.mu.Lock()
	tail := q.tail
	d.mu.Unlock()
	if tail != nil {
		<-tail.done
	}
}

// Finish blocks until the queue is idle and returns the faults raised by
// commands completed since the previous Finish
func (q *Queue) Finish() error {
	d := q.ctx.dev
	d.mu.Lock()
	if q.released {
		d.mu.Unlock()
		return fmt.Errorf("%w: command queue", device.ErrReleased)
	}
	d.mu.Unlock()

	q.drain()

	d.mu.Lock()
	defer d.mu.Unlock()
	faults := q.faults
	q.faults = nil
	return errors.Join(faults...)
}

func (q *Queue) Release() error {
	d := q.ctx.dev
	d.mu.Lock()
	if q.released {
		d.mu.Unlock()
		return fmt.Errorf("%w: command queue", device.ErrReleased)
	}
	d.mu.Unlock()

	q.drain()

	d.mu.Lock()
	defer d.mu.Unlock()
	q.released = true
	q.tail = nil
	d.stats.Queues--
	q.ctx.live.Queues--
	return nil
}
