package host

import (
	"fmt"
	"strings"

	"github.com/notargets/vadd/device"
)

// Context is a host execution context. All bookkeeping is guarded by the
// owning device's mutex.
type Context struct {
	dev      *Device
	released bool
	live     Stats
}

func (c *Context) NewQueue() (device.Queue, error) {
	d := c.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	if c.released {
		return nil, fmt.Errorf("%w: context", device.ErrReleased)
	}
	if d.spec.MaxQueues < 0 || d.stats.Queues >= d.spec.MaxQueues {
		return nil, fmt.Errorf("%w: device %q has no free command queue (limit %d)",
			device.ErrQueueCreation, d.spec.Name, max(d.spec.MaxQueues, 0))
	}
	d.stats.Queues++
	c.live.Queues++
	return &Queue{ctx: c}, nil
}

func (c *Context) BuildProgram(source string) (device.Program, error) {
	unit, err := compile(source)
	if err != nil {
		return nil, err
	}

	d := c.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	if c.released {
		return nil, fmt.Errorf("%w: context", device.ErrReleased)
	}
	d.stats.Programs++
	c.live.Programs++
	return &Program{ctx: c, unit: unit}, nil
}

func (c *Context) Malloc(bytes int64, mode device.AccessMode) (device.Memory, error) {
	d := c.dev
	if bytes <= 0 || bytes%4 != 0 {
		return nil, fmt.Errorf("%w: invalid buffer size %d bytes", device.ErrAllocation, bytes)
	}
	if bytes > d.spec.MemoryBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds device limit of %d bytes",
			device.ErrAllocation, bytes, d.spec.MemoryBytes)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if c.released {
		return nil, fmt.Errorf("%w: context", device.ErrReleased)
	}
	if !d.memory.TryAcquire(bytes) {
		return nil, fmt.Errorf("%w: out of device memory (requested %d, in use %d of %d bytes)",
			device.ErrAllocation, bytes, d.stats.MemoryInUse, d.spec.MemoryBytes)
	}
	d.stats.Buffers++
	d.stats.MemoryInUse += bytes
	c.live.Buffers++
	return &Buffer{ctx: c, data: make([]float32, bytes/4), mode: mode}, nil
}

// Release fails while any queue, program, kernel or buffer created through
// the context is still alive
func (c *Context) Release() error {
	d := c.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	if c.released {
		return fmt.Errorf("%w: context", device.ErrReleased)
	}
	if c.live.Live() > 0 {
		var held []string
		for _, item := range []struct {
			name  string
			count int
		}{
			{"queues", c.live.Queues},
			{"programs", c.live.Programs},
			{"kernels", c.live.Kernels},
			{"buffers", c.live.Buffers},
		} {
			if item.count > 0 {
				held = append(held, fmt.Sprintf("%d %s", item.count, item.name))
			}
		}
		return fmt.Errorf("%w: context still owns %s", device.ErrResourceBusy, strings.Join(held, ", "))
	}
	c.released = true
	d.stats.Contexts--
	return nil
}

// Buffer is host-resident memory standing in for device memory
type Buffer struct {
	ctx      *Context
	data     []float32
	mode     device.AccessMode
	released bool
	inFlight int
}

func (b *Buffer) Size() int64 { return int64(len(b.data)) * 4 }

func (b *Buffer) Mode() device.AccessMode { return b.mode }

// Release fails while a submitted command still references the buffer
func (b *Buffer) Release() error {
	d := b.ctx.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	if b.released {
		return fmt.Errorf("%w: buffer", device.ErrReleased)
	}
	if b.inFlight > 0 {
		return fmt.Errorf("%w: buffer referenced by %d pending command(s)", device.ErrResourceBusy, b.inFlight)
	}
	b.released = true
	d.memory.Release(b.Size())
	d.stats.Buffers--
	d.stats.MemoryInUse -= b.Size()
	b.ctx.live.Buffers--
	b.data = nil
	return nil
}

// ownBuffer checks that mem is a live buffer of this context; caller holds d.mu
func (c *Context) ownBuffer(mem device.Memory) (*Buffer, error) {
	b, ok := mem.(*Buffer)
	if !ok || b == nil {
		return nil, fmt.Errorf("memory object of type %T does not belong to the host runtime", mem)
	}
	if b.ctx != c {
		return nil, fmt.Errorf("memory object belongs to another context")
	}
	if b.released {
		return nil, fmt.Errorf("memory object already released")
	}
	return b, nil
}
