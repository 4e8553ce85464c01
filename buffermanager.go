package hephaestus

import (
	"sync"

	"github.com/cockroachdb/errors"
	vk "github.com/vulkan-go/vulkan"
	"golang.org/x/exp/slog"

	"github.com/ROTARTSI82/Hephaestus/handle"
)

// BufferID refers to a buffer owned by a BufferManager.
type BufferID = handle.ID

// GenericBuffer is a buffer bound to a range of a pooled memory block.
type GenericBuffer struct {
	Buffer
	Usage vk.BufferUsageFlags
	// Properties are those of the memory type actually chosen, which may
	// include preferred flags beyond the required ones.
	Properties vk.MemoryPropertyFlags

	pool   *bufferPool
	alloc  *Allocation
	mapped bool
}

// HostVisible reports whether the buffer can be mapped.
func (b *GenericBuffer) HostVisible() bool {
	return b.pool.memory.HostVisible()
}

// BufferManager creates buffers from pooled device memory and owns them
// until Delete or Destroy. It is safe for concurrent use. Copy records into a
// command pool of the manager's own and submits through the Queue's lock.
type BufferManager struct {
	mu       sync.Mutex
	device   *Device
	queue    *Queue
	cmdPool  *CommandPool
	poolSize uint64
	pools    []*bufferPool
	buffers  *handle.Table[*GenericBuffer]
}

// NewBufferManager returns a manager that allocates memory blocks of at
// least poolSize bytes. Copy runs on queue.
func NewBufferManager(device *Device, queue *Queue, poolSize uint64) (*BufferManager, error) {
	cmdPool, err := device.CreateCommandPool(queue.Family)
	if err != nil {
		return nil, errors.Wrap(err, "creating transfer command pool")
	}
	return &BufferManager{
		device:   device,
		queue:    queue,
		cmdPool:  cmdPool,
		poolSize: poolSize,
		buffers:  handle.NewTable[*GenericBuffer](),
	}, nil
}

// CreateBuffer creates a buffer of size bytes. The memory type must have all
// of required and is chosen to also have preferred when possible.
func (m *BufferManager) CreateBuffer(size uint64, usage vk.BufferUsageFlags, required, preferred vk.MemoryPropertyFlags) (BufferID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, err := m.device.CreateBuffer(size, usage)
	if err != nil {
		return handle.Nil, errors.Wrapf(err, "creating %d byte buffer", size)
	}
	mr := b.MemoryRequirements()

	phys := m.device.PhysicalDevice
	typeIndex, err := phys.FindMemoryType(mr.MemoryTypeBits, required|preferred)
	if err != nil {
		if typeIndex, err = phys.FindMemoryType(mr.MemoryTypeBits, required); err != nil {
			b.Destroy()
			return handle.Nil, err
		}
	}

	pool, alloc, err := m.allocateLocked(typeIndex, mr)
	if err != nil {
		b.Destroy()
		return handle.Nil, err
	}
	if err := b.Bind(pool.memory, alloc.Offset); err != nil {
		pool.free(alloc)
		b.Destroy()
		return handle.Nil, err
	}

	id := m.buffers.Insert(&GenericBuffer{
		Buffer:     *b,
		Usage:      usage,
		Properties: pool.memory.Properties,
		pool:       pool,
		alloc:      alloc,
	})
	logger().Debug("created buffer", slog.String("id", id.String()), slog.Uint64("size", size), slog.Uint64("offset", alloc.Offset))
	return id, nil
}

func (m *BufferManager) allocateLocked(typeIndex uint32, mr vk.MemoryRequirements) (*bufferPool, *Allocation, error) {
	for _, p := range m.pools {
		if p.memory.TypeIndex != typeIndex {
			continue
		}
		if a := p.allocate(mr); a != nil {
			return p, a, nil
		}
	}

	size := m.poolSize
	if uint64(mr.Size) > size {
		size = uint64(mr.Size)
	}
	p, err := newBufferPool(m.device, size, typeIndex)
	if err != nil {
		return nil, nil, errors.Wrap(err, "allocating buffer pool")
	}
	m.pools = append(m.pools, p)
	a := p.allocate(mr)
	if a == nil {
		return nil, nil, errors.Newf("buffer of %d bytes does not fit a fresh pool", uint64(mr.Size))
	}
	return p, a, nil
}

// Get returns the buffer for id.
func (m *BufferManager) Get(id BufferID) (*GenericBuffer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.buffers.Get(id)
}

func (m *BufferManager) lookupLocked(id BufferID) (*GenericBuffer, error) {
	b, ok := m.buffers.Get(id)
	if !ok {
		logger().Warn("unknown buffer", slog.String("id", id.String()))
		return nil, errors.Newf("unknown buffer %s", id)
	}
	return b, nil
}

// Map returns the buffer's bytes in host memory. The buffer stays mapped
// until Unmap.
func (m *BufferManager) Map(id BufferID) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, err := m.lookupLocked(id)
	if err != nil {
		return nil, err
	}
	return m.mapLocked(b)
}

func (m *BufferManager) mapLocked(b *GenericBuffer) ([]byte, error) {
	if !b.HostVisible() {
		logger().Warn("mapping a buffer that is not host visible")
		return nil, errors.New("buffer memory is not host visible")
	}
	if !b.mapped {
		if _, err := b.pool.memory.Map(); err != nil {
			return nil, err
		}
		b.mapped = true
	}
	return b.pool.memory.Bytes(b.alloc.Offset, b.Size), nil
}

func (m *BufferManager) Unmap(id BufferID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.buffers.Get(id); ok {
		unmapLocked(b)
	}
}

func unmapLocked(b *GenericBuffer) {
	if b.mapped {
		b.pool.memory.Unmap()
		b.mapped = false
	}
}

// alignRange widens [offset, offset+size) to multiples of atom, capped at
// limit.
func alignRange(offset, size, atom, limit uint64) (uint64, uint64) {
	if atom <= 1 {
		return offset, size
	}
	start := offset - offset%atom
	end := makeAlignUp(offset+size, atom)
	if end > limit {
		end = limit
	}
	return start, end - start
}

// checkRange resolves a size of zero to the rest of a limit byte buffer and
// rejects ranges that do not fit in it.
func checkRange(offset, size, limit uint64) (uint64, error) {
	if offset > limit {
		return 0, errors.Newf("offset %d is past the end of a %d byte buffer", offset, limit)
	}
	if size == 0 {
		size = limit - offset
	}
	if size > limit-offset {
		return 0, errors.Newf("%d bytes at %d overflow a %d byte buffer", size, offset, limit)
	}
	return size, nil
}

func (m *BufferManager) rangeLocked(b *GenericBuffer, offset, size uint64) (uint64, uint64, error) {
	size, err := checkRange(offset, size, b.Size)
	if err != nil {
		logger().Warn("buffer range out of bounds", slog.Any("error", err))
		return 0, 0, err
	}
	atom := uint64(m.device.PhysicalDevice.Limits().NonCoherentAtomSize)
	o, s := alignRange(b.alloc.Offset+offset, size, atom, b.pool.memory.Size)
	return o, s, nil
}

// Flush makes host writes to a mapped buffer visible to the device. A size of
// zero means the rest of the buffer. Coherent memory needs no flush.
func (m *BufferManager) Flush(id BufferID, offset, size uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, err := m.lookupLocked(id)
	if err != nil {
		return err
	}
	return m.flushLocked(b, offset, size)
}

func (m *BufferManager) flushLocked(b *GenericBuffer, offset, size uint64) error {
	if b.pool.memory.HostCoherent() {
		return nil
	}
	o, s, err := m.rangeLocked(b, offset, size)
	if err != nil {
		return err
	}
	return b.pool.memory.Flush(o, s)
}

// Invalidate makes device writes visible to the host before reading a mapped
// buffer. A size of zero means the rest of the buffer.
func (m *BufferManager) Invalidate(id BufferID, offset, size uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, err := m.lookupLocked(id)
	if err != nil {
		return err
	}
	if b.pool.memory.HostCoherent() {
		return nil
	}
	o, s, err := m.rangeLocked(b, offset, size)
	if err != nil {
		return err
	}
	return b.pool.memory.Invalidate(o, s)
}

// Write copies data into the buffer at offset, flushing as needed.
func (m *BufferManager) Write(id BufferID, offset uint64, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, err := m.lookupLocked(id)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	if _, err := checkRange(offset, uint64(len(data)), b.Size); err != nil {
		logger().Warn("buffer write out of bounds", slog.Any("error", err))
		return err
	}

	wasMapped := b.mapped
	dst, err := m.mapLocked(b)
	if err != nil {
		return err
	}
	copy(dst[offset:], data)
	err = m.flushLocked(b, offset, uint64(len(data)))
	if !wasMapped {
		unmapLocked(b)
	}
	return err
}

// Copy copies size bytes from src to dst on the graphics queue and waits for
// the copy to finish. A size of zero copies the rest of src.
func (m *BufferManager) Copy(src, dst BufferID, srcOffset, dstOffset, size uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.lookupLocked(src)
	if err != nil {
		return err
	}
	d, err := m.lookupLocked(dst)
	if err != nil {
		return err
	}
	if size, err = checkRange(srcOffset, size, s.Size); err != nil {
		logger().Warn("buffer copy source out of bounds", slog.Any("error", err))
		return err
	}
	if _, err = checkRange(dstOffset, size, d.Size); err != nil {
		logger().Warn("buffer copy destination out of bounds", slog.Any("error", err))
		return err
	}
	if size == 0 {
		return nil
	}

	cmd, err := m.cmdPool.AllocateBuffer()
	if err != nil {
		return err
	}
	defer m.cmdPool.FreeBuffer(cmd)
	if err := cmd.BeginOneTime(); err != nil {
		return err
	}
	cmd.CopyBuffer(s.VKBuffer, d.VKBuffer, srcOffset, dstOffset, size)
	if err := cmd.End(); err != nil {
		return err
	}
	return m.queue.SubmitWaitIdle(cmd)
}

// Delete destroys the buffer and returns its range to the pool. Deleting an
// unknown or already deleted buffer logs a warning.
func (m *BufferManager) Delete(id BufferID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.buffers.Remove(id)
	if !ok {
		logger().Warn("deleting unknown buffer", slog.String("id", id.String()))
		return
	}
	destroyBuffer(b)
}

func destroyBuffer(b *GenericBuffer) {
	unmapLocked(b)
	b.Buffer.Destroy()
	b.pool.free(b.alloc)
}

// Len returns the number of live buffers.
func (m *BufferManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.buffers.Len()
}

// LogDetails logs the usage of every pool.
func (m *BufferManager) LogDetails() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, p := range m.pools {
		logger().Info("buffer pool", slog.Int("index", i), slog.Any("pool", p))
	}
}

// Destroy frees every remaining buffer and all pools. The device must be
// idle.
func (m *BufferManager) Destroy() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buffers.Drain(func(_ handle.ID, b *GenericBuffer) {
		destroyBuffer(b)
	})
	for _, p := range m.pools {
		p.destroy()
	}
	m.pools = nil
	if m.cmdPool != nil {
		m.cmdPool.Destroy()
		m.cmdPool = nil
	}
}
