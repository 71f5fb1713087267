package vulkan

import "sync"

type LockGroup string

const (
	ResourceManagement        LockGroup = "resource_management"
	CommandBufferManagement   LockGroup = "command_buffer_management"
	PipelineManagement        LockGroup = "pipeline_management"
	MemoryManagement          LockGroup = "memory_management"
	SynchronizationManagement LockGroup = "synchronization_management"
	SwapchainManagement       LockGroup = "swapchain_management"
)

// lockPool serialises calls per object group, plus one lock per queue since
// vkQueueSubmit and vkQueuePresentKHR require external synchronisation.
type lockPool struct {
	mu     sync.Mutex
	locks  map[LockGroup]*sync.Mutex
	queues map[uint32]*sync.Mutex
}

func newLockPool() *lockPool {
	return &lockPool{
		locks:  make(map[LockGroup]*sync.Mutex),
		queues: make(map[uint32]*sync.Mutex),
	}
}

func (p *lockPool) lock(group LockGroup) *sync.Mutex {
	p.mu.Lock()
	l, ok := p.locks[group]
	if !ok {
		l = &sync.Mutex{}
		p.locks[group] = l
	}
	p.mu.Unlock()
	return l
}

func (p *lockPool) queue(family uint32) *sync.Mutex {
	p.mu.Lock()
	l, ok := p.queues[family]
	if !ok {
		l = &sync.Mutex{}
		p.queues[family] = l
	}
	p.mu.Unlock()
	return l
}

func (p *lockPool) SafeCall(group LockGroup, fn func() error) error {
	l := p.lock(group)
	l.Lock()
	defer l.Unlock()
	return fn()
}

func (p *lockPool) SafeQueueCall(family uint32, fn func() error) error {
	l := p.queue(family)
	l.Lock()
	defer l.Unlock()
	return fn()
}
