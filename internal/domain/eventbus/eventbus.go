package eventbus

import (
	"sync"
	"sync/atomic"

	evbus "github.com/asaskevich/EventBus"
)

// Bus 事件总线，支持同步发布和由固定 worker 处理的异步发布
type Bus struct {
	bus       evbus.Bus
	workerNum int
	workChan  chan asyncEvent
	stopChan  chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
	dropped   atomic.Int64
}

type asyncEvent struct {
	topic string
	args  []any
}

// New 创建事件总线；workerNum <= 0 时 PublishAsync 退化为同步发布
func New(workerNum int) *Bus {
	return &Bus{
		bus:       evbus.New(),
		workerNum: workerNum,
		workChan:  make(chan asyncEvent, 1024),
		stopChan:  make(chan struct{}),
	}
}

// Start 启动异步处理
func (b *Bus) Start() {
	b.startOnce.Do(func() {
		for i := 0; i < b.workerNum; i++ {
			b.wg.Add(1)
			go b.worker()
		}
	})
}

// Stop 停止 worker，已入队的事件会先处理完
func (b *Bus) Stop() {
	b.stopOnce.Do(func() {
		close(b.stopChan)
		b.wg.Wait()
	})
}

func (b *Bus) worker() {
	defer b.wg.Done()

	for {
		select {
		case event := <-b.workChan:
			b.dispatch(event)
		case <-b.stopChan:
			for {
				select {
				case event := <-b.workChan:
					b.dispatch(event)
				default:
					return
				}
			}
		}
	}
}

func (b *Bus) dispatch(event asyncEvent) {
	defer func() {
		// 订阅者 panic 不影响 worker
		_ = recover()
	}()
	b.bus.Publish(event.topic, event.args...)
}

// Publish 同步发布事件
func (b *Bus) Publish(topic string, args ...any) {
	b.bus.Publish(topic, args...)
}

// PublishAsync 异步发布事件，队列满时丢弃
func (b *Bus) PublishAsync(topic string, args ...any) {
	if b.workerNum <= 0 {
		b.dispatch(asyncEvent{topic: topic, args: args})
		return
	}
	select {
	case <-b.stopChan:
		b.dropped.Add(1)
		return
	default:
	}
	select {
	case b.workChan <- asyncEvent{topic: topic, args: args}:
	default:
		b.dropped.Add(1)
	}
}

func (b *Bus) Subscribe(topic string, fn any) error {
	return b.bus.Subscribe(topic, fn)
}

func (b *Bus) Unsubscribe(topic string, fn any) error {
	return b.bus.Unsubscribe(topic, fn)
}

// HasCallback 检查是否有订阅者
func (b *Bus) HasCallback(topic string) bool {
	return b.bus.HasCallback(topic)
}

// Dropped 返回因队列满或已停止而丢弃的事件数
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}
