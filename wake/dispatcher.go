package wake

import (
	"context"
	"sync"

	"github.com/eapache/queue"

	"github.com/tendermint/alarm/libs/log"
	"github.com/tendermint/alarm/libs/service"
)

// dispatcher delivers fired callbacks in FIFO order on its own goroutine, so
// alarm backends never run user code and never block on it.
type dispatcher struct {
	service.BaseService

	mtx    sync.Mutex
	queue  *queue.Queue
	wakeCh chan struct{}
}

func newDispatcher(logger log.Logger) *dispatcher {
	d := &dispatcher{
		queue:  queue.New(),
		wakeCh: make(chan struct{}, 1), // buffer used for debouncing
	}
	d.BaseService = *service.NewBaseService(logger, "WakeDispatcher", d)
	return d
}

func (d *dispatcher) OnStart(ctx context.Context) error {
	go d.run()
	return nil
}

// OnStop is a no-op: run notices Quit, delivers what is already queued and
// exits.
func (d *dispatcher) OnStop() {}

// enqueue schedules fn for delivery. It never blocks.
func (d *dispatcher) enqueue(fn func()) {
	d.mtx.Lock()
	d.queue.Add(fn)
	d.mtx.Unlock()

	select {
	case d.wakeCh <- struct{}{}:
	default:
	}
}

func (d *dispatcher) run() {
	for {
		select {
		case <-d.wakeCh:
			d.drain()
		case <-d.Quit():
			d.drain()
			return
		}
	}
}

func (d *dispatcher) drain() {
	for {
		d.mtx.Lock()
		if d.queue.Length() == 0 {
			d.mtx.Unlock()
			return
		}
		fn := d.queue.Remove().(func())
		d.mtx.Unlock()

		fn()
	}
}
