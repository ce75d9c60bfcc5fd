// internal/writer/queue.go
package writer

import "go.uber.org/zap"

// queue hands images to one writer goroutine so endpoint I/O never
// runs on the station loop. It holds at most one pending image; a newer
// image replaces one that has not been picked up yet.
//
// publish and close must be called from a single goroutine.
type queue struct {
	d    *delivery
	ch   chan image
	done chan struct{}
}

func newQueue(d *delivery) *queue {
	q := &queue{
		d:    d,
		ch:   make(chan image, 1),
		done: make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *queue) publish(img image) {
	for {
		select {
		case q.ch <- img:
			return
		default:
		}
		select {
		case stale := <-q.ch:
			q.d.log.Debug("mirror image superseded", zap.Uint16("cycles", stale.snap.Cycles))
		default:
		}
	}
}

// close stops accepting images and waits for the last one to be written.
func (q *queue) close() {
	close(q.ch)
	<-q.done
}

func (q *queue) run() {
	defer close(q.done)
	for img := range q.ch {
		if err := q.d.deliver(img); err != nil {
			q.d.log.Warn("mirror write failed", zap.Error(err))
		}
	}
}
