package transport

import (
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"
)

const taskChanSize = 100

// WorkerFunction processes one queued connection task.
type WorkerFunction = func(t *tomb.Tomb, task any) error

// WorkerPool is a fixed-size pool of tomb-supervised goroutines draining
// a shared task channel, adapted from the teacher's connection-handling
// pool so the gateway doesn't spin up a goroutine per TCP client.
type WorkerPool struct {
	n     int
	tasks chan any
	work  WorkerFunction
}

func NewWorkerPool(size int) WorkerPool {
	return WorkerPool{
		tasks: make(chan any, taskChanSize),
		n:     size,
	}
}

func (pool *WorkerPool) AddTask(task any) {
	pool.tasks <- task
}

// Setup keeps the pool topped up at n active workers until t is dying.
func (pool *WorkerPool) Setup(t *tomb.Tomb, work WorkerFunction) {
	pool.work = work
	log.Info().Int("workers", pool.n).Msg("transport: starting worker pool")
	active := 0
	for {
		select {
		case <-t.Dying():
			return
		default:
			if active < pool.n {
				t.Go(func() error {
					err := pool.worker(t)
					active--
					return err
				})
				active++
			}
		}
	}
}

func (pool *WorkerPool) worker(t *tomb.Tomb) error {
	for {
		select {
		case <-t.Dying():
			return nil
		case task := <-pool.tasks:
			if err := pool.work(t, task); err != nil {
				log.Error().Err(err).Msg("transport: worker task failed")
			}
		}
	}
}
