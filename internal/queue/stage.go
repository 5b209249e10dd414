package queue

import (
	"context"

	"github.com/icemet/icemet-server/internal/model"
	"github.com/icemet/icemet-server/internal/monitoring"
)

// Stage is implemented by every pipeline stage. Run blocks until the
// stage observes a QUIT envelope (or ctx is cancelled) and has forwarded
// it to every outbound queue.
type Stage interface {
	Name() string
	Run(ctx context.Context) error
}

// Handler processes one non-control envelope and returns the envelopes to
// forward downstream (zero, one, or many — e.g. Analysis fans out to both
// Saver and Stats).
type Handler func(env model.Envelope) ([]model.Envelope, error)

// RunLoop implements the common stage main-loop contract from spec.md
// §4.1: drain the inbound queue in one snapshot; if empty, sleep ~1ms and
// retry; for each envelope, forward QUIT to every output and stop after
// the batch, otherwise hand it to handle and forward whatever it
// produces. A handle error is treated as the "unrecoverable exception"
// case: log critical and exit the process.
func RunLoop(ctx context.Context, name string, in *Queue, outs []*Queue, handle Handler) error {
	log := monitoring.Stage(name)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		batch := in.Collect()
		if len(batch) == 0 {
			Sleep()
			continue
		}

		quit := false
		for _, env := range batch {
			if env.IsQuit() {
				quit = true
				for _, o := range outs {
					o.Push(env)
				}
				continue
			}
			results, err := handle(env)
			if err != nil {
				log.Critical(err)
				return err
			}
			for _, r := range results {
				for _, o := range outs {
					o.Push(r)
				}
			}
		}
		if quit {
			log.Infof("drained, terminating")
			return nil
		}
	}
}
