package queue

import (
	"testing"

	"github.com/icemet/icemet-server/internal/model"
)

func TestPushNeverDropsAndCollectPreservesOrder(t *testing.T) {
	q := NewQueue(4)
	var wg chan struct{} = make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			q.Push(model.NewImageEnvelope(model.NewImage(model.File{Frame: uint32(i)})))
		}
		close(wg)
	}()

	var got []model.Envelope
	for len(got) < 10 {
		got = append(got, q.Collect()...)
	}
	<-wg

	for i, env := range got {
		if env.Img.File.Frame != uint32(i) {
			t.Fatalf("order violated at %d: got frame %d", i, env.Img.File.Frame)
		}
	}
}

func TestCollectDrainsAtomically(t *testing.T) {
	q := NewQueue(8)
	q.Push(model.NewImageEnvelope(model.NewImage(model.File{})))
	q.Push(model.NewImageEnvelope(model.NewImage(model.File{})))
	batch := q.Collect()
	if len(batch) != 2 {
		t.Fatalf("expected 2, got %d", len(batch))
	}
	if q.Len() != 0 {
		t.Fatalf("expected queue empty after collect, got %d", q.Len())
	}
}
