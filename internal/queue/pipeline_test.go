package queue

import (
	"context"
	"testing"
	"time"

	"github.com/icemet/icemet-server/internal/model"
)

type echoStage struct {
	name string
	in   *Queue
	outs []*Queue
}

func (s *echoStage) Name() string { return s.name }
func (s *echoStage) Run(ctx context.Context) error {
	return RunLoop(ctx, s.name, s.in, s.outs, func(env model.Envelope) ([]model.Envelope, error) {
		return []model.Envelope{env}, nil
	})
}

func TestPipelineRunsEveryStageAndReturnsAfterQuit(t *testing.T) {
	a := NewQueue(4)
	b := NewQueue(4)
	c := NewQueue(4)

	p := NewPipeline()
	p.Add(&echoStage{name: "first", in: a, outs: []*Queue{b}})
	p.Add(&echoStage{name: "second", in: b, outs: []*Queue{c}})

	a.Push(model.NewImageEnvelope(model.NewImage(model.File{Frame: 1})))
	a.Push(model.QuitEnvelope())

	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("pipeline run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline did not terminate after QUIT")
	}

	got := c.Collect()
	if len(got) != 2 {
		t.Fatalf("expected image + quit forwarded to final queue, got %d", len(got))
	}
	if got[0].Img.File.Frame != 1 {
		t.Fatalf("expected forwarded frame 1, got %d", got[0].Img.File.Frame)
	}
	if !got[1].IsQuit() {
		t.Fatal("expected second envelope to be QUIT")
	}
}
