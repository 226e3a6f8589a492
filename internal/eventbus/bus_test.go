package eventbus

import "testing"

func TestPublishFanout(t *testing.T) {
	t.Parallel()
	b := New()
	a, unsubA := b.Subscribe(4)
	c, unsubC := b.Subscribe(4)
	defer unsubC()

	b.Publish(Event{Type: RoundStarted, Data: "r1"})
	for _, ch := range []<-chan Event{a, c} {
		e := <-ch
		if e.Type != RoundStarted || e.Data != "r1" || e.Time.IsZero() {
			t.Fatalf("event = %+v", e)
		}
	}

	unsubA()
	unsubA()
	if _, ok := <-a; ok {
		t.Fatal("channel not closed after unsubscribe")
	}
	b.Publish(Event{Type: RoundFinished})
	if e := <-c; e.Type != RoundFinished {
		t.Fatalf("event = %+v", e)
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()
	for i := 0; i < 100; i++ {
		b.Publish(Event{Type: TargetChecked})
	}
	if len(ch) != 1 {
		t.Fatalf("buffered = %d, want 1", len(ch))
	}
}

func TestNop(t *testing.T) {
	t.Parallel()
	b := Nop()
	b.Publish(Event{Type: AvailableEdge})
	ch, unsub := b.Subscribe(1)
	defer unsub()
	if _, ok := <-ch; ok {
		t.Fatal("nop subscription should be closed")
	}
}
