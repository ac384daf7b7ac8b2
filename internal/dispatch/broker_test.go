package dispatch

import "testing"

func TestBrokerPublishReachesSubscribers(t *testing.T) {
	b := NewBroker()

	ch1, unsub1 := b.Subscribe("t1")
	defer unsub1()
	ch2, unsub2 := b.Subscribe("t1")
	defer unsub2()

	b.Publish("t1", "event-a")

	for i, ch := range []<-chan string{ch1, ch2} {
		select {
		case got := <-ch:
			if got != "event-a" {
				t.Errorf("subscriber %d got %q, want event-a", i, got)
			}
		default:
			t.Errorf("subscriber %d received nothing", i)
		}
	}
}

func TestBrokerTopicsAreIsolated(t *testing.T) {
	b := NewBroker()

	ch, unsub := b.Subscribe("t1")
	defer unsub()

	b.Publish("t2", "other")

	select {
	case got := <-ch:
		t.Errorf("received %q from another topic", got)
	default:
	}
}

func TestBrokerCloseEndsStreams(t *testing.T) {
	b := NewBroker()

	ch, unsub := b.Subscribe("t1")
	defer unsub()

	b.Close("t1")

	if _, ok := <-ch; ok {
		t.Error("channel still open after close")
	}

	// Publishing to a closed topic is a no-op.
	b.Publish("t1", "late")
}

func TestBrokerLateSubscribeAfterClose(t *testing.T) {
	b := NewBroker()
	b.Close("t1")

	ch, unsub := b.Subscribe("t1")
	defer unsub()

	if _, ok := <-ch; ok {
		t.Error("late subscriber got an open channel")
	}
}

func TestBrokerUnsubscribeStopsDelivery(t *testing.T) {
	b := NewBroker()

	ch, unsub := b.Subscribe("t1")
	unsub()

	b.Publish("t1", "event-a")

	select {
	case got := <-ch:
		t.Errorf("received %q after unsubscribe", got)
	default:
	}
}

func TestBrokerDropsForSlowSubscribers(t *testing.T) {
	b := NewBroker()

	ch, unsub := b.Subscribe("t1")
	defer unsub()

	// Overfill the buffer; Publish must not block.
	for i := 0; i < subscriberBufferSize+10; i++ {
		b.Publish("t1", "event")
	}

	if len(ch) != subscriberBufferSize {
		t.Errorf("buffered = %d, want %d", len(ch), subscriberBufferSize)
	}
}
