package optpubsub

import "testing"

func TestBrokerPublishFanOut(t *testing.T) {
	b := NewBroker[int]()

	a := make(chan int, 1)
	c := make(chan int, 1)
	if err := b.Subscribe(a); err != nil {
		t.Fatal(err)
	}
	if err := b.Subscribe(c); err != nil {
		t.Fatal(err)
	}

	b.Publish(42)

	if got := <-a; got != 42 {
		t.Fatalf("a: got %d, want 42", got)
	}
	if got := <-c; got != 42 {
		t.Fatalf("c: got %d, want 42", got)
	}
}

func TestBrokerPublishWithNoSubscribersIsNoop(t *testing.T) {
	b := NewBroker[int]()
	b.Publish(1) // must not panic or block
}

func TestBrokerDropsOnFullChannel(t *testing.T) {
	b := NewBroker[int]()
	ch := make(chan int) // unbuffered, unread
	if err := b.Subscribe(ch); err != nil {
		t.Fatal(err)
	}

	b.Publish(1)
	b.Publish(2)

	stats, err := b.Unsubscribe(ch)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Drops != 2 {
		t.Fatalf("got %d drops, want 2", stats.Drops)
	}
}

func TestBrokerStatsPeeksWithoutUnsubscribing(t *testing.T) {
	b := NewBroker[int]()
	ch := make(chan int, 1)
	if err := b.Subscribe(ch); err != nil {
		t.Fatal(err)
	}

	b.Publish(1)
	<-ch

	stats, err := b.Stats(ch)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Sends != 1 {
		t.Fatalf("got %d sends, want 1", stats.Sends)
	}

	b.Publish(2)
	if got := <-ch; got != 2 {
		t.Fatalf("got %d, want 2 (Stats must not have unsubscribed ch)", got)
	}
}

func TestBrokerDoubleSubscribeErrors(t *testing.T) {
	b := NewBroker[int]()
	ch := make(chan int, 1)
	if err := b.Subscribe(ch); err != nil {
		t.Fatal(err)
	}
	if err := b.Subscribe(ch); err == nil {
		t.Fatal("expected error on double subscribe")
	}
}

func TestBrokerUnsubscribeUnknownErrors(t *testing.T) {
	b := NewBroker[int]()
	ch := make(chan int, 1)
	if _, err := b.Unsubscribe(ch); err == nil {
		t.Fatal("expected error unsubscribing an unknown channel")
	}
}
