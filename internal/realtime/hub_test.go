package realtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type row struct {
	ID         string `json:"id"`
	SenderID   string `json:"sender_id"`
	ReceiverID string `json:"receiver_id"`
	Read       bool   `json:"read"`
	Likes      int    `json:"likes"`
}

func mustEvent(t *testing.T, table string, typ EventType, rec, old any, audience ...string) Event {
	t.Helper()
	ev, err := NewEvent(table, typ, rec, old, audience...)
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	return ev
}

func recv(t *testing.T, s *Subscription) Delivery {
	t.Helper()
	select {
	case d, ok := <-s.C():
		if !ok {
			t.Fatalf("subscription closed")
		}
		return d
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for delivery")
	}
	return Delivery{}
}

func expectNone(t *testing.T, s *Subscription) {
	t.Helper()
	select {
	case d := <-s.C():
		t.Fatalf("unexpected delivery: %+v", d)
	default:
	}
}

func TestTopicCompile(t *testing.T) {
	bad := []Topic{
		{},
		{Table: "messages", Event: "TRUNCATE"},
		{Table: "messages", Filter: "receiver_id"},
		{Table: "messages", Filter: "receiver_id=neq.u1"},
		{Table: "messages", Filter: "=eq.u1"},
	}
	for _, tp := range bad {
		if err := tp.Validate(); !errors.Is(err, ErrInvalidTopic) {
			t.Fatalf("Validate(%+v) = %v, want ErrInvalidTopic", tp, err)
		}
	}
	good := []Topic{
		{Table: "posts"},
		{Table: "posts", Event: "*"},
		{Table: "messages", Event: "insert", Filter: "receiver_id=eq.u1"},
	}
	for _, tp := range good {
		if err := tp.Validate(); err != nil {
			t.Fatalf("Validate(%+v): %v", tp, err)
		}
	}
}

func TestMatcher(t *testing.T) {
	ev := mustEvent(t, "messages", Insert, row{ID: "m1", SenderID: "a", ReceiverID: "b", Likes: 3}, nil)
	ev.decode()

	cases := []struct {
		topic Topic
		want  bool
	}{
		{Topic{Table: "messages"}, true},
		{Topic{Table: "posts"}, false},
		{Topic{Table: "messages", Event: "UPDATE"}, false},
		{Topic{Table: "messages", Event: "INSERT", Filter: "receiver_id=eq.b"}, true},
		{Topic{Table: "messages", Filter: "receiver_id=eq.a"}, false},
		{Topic{Table: "messages", Filter: "likes=eq.3"}, true},
		{Topic{Table: "messages", Filter: "read=eq.false"}, true},
		{Topic{Table: "messages", Filter: "missing=eq.x"}, false},
	}
	for _, tc := range cases {
		m, err := tc.topic.compile()
		if err != nil {
			t.Fatalf("compile: %v", err)
		}
		if got := m.match(&ev); got != tc.want {
			t.Fatalf("match(%+v) = %v, want %v", tc.topic, got, tc.want)
		}
	}

	del := mustEvent(t, "messages", Delete, nil, row{ID: "m1", ReceiverID: "b"})
	del.decode()
	m, _ := Topic{Table: "messages", Filter: "receiver_id=eq.b"}.compile()
	if !m.match(&del) {
		t.Fatalf("DELETE should match on old record")
	}
}

func TestHub_SeqMonotonicAndDelivery(t *testing.T) {
	h := NewHub()
	s, err := h.Subscribe("u1", 16)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := s.Listen("all-posts", Topic{Table: "posts"}); err != nil {
		t.Fatalf("Listen: %v", err)
	}

	ctx := context.Background()
	var last uint64
	for i := 0; i < 5; i++ {
		got, err := h.Publish(ctx, mustEvent(t, "posts", Insert, row{ID: "p"}, nil))
		if err != nil {
			t.Fatalf("Publish: %v", err)
		}
		if got.Seq <= last {
			t.Fatalf("seq not increasing: %d after %d", got.Seq, last)
		}
		last = got.Seq
		d := recv(t, s)
		if d.TopicID != "all-posts" || d.Event.Seq != got.Seq || d.Event.At.IsZero() {
			t.Fatalf("unexpected delivery: %+v", d)
		}
	}
	if h.LastSeq() != last {
		t.Fatalf("LastSeq = %d, want %d", h.LastSeq(), last)
	}

	// Non-matching table is not delivered.
	if _, err := h.Publish(ctx, mustEvent(t, "likes", Insert, row{}, nil)); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	expectNone(t, s)
}

func TestHub_ConcurrentPublishersKeepOrder(t *testing.T) {
	h := NewHub()
	s, _ := h.Subscribe("u1", 1000)
	_ = s.Listen("t", Topic{Table: "posts"})

	ev := mustEvent(t, "posts", Insert, row{}, nil)
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_, _ = h.Publish(context.Background(), ev)
			}
		}()
	}
	wg.Wait()

	var last uint64
	for i := 0; i < 200; i++ {
		d := recv(t, s)
		if d.Event.Seq <= last {
			t.Fatalf("out of order: %d after %d", d.Event.Seq, last)
		}
		last = d.Event.Seq
	}
}

func TestHub_PrivateAudience(t *testing.T) {
	h := NewHub()
	alice, _ := h.Subscribe("alice", 4)
	bob, _ := h.Subscribe("bob", 4)
	eve, _ := h.Subscribe("eve", 4)
	for _, s := range []*Subscription{alice, bob, eve} {
		// eve tries to snoop with a filter naming bob
		_ = s.Listen("dm", Topic{Table: "messages", Filter: "receiver_id=eq.bob"})
	}

	ev := mustEvent(t, "messages", Insert, row{ID: "m1", SenderID: "alice", ReceiverID: "bob"}, nil, "alice", "bob")
	if _, err := h.Publish(context.Background(), ev); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	recv(t, alice)
	recv(t, bob)
	expectNone(t, eve)
}

func TestHub_MultipleTopicsAndUnlisten(t *testing.T) {
	h := NewHub()
	s, _ := h.Subscribe("u1", 8)
	_ = s.Listen("a", Topic{Table: "posts"})
	_ = s.Listen("b", Topic{Table: "posts", Event: "INSERT"})

	_, _ = h.Publish(context.Background(), mustEvent(t, "posts", Insert, row{}, nil))
	got := map[string]bool{recv(t, s).TopicID: true, recv(t, s).TopicID: true}
	if !got["a"] || !got["b"] {
		t.Fatalf("expected deliveries for both topics, got %v", got)
	}

	if !s.Unlisten("a") || s.Unlisten("a") {
		t.Fatalf("Unlisten should report existence once")
	}
	_, _ = h.Publish(context.Background(), mustEvent(t, "posts", Insert, row{}, nil))
	if d := recv(t, s); d.TopicID != "b" {
		t.Fatalf("got topic %q", d.TopicID)
	}
	expectNone(t, s)
}

func TestHub_DropsSlowSubscriber(t *testing.T) {
	h := NewHub()
	slow, _ := h.Subscribe("slow", 1)
	fast, _ := h.Subscribe("fast", 8)
	_ = slow.Listen("t", Topic{Table: "posts"})
	_ = fast.Listen("t", Topic{Table: "posts"})

	for i := 0; i < 3; i++ {
		if _, err := h.Publish(context.Background(), mustEvent(t, "posts", Insert, row{}, nil)); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}

	// first event buffered, then channel closed
	<-slow.C()
	if _, ok := <-slow.C(); ok {
		t.Fatalf("slow subscriber should be closed")
	}
	if !errors.Is(slow.Err(), ErrSlowSubscriber) {
		t.Fatalf("Err = %v", slow.Err())
	}
	if h.Len() != 1 {
		t.Fatalf("Len = %d, want 1", h.Len())
	}
	for i := 0; i < 3; i++ {
		recv(t, fast)
	}
}

func TestHub_CloseAndShutdown(t *testing.T) {
	h := NewHub()
	s1, _ := h.Subscribe("u1", 1)
	s2, _ := h.Subscribe("u2", 1)

	s1.Close()
	s1.Close()
	if s1.Err() != nil {
		t.Fatalf("owner close should have nil Err, got %v", s1.Err())
	}
	if h.Len() != 1 {
		t.Fatalf("Len = %d", h.Len())
	}

	if err := h.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if _, ok := <-s2.C(); ok {
		t.Fatalf("s2 should be closed")
	}
	if !errors.Is(s2.Err(), ErrClosed) {
		t.Fatalf("Err = %v", s2.Err())
	}
	if _, err := h.Publish(context.Background(), mustEvent(t, "posts", Insert, row{}, nil)); !errors.Is(err, ErrClosed) {
		t.Fatalf("Publish after shutdown = %v", err)
	}
	if _, err := h.Subscribe("u3", 1); !errors.Is(err, ErrClosed) {
		t.Fatalf("Subscribe after shutdown = %v", err)
	}
	if err := s2.Listen("x", Topic{Table: "posts"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("Listen on closed subscription = %v", err)
	}
}

func TestHub_RelayOnlyLocalEvents(t *testing.T) {
	h := NewHub()
	var relayed []Event
	h.SetRelay(func(ev Event) { relayed = append(relayed, ev) })

	_, _ = h.Publish(context.Background(), mustEvent(t, "posts", Insert, row{}, nil))
	remote := mustEvent(t, "posts", Insert, row{}, nil)
	remote.Origin = "other"
	_, _ = h.Publish(context.Background(), remote)

	if len(relayed) != 1 || relayed[0].Origin != "" {
		t.Fatalf("expected one local relay, got %+v", relayed)
	}
}
