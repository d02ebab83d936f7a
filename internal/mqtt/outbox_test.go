package mqtt

import (
	"testing"

	"github.com/vpetryaev/GateRTO-1000/internal/logger"
)

func eventMsg(topic string, n byte) message {
	return message{topic: topic, payload: []byte{n}}
}

func TestOutboxKeepsOrder(t *testing.T) {
	o := newOutbox(10)
	for i := byte(0); i < 4; i++ {
		if o.add(eventMsg("gate/actuator/events", i)) {
			t.Fatalf("unexpected drop at %d", i)
		}
	}
	got := o.take()
	if len(got) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(got))
	}
	for i, m := range got {
		if m.payload[0] != byte(i) {
			t.Errorf("message %d: got payload %d", i, m.payload[0])
		}
	}
	if o.len() != 0 || o.take() != nil {
		t.Error("expected empty outbox after take")
	}
}

func TestOutboxDropsOldestWhenFull(t *testing.T) {
	o := newOutbox(3)
	drops := 0
	for i := byte(0); i < 5; i++ {
		if o.add(eventMsg("e", i)) {
			drops++
		}
	}
	if drops != 2 || o.dropped != 2 {
		t.Errorf("expected 2 drops, got %d (counter %d)", drops, o.dropped)
	}
	got := o.take()
	if len(got) != 3 || got[0].payload[0] != 2 || got[2].payload[0] != 4 {
		t.Errorf("expected payloads 2..4, got %+v", got)
	}
}

func TestOutboxRetainedReplacesSameTopic(t *testing.T) {
	o := newOutbox(10)
	o.add(message{topic: "gate/trigger/system", payload: []byte("STARTUP"), qos: 1, retained: true})
	o.add(eventMsg("gate/trigger/events", 1))
	o.add(message{topic: "gate/trigger/system", payload: []byte("HEARTBEAT"), qos: 1})
	o.add(message{topic: "gate/trigger/system", payload: []byte("SHUTDOWN"), qos: 1, retained: true})

	got := o.take()
	if len(got) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(got))
	}
	if string(got[1].payload) != "HEARTBEAT" {
		t.Errorf("non-retained message must stay, got %s", got[1].payload)
	}
	last := got[2]
	if string(last.payload) != "SHUTDOWN" || !last.retained || last.qos != 1 {
		t.Errorf("expected retained SHUTDOWN last, got %+v", last)
	}
}

func TestReplayQueuesRacingPublishBehindOutbox(t *testing.T) {
	p := &RealPublisher{log: logger.Nop(), outbox: newOutbox(outboxSize)}
	for i := byte(0); i < 2; i++ {
		if err := p.publish("gate/actuator/system", 1, false, []byte{i}); err != nil {
			t.Fatalf("publish while disconnected: %v", err)
		}
	}

	var sent []byte
	replayed := p.replay(func(m message) {
		if len(sent) == 0 {
			// A publish from another goroutine lands mid-replay.
			if err := p.publish("gate/actuator/system", 1, true, []byte{2}); err != nil {
				t.Errorf("publish during replay: %v", err)
			}
		}
		sent = append(sent, m.payload[0])
	})

	if replayed != 3 {
		t.Errorf("expected 3 replayed, got %d", replayed)
	}
	if len(sent) != 3 || sent[0] != 0 || sent[1] != 1 || sent[2] != 2 {
		t.Errorf("expected payloads [0 1 2] in order, got %v", sent)
	}
	if !p.IsConnected() {
		t.Error("expected connected once the outbox is drained")
	}
}
