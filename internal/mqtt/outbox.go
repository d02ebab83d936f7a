package mqtt

// message is a serialized publish held while the broker is unreachable.
type message struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// outbox queues messages while disconnected, oldest first. A retained
// message replaces a queued retained message on the same topic because the
// broker only keeps the last one. When full the oldest message is dropped.
// Callers synchronize.
type outbox struct {
	queue   []message
	limit   int
	dropped int
}

func newOutbox(limit int) *outbox {
	return &outbox{limit: limit}
}

// add queues m. It reports whether an older message was dropped to make room.
func (o *outbox) add(m message) bool {
	if m.retained {
		for i, q := range o.queue {
			if q.retained && q.topic == m.topic {
				o.queue = append(o.queue[:i], o.queue[i+1:]...)
				break
			}
		}
	}
	dropped := false
	if len(o.queue) >= o.limit {
		o.queue = o.queue[1:]
		o.dropped++
		dropped = true
	}
	o.queue = append(o.queue, m)
	return dropped
}

// take empties the outbox and returns what it held.
func (o *outbox) take() []message {
	q := o.queue
	o.queue = nil
	return q
}

func (o *outbox) len() int { return len(o.queue) }
