package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/julianstephens/repcam/internal/models"
)

type fakeToken struct {
	mqtt.Token
	done chan struct{}
	err  error
}

func doneToken(err error) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool {
	<-t.done
	return true
}

func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error          { return t.err }

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeClient struct {
	mqtt.Client
	opts       *mqtt.ClientOptions
	connectErr error
	publishTok *fakeToken

	mu           sync.Mutex
	connects     int
	published    []published
	disconnected bool
}

func (c *fakeClient) Connect() mqtt.Token {
	c.mu.Lock()
	c.connects++
	c.mu.Unlock()
	return doneToken(c.connectErr)
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	c.published = append(c.published, published{topic, qos, retained, payload.([]byte)})
	c.mu.Unlock()
	if c.publishTok != nil {
		return c.publishTok
	}
	return doneToken(nil)
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	c.disconnected = true
	c.mu.Unlock()
}

func (c *fakeClient) IsConnected() bool { return true }

func withFakeClient(t *testing.T, fc *fakeClient) {
	t.Helper()
	old := newMQTTClient
	t.Cleanup(func() { newMQTTClient = old })
	newMQTTClient = func(o *mqtt.ClientOptions) mqtt.Client {
		fc.opts = o
		return fc
	}
}

func TestMQTTSinkPublishes(t *testing.T) {
	fc := &fakeClient{}
	withFakeClient(t, fc)

	sink := NewMQTTSink(MQTTOptions{Broker: "tcp://127.0.0.1:1883", Username: "rep", Password: "pw"})
	for i := 0; i < 2; i++ {
		if err := sink.Deliver(context.Background(), sampleEvent()); err != nil {
			t.Fatalf("Deliver #%d failed: %v", i, err)
		}
	}

	if fc.connects != 1 {
		t.Errorf("connected %d times, want 1", fc.connects)
	}
	if fc.opts.ClientID != "repcam" || fc.opts.Username != "rep" || fc.opts.Password != "pw" {
		t.Errorf("unexpected client options: id=%q user=%q", fc.opts.ClientID, fc.opts.Username)
	}
	if len(fc.opts.Servers) != 1 || fc.opts.Servers[0].Host != "127.0.0.1:1883" {
		t.Errorf("unexpected brokers: %v", fc.opts.Servers)
	}
	if len(fc.published) != 2 {
		t.Fatalf("published %d messages, want 2", len(fc.published))
	}

	msg := fc.published[0]
	if msg.topic != "repcam/completions" || msg.qos != 1 || msg.retained {
		t.Errorf("unexpected publish: %+v", msg)
	}
	var ev models.CompletionEvent
	if err := json.Unmarshal(msg.payload, &ev); err != nil {
		t.Fatalf("payload is not an event: %v", err)
	}
	if ev.ID != "ev-1" || ev.Count != 2 {
		t.Errorf("unexpected event: %+v", ev)
	}

	if err := sink.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !fc.disconnected {
		t.Error("Close did not disconnect")
	}
}

func TestMQTTSinkErrors(t *testing.T) {
	t.Run("connect", func(t *testing.T) {
		withFakeClient(t, &fakeClient{connectErr: errors.New("not authorized")})
		err := NewMQTTSink(MQTTOptions{Broker: "tcp://127.0.0.1:1883"}).Deliver(context.Background(), sampleEvent())
		if err == nil || !strings.Contains(err.Error(), "not authorized") {
			t.Errorf("Deliver() = %v", err)
		}
	})

	t.Run("publish", func(t *testing.T) {
		withFakeClient(t, &fakeClient{publishTok: doneToken(errors.New("queue full"))})
		err := NewMQTTSink(MQTTOptions{Broker: "tcp://127.0.0.1:1883"}).Deliver(context.Background(), sampleEvent())
		if err == nil || !strings.Contains(err.Error(), "queue full") {
			t.Errorf("Deliver() = %v", err)
		}
	})

	t.Run("deadline", func(t *testing.T) {
		withFakeClient(t, &fakeClient{publishTok: &fakeToken{done: make(chan struct{})}})
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		err := NewMQTTSink(MQTTOptions{Broker: "tcp://127.0.0.1:1883"}).Deliver(ctx, sampleEvent())
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("Deliver() = %v, want deadline exceeded", err)
		}
	})
}
