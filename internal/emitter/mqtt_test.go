package emitter

import (
	"strings"
	"testing"
)

func TestBrokerURL(t *testing.T) {
	tests := map[string]string{
		"localhost:1883":         "tcp://localhost:1883",
		"tcp://broker:1883":      "tcp://broker:1883",
		"ssl://broker.test:8883": "ssl://broker.test:8883",
	}
	for in, want := range tests {
		if got := BrokerURL(in); got != want {
			t.Errorf("BrokerURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPublish_NotConnected(t *testing.T) {
	e := NewMQTTEmitter(Config{Broker: "localhost:1883", ClientID: "test"})
	err := e.Publish("senyas/gestures/test", 0, []byte("{}"))
	if err == nil || !strings.Contains(err.Error(), "not connected") {
		t.Fatalf("Publish = %v, want not connected", err)
	}
	if st := e.Stats(); st.Errors != 1 || st.Connected {
		t.Errorf("stats = %+v", st)
	}
	if err := e.Subscribe("t", 0, func([]byte) {}); err == nil {
		t.Error("Subscribe without Connect should fail")
	}
	if err := e.Unsubscribe("t"); err != nil {
		t.Errorf("Unsubscribe without client = %v", err)
	}
	e.Disconnect()
}
