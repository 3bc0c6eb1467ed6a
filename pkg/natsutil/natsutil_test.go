package natsutil

import (
	"testing"

	"github.com/nats-io/nats.go"
)

func TestHeaderCarrierRoundTrip(t *testing.T) {
	msg := &nats.Msg{}
	c := (*headerCarrier)(msg)

	if got := c.Get("traceparent"); got != "" {
		t.Fatalf("empty carrier Get = %q", got)
	}

	c.Set("traceparent", "00-abc-def-01")
	if got := c.Get("traceparent"); got != "00-abc-def-01" {
		t.Fatalf("Get after Set = %q", got)
	}

	keys := c.Keys()
	if len(keys) != 1 || keys[0] != "Traceparent" {
		t.Fatalf("Keys = %v", keys)
	}
}

func TestHeaderCarrierNilHeaderKeys(t *testing.T) {
	c := (*headerCarrier)(&nats.Msg{})
	if len(c.Keys()) != 0 {
		t.Fatal("nil header should yield no keys")
	}
}
