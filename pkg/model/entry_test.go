package model

import (
	"testing"
	"time"
)

func TestEvent_Metadata(t *testing.T) {
	ev := NewEvent(time.Unix(0, 0), []byte(`{"a":1}`))

	if _, ok := ev.Get("uuid"); ok {
		t.Fatal("expected empty metadata")
	}
	ev.Set("uuid", "abc")
	if v, ok := ev.Get("uuid"); !ok || v != "abc" {
		t.Errorf("Get() = %q, %v, want abc, true", v, ok)
	}
}

func TestEvent_NilSafe(t *testing.T) {
	var ev *Event
	if _, ok := ev.Get("x"); ok {
		t.Error("nil event should have no metadata")
	}
	ev.Set("x", "y") // must not panic
}
