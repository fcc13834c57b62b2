package ws

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/your-org/cellar/internal/models"
)

func TestHubBroadcastFiltersByWine(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	all := &Client{send: make(chan []byte, 10)}
	onlySeven := &Client{send: make(chan []byte, 10), wineID: 7}
	hub.register <- all
	hub.register <- onlySeven

	hub.BroadcastEvent(models.WineEvent{Action: models.ActionQuantity, WineID: 3})
	hub.BroadcastEvent(models.WineEvent{Action: models.ActionDrunk, WineID: 7})

	for i, want := range []int64{3, 7} {
		select {
		case got := <-all.send:
			var evt models.WineEvent
			if err := json.Unmarshal(got, &evt); err != nil {
				t.Fatal(err)
			}
			if evt.WineID != want {
				t.Fatalf("message %d: expected wine %d, got %d", i, want, evt.WineID)
			}
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for message")
		}
	}

	select {
	case got := <-onlySeven.send:
		var evt models.WineEvent
		if err := json.Unmarshal(got, &evt); err != nil {
			t.Fatal(err)
		}
		if evt.WineID != 7 || evt.Action != models.ActionDrunk {
			t.Fatalf("filtered client got %+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for filtered message")
	}

	hub.unregister <- all
	select {
	case _, ok := <-all.send:
		if ok {
			t.Fatal("expected send channel to be closed after unregister")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for close")
	}
}
