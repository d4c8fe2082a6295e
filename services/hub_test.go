package services

import (
	"sync"
	"testing"
)

func TestClientShutdownRacesSend(t *testing.T) {
	// A replaced connection is shut down by the hub loop while broadcasts may
	// still be handing it frames; neither side may panic on the closed channel.
	client := &Client{send: make(chan []byte, 4)}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				client.trySend([]byte("frame"))
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		client.shutdown()
	}()
	wg.Wait()

	// Shutting down twice must be a no-op, and a late send must be refused.
	client.shutdown()
	if client.trySend([]byte("late")) {
		t.Error("send accepted after shutdown")
	}
}

func TestClientTrySendReportsFullBuffer(t *testing.T) {
	client := &Client{send: make(chan []byte, 1)}

	if !client.trySend([]byte("a")) {
		t.Fatal("send into an empty buffer refused")
	}
	if client.trySend([]byte("b")) {
		t.Error("send into a full buffer accepted")
	}
}
