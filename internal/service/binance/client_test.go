package binance

import (
	"context"
	"runtime"
	"testing"
	"time"

	"TradePulse/internal/domain/models"
)

func TestBackoffGrowsAndCaps(t *testing.T) {
	max := 30 * time.Second
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{5, 16 * time.Second},
		{6, max},
		{64, max}, // would overflow an unbounded shift
		{500, max},
	}
	for _, tc := range cases {
		got := backoffFor(tc.attempt, max)
		if got != tc.want {
			t.Fatalf("attempt %d: delay = %v, want %v", tc.attempt, got, tc.want)
		}
		if got <= 0 {
			t.Fatalf("attempt %d: delay must stay positive, got %v", tc.attempt, got)
		}
	}
}

func TestReadStopsPingerWithReadLoop(t *testing.T) {
	c := New("ws://unused", []string{"BTCUSDT"}, time.Millisecond, time.Second, nil).(*Client)

	before := runtime.NumGoroutine()
	_, errs := c.Read(context.Background())
	if err := <-errs; err == nil {
		t.Fatalf("expected a read error without a connection")
	}

	deadline := time.Now().Add(time.Second)
	for runtime.NumGoroutine() > before {
		if time.Now().After(deadline) {
			t.Fatalf("ping goroutine still running after the read loop exited")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestParseFrameAggTrade(t *testing.T) {
	raw := []byte(`{"stream":"btcusdt@aggTrade","data":{"s":"BTCUSDT","p":"50000.5","q":"0.25","T":1717200000000}}`)
	ev, ok := parseFrame(raw)
	if !ok {
		t.Fatalf("expected a parsed event")
	}
	if ev.Kind != models.EventTrade || ev.Symbol != "BTCUSDT" {
		t.Fatalf("event = %+v, want a BTCUSDT trade", ev)
	}
	if ev.Price != 50000.5 || ev.Qty != 0.25 {
		t.Fatalf("price/qty = %v/%v, want 50000.5/0.25", ev.Price, ev.Qty)
	}
}

func TestParseFrameRejectsUnknownStream(t *testing.T) {
	if _, ok := parseFrame([]byte(`{"stream":"btcusdt@kline_1m","data":{}}`)); ok {
		t.Fatalf("unknown stream kinds must be dropped")
	}
}
