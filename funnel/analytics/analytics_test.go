package analytics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func TestClientPostsMeasurementPayload(t *testing.T) {
	var (
		mu    sync.Mutex
		query string
		got   payload
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		query = r.URL.RawQuery
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(Config{MeasurementID: "G-1", APISecret: "s3", Endpoint: srv.URL + "/mp/collect"})
	c.now = func() time.Time { return time.UnixMilli(1700000000000) }
	c.Track(context.Background(), 42, FunnelStep("payment_initiated"))
	c.Close()

	mu.Lock()
	defer mu.Unlock()
	if query != "api_secret=s3&measurement_id=G-1" {
		t.Fatalf("query = %q", query)
	}
	if got.ClientID != "42" || len(got.Events) != 1 {
		t.Fatalf("payload = %+v", got)
	}
	ev := got.Events[0]
	if ev.Name != "funnel_step" || ev.Params["step_name"] != "payment_initiated" {
		t.Fatalf("event = %+v", ev)
	}
	if ev.Params["engagement_time_msec"] != "100" || ev.Params["session_id"] != "1700000000000" {
		t.Fatalf("default params = %+v", ev.Params)
	}
}

func TestNewWithoutCredentialsIsNop(t *testing.T) {
	if _, ok := New(Config{MeasurementID: "G-1"}).(Nop); !ok {
		t.Fatal("expected Nop tracker without api secret")
	}
}

func TestPurchaseItems(t *testing.T) {
	ev := Purchase("RUB", 990, "pay_1", Item{ID: "course", Name: "Course"})
	items, ok := ev.Params["items"].([]map[string]any)
	if !ok || len(items) != 1 || items[0]["quantity"] != 1 || items[0]["price"] != float64(990) {
		t.Fatalf("items = %#v", ev.Params["items"])
	}
}
