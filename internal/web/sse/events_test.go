package sse

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestFormatSSEMessage(t *testing.T) {
	got := string(formatSSEMessage("stock_changed", []byte(`{"id":1}`)))
	want := "event: stock_changed\ndata: {\"id\":1}\n\n"
	if got != want {
		t.Fatalf("formatSSEMessage() = %q, want %q", got, want)
	}
}

func TestPublishIsCompanyScoped(t *testing.T) {
	b := newBroker(time.Hour)
	defer b.Stop()

	mux := http.NewServeMux()
	mux.HandleFunc("/events/1", func(w http.ResponseWriter, r *http.Request) { b.Serve(w, r, 1) })
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events/1", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	lines := make(chan string, 16)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	waitFor := func(prefix string) string {
		t.Helper()
		timeout := time.After(5 * time.Second)
		for {
			select {
			case line, ok := <-lines:
				if !ok {
					t.Fatalf("stream closed before %q", prefix)
				}
				if strings.HasPrefix(line, prefix) {
					return line
				}
			case <-timeout:
				t.Fatalf("timed out waiting for %q", prefix)
			}
		}
	}

	waitFor("event: connected")
	for b.ClientCount() == 0 {
		time.Sleep(10 * time.Millisecond)
	}

	b.Publish(2, EventStockChanged, map[string]any{"company": 2})
	b.Publish(1, EventDepartmentCreated, map[string]any{"company": 1})

	if got := waitFor("event: "); got != "event: department_created" {
		t.Fatalf("expected only the company's event, got %q", got)
	}
}
