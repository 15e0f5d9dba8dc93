package forward

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"starkcron/internal/model"
)

func testEvents(t *testing.T) []model.Event {
	t.Helper()
	var events []model.Event
	raw := `[{"eventId":"e1","blockNumber":1,"transactionHash":"0x1","name":"Swap","timestamp":10,"keys":["0xa"]},
		{"eventId":"e2","blockNumber":2,"transactionHash":"0x2","name":"Swap","timestamp":20}]`
	if err := json.Unmarshal([]byte(raw), &events); err != nil {
		t.Fatalf("unmarshal events: %v", err)
	}
	return events
}

func TestHTTPForwarderSend(t *testing.T) {
	var body []byte
	var contentType, requestID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		contentType = r.Header.Get("Content-Type")
		requestID = r.Header.Get("X-Request-Id")
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	events := testEvents(t)
	if err := NewHTTPForwarder(srv.URL, 0, nil).Send(context.Background(), events); err != nil {
		t.Fatalf("send: %v", err)
	}

	if contentType != "application/json" {
		t.Fatalf("content type = %q", contentType)
	}
	if requestID == "" {
		t.Fatalf("missing request id")
	}

	want := `{"items":[{"eventId":"e1","blockNumber":1,"transactionHash":"0x1","name":"Swap","timestamp":10,"keys":["0xa"]},{"eventId":"e2","blockNumber":2,"transactionHash":"0x2","name":"Swap","timestamp":20}]}`
	if string(body) != want {
		t.Fatalf("body mismatch:\n%s\n%s", body, want)
	}
}

func TestHTTPForwarderStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewHTTPForwarder(srv.URL, 0, nil).Send(context.Background(), testEvents(t))
	if !errors.Is(err, ErrStatus) {
		t.Fatalf("error = %v, want ErrStatus", err)
	}
}

func TestHTTPForwarderEmptyBatch(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	if err := NewHTTPForwarder(srv.URL, 0, nil).Send(context.Background(), nil); err == nil {
		t.Fatalf("expected error for empty batch")
	}
	if called {
		t.Fatalf("empty batch must not reach the server")
	}
}

func TestFileForwarderAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "batches.jsonl")
	fwd := NewFileForwarder(path)
	events := testEvents(t)

	if err := fwd.Send(context.Background(), events[:1]); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := fwd.Send(context.Background(), events[1:]); err != nil {
		t.Fatalf("send: %v", err)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer file.Close()

	var got [][]string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var batch model.Batch
		if err := json.Unmarshal(scanner.Bytes(), &batch); err != nil {
			t.Fatalf("decode line: %v", err)
		}
		got = append(got, model.IDs(batch.Items))
	}
	want := [][]string{{"e1"}, {"e2"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("batches mismatch: %v != %v", got, want)
	}
}
