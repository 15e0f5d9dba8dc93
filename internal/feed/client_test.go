package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"starkcron/internal/model"
)

func TestFetchPage(t *testing.T) {
	var gotQuery map[string][]string
	var gotKey, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		gotQuery = r.URL.Query()
		gotKey = r.Header.Get("x-api-key")
		gotAccept = r.Header.Get("accept")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"items":[
			{"eventId":"e2","blockNumber":20,"transactionHash":"0x2","name":"Swap","timestamp":200,"contract":"0xc"},
			{"eventId":"e1","blockNumber":10,"transactionHash":"0x1","name":"Swap","timestamp":100}
		],"lastPage":3,"hasMore":true}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "secret", 0)
	page, err := client.FetchPage(context.Background(), "0xabc", 2)
	if err != nil {
		t.Fatalf("fetch page: %v", err)
	}

	wantQuery := map[string][]string{"ps": {"10"}, "p": {"2"}, "contract": {"0xabc"}}
	if !reflect.DeepEqual(gotQuery, wantQuery) {
		t.Fatalf("query mismatch: %v != %v", gotQuery, wantQuery)
	}
	if gotKey != "secret" {
		t.Fatalf("api key header = %q", gotKey)
	}
	if gotAccept != "application/json" {
		t.Fatalf("accept header = %q", gotAccept)
	}

	if page.LastPage != 3 {
		t.Fatalf("last page = %d, want 3", page.LastPage)
	}
	if got := model.IDs(page.Items); !reflect.DeepEqual(got, []string{"e2", "e1"}) {
		t.Fatalf("items mismatch: %v", got)
	}
	raw, ok := page.Items[0].Extra.Get("contract")
	if !ok || string(raw) != `"0xc"` {
		t.Fatalf("extra field lost: %s", raw)
	}
}

func TestFetchPageKeepsBaseQuery(t *testing.T) {
	var gotQuery map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Write([]byte(`{"items":[],"lastPage":0}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL+"/beta/events?order=desc", "k", 0)
	page, err := client.FetchPage(context.Background(), "0x1", 1)
	if err != nil {
		t.Fatalf("fetch page: %v", err)
	}
	if len(page.Items) != 0 || page.LastPage != 0 {
		t.Fatalf("unexpected page: %+v", page)
	}
	if gotQuery["order"][0] != "desc" || gotQuery["p"][0] != "1" {
		t.Fatalf("query mismatch: %v", gotQuery)
	}
}

func TestFetchPageErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{name: "server error", status: http.StatusInternalServerError, body: "boom", wantErr: ErrStatus},
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{"message":"bad key"}`, wantErr: ErrStatus},
		{name: "malformed", status: http.StatusOK, body: `{"items":`},
		{name: "wrong types", status: http.StatusOK, body: `{"items":[{"eventId":"e","blockNumber":"x"}],"lastPage":1}`},
		{name: "missing id", status: http.StatusOK, body: `{"items":[{"blockNumber":1}],"lastPage":1}`},
		{name: "negative last page", status: http.StatusOK, body: `{"items":[],"lastPage":-1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL, "k", 0).FetchPage(context.Background(), "0x1", 1)
			if err == nil {
				t.Fatalf("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestFetchPageInvalidPage(t *testing.T) {
	if _, err := NewClient("http://localhost", "k", 0).FetchPage(context.Background(), "0x1", 0); err == nil {
		t.Fatalf("expected error for page 0")
	}
}

func TestFetchPageTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	if _, err := NewClient(url, "k", 0).FetchPage(context.Background(), "0x1", 1); err == nil {
		t.Fatalf("expected transport error")
	}
}
