package es

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"histai-go/internal/model"

	"github.com/elastic/go-elasticsearch/v8"
)

func newTestIndex(t *testing.T, handler http.HandlerFunc) *PersonIndex {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return NewPersonIndex(client, "persons")
}

func TestSearchQueryFilters(t *testing.T) {
	q := SearchQuery("napoleon", "19th Century", "Politician", 10)
	b, _ := json.Marshal(q)
	s := string(b)
	for _, want := range []string{`"fuzziness":"AUTO"`, `"era":"19th Century"`, `"category":"Politician"`, `"size":10`} {
		if !strings.Contains(s, want) {
			t.Errorf("query missing %s: %s", want, s)
		}
	}
	if strings.Contains(string(mustJSON(SearchQuery("x", "", "", 5))), "filter") {
		t.Error("unexpected filter")
	}
}

func mustJSON(v interface{}) []byte {
	b, _ := json.Marshal(v)
	return b
}

func TestSearchPersonIDs(t *testing.T) {
	idx := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/persons/_search") {
			t.Errorf("path = %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"hits":{"hits":[{"_source":{"person_id":3}},{"_source":{"person_id":1}}]}}`))
	})
	ids, err := idx.SearchPersonIDs(context.Background(), "nap", "", "", 10)
	if err != nil {
		t.Fatalf("SearchPersonIDs: %v", err)
	}
	if len(ids) != 2 || ids[0] != 3 || ids[1] != 1 {
		t.Fatalf("ids = %v", ids)
	}
}

func TestIndexPerson(t *testing.T) {
	var gotPath string
	var gotDoc model.PersonDocument
	idx := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotDoc)
		_, _ = w.Write([]byte(`{"result":"created"}`))
	})
	doc := model.NewPersonDocument(&model.HistoricalPerson{ID: 5, Name: "Napoleon", Era: "19th Century"})
	if err := idx.IndexPerson(context.Background(), doc); err != nil {
		t.Fatalf("IndexPerson: %v", err)
	}
	if gotPath != "/persons/_doc/5" || gotDoc.Name != "Napoleon" {
		t.Fatalf("path=%s doc=%+v", gotPath, gotDoc)
	}
}

func TestEnsureIndexCreatesWhenMissing(t *testing.T) {
	created := false
	idx := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodHead:
			w.WriteHeader(http.StatusNotFound)
		case http.MethodPut:
			created = true
			_, _ = w.Write([]byte(`{"acknowledged":true}`))
		}
	})
	if err := idx.EnsureIndex(context.Background()); err != nil {
		t.Fatalf("EnsureIndex: %v", err)
	}
	if !created {
		t.Fatal("expected index creation")
	}
}
