package loader

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"number-lookup-api/configs"
	"number-lookup-api/internal/partition"
	"number-lookup-api/internal/store"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

const feedCSV = `name,guardian_name,number,alt_number,id_number,alt_id_number,age,gender,address,district,pincode,state,town
Anita Kumar,R Kumar,9876543210,8876543210,P1234,A5678,34,F,12 MG Road,Pune,411001,Maharashtra,Pune
Ravi Sharma,S Sharma,9123456789,,P9999,,41,M,5 Station Rd,Nagpur,440001,Maharashtra,Nagpur
Bad Row,Nobody,0000000000,,,,,,,,,,
Short,Row,9000000000
`

func newTestLoader(t *testing.T, batchSize int) (*Loader, *store.PartitionedStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := store.NewPartitionedStore(client, partition.NewRouter(1000))
	return NewLoader(s, client, batchSize), s, mr
}

func TestLoadCSV(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(feedCSV))
	}))
	defer srv.Close()

	l, s, mr := newTestLoader(t, 2)
	res := l.LoadCSV(ctx, configs.SourceDatabase{ID: "db1", Name: "Database 1", URL: srv.URL, Enabled: true})

	if !res.Success {
		t.Fatalf("load failed: %s", res.Error)
	}
	// Row 1 contributes two entries (number + alt number), row 2 one entry,
	// the invalid and short rows none.
	if res.Processed != 3 {
		t.Errorf("processed = %d, want 3", res.Processed)
	}

	rec, err := s.Get(ctx, "9876543210")
	if err != nil {
		t.Fatal(err)
	}
	if rec == nil || rec.Name != "Anita Kumar" || rec.Source != "db1" {
		t.Errorf("primary number record = %+v", rec)
	}

	alt, err := s.Get(ctx, "8876543210")
	if err != nil {
		t.Fatal(err)
	}
	if alt == nil || alt.Name != "Anita Kumar" {
		t.Errorf("alt number record = %+v", alt)
	}

	if invalid, _ := s.Get(ctx, "0000000000"); invalid != nil {
		t.Error("invalid number was stored")
	}

	if v, _ := mr.Get("db:status:db1"); v != "loaded" {
		t.Error("source status marker not written")
	}
}

func TestLoadCSVFetchFailure(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	l, _, mr := newTestLoader(t, 1000)
	res := l.LoadCSV(ctx, configs.SourceDatabase{ID: "db1", Name: "Database 1", URL: srv.URL, Enabled: true})

	if res.Success || res.Error == "" {
		t.Errorf("result = %+v, want failure with error", res)
	}
	if mr.Exists("db:status:db1") {
		t.Error("failed load still wrote a status marker")
	}
}

func TestLoadCSVReloadOverwrites(t *testing.T) {
	ctx := context.Background()
	body := feedCSV
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	defer srv.Close()

	l, s, _ := newTestLoader(t, 1000)
	src := configs.SourceDatabase{ID: "db2", Name: "Database 2", URL: srv.URL, Enabled: true}

	if res := l.LoadCSV(ctx, src); !res.Success {
		t.Fatalf("first load failed: %s", res.Error)
	}
	// Same feed loaded twice: same keys, same count, no duplicates.
	res := l.LoadCSV(ctx, src)
	if !res.Success || res.Processed != 3 {
		t.Fatalf("second load = %+v, want success with 3 processed", res)
	}

	rec, err := s.Get(ctx, "9123456789")
	if err != nil || rec == nil {
		t.Fatalf("record lost on reload: (%+v, %v)", rec, err)
	}
}
