package sosafe

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"santiago-a-pie/config"
)

// Concurrent ImportOnce calls (poll loop plus the admin trigger) must not
// overlap: the feed sees at most one fetch at a time.
func TestImportOnceSerializesRuns(t *testing.T) {
	var inFlight, maxInFlight int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cur := atomic.AddInt32(&inFlight, 1)
		for {
			prev := atomic.LoadInt32(&maxInFlight)
			if cur <= prev || atomic.CompareAndSwapInt32(&maxInFlight, prev, cur) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		fmt.Fprint(w, `{"items": [], "next_page": 0}`)
	}))
	defer server.Close()

	cfg := &config.Config{SoSafeURL: server.URL, SoSafePageSize: 50}
	importer := NewImporter(cfg, nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := importer.ImportOnce(context.Background()); err != nil {
				t.Errorf("ImportOnce: %v", err)
			}
		}()
	}
	wg.Wait()

	if max := atomic.LoadInt32(&maxInFlight); max != 1 {
		t.Errorf("Import runs overlapped: saw %d concurrent feed fetches", max)
	}
}
