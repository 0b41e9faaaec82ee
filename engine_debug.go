package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/usagegate/usagegate/internal/clock"
	"github.com/usagegate/usagegate/internal/engine"
	"github.com/usagegate/usagegate/internal/store"
)

// Standalone harness for eyeballing consume behavior under contention
// against a real SQLite file. Not part of the service binary.
func main() {
	tmpDir, err := os.MkdirTemp("", "engine-debug")
	if err != nil {
		panic(err)
	}
	defer os.RemoveAll(tmpDir)
	dbPath := filepath.Join(tmpDir, "usage.db")
	st, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		panic(err)
	}
	defer st.Close()

	now := time.Date(2025, 6, 16, 12, 0, 0, 0, time.UTC)
	eng := engine.New(st, engine.Limits{Daily: 5, Weekly: 100, Monthly: 100},
		engine.WithClock(clock.NewFake(now)),
		engine.WithMaxRetries(50),
	)

	const callers = 10
	var wg sync.WaitGroup
	results := make(chan bool, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			decision, err := eng.TryConsume(context.Background(), "debug-user")
			if err != nil {
				panic(err)
			}
			results <- decision.Allowed
		}()
	}
	wg.Wait()
	close(results)

	grants := 0
	for allowed := range results {
		if allowed {
			grants++
		}
	}

	rec, _, err := st.Get(context.Background(), "debug-user")
	if err != nil {
		panic(err)
	}
	fmt.Printf("grants: %d of %d callers, stored daily count=%d version=%d\n",
		grants, callers, rec.Daily.Count, rec.Version)
}
