package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/mirkobrombin/go-lockset/v1/acquire"
	"github.com/mirkobrombin/go-lockset/v1/lockset"
	"github.com/mirkobrombin/go-lockset/v1/resolver"
)

var (
	concurrency = flag.Int("c", 50, "Concurrent acquirers")
	iterations  = flag.Int("n", 100000, "Acquisitions per worker")
	lockCount   = flag.Int("locks", 16, "Distinct lock names")
	setSize     = flag.Int("set", 3, "Locks per request set")
	readPct     = flag.Int("read", 80, "Percentage of read requests")
)

func main() {
	flag.Parse()

	names := make([]string, *lockCount)
	for i := range names {
		names[i] = fmt.Sprintf("lock-%02d", i)
	}

	r := resolver.NewMemory()
	ctx := context.Background()

	var wg sync.WaitGroup
	start := time.Now()
	for w := 0; w < *concurrency; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for i := 0; i < *iterations; i++ {
				set := randomSet(rng, names)
				locks, err := acquire.Resolve(ctx, set, r)
				if err != nil {
					log.Fatalf("resolve: %v", err)
				}
				_ = locks.Release(ctx)
			}
		}(int64(w))
	}
	wg.Wait()
	elapsed := time.Since(start)

	total := *concurrency * *iterations
	fmt.Printf("%d acquisitions of %d-lock sets in %v\n", total, *setSize, elapsed.Round(time.Millisecond))
	fmt.Printf("%.0f sets/sec, avg %v per set\n",
		float64(total)/elapsed.Seconds(), (elapsed / time.Duration(total)).Round(time.Nanosecond))
}

func randomSet(rng *rand.Rand, names []string) lockset.Set {
	picked := rng.Perm(len(names))[:*setSize]
	reqs := make([]lockset.Request, 0, *setSize)
	for _, idx := range picked {
		mode := lockset.Write
		if rng.Intn(100) < *readPct {
			mode = lockset.Read
		}
		reqs = append(reqs, lockset.Request{Name: names[idx], Mode: mode})
	}
	set, err := lockset.Build(reqs...)
	if err != nil {
		log.Fatalf("build: %v", err)
	}
	return set
}
