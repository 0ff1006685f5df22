// Command benchmark measures Queue and Pool throughput against a live redis.
// It flushes the selected database between runs.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hemant/rqueue"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

var redisURI = flag.String("redis", "redis://localhost:6379/15", "Redis URI of a database that may be flushed")

type BenchmarkResult struct {
	Name     string
	Items    int
	Workers  int
	Duration time.Duration
	Rate     float64
	RateK    float64
	Success  int64
	Failed   int64
}

var (
	client     redis.UniversalClient
	allResults []BenchmarkResult
)

func clearRedis() {
	client.FlushDB(context.Background())
}

func newResult(name string, items, workers int, d time.Duration, success, failed int64) BenchmarkResult {
	r := float64(success) / d.Seconds()
	log.Printf("Results:")
	log.Printf("  Duration: %v", d)
	log.Printf("  Success: %d, Failed: %d", success, failed)
	log.Printf("  Rate: %.2f items/sec (%.2f K/sec)", r, r/1000)
	return BenchmarkResult{
		Name:     name,
		Items:    items,
		Workers:  workers,
		Duration: d,
		Rate:     r,
		RateK:    r / 1000,
		Success:  success,
		Failed:   failed,
	}
}

func payloads(n int) []string {
	items := make([]string, n)
	for i := range items {
		items[i] = uuid.NewString()
	}
	return items
}

// BenchmarkEnqueue measures AddItems throughput with batches of batchSize.
func BenchmarkEnqueue(numItems, concurrency, batchSize int) BenchmarkResult {
	log.Printf("\n=== ENQUEUE BENCHMARK ===")
	log.Printf("Items: %d, Concurrency: %d, Batch: %d", numItems, concurrency, batchSize)

	q := rqueue.NewQueueFromRedisClient("bench", client, rqueue.Config{LogLevel: rqueue.WarnLevel})
	var success, failed int64
	perWorker := numItems / concurrency

	start := time.Now()
	var g errgroup.Group
	for w := 0; w < concurrency; w++ {
		g.Go(func() error {
			for i := 0; i < perWorker; i += batchSize {
				batch := payloads(min(batchSize, perWorker-i))
				if err := q.AddItems(context.Background(), batch); err != nil {
					atomic.AddInt64(&failed, int64(len(batch)))
					continue
				}
				atomic.AddInt64(&success, int64(len(batch)))
			}
			return nil
		})
	}
	g.Wait()
	return newResult(fmt.Sprintf("Enqueue (concurrency=%d, batch=%d)", concurrency, batchSize),
		numItems, concurrency, time.Since(start), success, failed)
}

// BenchmarkProcessing measures claim and ack throughput. Workers built within
// the same second share a processing list; the items are unique, so their
// acks never remove each other's items.
func BenchmarkProcessing(numItems, workers, batchSize int) BenchmarkResult {
	log.Printf("\n=== PROCESSING BENCHMARK ===")
	log.Printf("Items: %d, Workers: %d, Batch: %d", numItems, workers, batchSize)

	cfg := rqueue.Config{ChunkSize: 100, LogLevel: rqueue.WarnLevel}
	producer := rqueue.NewQueueFromRedisClient("bench", client, cfg)
	if err := producer.AddItems(context.Background(), payloads(numItems)); err != nil {
		log.Fatalf("could not pre-enqueue items: %v", err)
	}
	log.Printf("Pre-enqueued %d items", numItems)

	var processed, failed int64
	start := time.Now()
	var g errgroup.Group
	for w := 0; w < workers; w++ {
		q := rqueue.NewQueueFromRedisClient("bench", client, cfg)
		g.Go(func() error {
			ctx := context.Background()
			for {
				items, err := q.GetItems(ctx, batchSize)
				if err != nil {
					atomic.AddInt64(&failed, 1)
					return err
				}
				if len(items) == 0 {
					return nil
				}
				if err := q.AckItems(ctx, items); err != nil {
					atomic.AddInt64(&failed, int64(len(items)))
					continue
				}
				atomic.AddInt64(&processed, int64(len(items)))
			}
		})
	}
	if err := g.Wait(); err != nil {
		log.Printf("worker error: %v", err)
	}
	return newResult(fmt.Sprintf("Processing (workers=%d, batch=%d)", workers, batchSize),
		numItems, workers, time.Since(start), processed, failed)
}

// BenchmarkPool measures claim and ack throughput of a Pool.
func BenchmarkPool(numItems, workers, batchSize int) BenchmarkResult {
	log.Printf("\n=== POOL BENCHMARK ===")
	log.Printf("Items: %d, Workers: %d, Batch: %d", numItems, workers, batchSize)

	p := rqueue.NewPoolFromRedisClient("bench-pool", client, rqueue.Config{LogLevel: rqueue.WarnLevel})
	if err := p.AddItems(context.Background(), payloads(numItems)); err != nil {
		log.Fatalf("could not fill pool: %v", err)
	}

	var processed, failed int64
	start := time.Now()
	var g errgroup.Group
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			ctx := context.Background()
			for {
				items, err := p.GetItems(ctx, batchSize)
				if err != nil {
					return err
				}
				if len(items) == 0 {
					return nil
				}
				if err := p.AckItems(ctx, items); err != nil {
					atomic.AddInt64(&failed, int64(len(items)))
					continue
				}
				atomic.AddInt64(&processed, int64(len(items)))
			}
		})
	}
	if err := g.Wait(); err != nil {
		log.Printf("worker error: %v", err)
	}
	return newResult(fmt.Sprintf("Pool (workers=%d, batch=%d)", workers, batchSize),
		numItems, workers, time.Since(start), processed, failed)
}

// BenchmarkMixedLoad runs paced producers next to consumers for d.
func BenchmarkMixedLoad(d time.Duration, producers, consumers int, perSecond float64) (BenchmarkResult, BenchmarkResult) {
	log.Printf("\n=== MIXED LOAD BENCHMARK ===")
	log.Printf("Duration: %v, Producers: %d, Consumers: %d, Target: %.0f items/sec", d, producers, consumers, perSecond)

	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	cfg := rqueue.Config{LogLevel: rqueue.WarnLevel}
	limiter := rate.NewLimiter(rate.Limit(perSecond), producers)

	var enqueued, processed int64
	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < producers; w++ {
		q := rqueue.NewQueueFromRedisClient("bench", client, cfg)
		g.Go(func() error {
			for limiter.Wait(gctx) == nil {
				if err := q.AddItem(gctx, uuid.NewString()); err == nil {
					atomic.AddInt64(&enqueued, 1)
				}
			}
			return nil
		})
	}
	for w := 0; w < consumers; w++ {
		q := rqueue.NewQueueFromRedisClient("bench", client, cfg)
		g.Go(func() error {
			for gctx.Err() == nil {
				items, err := q.GetItems(gctx, 10)
				if err != nil || len(items) == 0 {
					time.Sleep(10 * time.Millisecond)
					continue
				}
				if err := q.AckItems(gctx, items); err == nil {
					atomic.AddInt64(&processed, int64(len(items)))
				}
			}
			return nil
		})
	}
	g.Wait()
	elapsed := time.Since(start)

	return newResult(fmt.Sprintf("Mixed Enqueue (producers=%d)", producers), int(enqueued), producers, elapsed, enqueued, 0),
		newResult(fmt.Sprintf("Mixed Process (consumers=%d)", consumers), int(processed), consumers, elapsed, processed, 0)
}

func printSummaryTable() {
	fmt.Println("\n+-------------------------------------------------+-----------+-----------+--------------+")
	fmt.Println("| Test                                            |  Items    |  Workers  |  Rate (K/s)  |")
	fmt.Println("+-------------------------------------------------+-----------+-----------+--------------+")
	for _, r := range allResults {
		fmt.Printf("| %-47s | %9d | %9d | %10.2f K |\n", r.Name, r.Items, r.Workers, r.RateK)
	}
	fmt.Println("+-------------------------------------------------+-----------+-----------+--------------+")
}

func main() {
	flag.Parse()
	log.SetOutput(os.Stdout)
	log.SetFlags(log.Ltime | log.Lmicroseconds)

	opt, err := rqueue.ParseRedisURI(*redisURI)
	if err != nil {
		log.Fatal(err)
	}
	client = opt.MakeRedisClient().(redis.UniversalClient)
	defer client.Close()
	if err := client.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("could not connect to %s: %v", *redisURI, err)
	}

	log.Printf("CPU Cores: %d | GOMAXPROCS: %d", runtime.NumCPU(), runtime.GOMAXPROCS(0))
	log.Printf("Started at: %s", time.Now().Format("2006-01-02 15:04:05"))

	for _, concurrency := range []int{10, 50, 100} {
		for _, batch := range []int{1, 100} {
			clearRedis()
			allResults = append(allResults, BenchmarkEnqueue(100000, concurrency, batch))
		}
	}

	for _, workers := range []int{10, 25, 50} {
		clearRedis()
		allResults = append(allResults, BenchmarkProcessing(50000, workers, 50))
	}

	for _, workers := range []int{10, 50} {
		clearRedis()
		allResults = append(allResults, BenchmarkPool(50000, workers, 100))
	}

	clearRedis()
	enq, proc := BenchmarkMixedLoad(10*time.Second, 50, 50, 20000)
	allResults = append(allResults, enq, proc)

	printSummaryTable()
	log.Printf("Completed at: %s", time.Now().Format("2006-01-02 15:04:05"))
}
