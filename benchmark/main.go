// Package main provides a benchmark tool for Sentinel to measure task
// throughput. It submits a large number of dummy tasks and waits for the
// queue to drain.
//
// Usage:
//
//	go run benchmark/main.go -tasks 100000 -producers 10
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sentinelq/sentinel/pkg/queue"
	"github.com/sentinelq/sentinel/pkg/tasks"
)

func main() {
	numTasks := flag.Int("tasks", 100000, "Number of tasks to submit")
	numProducers := flag.Int("producers", 10, "Number of concurrent producers")
	addr := flag.String("redis", "localhost:6379", "Redis address")
	flag.Parse()

	client := queue.NewClient(*addr)
	ctx := context.Background()

	fmt.Printf("Sentinel Benchmark\n")
	fmt.Printf("==================\n")
	fmt.Printf("Tasks to submit: %d\n", *numTasks)
	fmt.Printf("Concurrent producers: %d\n\n", *numProducers)

	fmt.Printf("Starting submit phase...\n")
	startSubmit := time.Now()

	var wg sync.WaitGroup
	var submitted atomic.Int64
	perProducer := *numTasks / *numProducers

	for i := 0; i < *numProducers; i++ {
		wg.Add(1)
		go func(producerID int) {
			defer wg.Done()
			for j := 0; j < perProducer; j++ {
				payload, _ := json.Marshal(map[string]int{"producer": producerID, "n": j})
				task := tasks.New(payload, rand.Intn(10))
				if err := client.Submit(ctx, task); err != nil {
					fmt.Printf("Error submitting: %v\n", err)
					return
				}
				submitted.Add(1)
			}
		}(i)
	}

	wg.Wait()
	submitTime := time.Since(startSubmit)

	fmt.Printf("Submitted %d tasks in %s\n", submitted.Load(), submitTime)
	fmt.Printf("  Throughput: %.2f tasks/sec\n\n", float64(submitted.Load())/submitTime.Seconds())

	fmt.Printf("Waiting for all tasks to be processed...\n")
	startProcess := time.Now()

	for {
		depths, err := client.QueueDepths(ctx)
		if err != nil {
			fmt.Printf("Error reading depths: %v\n", err)
			return
		}
		remaining := depths[queue.QueueMain] + depths[queue.QueueDelayed]
		if remaining == 0 {
			break
		}
		time.Sleep(2 * time.Second)
		fmt.Printf("  Remaining: %d tasks\n", remaining)
	}

	processTime := time.Since(startProcess)
	fmt.Printf("\nAll tasks processed in %s\n", processTime)
	fmt.Printf("  Throughput: %.2f tasks/sec\n", float64(*numTasks)/processTime.Seconds())

	totalTime := submitTime + processTime
	fmt.Printf("\nTotal time: %s\n", totalTime)
	fmt.Printf("Overall throughput: %.2f tasks/sec\n", float64(*numTasks)/totalTime.Seconds())
}
