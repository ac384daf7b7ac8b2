// courier-bench drives the transfer worker with simulated transfers and
// reports throughput. It exercises the worker's queueing and completion
// paths without any network traffic.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/seantiz/courier/internal/agent"
	"github.com/seantiz/courier/internal/config"
	"github.com/seantiz/courier/internal/engine"
	"github.com/seantiz/courier/internal/engine/simeng"
	"github.com/seantiz/courier/internal/model"
)

var errSimulated = errors.New("simulated transfer failure")

type benchHandler struct {
	wg        *sync.WaitGroup
	completed *atomic.Int64
	failed    *atomic.Int64
}

func (h *benchHandler) BindSubmitter(engine.Submitter) {}
func (h *benchHandler) BindToken(int)                  {}

func (h *benchHandler) OnComplete() {
	h.completed.Add(1)
	h.wg.Done()
}

func (h *benchHandler) OnFail(error) {
	h.failed.Add(1)
	h.wg.Done()
}

func main() {
	var (
		total     = flag.Int("n", 10000, "total transfers to run")
		producers = flag.Int("producers", 8, "concurrent submitting goroutines")
		latency   = flag.Duration("latency", 5*time.Millisecond, "simulated transfer latency")
		failEvery = flag.Int("fail-every", 0, "fail every Nth transfer (0 disables)")
	)
	flag.Parse()

	logger := config.NewLogger(os.Stderr, config.Load().LogLevel)

	handle, err := agent.Start(simeng.New(), logger)
	if err != nil {
		log.Fatalf("start worker: %v", err)
	}

	var (
		wg        sync.WaitGroup
		completed atomic.Int64
		failed    atomic.Int64
	)
	wg.Add(*total)

	perProducer := *total / *producers
	remainder := *total % *producers

	start := time.Now()
	for p := 0; p < *producers; p++ {
		count := perProducer
		if p == 0 {
			count += remainder
		}
		clone := handle.Clone()
		go func(count int) {
			defer clone.Close()
			for i := 0; i < count; i++ {
				spec := simeng.Spec{Latency: *latency}
				if *failEvery > 0 && i%*failEvery == 0 {
					spec.Fail = errSimulated
				}
				t := &engine.Transfer{
					ID:      model.NewID(),
					Handler: &benchHandler{wg: &wg, completed: &completed, failed: &failed},
					Payload: spec,
				}
				if err := clone.Submit(t); err != nil {
					log.Fatalf("submit: %v", err)
				}
			}
		}(count)
	}

	wg.Wait()
	elapsed := time.Since(start)

	handle.Close()
	<-handle.Done()

	fmt.Printf("transfers:  %d\n", *total)
	fmt.Printf("completed:  %d\n", completed.Load())
	fmt.Printf("failed:     %d\n", failed.Load())
	fmt.Printf("elapsed:    %s\n", elapsed.Round(time.Millisecond))
	fmt.Printf("throughput: %.0f transfers/s\n", float64(*total)/elapsed.Seconds())
}
