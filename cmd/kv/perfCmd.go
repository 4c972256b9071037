package kv

import (
	"encoding/csv"
	"fmt"
	"log"
	"math"
	"os"
	"runtime"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/kvenv/cmd/util"
	"github.com/ValentinKolb/kvenv/lib/store"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfTestCmd = &cobra.Command{
		Use:   "perf",
		Short: "Performance testing tool for local databases",
		Long: util.WrapString(`Runs put, get, has and delete benchmarks against the configured database. 
Every worker obtains its handle from the same manager, so all of them share one environment.`),
		RunE:    run,
		PreRunE: processPerfConfig,
	}
	perfBucket           = "__perf"
	perfLargeValueSizeKB = 100
	perfNumThreads       = 10
	perfKeySpread        = 100
	perfSkip             = make([]string, 0)

	// latency timers of the current run
	perfRegistry = gometrics.NewRegistry()
)

func init() {
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. put,get)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of goroutines per CPU to use for the benchmark"))
	key = "large-value-size"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How large the value for the put-large test should be (in KB)"))
	key = "keys"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How many different keys to use for the tests"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	perfLargeValueSizeKB = viper.GetInt("large-value-size")
	perfKeySpread = max(viper.GetInt("keys"), 1)
	perfNumThreads = max(viper.GetInt("threads"), 1)
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	// one reader slot per goroutine plus the cleanup
	if need := uint32(perfNumThreads*runtime.GOMAXPROCS(0) + 1); baseCfg.MaxReaders() < need {
		baseCfg.SetMaxReaders(need)
	}
	return nil
}

type benchmark struct {
	name    string
	prepare bool                                    // fill the keys before the run
	write   bool                                    // op needs the exclusive handle lock
	op      func(s *store.Store, key string) error // one operation
}

func run(_ *cobra.Command, _ []string) error {
	if baseCfg.IsReadonly() {
		return fmt.Errorf("perf needs a writable database")
	}

	fmt.Println("Performance testing tool for local databases")

	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Print(baseCfg.String())
	fmt.Printf("\nThreads: %d per CPU\n", perfNumThreads)
	fmt.Println()

	largeValue := make([]byte, perfLargeValueSizeKB*1024)

	benchmarks := []benchmark{
		{"put", false, true, func(s *store.Store, k string) error {
			return s.Put(perfBucket, []byte(k), []byte("test"))
		}},
		{"put-large", false, true, func(s *store.Store, k string) error {
			return s.Put(perfBucket, []byte(k), largeValue)
		}},
		{"get", true, false, func(s *store.Store, k string) error {
			_, _, err := s.Get(perfBucket, []byte(k))
			return err
		}},
		{"has", true, false, func(s *store.Store, k string) error {
			_, err := s.Has(perfBucket, []byte(k))
			return err
		}},
		{"has-not", false, false, func(s *store.Store, k string) error {
			_, err := s.Has(perfBucket, []byte(k+"-missing"))
			return err
		}},
		{"delete", true, true, func(s *store.Store, k string) error {
			return s.Delete(perfBucket, []byte(k))
		}},
	}

	fmt.Println("starting tests...")

	results := make(map[string]testing.BenchmarkResult)
	for _, bm := range benchmarks {
		if shouldSkip(bm.name) {
			results[bm.name] = testing.BenchmarkResult{}
			printResult(bm.name, testing.BenchmarkResult{})
			continue
		}
		result, err := runBenchmark(bm)
		if err != nil {
			return err
		}
		results[bm.name] = result
		printResult(bm.name, result)
	}

	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// runBenchmark runs one benchmark. Every parallel worker opens the store
// through the manager and gets the same handle.
func runBenchmark(bm benchmark) (testing.BenchmarkResult, error) {
	h, err := openStore(perfBucket)
	if err != nil {
		return testing.BenchmarkResult{}, err
	}

	getKey, iter := getKeys(bm.name)
	timer := gometrics.GetOrRegisterTimer(bm.name, perfRegistry)

	result := testing.Benchmark(func(b *testing.B) {
		if bm.prepare {
			iter(func(k string) {
				if err := h.Write(func(s *store.Store) error { return s.Put(perfBucket, []byte(k), []byte("test")) }); err != nil {
					log.Printf("(%s) - error preparing key: %v\n", bm.name, err)
				}
			})
		}

		b.Cleanup(func() {
			iter(func(k string) {
				if err := h.Write(func(s *store.Store) error { return s.Delete(perfBucket, []byte(k)) }); err != nil {
					log.Printf("(%s) - error deleting key: %v\n", bm.name, err)
				}
			})
		})

		b.SetParallelism(perfNumThreads)
		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			worker, err := openStore(perfBucket)
			if err != nil {
				log.Printf("(%s) - error opening store: %v\n", bm.name, err)
				return
			}
			if worker != h {
				log.Printf("(%s) - manager returned a second handle for %s\n", bm.name, h.Path())
			}

			counter := 0
			for pb.Next() {
				use := worker.Read
				if bm.write {
					use = worker.Write
				}
				start := time.Now()
				err := use(func(s *store.Store) error {
					return bm.op(s, getKey(counter))
				})
				timer.UpdateSince(start)
				if err != nil {
					log.Printf("(%s) - error: %v\n", bm.name, err)
				}
				counter++
			}
		})
	})
	return result, nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	for _, skip := range perfSkip {
		if test == strings.TrimSpace(skip) {
			return true
		}
	}
	return false
}

// creates an array of test keys and functions to work with them
func getKeys(prefix string) (func(int) string, func(func(string))) {
	keys := make([]string, perfKeySpread)
	for i := 0; i < perfKeySpread; i++ {
		keys[i] = fmt.Sprintf("%s-%d", prefix, i)
	}

	getKey := func(i int) string {
		return keys[i%perfKeySpread]
	}

	iterateKeys := func(fn func(string)) {
		for _, key := range keys {
			fn(key)
		}
	}

	return getKey, iterateKeys
}

// printResult prints the result of a benchmark and its latency percentiles
func printResult(test string, result testing.BenchmarkResult) {
	if result.NsPerOp() == 0 {
		fmt.Printf("%-12sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)

	fmt.Printf("%-12s%.0fns/op (%s/op)\t%.0f ops/sec", test, nsPerOp, time.Duration(nsPerOp), opsPerSec)
	if timer, ok := perfRegistry.Get(test).(gometrics.Timer); ok {
		ps := timer.Percentiles([]float64{0.5, 0.95, 0.99})
		fmt.Printf("\tp50=%s p95=%s p99=%s", time.Duration(ps[0]), time.Duration(ps[1]), time.Duration(ps[2]))
	}
	fmt.Println()
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]testing.BenchmarkResult) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "Skipped",
		"P50Ns", "P95Ns", "P99Ns",
		"Path", "Engine", "MapSize", "MaxReaders",
		"Threads", "LargeValueSizeKB", "Keys Count",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	for test, result := range results {
		var nsPerOp, opsPerSec float64
		skipped := "true"
		ps := []float64{0, 0, 0}

		if result.NsPerOp() != 0 {
			skipped = "false"
			nsPerOp = math.Max(float64(result.NsPerOp()), 1)
			opsPerSec = 1.0 / (nsPerOp / 1e9)
			if timer, ok := perfRegistry.Get(test).(gometrics.Timer); ok {
				ps = timer.Percentiles([]float64{0.5, 0.95, 0.99})
			}
		}

		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			skipped,
			fmt.Sprintf("%.0f", ps[0]),
			fmt.Sprintf("%.0f", ps[1]),
			fmt.Sprintf("%.0f", ps[2]),
			baseCfg.Path(),
			string(baseCfg.Engine()),
			strconv.FormatUint(baseCfg.MapSize(), 10),
			strconv.FormatUint(uint64(baseCfg.MaxReaders()), 10),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfLargeValueSizeKB),
			strconv.Itoa(perfKeySpread),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}

	return nil
}
