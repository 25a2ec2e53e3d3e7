package bandit

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ValentinKolb/dBandit/cmd/util"
	"github.com/ValentinKolb/dBandit/lib/bandit"
	"github.com/ValentinKolb/dBandit/lib/store/connect"
	"github.com/google/uuid"
	"github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for dBandit stores",
		Long:    "Runs a set of benchmarks against the store. Every run uses its own random prefix, the arms are removed afterwards.",
		Args:    cobra.NoArgs,
		PreRunE: processPerfConfig,
		RunE:    runPerf,
	}
	perfSchema     = bandit.MustSchema("perf", bandit.Int("pulls", 0), bandit.Float("reward", 0))
	perfNumThreads = 10
	perfArms       = 100
	perfBatchSize  = 20
	perfDuration   = 5 * time.Second
	perfSkip       []string

	perfBenchmarks = []string{"add", "incr", "incr-float", "get", "snapshot", "fields", "mixed"}
)

func init() {
	key := "skip"
	perfCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. add,mixed)"))
	key = "threads"
	perfCmd.Flags().Int(key, 10, util.WrapString("Number of goroutines to use for the benchmark"))
	key = "arms"
	perfCmd.Flags().Int(key, 100, util.WrapString("How many arms the bandit of the benchmark has"))
	key = "batch"
	perfCmd.Flags().Int(key, 20, util.WrapString("How many arms a batched field read (fields benchmark) reads"))
	key = "duration"
	perfCmd.Flags().Duration(key, 5*time.Second, util.WrapString("How long every benchmark runs"))
	key = "csv"
	perfCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	perfNumThreads = max(1, viper.GetInt("threads"))
	perfArms = max(1, viper.GetInt("arms"))
	perfBatchSize = max(1, viper.GetInt("batch"))
	perfDuration = viper.GetDuration("duration")
	perfSkip = strings.Split(viper.GetString("skip"), ",")
	return nil
}

// perfResult holds the metrics of one benchmark
type perfResult struct {
	name   string
	timer  metrics.Timer
	errors metrics.Counter
}

func runPerf(_ *cobra.Command, _ []string) error {
	fmt.Println("Performance testing tool for dBandit stores")
	fmt.Println()
	fmt.Printf("Store:    %s\n", connect.Redact(current.StoreURL()))
	fmt.Printf("Threads:  %d\n", perfNumThreads)
	fmt.Printf("Arms:     %d\n", perfArms)
	fmt.Printf("Duration: %s\n", perfDuration)
	fmt.Println()

	b, err := bandit.New(conn, "__perf:"+uuid.NewString(), perfSchema)
	if err != nil {
		return err
	}

	ids := make([]string, perfArms)
	for i := range ids {
		ids[i] = bandit.NewArmID()
	}
	defer cleanup(b, ids)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, id := range ids {
		if _, err := b.AddArm(ctx, id, nil); err != nil {
			return fmt.Errorf("failed to prepare arms: %w", err)
		}
	}

	registry := metrics.NewRegistry()
	var results []perfResult

	// every benchmark op gets the worker index and its iteration
	benchmarks := map[string]func(ctx context.Context, worker, i int) error{
		"add": func(ctx context.Context, worker, i int) error {
			_, err := b.AddArm(ctx, ids[(worker+i)%perfArms], nil)
			return err
		},
		"incr": func(ctx context.Context, worker, i int) error {
			arm, err := bandit.BindArm(conn, perfSchema, b.ArmKey(ids[(worker+i)%perfArms]))
			if err != nil {
				return err
			}
			_, err = arm.Increment(ctx, "pulls", 1)
			return err
		},
		"incr-float": func(ctx context.Context, worker, i int) error {
			arm, err := bandit.BindArm(conn, perfSchema, b.ArmKey(ids[(worker+i)%perfArms]))
			if err != nil {
				return err
			}
			_, err = arm.IncrementFloat(ctx, "reward", 0.5)
			return err
		},
		"get": func(ctx context.Context, worker, i int) error {
			arm, err := b.Arm(ctx, ids[(worker+i)%perfArms])
			if err != nil {
				return err
			}
			_, err = arm.Int(ctx, "pulls")
			return err
		},
		"snapshot": func(ctx context.Context, worker, i int) error {
			arm, err := bandit.BindArm(conn, perfSchema, b.ArmKey(ids[(worker+i)%perfArms]))
			if err != nil {
				return err
			}
			_, err = arm.Snapshot(ctx)
			return err
		},
		"fields": func(ctx context.Context, worker, i int) error {
			start := (worker + i) % perfArms
			batch := make([]string, perfBatchSize)
			for j := range batch {
				batch[j] = ids[(start+j)%perfArms]
			}
			_, err := b.GetFieldFromArms(ctx, batch, "reward")
			return err
		},
		"mixed": func(ctx context.Context, worker, i int) error {
			id := ids[(worker+i)%perfArms]
			arm, err := bandit.BindArm(conn, perfSchema, b.ArmKey(id))
			if err != nil {
				return err
			}
			switch i % 4 {
			case 0:
				_, err = arm.Increment(ctx, "pulls", 1)
			case 1:
				_, err = arm.IncrementFloat(ctx, "reward", 1)
			case 2:
				_, err = arm.Float(ctx, "reward")
			case 3:
				_, err = b.GetFieldFromArms(ctx, []string{id, ids[(worker+i+1)%perfArms]}, "pulls")
			}
			return err
		},
	}

	fmt.Println("starting tests...")
	for _, name := range perfBenchmarks {
		res := perfResult{
			name:   name,
			timer:  metrics.GetOrRegisterTimer(name, registry),
			errors: metrics.GetOrRegisterCounter(name+".errors", registry),
		}
		if !slices.Contains(perfSkip, name) {
			runBenchmark(benchmarks[name], res)
		}
		results = append(results, res)
		printResult(res)
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

// runBenchmark calls op from perfNumThreads goroutines until perfDuration is over
func runBenchmark(op func(ctx context.Context, worker, i int) error, res perfResult) {
	deadline := time.Now().Add(perfDuration)
	var wg sync.WaitGroup
	for w := 0; w < perfNumThreads; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for i := 0; time.Now().Before(deadline); i++ {
				ctx, cancel := commandContext()
				start := time.Now()
				err := op(ctx, worker, i)
				res.timer.UpdateSince(start)
				cancel()
				if err != nil {
					res.errors.Inc(1)
					if res.errors.Count() <= 10 {
						fmt.Printf("(%s) - error: %v\n", res.name, err)
					}
				}
			}
		}(w)
	}
	wg.Wait()
}

// cleanup removes all arms of the benchmark bandit
func cleanup(b *bandit.Bandit, ids []string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, id := range ids {
		if err := b.RemoveArm(ctx, id); err != nil {
			fmt.Printf("(cleanup) - error removing arm %s: %v\n", id, err)
		}
	}
	if err := conn.Delete(ctx, b.Prefix()); err != nil {
		fmt.Printf("(cleanup) - error deleting %s: %v\n", b.Prefix(), err)
	}
}

// printResult prints the result of a benchmark in a formatted way
func printResult(res perfResult) {
	t := res.timer.Snapshot()
	if t.Count() == 0 {
		fmt.Printf("%-12sskipped\n", res.name)
		return
	}
	ps := t.Percentiles([]float64{0.5, 0.99})
	fmt.Printf("%-12s%8d ops\t%10.0f ops/sec\tmean %-12s p50 %-12s p99 %-12s errors %d\n",
		res.name, t.Count(), t.RateMean(),
		time.Duration(t.Mean()), time.Duration(ps[0]), time.Duration(ps[1]),
		res.errors.Count())
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results []perfResult) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"Test", "Ops", "OpsPerSec", "MeanNs", "P50Ns", "P99Ns", "Errors", "Skipped",
		"Store", "Threads", "Arms", "BatchSize", "Duration",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	for _, res := range results {
		t := res.timer.Snapshot()
		ps := t.Percentiles([]float64{0.5, 0.99})
		row := []string{
			res.name,
			strconv.FormatInt(t.Count(), 10),
			fmt.Sprintf("%.0f", t.RateMean()),
			fmt.Sprintf("%.0f", t.Mean()),
			fmt.Sprintf("%.0f", ps[0]),
			fmt.Sprintf("%.0f", ps[1]),
			strconv.FormatInt(res.errors.Count(), 10),
			strconv.FormatBool(t.Count() == 0),
			connect.Redact(current.StoreURL()),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfArms),
			strconv.Itoa(perfBatchSize),
			perfDuration.String(),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", res.name, err)
		}
	}
	return nil
}
