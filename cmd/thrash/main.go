package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/runningwild/thrash/pkg/agent"
	"github.com/runningwild/thrash/pkg/cluster"
	"github.com/runningwild/thrash/pkg/config"
	"github.com/runningwild/thrash/pkg/engine"
)

func main() {
	// Dispatch subcommands
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "run":
			runWorkloadCmd(os.Args[2:])
			return
		case "agent":
			runAgentCmd(os.Args[2:])
			return
		case "remote":
			runRemoteCmd(os.Args[2:])
			return
		}
	}

	// Default behavior: treat bare flags as "run"
	runWorkloadCmd(os.Args[1:])
}

// Flags holds pointers to all supported CLI flags
type Flags struct {
	ConfigFile  *string
	WriteConfig *string

	Path       *string
	EngineType *string
	BS         *int
	Direct     *bool
	ReadPct    *int
	Workers    *int
	QueueDepth *int
	Runtime    *time.Duration

	Pattern    *string
	Theta      *float64
	ParetoH    *float64
	Seed       *int64
	RandRepeat *bool

	Rate        *uint64
	RateMin     *uint64
	RateIOPS    *uint64
	RateMinIOPS *uint64
	RateCycle   *time.Duration
	Thinktime   *time.Duration

	ClockSource *string
	TimeLog     *bool
	Debug       *bool
	ReportFile  *string
}

func SetupFlags(fs *flag.FlagSet) *Flags {
	f := &Flags{}
	f.ConfigFile = fs.String("config", "", "Path to configuration file (disables other flags)")
	f.WriteConfig = fs.String("write-config", "", "Save the generated configuration to this YAML file")

	f.Path = fs.String("path", "", "Path to device or file")
	f.EngineType = fs.String("engine", "sync", "I/O engine: 'sync', 'uring', or 'libaio'")
	f.BS = fs.Int("bs", 4096, "Block size")
	f.Direct = fs.Bool("direct", true, "Use O_DIRECT")
	f.ReadPct = fs.Int("read-pct", 100, "Read percentage (0-100)")
	f.Workers = fs.Int("workers", 1, "Number of workers")
	f.QueueDepth = fs.Int("queue-depth", 0, "Global queue depth (default: one slot per worker)")
	f.Runtime = fs.Duration("runtime", 10*time.Second, "How long to run the workload")

	f.Pattern = fs.String("pattern", "random", "Access pattern: 'sequential', 'random', 'zipf', 'pareto'")
	f.Theta = fs.Float64("theta", 1.2, "Zipf skew parameter (pattern=zipf)")
	f.ParetoH = fs.Float64("pareto-h", 0.2, "Pareto shape parameter (pattern=pareto)")
	f.Seed = fs.Int64("seed", 0, "Random seed (0 = time-derived unless -rand-repeat)")
	f.RandRepeat = fs.Bool("rand-repeat", false, "Replay the same offset sequence across runs")

	f.Rate = fs.Uint64("rate", 0, "Target rate in bytes/sec (0 = unpaced)")
	f.RateMin = fs.Uint64("rate-min", 0, "Abort if a window averages below this many bytes/sec")
	f.RateIOPS = fs.Uint64("rate-iops", 0, "Target rate in ops/sec (0 = unpaced)")
	f.RateMinIOPS = fs.Uint64("rate-min-iops", 0, "Abort if a window averages below this many ops/sec")
	f.RateCycle = fs.Duration("rate-cycle", time.Second, "Rate-averaging window")
	f.Thinktime = fs.Duration("thinktime", 0, "Fixed pause after every completed I/O")

	f.ClockSource = fs.String("clock", "monotonic", "Clock source: 'monotonic', 'wall', or 'cycles'")
	f.TimeLog = fs.Bool("time-log", false, "Count clock queries and report the total at exit")
	f.Debug = fs.Bool("debug", false, "Enable debug logging")
	f.ReportFile = fs.String("report", "", "Write the result to this JSON file")
	return f
}

// LoadConfig determines the config source (file or flags) and returns
// a Config object.
func (f *Flags) LoadConfig() (*config.Config, error) {
	if *f.ConfigFile != "" {
		return config.Load(*f.ConfigFile)
	}

	if *f.Path == "" {
		return nil, fmt.Errorf("-path is required when using flags")
	}

	cfg := &config.Config{
		Target: *f.Path,
		Workload: config.Workload{
			EngineType:   *f.EngineType,
			Direct:       *f.Direct,
			ReadPct:      *f.ReadPct,
			BlockSize:    *f.BS,
			Workers:      *f.Workers,
			QueueDepth:   *f.QueueDepth,
			Runtime:      *f.Runtime,
			Pattern:      strings.ToLower(*f.Pattern),
			Theta:        *f.Theta,
			ParetoH:      *f.ParetoH,
			RandomRepeat: *f.RandRepeat,
			Seed:         *f.Seed,
			Rate:         *f.Rate,
			RateMin:      *f.RateMin,
			RateIOPS:     *f.RateIOPS,
			RateMinIOPS:  *f.RateMinIOPS,
			RateCycle:    *f.RateCycle,
			Thinktime:    *f.Thinktime,
			ClockSource:  *f.ClockSource,
		},
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (f *Flags) MaybeWriteConfig(cfg *config.Config) {
	if *f.WriteConfig == "" {
		return
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		fmt.Printf("Warning: Failed to marshal config for writing: %v\n", err)
		return
	}
	if err := os.WriteFile(*f.WriteConfig, data, 0644); err != nil {
		fmt.Printf("Warning: Failed to write config file: %v\n", err)
		return
	}
	fmt.Printf("Configuration written to %s\n", *f.WriteConfig)
}

func (f *Flags) applyLogging() {
	if *f.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
}

// runWorkloadCmd handles "thrash run [flags]" and bare "thrash [flags]"
func runWorkloadCmd(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	f := SetupFlags(fs)
	fs.Parse(args)

	if *f.ConfigFile == "" && *f.Path == "" {
		fs.Usage()
		os.Exit(1)
	}

	cfg, err := f.LoadConfig()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	f.applyLogging()
	f.MaybeWriteConfig(cfg)

	params := engine.FromConfig(cfg)

	var clockQueries int64
	if *f.TimeLog {
		params.ClockObserver = func() { atomic.AddInt64(&clockQueries, 1) }
	}

	eng := engine.New(params.EngineType)
	runWorkload(f, eng, params)

	if *f.TimeLog {
		fmt.Printf("Clock queries: %d\n", atomic.LoadInt64(&clockQueries))
	}
}

func runWorkload(f *Flags, eng engine.Engine, params engine.Params) {
	fmt.Printf("Running %s %s workload against %s (bs=%d, workers=%d)...\n",
		params.Pattern, params.EngineType, params.Path, params.BlockSize, params.Workers)

	res, err := eng.Run(params)
	if err != nil {
		fmt.Printf("Workload failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\n>>> Workload Complete (%s) <<<\n", res.TerminationReason)
	fmt.Printf("IOPS:       %.0f\n", res.IOPS)
	fmt.Printf("Throughput: %.2f MB/s\n", res.Throughput/1024/1024)
	fmt.Printf("Latency:    mean=%v p50=%v p99=%v max=%v\n",
		res.MeanLatency, res.P50Latency, res.P99Latency, res.MaxLatency)
	fmt.Printf("Total IOs:  %d over %v (confidence %.3f)\n",
		res.TotalIOs, res.Duration.Round(time.Millisecond), res.MetricConfidence)

	if *f.ReportFile != "" {
		writeReport(*f.ReportFile, res)
	}
}

// runRemoteCmd handles "thrash remote [flags]"
func runRemoteCmd(args []string) {
	fs := flag.NewFlagSet("remote", flag.ExitOnError)
	f := SetupFlags(fs)
	nodesFlag := fs.String("nodes", "", "Comma-separated list of agent nodes (e.g. host1:9000,host2:9000)")
	fs.Parse(args)

	if *nodesFlag == "" {
		fmt.Println("Error: -nodes is required")
		os.Exit(1)
	}
	nodes := strings.Split(*nodesFlag, ",")

	// In remote mode the agents may own the target path; inject a
	// placeholder so config validation passes.
	if *f.Path == "" && *f.ConfigFile == "" {
		placeholder := "REMOTE_MANAGED"
		f.Path = &placeholder
	}

	cfg, err := f.LoadConfig()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	f.applyLogging()
	f.MaybeWriteConfig(cfg)

	fmt.Printf("Dispatching workload to %d nodes...\n", len(nodes))
	runWorkload(f, cluster.New(nodes), engine.FromConfig(cfg))
}

func runAgentCmd(args []string) {
	fs := flag.NewFlagSet("agent", flag.ExitOnError)
	port := fs.Int("port", 9000, "Port to listen on")
	path := fs.String("path", "", "Target device/file path (overrides remote request)")
	debug := fs.Bool("debug", false, "Enable debug logging")
	fs.Parse(args)

	if *debug {
		logrus.SetLevel(logrus.DebugLevel)
	}

	srv := agent.NewServer(*path)
	if err := srv.VerifyAccess(); err != nil {
		fmt.Printf("Agent startup error: %v\n", err)
		os.Exit(1)
	}
	if err := srv.ListenAndServe(*port); err != nil {
		fmt.Printf("Agent failed: %v\n", err)
		os.Exit(1)
	}
}

func writeReport(path string, res *engine.Result) {
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		fmt.Printf("Failed to marshal report: %v\n", err)
		return
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		fmt.Printf("Failed to write report: %v\n", err)
		return
	}
	fmt.Printf("Report written to %s\n", path)
}
