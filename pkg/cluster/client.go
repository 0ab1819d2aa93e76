package cluster

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/runningwild/thrash/pkg/engine"
)

// ClusterEngine fans one workload out over remote agents. Workers,
// queue depth, and pacing targets are split across the nodes so the
// aggregate load matches what a single node would have been asked for.
type ClusterEngine struct {
	nodes []string
}

func New(nodes []string) *ClusterEngine {
	return &ClusterEngine{
		nodes: nodes,
	}
}

func (c *ClusterEngine) Run(params engine.Params) (*engine.Result, error) {
	if len(c.nodes) == 0 {
		return nil, fmt.Errorf("cluster: no nodes configured")
	}

	var wg sync.WaitGroup
	results := make([]*engine.Result, len(c.nodes))
	errs := make([]error, len(c.nodes))

	n := len(c.nodes)
	for i, node := range c.nodes {
		nodeParams := params

		// Split workers; a node with no workers does not run.
		baseW := params.Workers / n
		if i < params.Workers%n {
			nodeParams.Workers = baseW + 1
		} else {
			nodeParams.Workers = baseW
		}
		if nodeParams.Workers == 0 {
			continue
		}

		// Split queue depth only if explicitly set. A node whose share
		// rounds to zero must not run either, or the engine would
		// default its depth back up to a full worker count.
		if params.QueueDepth > 0 {
			baseQD := params.QueueDepth / n
			if i < params.QueueDepth%n {
				nodeParams.QueueDepth = baseQD + 1
			} else {
				nodeParams.QueueDepth = baseQD
			}
			if nodeParams.QueueDepth == 0 {
				continue
			}
		}

		// Split pacing targets the same way, so the floor and target
		// remain cluster-wide numbers.
		nodeParams.Rate = splitRate(params.Rate, i, n)
		nodeParams.RateMin = splitRate(params.RateMin, i, n)
		nodeParams.RateIOPS = splitRate(params.RateIOPS, i, n)
		nodeParams.RateMinIOPS = splitRate(params.RateMinIOPS, i, n)

		wg.Add(1)
		go func(idx int, host string, p engine.Params) {
			defer wg.Done()
			res, err := c.runRemote(host, p)
			results[idx] = res
			errs[idx] = err
		}(i, node, nodeParams)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("node %s failed: %v", c.nodes[i], err)
		}
	}

	return c.aggregate(results), nil
}

func splitRate(v uint64, i, n int) uint64 {
	if v == 0 {
		return 0
	}
	per := v / uint64(n)
	if i < int(v%uint64(n)) {
		per++
	}
	return per
}

func (c *ClusterEngine) runRemote(host string, params engine.Params) (*engine.Result, error) {
	url := fmt.Sprintf("http://%s/run", host)

	data, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest("POST", url, bytes.NewBuffer(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	// Timeout should be the workload runtime plus a buffer
	timeout := params.Runtime + 5*time.Second
	if timeout < 10*time.Second {
		timeout = 10 * time.Second
	}
	client := &http.Client{Timeout: timeout}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("agent %s error (%s): %s", host, resp.Status, string(bytes.TrimSpace(body)))
	}

	var res engine.Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *ClusterEngine) aggregate(results []*engine.Result) *engine.Result {
	agg := &engine.Result{}
	var totalWeight float64

	for _, r := range results {
		if r == nil {
			continue
		}

		agg.TotalIOs += r.TotalIOs
		agg.IOPS += r.IOPS
		agg.Throughput += r.Throughput

		if r.Duration > agg.Duration {
			agg.Duration = r.Duration
		}
		if r.MetricConfidence > agg.MetricConfidence {
			agg.MetricConfidence = r.MetricConfidence
		}
		if r.MaxLatency > agg.MaxLatency {
			agg.MaxLatency = r.MaxLatency
		}
		agg.TerminationReason = r.TerminationReason

		// Weighted aggregation for latencies
		weight := float64(r.TotalIOs)
		totalWeight += weight

		agg.MeanLatency += time.Duration(float64(r.MeanLatency) * weight)
		agg.P50Latency += time.Duration(float64(r.P50Latency) * weight)
		agg.P99Latency += time.Duration(float64(r.P99Latency) * weight)
	}

	if totalWeight > 0 {
		agg.MeanLatency = time.Duration(float64(agg.MeanLatency) / totalWeight)
		agg.P50Latency = time.Duration(float64(agg.P50Latency) / totalWeight)
		agg.P99Latency = time.Duration(float64(agg.P99Latency) / totalWeight)
	}

	return agg
}
