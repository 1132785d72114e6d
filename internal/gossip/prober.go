package gossip

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/octoreflex/octoreflex/pkg/logger"
)

// ReachabilitySink receives the latest reachable peer count. Satisfied by
// the Evaluator.
type ReachabilitySink interface {
	UpdatePeerReachability(reachablePeers int)
}

// Prober periodically checks each configured peer's health endpoint and
// feeds the reachable count into the evaluator. It owns its own timeouts;
// a slow or dead peer costs at most one probe timeout per cycle.
type Prober struct {
	peers    []string
	sink     ReachabilitySink
	interval time.Duration
	client   *http.Client
	log      logger.Logger
}

// NewProber constructs a prober over the given peer base URLs
// (e.g. "https://10.0.0.2:9443").
func NewProber(peers []string, sink ReachabilitySink, interval, timeout time.Duration, log logger.Logger) *Prober {
	if log == nil {
		log = logger.NewNoopLogger()
	}
	return &Prober{
		peers:    peers,
		sink:     sink,
		interval: interval,
		client:   &http.Client{Timeout: timeout},
		log:      log.WithComponent("reachability_prober"),
	}
}

// Run probes until ctx is cancelled. The first cycle starts immediately so
// the evaluator does not sit on its optimistic initial state for a full
// interval.
func (p *Prober) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.probeOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.probeOnce(ctx)
		}
	}
}

func (p *Prober) probeOnce(ctx context.Context) {
	var wg sync.WaitGroup
	results := make(chan bool, len(p.peers))

	for _, peer := range p.peers {
		wg.Add(1)
		go func(peer string) {
			defer wg.Done()
			results <- p.reachable(ctx, peer)
		}(peer)
	}
	wg.Wait()
	close(results)

	reachable := 0
	for ok := range results {
		if ok {
			reachable++
		}
	}

	p.log.Debug(ctx, "reachability probe completed", logger.Fields{
		"reachable": reachable,
		"total":     len(p.peers),
	})
	p.sink.UpdatePeerReachability(reachable)
}

func (p *Prober) reachable(ctx context.Context, peer string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, peer+"/healthz", nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
