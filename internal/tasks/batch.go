package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Nexgear75/MacScribe/internal/models"
	"github.com/Nexgear75/MacScribe/internal/shared"
	"golang.org/x/time/rate"
)

// BatchOpts contains configuration for headless batch processing.
type BatchOpts struct {
	NumWorkers int     // Concurrent sessions (default: 2, max: 8)
	RateLimit  float64 // Session starts per second (default: 1)
}

// BatchItemResult is the outcome of one input of a batch.
type BatchItemResult struct {
	Input      string        `json:"input"`
	SessionID  string        `json:"session_id"`
	Success    bool          `json:"success"`
	OutputPath string        `json:"output_path,omitempty"`
	Error      string        `json:"error,omitempty"`
	Elapsed    time.Duration `json:"elapsed"`
}

// BatchResult summarizes a batch run.
type BatchResult struct {
	Total     int               `json:"total"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
	Results   []BatchItemResult `json:"results"`
}

// BatchUpdate reports the progress of a batch to its caller.
type BatchUpdate struct {
	Completed int
	Total     int
	Result    BatchItemResult
}

// Batch runs requests without a connected client, several at a time.
//
// Every request gets its own session on a private [Pipeline] that shares p's collaborators.
// Remote inputs answer their post-download decision with the request's own action, so a
// download_video request stops after the download. Updates are sent without blocking.
func (p *Pipeline) Batch(ctx context.Context, reqs []models.ProcessRequest, opts BatchOpts, updates chan<- BatchUpdate) (*BatchResult, error) {
	if len(reqs) == 0 {
		return nil, fmt.Errorf("%w: no inputs", shared.ErrMissingArgument)
	}
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = 2
	}
	if opts.NumWorkers > 8 {
		opts.NumWorkers = 8
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 1
	}

	collector := newCollector()
	headless := NewPipeline(PipelineOpts{
		Channel:    collector,
		Downloader: p.downloader,
		Media:      p.media,
		Generator:  p.generator,
		Exporter:   p.exporter,
		History:    p.history,
		Pacing:     Pacing{PollInterval: p.pacing.PollInterval, PollStep: p.pacing.PollStep, TokenBatch: p.pacing.TokenBatch},
		TempDir:    p.tempDir,
		Logger:     p.logger,
	})

	limiter := rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	jobs := make(chan models.ProcessRequest, len(reqs))
	results := make(chan BatchItemResult, len(reqs))

	var wg sync.WaitGroup
	for range opts.NumWorkers {
		wg.Add(1)
		go headless.batchWorker(ctx, &wg, collector, jobs, results)
	}

	go func() {
		defer close(jobs)
		for _, req := range reqs {
			if err := limiter.Wait(ctx); err != nil {
				return
			}
			jobs <- req
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	result := &BatchResult{Total: len(reqs), Results: make([]BatchItemResult, 0, len(reqs))}
	for res := range results {
		result.Results = append(result.Results, res)
		if res.Success {
			result.Succeeded++
		} else {
			result.Failed++
		}

		if updates != nil {
			select {
			case updates <- BatchUpdate{Completed: len(result.Results), Total: len(reqs), Result: res}:
			default:
			}
		}
	}

	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("batch interrupted after %d of %d inputs: %w", len(result.Results), len(reqs), err)
	}
	return result, nil
}

func (p *Pipeline) batchWorker(
	ctx context.Context,
	wg *sync.WaitGroup,
	collector *collector,
	jobs <-chan models.ProcessRequest,
	results chan<- BatchItemResult,
) {
	defer wg.Done()

	for req := range jobs {
		select {
		case <-ctx.Done():
			return
		default:
		}
		results <- p.batchOne(ctx, collector, req)
	}
}

func (p *Pipeline) batchOne(ctx context.Context, collector *collector, req models.ProcessRequest) BatchItemResult {
	start := time.Now()
	id := p.Open(req)
	collector.open(id, models.DecisionMessage{
		ContinueAction: decisionFor(req.Action),
		OutputFormat:   req.OutputFormat,
		OutputPath:     req.OutputPath,
	})

	p.Serve(ctx, id)

	res := BatchItemResult{Input: req.FilePath, SessionID: id, Elapsed: time.Since(start)}
	outcome := collector.close(id)
	switch {
	case outcome.err != "":
		res.Error = outcome.err
	case outcome.output != "":
		res.Success = true
		res.OutputPath = outcome.output
	default:
		res.Error = shared.ErrConnectionLost.Error()
	}
	return res
}

func decisionFor(action models.Action) models.Action {
	if action == models.ActionDownloadVideo {
		return models.ActionDone
	}
	return action
}

type outcome struct {
	output string
	err    string
}

// collector is the [Channel] of headless sessions: it answers the decision prompt with a
// preset choice and keeps each session's terminal message.
type collector struct {
	mu        sync.Mutex
	decisions map[string]models.DecisionMessage
	outcomes  map[string]outcome
}

func newCollector() *collector {
	return &collector{
		decisions: make(map[string]models.DecisionMessage),
		outcomes:  make(map[string]outcome),
	}
}

func (c *collector) open(id string, decision models.DecisionMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.decisions[id] = decision
	c.outcomes[id] = outcome{}
}

func (c *collector) close(id string) outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	o := c.outcomes[id]
	delete(c.outcomes, id)
	delete(c.decisions, id)
	return o
}

func (c *collector) Send(id string, msg any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	o, ok := c.outcomes[id]
	if !ok {
		return
	}
	switch m := msg.(type) {
	case models.CompleteMessage:
		o.output = m.OutputPath
	case models.ErrorMessage:
		o.err = m.Message
	}
	c.outcomes[id] = o
}

func (c *collector) ReceiveNext(ctx context.Context, id string, v any) error {
	c.mu.Lock()
	decision, ok := c.decisions[id]
	c.mu.Unlock()
	if !ok {
		return shared.ErrSessionNotFound
	}

	dst, ok := v.(*models.DecisionMessage)
	if !ok {
		return fmt.Errorf("%w: unexpected target %T", shared.ErrMalformedMessage, v)
	}
	*dst = decision
	return ctx.Err()
}

func (c *collector) Disconnect(string) {}
