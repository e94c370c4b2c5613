package summarize

import (
	"sync"
	"time"
)

// Per-1K token pricing used for the running cost estimate. Close enough for
// budget dashboards; billing truth lives with the provider.
const (
	promptCostPer1K     = 0.0005
	completionCostPer1K = 0.0015
)

// CostTracker tracks LLM usage and estimated spend.
type CostTracker struct {
	mu               sync.RWMutex
	totalTokens      int
	totalRequests    int
	estimatedCostUSD float64
	startTime        time.Time
}

func NewCostTracker() *CostTracker {
	return &CostTracker{startTime: time.Now()}
}

func (c *CostTracker) AddUsage(promptTokens, completionTokens int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.totalTokens += promptTokens + completionTokens
	c.totalRequests++
	c.estimatedCostUSD += float64(promptTokens)*promptCostPer1K/1000 +
		float64(completionTokens)*completionCostPer1K/1000
}

func (c *CostTracker) GetStats() (totalTokens, totalRequests int, estimatedCostUSD float64, uptime time.Duration) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.totalTokens, c.totalRequests, c.estimatedCostUSD, time.Since(c.startTime)
}
