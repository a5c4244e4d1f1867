// request_context.go - Batch tracking and logging

package common

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RequestContext tracks one batch run with timing and assist costs
type RequestContext struct {
	RequestID           string
	BatchTag            string
	StartTime           time.Time
	Steps               []StepLog
	TotalTokens         TokenUsage
	CurrentStep         string
	CurrentStepStart    time.Time
	CurrentSubSteps     []SubStepLog
	CurrentSubStep      string
	CurrentSubStepStart time.Time

	log *zap.Logger
}

// StepLog represents a single processing step
type StepLog struct {
	Name      string       `json:"name"`
	StartTime time.Time    `json:"start_time"`
	Duration  int64        `json:"duration_ms"`
	Status    string       `json:"status"` // "success", "failed", "skipped"
	Tokens    *TokenUsage  `json:"tokens,omitempty"`
	Error     string       `json:"error,omitempty"`
	SubSteps  []SubStepLog `json:"sub_steps,omitempty"`
}

// SubStepLog represents a detailed sub-operation within a step
type SubStepLog struct {
	Name      string    `json:"name"`
	StartTime time.Time `json:"start_time"`
	Duration  int64     `json:"duration_ms"`
	Details   string    `json:"details,omitempty"`
}

// TokenUsage tracks API token consumption
type TokenUsage struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	TotalTokens  int     `json:"total_tokens"`
	CostUSD      float64 `json:"cost_usd"`
}

// NewRequestContextWithLogger starts tracking a batch, logging through base.
func NewRequestContextWithLogger(batchTag string, base *zap.Logger) *RequestContext {
	reqID := uuid.New().String()
	now := time.Now()

	rc := &RequestContext{
		RequestID:   reqID,
		BatchTag:    batchTag,
		StartTime:   now,
		Steps:       []StepLog{},
		TotalTokens: TokenUsage{},
		log:         base.With(zap.String("request_id", reqID), zap.String("batch", batchTag)),
	}
	rc.log.Info("batch started", zap.String("at", now.Format("15:04:05")))
	return rc
}

// Logger returns the request-scoped logger for structured fields.
func (rc *RequestContext) Logger() *zap.Logger {
	return rc.log
}

// StartStep begins tracking a new processing step
func (rc *RequestContext) StartStep(stepName string) {
	rc.CurrentStep = stepName
	rc.CurrentStepStart = time.Now()
	rc.log.Debug("step started", zap.String("step", stepName))
}

// EndStep completes the current step and records timing
func (rc *RequestContext) EndStep(status string, tokens *TokenUsage, err error) {
	duration := time.Since(rc.CurrentStepStart).Milliseconds()

	stepLog := StepLog{
		Name:      rc.CurrentStep,
		StartTime: rc.CurrentStepStart,
		Duration:  duration,
		Status:    status,
		Tokens:    tokens,
		SubSteps:  rc.CurrentSubSteps,
	}

	fields := []zap.Field{
		zap.String("step", rc.CurrentStep),
		zap.String("status", status),
		zap.Int64("duration_ms", duration),
	}

	if err != nil {
		stepLog.Error = err.Error()
		rc.log.Error("step failed", append(fields, zap.Error(err))...)
	} else {
		if tokens != nil {
			rc.AddTokens(*tokens)
			fields = append(fields,
				zap.Int("input_tokens", tokens.InputTokens),
				zap.Int("output_tokens", tokens.OutputTokens),
				zap.Float64("cost_usd", tokens.CostUSD))
		}
		if len(rc.CurrentSubSteps) > 0 {
			fields = append(fields, zap.Int("sub_steps", len(rc.CurrentSubSteps)))
		}
		rc.log.Info("step finished", fields...)
	}

	rc.Steps = append(rc.Steps, stepLog)
	rc.CurrentStep = ""
	rc.CurrentSubSteps = []SubStepLog{}
}

// AddTokens adds assist usage to the batch totals.
func (rc *RequestContext) AddTokens(tokens TokenUsage) {
	rc.TotalTokens.InputTokens += tokens.InputTokens
	rc.TotalTokens.OutputTokens += tokens.OutputTokens
	rc.TotalTokens.TotalTokens += tokens.TotalTokens
	rc.TotalTokens.CostUSD += tokens.CostUSD
}

// StartSubStep begins tracking a detailed sub-operation
func (rc *RequestContext) StartSubStep(subStepName string) {
	rc.CurrentSubStep = subStepName
	rc.CurrentSubStepStart = time.Now()
}

// EndSubStep completes the current sub-step and records timing
func (rc *RequestContext) EndSubStep(details string) {
	if rc.CurrentSubStep == "" {
		return
	}

	duration := time.Since(rc.CurrentSubStepStart).Milliseconds()
	rc.CurrentSubSteps = append(rc.CurrentSubSteps, SubStepLog{
		Name:      rc.CurrentSubStep,
		StartTime: rc.CurrentSubStepStart,
		Duration:  duration,
		Details:   details,
	})

	rc.log.Debug("sub-step finished",
		zap.String("sub_step", rc.CurrentSubStep),
		zap.Int64("duration_ms", duration),
		zap.String("details", details))

	rc.CurrentSubStep = ""
}

// CalculateTokenCost computes USD cost from token counts and per-million prices
func CalculateTokenCost(inputTokens, outputTokens int, inputPerMillion, outputPerMillion float64) TokenUsage {
	inputCost := float64(inputTokens) * inputPerMillion / 1_000_000
	outputCost := float64(outputTokens) * outputPerMillion / 1_000_000

	return TokenUsage{
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		TotalTokens:  inputTokens + outputTokens,
		CostUSD:      inputCost + outputCost,
	}
}

// GetSummary returns a final summary of the entire batch
func (rc *RequestContext) GetSummary() map[string]interface{} {
	totalDuration := time.Since(rc.StartTime).Milliseconds()

	stepBreakdown := make(map[string]int64)
	for _, step := range rc.Steps {
		stepBreakdown[step.Name] += step.Duration
	}

	rc.log.Info("batch finished",
		zap.Int64("total_duration_ms", totalDuration),
		zap.Int("steps", len(rc.Steps)),
		zap.String("tokens", fmt.Sprintf("%s in + %s out",
			formatNumber(rc.TotalTokens.InputTokens),
			formatNumber(rc.TotalTokens.OutputTokens))),
		zap.Float64("cost_usd", rc.TotalTokens.CostUSD))

	return map[string]interface{}{
		"request_id":         rc.RequestID,
		"batch":              rc.BatchTag,
		"total_duration_ms":  totalDuration,
		"total_duration_sec": float64(totalDuration) / 1000,
		"step_breakdown":     stepBreakdown,
		"total_steps":        len(rc.Steps),
		"token_usage": map[string]interface{}{
			"input_tokens":  rc.TotalTokens.InputTokens,
			"output_tokens": rc.TotalTokens.OutputTokens,
			"total_tokens":  rc.TotalTokens.TotalTokens,
			"cost_usd":      fmt.Sprintf("$%.4f", rc.TotalTokens.CostUSD),
		},
	}
}

// formatNumber adds comma separators to numbers
func formatNumber(n int) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%d,%03d", n/1000, n%1000)
	}
	return fmt.Sprintf("%d,%03d,%03d", n/1000000, (n%1000000)/1000, n%1000)
}
