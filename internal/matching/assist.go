// assist.go - AI-assisted matching: prompt building, reply parsing and usage audit

package matching

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bosocmputer/invoice_po_matcher/internal/common"
	"go.uber.org/zap"
)

const (
	// MaxPromptTextChars caps how much page text is sent to the assist service.
	MaxPromptTextChars = 3000
	// MinAssistConfidence is the lowest accepted confidence score.
	MinAssistConfidence = 0.60
	// DefaultInputPricePerMillion and DefaultOutputPricePerMillion are USD per 1M tokens.
	DefaultInputPricePerMillion  = 3.0
	DefaultOutputPricePerMillion = 15.0

	usagePreviewChars = 200
)

// AssistClient is the transport to an LLM. Implementations return the raw
// reply text and token counts; cost is computed by the caller.
type AssistClient interface {
	Complete(ctx context.Context, prompt string) (string, common.TokenUsage, error)
	GetProviderName() string
}

// UsageRecord is one append-only audit entry per assist call.
type UsageRecord struct {
	Timestamp    time.Time `json:"timestamp" bson:"timestamp"`
	Provider     string    `json:"provider" bson:"provider"`
	TextPreview  string    `json:"text_preview" bson:"text_preview"`
	MatchedPO    *int      `json:"matched_po" bson:"matched_po"`
	MatchedJob   string    `json:"matched_job" bson:"matched_job"`
	Confidence   float64   `json:"confidence" bson:"confidence"`
	InputTokens  int       `json:"input_tokens" bson:"input_tokens"`
	OutputTokens int       `json:"output_tokens" bson:"output_tokens"`
	CostEstimate float64   `json:"cost_estimate" bson:"cost_estimate"`
	Success      bool      `json:"success" bson:"success"`
}

// UsageLogger persists UsageRecords.
type UsageLogger interface {
	LogAPIUsage(ctx context.Context, rec UsageRecord) error
}

// AssistReply is the structured reply of the assist service.
type AssistReply struct {
	Matched    bool
	JobName    string
	PONumber   string
	Confidence string
	Reasoning  string
}

// BuildPrompt renders the assist prompt for one page.
func BuildPrompt(text string, jobs []string, pos *POSet) string {
	var poLines []string
	for _, po := range pos.All() {
		job := po.JobName
		if job == "" {
			job = "Unknown"
		}
		poLines = append(poLines, fmt.Sprintf("PO #%d: Job '%s'", po.ID, job))
	}

	excerpt := text
	if r := []rune(text); len(r) > MaxPromptTextChars {
		excerpt = string(r[:MaxPromptTextChars])
	}

	var b strings.Builder
	b.WriteString("Analyze this invoice text and find which job it belongs to.\n\n")
	b.WriteString("ACTIVE JOB NAMES IN SYSTEM:\n")
	b.WriteString(strings.Join(jobs, ", "))
	b.WriteString("\n\nAPPROVED PO NUMBERS WAITING FOR INVOICES:\n")
	b.WriteString(strings.Join(poLines, "\n"))
	b.WriteString("\n\nINVOICE TEXT:\n")
	b.WriteString(excerpt)
	b.WriteString(`

TASK:
1. Find any job name from the active jobs list that appears in the invoice (even if misspelled, has OCR errors, spacing issues, or is abbreviated)
2. Find the PO number associated with that job in the invoice
3. Match it to one of the approved PO numbers listed above

IMPORTANT:
- Job names may be misspelled (e.g., "HERONS GELN" instead of "Herons Glen")
- Job names may have spacing issues (e.g., "HERONSGLEN" or "HER ONS GLEN")
- Job names may have OCR errors (e.g., "Her0ns G1en" with zeros instead of O's)
- The PO number is usually a 3-5 digit number near the job name
- Only match to PO numbers from the approved list above

Respond in EXACTLY this format (nothing else):
MATCHED: [yes/no]
JOB_NAME: [the job name from the active list, or "none"]
PO_NUMBER: [the PO number from approved list, or "none"]
CONFIDENCE: [high/medium/low]
REASONING: [brief explanation of how you matched it]`)

	return b.String()
}

// ParseReply reads KEY: value lines. Unknown keys are ignored and missing
// keys fall back to a no-match reply.
func ParseReply(reply string) AssistReply {
	fields := map[string]string{}
	for _, line := range strings.Split(strings.TrimSpace(reply), "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		fields[strings.ToUpper(strings.TrimSpace(key))] = strings.TrimSpace(value)
	}

	get := func(key, def string) string {
		if v, ok := fields[key]; ok {
			return v
		}
		return def
	}

	return AssistReply{
		Matched:    strings.EqualFold(get("MATCHED", "no"), "yes"),
		JobName:    get("JOB_NAME", "none"),
		PONumber:   get("PO_NUMBER", "none"),
		Confidence: get("CONFIDENCE", "low"),
		Reasoning:  get("REASONING", ""),
	}
}

// ConfidenceScore maps a categorical confidence to a number. A numeric value
// in [0, 1] is taken as is; anything unrecognized scores 0.5.
func ConfidenceScore(confidence string) float64 {
	switch strings.ToLower(strings.TrimSpace(confidence)) {
	case "high":
		return 0.95
	case "medium":
		return 0.80
	case "low":
		return 0.60
	}
	if v, err := strconv.ParseFloat(strings.TrimSpace(confidence), 64); err == nil && v >= 0 && v <= 1 {
		return v
	}
	return 0.5
}

// Assistant turns an AssistClient into a matching strategy and audits every call.
type Assistant struct {
	client AssistClient
	usage  UsageLogger
	log    *zap.Logger

	MinConfidence         float64
	InputPricePerMillion  float64
	OutputPricePerMillion float64
	// OnUsage, when set, receives the priced token usage of every call.
	OnUsage func(common.TokenUsage)

	now func() time.Time
}

// NewAssistant wires a client and an audit sink. usage may be nil.
func NewAssistant(client AssistClient, usage UsageLogger, log *zap.Logger) *Assistant {
	if log == nil {
		log = zap.NewNop()
	}
	return &Assistant{
		client:                client,
		usage:                 usage,
		log:                   log,
		MinConfidence:         MinAssistConfidence,
		InputPricePerMillion:  DefaultInputPricePerMillion,
		OutputPricePerMillion: DefaultOutputPricePerMillion,
		now:                   time.Now,
	}
}

// Strategy exposes Match as a chain step.
func (a *Assistant) Strategy() Strategy {
	return a.Match
}

// Match asks the assist service for a PO. Transport and parse failures are
// logged and reported as no match.
func (a *Assistant) Match(ctx context.Context, in Input) (Match, bool) {
	if a == nil || a.client == nil || in.POs.Len() == 0 || len(in.Jobs) == 0 {
		return Match{}, false
	}

	rec := UsageRecord{
		Timestamp:   a.now(),
		Provider:    a.client.GetProviderName(),
		TextPreview: preview(in.Text, usagePreviewChars),
	}
	defer func() { a.record(ctx, rec) }()

	raw, tokens, err := a.client.Complete(ctx, BuildPrompt(in.Text, in.Jobs, in.POs))
	priced := common.CalculateTokenCost(tokens.InputTokens, tokens.OutputTokens,
		a.InputPricePerMillion, a.OutputPricePerMillion)
	rec.InputTokens = priced.InputTokens
	rec.OutputTokens = priced.OutputTokens
	rec.CostEstimate = priced.CostUSD
	if a.OnUsage != nil {
		a.OnUsage(priced)
	}

	if err != nil {
		a.log.Warn("assist call failed", common.ClassDependencyFailure.Field(), zap.Error(err))
		return Match{}, false
	}

	reply := ParseReply(raw)
	if !reply.Matched || strings.EqualFold(reply.JobName, "none") || strings.EqualFold(reply.PONumber, "none") {
		a.log.Info("assist found no match", zap.String("reasoning", reply.Reasoning))
		return Match{}, false
	}
	rec.MatchedJob = reply.JobName

	id, err := strconv.Atoi(strings.TrimPrefix(strings.TrimSpace(reply.PONumber), "#"))
	if err != nil {
		a.log.Warn("assist returned invalid PO number",
			common.ClassDependencyFailure.Field(), zap.String("po_number", reply.PONumber))
		return Match{}, false
	}
	rec.MatchedPO = &id

	if !in.POs.Contains(id) {
		a.log.Warn("assist suggested ineligible PO",
			common.ClassInvalidSuggestion.Field(), zap.Int("po_id", id))
		return Match{}, false
	}

	score := ConfidenceScore(reply.Confidence)
	rec.Confidence = score
	if score < a.MinConfidence {
		a.log.Info("assist confidence too low", zap.Int("po_id", id), zap.Float64("confidence", score))
		return Match{}, false
	}

	rec.Success = true
	return Match{
		POID:       id,
		Method:     MethodAssist,
		Confidence: score,
		Detail:     reply.Reasoning,
	}, true
}

func (a *Assistant) record(ctx context.Context, rec UsageRecord) {
	if a.usage == nil {
		return
	}
	if err := a.usage.LogAPIUsage(ctx, rec); err != nil {
		a.log.Warn("failed to log assist usage", common.ClassPersistenceWarning.Field(), zap.Error(err))
	}
}

func preview(text string, n int) string {
	r := []rune(text)
	if len(r) > n {
		return string(r[:n])
	}
	return text
}
