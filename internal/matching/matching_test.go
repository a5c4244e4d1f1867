package matching

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/bosocmputer/invoice_po_matcher/internal/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type mockAssistClient struct {
	mock.Mock
}

func (m *mockAssistClient) Complete(ctx context.Context, prompt string) (string, common.TokenUsage, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Get(1).(common.TokenUsage), args.Error(2)
}

func (m *mockAssistClient) GetProviderName() string { return "mock" }

type mockUsageLogger struct {
	mock.Mock
}

func (m *mockUsageLogger) LogAPIUsage(ctx context.Context, rec UsageRecord) error {
	return m.Called(ctx, rec).Error(0)
}

func testPOs() *POSet {
	return NewPOSet([]EligiblePO{
		{ID: 1012, JobName: "Somerville", EstimatedCost: decimal.NewFromInt(500)},
		{ID: 2044, JobName: "Herons Glen", EstimatedCost: decimal.NewFromInt(750)},
	})
}

var testJobs = []string{"Somerville", "Herons Glen"}

const tableColumnPage = "ACME SUPPLY\nINVOICE # 784512\nPO Number: 1012 SOMERVILLE\nShip to Herons Glen\nTOTAL $1,296.00"

func assistReply(po, confidence string) string {
	return "MATCHED: yes\nJOB_NAME: Herons Glen\nPO_NUMBER: " + po + "\nCONFIDENCE: " + confidence + "\nREASONING: job name on ship-to line"
}

func TestChainTableColumnWithoutAssist(t *testing.T) {
	chain := NewChain(zaptest.NewLogger(t), DefaultSteps(nil)...)
	assert.Equal(t, []string{MethodTableColumn, MethodPattern, MethodDirect, MethodFuzzy}, chain.Names())

	m, ok := chain.Resolve(context.Background(), Input{
		Text: "INVOICE # 784512\nPO Number: 1012 SOMERVILLE",
		POs:  NewPOSet([]EligiblePO{{ID: 1012, JobName: "Somerville"}}),
		Jobs: []string{"Somerville"},
	})

	require.True(t, ok)
	assert.Equal(t, 1012, m.POID)
	assert.Equal(t, MethodTableColumn, m.Method)
}

func TestChainAssistPriorityAndThreshold(t *testing.T) {
	tests := []struct {
		name       string
		confidence string
		wantPO     int
		wantMethod string
		wantScore  float64
	}{
		{"low is accepted at the boundary", "low", 2044, MethodAssist, 0.60},
		{"numeric 0.60 is accepted", "0.60", 2044, MethodAssist, 0.60},
		{"0.59 falls through to table column", "0.59", 1012, MethodTableColumn, 0},
		{"unrecognized falls through", "somewhat", 1012, MethodTableColumn, 0},
		{"high is accepted", "high", 2044, MethodAssist, 0.95},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := new(mockAssistClient)
			client.On("Complete", mock.Anything, mock.Anything).
				Return(assistReply("2044", tt.confidence), common.TokenUsage{InputTokens: 1000, OutputTokens: 200}, nil)

			usage := new(mockUsageLogger)
			usage.On("LogAPIUsage", mock.Anything, mock.Anything).Return(nil)

			assistant := NewAssistant(client, usage, zaptest.NewLogger(t))
			chain := NewChain(zaptest.NewLogger(t), DefaultSteps(assistant.Strategy())...)

			m, ok := chain.Resolve(context.Background(), Input{Text: tableColumnPage, POs: testPOs(), Jobs: testJobs})

			require.True(t, ok)
			assert.Equal(t, tt.wantPO, m.POID)
			assert.Equal(t, tt.wantMethod, m.Method)
			if tt.wantMethod == MethodAssist {
				assert.Equal(t, tt.wantScore, m.Confidence)
			}

			usage.AssertNumberOfCalls(t, "LogAPIUsage", 1)
			rec := usage.Calls[0].Arguments.Get(1).(UsageRecord)
			assert.Equal(t, tt.wantMethod == MethodAssist, rec.Success)
			assert.InDelta(t, 0.006, rec.CostEstimate, 1e-12)
			require.NotNil(t, rec.MatchedPO)
			assert.Equal(t, 2044, *rec.MatchedPO)
		})
	}
}

func TestAssistFailuresFallThrough(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		err   error
		po    bool
	}{
		{"transport error", "", errors.New("connection reset"), false},
		{"no match reply", "MATCHED: no\nJOB_NAME: none\nPO_NUMBER: none\nCONFIDENCE: low", nil, false},
		{"garbage reply", "I could not decide.", nil, false},
		{"invalid po number", assistReply("twelve", "high"), nil, false},
		{"ineligible po", assistReply("9999", "high"), nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := new(mockAssistClient)
			client.On("Complete", mock.Anything, mock.Anything).
				Return(tt.reply, common.TokenUsage{InputTokens: 10, OutputTokens: 5}, tt.err)

			usage := new(mockUsageLogger)
			usage.On("LogAPIUsage", mock.Anything, mock.Anything).Return(errors.New("store down"))

			assistant := NewAssistant(client, usage, zaptest.NewLogger(t))
			var priced []common.TokenUsage
			assistant.OnUsage = func(u common.TokenUsage) { priced = append(priced, u) }

			chain := NewChain(zaptest.NewLogger(t), DefaultSteps(assistant.Strategy())...)
			m, ok := chain.Resolve(context.Background(), Input{Text: tableColumnPage, POs: testPOs(), Jobs: testJobs})

			require.True(t, ok)
			assert.Equal(t, 1012, m.POID)
			assert.Equal(t, MethodTableColumn, m.Method)

			usage.AssertNumberOfCalls(t, "LogAPIUsage", 1)
			rec := usage.Calls[0].Arguments.Get(1).(UsageRecord)
			assert.False(t, rec.Success)
			assert.Equal(t, tt.po, rec.MatchedPO != nil)
			require.Len(t, priced, 1)
			assert.Equal(t, 15, priced[0].TotalTokens)
		})
	}
}

func TestAssistSkippedWithoutPOsOrJobs(t *testing.T) {
	client := new(mockAssistClient)
	assistant := NewAssistant(client, nil, nil)

	_, ok := assistant.Match(context.Background(), Input{Text: "x", POs: NewPOSet(nil), Jobs: testJobs})
	assert.False(t, ok)
	_, ok = assistant.Match(context.Background(), Input{Text: "x", POs: testPOs()})
	assert.False(t, ok)

	client.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
}

func TestBuildPrompt(t *testing.T) {
	long := strings.Repeat("A", MaxPromptTextChars+500)
	prompt := BuildPrompt(long, testJobs, testPOs())

	assert.Contains(t, prompt, "ACTIVE JOB NAMES IN SYSTEM:\nSomerville, Herons Glen")
	assert.Contains(t, prompt, "PO #1012: Job 'Somerville'\nPO #2044: Job 'Herons Glen'")
	assert.Contains(t, prompt, strings.Repeat("A", MaxPromptTextChars)+"\n\nTASK:")
	assert.NotContains(t, prompt, strings.Repeat("A", MaxPromptTextChars+1))
	assert.Contains(t, prompt, "PO_NUMBER: [the PO number from approved list, or \"none\"]")
}

func TestParseReply(t *testing.T) {
	r := ParseReply("  matched: Yes\nJob_Name: Herons Glen\nPO_NUMBER: 2044\nCONFIDENCE: Medium\nREASONING: saw 2044: near job\n")
	assert.True(t, r.Matched)
	assert.Equal(t, "Herons Glen", r.JobName)
	assert.Equal(t, "2044", r.PONumber)
	assert.Equal(t, "Medium", r.Confidence)
	assert.Equal(t, "saw 2044: near job", r.Reasoning)

	empty := ParseReply("")
	assert.False(t, empty.Matched)
	assert.Equal(t, "none", empty.PONumber)
	assert.Equal(t, "low", empty.Confidence)
}

func TestConfidenceScore(t *testing.T) {
	assert.Equal(t, 0.95, ConfidenceScore("HIGH"))
	assert.Equal(t, 0.80, ConfidenceScore("medium"))
	assert.Equal(t, 0.60, ConfidenceScore(" low "))
	assert.Equal(t, 0.5, ConfidenceScore("unsure"))
	assert.Equal(t, 0.59, ConfidenceScore("0.59"))
	assert.Equal(t, 0.5, ConfidenceScore("85"))
}

func TestTableColumnMovesToNextHeader(t *testing.T) {
	text := "PO Number: 5555 UNKNOWN\nNothing here\n\nJob Name\n2044HERONSGLEN"
	m, ok := TableColumn(context.Background(), Input{Text: text, POs: testPOs()})
	require.True(t, ok)
	assert.Equal(t, 2044, m.POID)
	assert.Contains(t, m.Detail, "Job Name")
}

func TestTableColumnServicePrefix(t *testing.T) {
	pos := NewPOSet([]EligiblePO{{ID: 4016, JobName: "Service"}})
	m, ok := TableColumn(context.Background(), Input{Text: "ORDER # PO #\n88123 S-4016", POs: pos})
	require.True(t, ok)
	assert.Equal(t, 4016, m.POID)
}

func TestRegexFallback(t *testing.T) {
	t.Run("concatenated id and job", func(t *testing.T) {
		pos := NewPOSet([]EligiblePO{{ID: 9860, JobName: "Herons Glen"}})
		m, ok := RegexFallback(context.Background(), Input{Text: "Deliver 9860HERONSGLEN today", POs: pos})
		require.True(t, ok)
		assert.Equal(t, 9860, m.POID)
		assert.Equal(t, MethodPattern, m.Method)
	})

	t.Run("known job built from active jobs", func(t *testing.T) {
		pos := NewPOSet([]EligiblePO{{ID: 4410, JobName: "Herons Glen"}})
		m, ok := RegexFallback(context.Background(), Input{
			Text: "Ref 4410 herons  glen",
			POs:  pos,
			Jobs: []string{"Herons Glen"},
		})
		require.True(t, ok)
		assert.Equal(t, 4410, m.POID)
		assert.Equal(t, "XXXX known job name", m.Detail)
	})

	t.Run("ineligible candidates ignored", func(t *testing.T) {
		_, ok := RegexFallback(context.Background(), Input{Text: "PO: 7777", POs: testPOs()})
		assert.False(t, ok)
	})
}

func TestKnownJobPattern(t *testing.T) {
	_, ok := KnownJobPattern(nil)
	assert.False(t, ok)

	p, ok := KnownJobPattern([]string{"A+B (West)", "Somerville"})
	require.True(t, ok)
	assert.True(t, p.Regex.MatchString("1234 a+b (west)"))
	assert.True(t, p.Regex.MatchString("1234 SOMERVILLE"))
}

func TestDirectSearch(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		po     EligiblePO
		wantOK bool
	}{
		{"concatenated", "lot 5521 Somerville", EligiblePO{ID: 5521, JobName: "Somerville"}, true},
		{"job word", "ref 5521 / west somerville phase", EligiblePO{ID: 5521, JobName: "Somerville-East"}, true},
		{"label context", "Order: 7788", EligiblePO{ID: 7788, JobName: "XY"}, true},
		{"bare number", "Qty 3344 units", EligiblePO{ID: 3344, JobName: "Oak"}, false},
		{"absent", "nothing", EligiblePO{ID: 3344, JobName: "Oak"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, ok := DirectSearch(context.Background(), Input{Text: tt.text, POs: NewPOSet([]EligiblePO{tt.po})})
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.po.ID, m.POID)
				assert.Equal(t, MethodDirect, m.Method)
			}
		})
	}
}

func TestDirectSearchStoreOrder(t *testing.T) {
	pos := NewPOSet([]EligiblePO{
		{ID: 3001, JobName: "Maple"},
		{ID: 3000, JobName: "Maple"},
	})
	m, ok := DirectSearch(context.Background(), Input{Text: "PO 3000 and PO 3001 for MAPLE", POs: pos})
	require.True(t, ok)
	assert.Equal(t, 3001, m.POID)
}

func TestFuzzyJobScan(t *testing.T) {
	pos := NewPOSet([]EligiblePO{{ID: 4410, JobName: "Herons Glen"}})
	jobs := []string{"Herons Glen"}

	t.Run("number near misspelled job", func(t *testing.T) {
		m, ok := FuzzyJobScan(context.Background(), Input{
			Text: "Ship to HERONS GELN\nRef 4410 delivered",
			POs:  pos,
			Jobs: jobs,
		})
		require.True(t, ok)
		assert.Equal(t, 4410, m.POID)
		assert.Equal(t, MethodFuzzy, m.Method)
	})

	t.Run("broad pass finds distant id", func(t *testing.T) {
		text := "Ship to HERONS GELN\n" + strings.Repeat("lorem ", 40) + "\nref 4410"
		m, ok := FuzzyJobScan(context.Background(), Input{Text: text, POs: pos, Jobs: jobs})
		require.True(t, ok)
		assert.Equal(t, 4410, m.POID)
		assert.Contains(t, m.Detail, "anywhere")
	})

	t.Run("job of a different PO is rejected", func(t *testing.T) {
		_, ok := FuzzyJobScan(context.Background(), Input{
			Text: "Ship to SOMERVILLE ref 4410",
			POs:  pos,
			Jobs: []string{"Somerville"},
		})
		assert.False(t, ok)
	})
}

type fixedStrategy struct {
	m  Match
	ok bool
}

func (f fixedStrategy) run(context.Context, Input) (Match, bool) { return f.m, f.ok }

func TestChainSkipsIneligibleResult(t *testing.T) {
	chain := NewChain(zaptest.NewLogger(t),
		Step{Name: "bogus", Run: fixedStrategy{m: Match{POID: 9999}, ok: true}.run},
		Step{Name: "none", Run: fixedStrategy{}.run},
		Step{Name: "good", Run: fixedStrategy{m: Match{POID: 2044}, ok: true}.run},
	)

	m, ok := chain.Resolve(context.Background(), Input{POs: testPOs()})
	require.True(t, ok)
	assert.Equal(t, 2044, m.POID)
	assert.Equal(t, "good", m.Method)

	combined := FirstSuccess(fixedStrategy{m: Match{POID: 9999}, ok: true}.run, nil, fixedStrategy{m: Match{POID: 1012}, ok: true}.run)
	m, ok = combined(context.Background(), Input{POs: testPOs()})
	require.True(t, ok)
	assert.Equal(t, 1012, m.POID)
}

func TestFormatPONumber(t *testing.T) {
	assert.Equal(t, "0042", FormatPONumber(42, "Somerville"))
	assert.Equal(t, "S0042", FormatPONumber(42, "SERVICE"))
	assert.Equal(t, "12345", FormatPONumber(12345, ""))
}

func TestPOSet(t *testing.T) {
	s := NewPOSet([]EligiblePO{{ID: 3}, {ID: 1}, {ID: 3, JobName: "dup"}, {ID: 2}})
	assert.Equal(t, []int{3, 1, 2}, s.IDs())

	clone := s.Clone()
	s.Remove(1)
	assert.Equal(t, []int{3, 2}, s.IDs())
	assert.False(t, s.Contains(1))
	assert.True(t, clone.Contains(1))
	assert.Equal(t, 3, clone.Len())

	var nilSet *POSet
	assert.Equal(t, 0, nilSet.Len())
	assert.False(t, nilSet.Contains(1))
}
