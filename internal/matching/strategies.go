// strategies.go - Deterministic PO resolution strategies

package matching

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/bosocmputer/invoice_po_matcher/internal/fuzzy"
)

// LabeledPattern is one row of a data-driven regex table. Group 1 must
// capture the PO number.
type LabeledPattern struct {
	Regex *regexp.Regexp
	Label string
}

func labeled(expr, label string) LabeledPattern {
	return LabeledPattern{Regex: regexp.MustCompile(expr), Label: label}
}

// TableHeaders are column headers that introduce a PO value, in priority order.
var TableHeaders = []LabeledPattern{
	labeled(`(?i)(ORDER\s*#\s*)(PO\s*#)`, "ORDER # / PO #"),
	labeled(`(?i)Purchase\s+Order[/\s]*Job\s+Name`, "Purchase Order/Job Name"),
	labeled(`(?i)PO\s*Number`, "PO Number"),
	labeled(`(?i)PO\s*#`, "PO #"),
	labeled(`(?i)Customer\s*PO`, "Customer PO"),
	labeled(`(?i)Job\s*#`, "Job #"),
	labeled(`(?i)Job\s*Name`, "Job Name"),
	labeled(`(?i)Job\s*Number`, "Job Number"),
	labeled(`(?i)Work\s*Order`, "Work Order"),
	labeled(`(?i)Project\s*#`, "Project #"),
	labeled(`(?i)Reference`, "Reference"),
}

// ColumnValuePatterns pull PO candidates out of a header line or the line below it.
var ColumnValuePatterns = []LabeledPattern{
	labeled(`(?i)S-(\d{4,})`, "S-####"),
	labeled(`(?i)\b(\d{4,})[A-Za-z]+`, "####JOBNAME"),
	labeled(`(?i):\s*(\d{4,})\s+[A-Za-z]`, ": #### JOBNAME"),
	labeled(`(?i)\b(\d{4,})\s+[A-Za-z]{3,}`, "#### JOBNAME"),
	labeled(`(?i)\b(\d{4,})\b`, "####"),
}

// POPatterns is the free-text fallback table evaluated over the whole page.
var POPatterns = []LabeledPattern{
	labeled(`(?i)PO\s*#?\s*[:\s]*S-(\d{4,})`, "PO: S-XXXX"),
	labeled(`(?i)PO\s*#?\s*[:\s]*(\d{4,})[A-Za-z]+`, "PO: XXXXABC"),
	labeled(`(?i)PO\s*#?\s*[:\s]*(\d{4,})\s+[A-Za-z]`, "PO: XXXX JOBNAME"),
	labeled(`(?i)PO\s*#?\s*[:\s]*(\d{4,})`, "PO: XXXX"),
	labeled(`(?i)Customer\s*PO\s*#?\s*[:\s]*(\d{4,})`, "Customer PO"),
	labeled(`(?i)Job\s*#\s*[:\s]*(\d{4,})`, "Job #"),
	labeled(`(?i)Job\s*(?:Name|Number)\s*[:\s]*(\d{4,})`, "Job Name/Number"),
	labeled(`(?i)Project\s*#?\s*[:\s]*(\d{4,})`, "Project #"),
	labeled(`(?i)Work\s*Order\s*#?\s*[:\s]*(\d{4,})`, "Work Order"),
	labeled(`(?i)Purchase\s+Order[/\s]+Job\s+Name[\s\S]*?(\d{4,})[A-Za-z]+`, "Purchase Order/Job Name: XXXXJOBNAME"),
	labeled(`(?i)PO\s*Number[:\s]+(\d{4,})\s+[A-Za-z]`, "PO Number: XXXX JOBNAME"),
	labeled(`(?i)PO\s*Number[:\s]+(\d{4,})`, "PO Number: XXXX"),
	labeled(`(?i)\b(\d{4,})[A-Za-z]{3,}`, "XXXXJOBNAME"),
}

// KnownJobPattern builds the "#### <active job name>" row from the job list.
// Spaces inside a job name may be missing or repeated on the page.
func KnownJobPattern(jobs []string) (LabeledPattern, bool) {
	var alternatives []string
	for _, job := range jobs {
		words := strings.Fields(job)
		if len(words) == 0 {
			continue
		}
		for i, w := range words {
			words[i] = regexp.QuoteMeta(w)
		}
		alternatives = append(alternatives, strings.Join(words, `\s*`))
	}
	if len(alternatives) == 0 {
		return LabeledPattern{}, false
	}
	expr := `(?i)\b(\d{4,})\s+(?:` + strings.Join(alternatives, "|") + `)`
	re, err := regexp.Compile(expr)
	if err != nil {
		return LabeledPattern{}, false
	}
	return LabeledPattern{Regex: re, Label: "XXXX known job name"}, true
}

// TableColumn finds the first PO header that has an eligible number on its own
// line or the next one.
func TableColumn(_ context.Context, in Input) (Match, bool) {
	for _, header := range TableHeaders {
		loc := header.Regex.FindStringIndex(in.Text)
		if loc == nil {
			continue
		}

		lines := strings.Split(in.Text[loc[0]:], "\n")
		if len(lines) > 2 {
			lines = lines[:2]
		}

		for _, line := range lines {
			for _, vp := range ColumnValuePatterns {
				if id, ok := firstEligible(vp.Regex, line, in.POs); ok {
					return Match{
						POID:   id,
						Method: MethodTableColumn,
						Detail: fmt.Sprintf("header %q, value %s", header.Label, vp.Label),
					}, true
				}
			}
		}
	}
	return Match{}, false
}

// RegexFallback scans the page with POPatterns, then the known-job row.
func RegexFallback(_ context.Context, in Input) (Match, bool) {
	table := POPatterns
	if known, ok := KnownJobPattern(in.Jobs); ok {
		table = append(append([]LabeledPattern(nil), POPatterns...), known)
	}

	for _, p := range table {
		if id, ok := firstEligible(p.Regex, in.Text, in.POs); ok {
			return Match{POID: id, Method: MethodPattern, Detail: p.Label}, true
		}
	}
	return Match{}, false
}

// DirectSearch walks eligible POs in store order looking for the literal id,
// confirmed by the job name or a PO-style label in front of it.
func DirectSearch(_ context.Context, in Input) (Match, bool) {
	textUpper := strings.ToUpper(in.Text)

	for _, po := range in.POs.All() {
		idStr := strconv.Itoa(po.ID)
		if !strings.Contains(in.Text, idStr) {
			continue
		}

		jobUpper := strings.ToUpper(po.JobName)
		jobCompact := strings.NewReplacer(" ", "", "-", "", "_", "").Replace(jobUpper)

		concat := regexp.MustCompile(regexp.QuoteMeta(idStr) + `\s*` + regexp.QuoteMeta(jobCompact))
		if concat.MatchString(textUpper) {
			return Match{POID: po.ID, Method: MethodDirect, Detail: "concatenated id and job"}, true
		}

		parts := strings.Fields(strings.NewReplacer("-", " ", "_", " ").Replace(jobUpper))
		for _, part := range parts {
			if len(part) >= 3 && strings.Contains(textUpper, part) {
				return Match{POID: po.ID, Method: MethodDirect, Detail: fmt.Sprintf("job word %q", part)}, true
			}
		}

		labelled := regexp.MustCompile(`(?i)(?:PO|Purchase\s*Order|Order|Job)[^0-9]*` + regexp.QuoteMeta(idStr))
		if labelled.MatchString(in.Text) {
			return Match{POID: po.ID, Method: MethodDirect, Detail: "id after PO label"}, true
		}
	}
	return Match{}, false
}

const (
	fuzzyScanThreshold  = 0.75
	fuzzyBroadThreshold = 0.70
	fuzzyJobAgreement   = 0.75
	fuzzyWindow         = 100
)

var nearbyNumberRegex = regexp.MustCompile(`\b(\d{3,5})\b`)

// FuzzyJobScan locates active job names in the text and looks for an
// eligible PO of the same job nearby, then anywhere on the page.
func FuzzyJobScan(_ context.Context, in Input) (Match, bool) {
	if in.POs.Len() == 0 {
		return Match{}, false
	}

	for _, job := range in.Jobs {
		hit := fuzzy.FindNameInText(in.Text, job, fuzzyScanThreshold)
		if !hit.Found {
			continue
		}

		start := max(0, hit.Position-fuzzyWindow)
		end := min(len(in.Text), hit.Position+len(job)+fuzzyWindow)
		if start >= end {
			continue
		}

		for _, m := range nearbyNumberRegex.FindAllStringSubmatch(in.Text[start:end], -1) {
			id, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			po, ok := in.POs.Get(id)
			if !ok {
				continue
			}
			if score := fuzzy.Similarity(po.JobName, job); score >= fuzzyJobAgreement {
				return Match{
					POID:       id,
					Method:     MethodFuzzy,
					Confidence: hit.Score,
					Detail:     fmt.Sprintf("near job %q (%.2f)", job, score),
				}, true
			}
		}
	}

	for _, job := range in.Jobs {
		hit := fuzzy.FindNameInText(in.Text, job, fuzzyBroadThreshold)
		if !hit.Found {
			continue
		}
		for _, po := range in.POs.All() {
			if fuzzy.Similarity(po.JobName, job) < fuzzyJobAgreement {
				continue
			}
			if strings.Contains(in.Text, strconv.Itoa(po.ID)) {
				return Match{
					POID:       po.ID,
					Method:     MethodFuzzy,
					Confidence: hit.Score,
					Detail:     fmt.Sprintf("job %q with id anywhere", job),
				}, true
			}
		}
	}

	return Match{}, false
}

// firstEligible returns the first capture of re in text that parses as an
// eligible PO id.
func firstEligible(re *regexp.Regexp, text string, pos *POSet) (int, bool) {
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		if len(m) < 2 {
			continue
		}
		id, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if pos.Contains(id) {
			return id, true
		}
	}
	return 0, false
}
