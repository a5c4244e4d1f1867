package pipeline

import "github.com/bosocmputer/invoice_po_matcher/configs"

// Reservation controls whether a matched PO stays available to later pages.
type Reservation int

const (
	// AllowDuplicate keeps every PO eligible for the whole batch. A second
	// invoice on the same PO is rejected by the store when it is recorded.
	AllowDuplicate Reservation = iota
	// ReserveOnMatch removes a PO from the eligible set once an invoice
	// claims it. Further pages of that invoice may still resolve to it.
	ReserveOnMatch
)

func (r Reservation) String() string {
	if r == ReserveOnMatch {
		return "reserve_on_match"
	}
	return "allow_duplicate"
}

// DefaultServiceThreshold is the first PO id of the service range.
const DefaultServiceThreshold = 9000

// Options are fixed for the lifetime of one batch.
type Options struct {
	AssistEnabled    bool
	Reservation      Reservation
	ServiceThreshold int
}

// OptionsFromConfig builds Options from the loaded configuration. The assist
// toggle is passed in because it is persisted outside the environment.
func OptionsFromConfig(assistEnabled bool) Options {
	opts := Options{
		AssistEnabled:    assistEnabled,
		Reservation:      AllowDuplicate,
		ServiceThreshold: configs.SERVICE_PO_THRESHOLD,
	}
	if configs.RESERVE_ON_MATCH {
		opts.Reservation = ReserveOnMatch
	}
	if opts.ServiceThreshold <= 0 {
		opts.ServiceThreshold = DefaultServiceThreshold
	}
	return opts
}
