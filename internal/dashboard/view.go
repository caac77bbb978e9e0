package dashboard

import "txdash/internal/core"

// View identifies which part of the dashboard is rendered below the filter bar.
type View int

const (
	ViewNone View = iota
	ViewLoading
	ViewSuccess
	ViewFailure
)

// FailureMessage is the single message shown for every kind of fetch failure.
const FailureMessage = "Failed to fetch data"

// ViewFor selects the view for a fetch status.
func ViewFor(s core.FetchStatus) View {
	switch s {
	case core.InProgress:
		return ViewLoading
	case core.Success:
		return ViewSuccess
	case core.Failure:
		return ViewFailure
	default:
		return ViewNone
	}
}

func (v View) String() string {
	switch v {
	case ViewLoading:
		return "loading"
	case ViewSuccess:
		return "success"
	case ViewFailure:
		return "failure"
	default:
		return "none"
	}
}
