package run

// Rejection reason codes, stable across the API surface.
const (
	ReasonBrandNotFound = "brand-not-found"
	ReasonGroupNotFound = "group-not-found"
	ReasonGroupPaused   = "group-paused"
	ReasonNoKeywords    = "no-keywords-configured"
	ReasonNoPlatforms   = "no-platforms-configured"
)

// Rejection is a terminal, non-retried refusal to run. It is distinct from
// a run failure: nothing was attempted and no state was touched. Callers
// match with errors.Is against the package sentinels or errors.As to read
// the reason code.
type Rejection struct {
	Reason  string
	Message string
}

func (r *Rejection) Error() string { return r.Message }

var (
	ErrBrandNotFound = &Rejection{Reason: ReasonBrandNotFound, Message: "brand not found"}
	ErrGroupNotFound = &Rejection{Reason: ReasonGroupNotFound, Message: "keyword group not found"}
	ErrGroupPaused   = &Rejection{Reason: ReasonGroupPaused, Message: "group is paused"}
	ErrNoKeywords    = &Rejection{Reason: ReasonNoKeywords, Message: "no keywords configured for this brand"}
	ErrNoPlatforms   = &Rejection{Reason: ReasonNoPlatforms, Message: "no platforms configured for this brand"}
)
