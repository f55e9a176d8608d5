package protocol

// Result is the answer a stage gives to a single command
type Result int

const (
	ResultNotFound Result = iota
	ResultFailed
	ResultOK
	ResultCheckout
)

var resultNames = []string{
	"NotFound",
	"Failed",
	"Ok",
	"Checkout",
}

func (r Result) String() string {
	if r < 0 || int(r) >= len(resultNames) {
		return "Unknown"
	}
	return resultNames[r]
}

// Outcome is what a command handler or hook reports back to its stage
type Outcome int

const (
	// Continue leaves the seat's readiness untouched
	Continue Outcome = iota
	// Failed rejects the action; nothing changes and the seat may retry
	Failed
	// Ready marks the acting seat as ready for this stage
	Ready
	// Checkout ends the stage
	Checkout
)

var outcomeNames = []string{
	"Continue",
	"Failed",
	"Ready",
	"Checkout",
}

func (o Outcome) String() string {
	if o < 0 || int(o) >= len(outcomeNames) {
		return "Unknown"
	}
	return outcomeNames[o]
}

// Reason explains why a stage was checked out
type Reason int

const (
	ByRequest Reason = iota
	ByTimeout
	ByLeave
	// Skip is used when a stage is already over the moment it is entered
	Skip
)

var reasonNames = []string{
	"ByRequest",
	"ByTimeout",
	"ByLeave",
	"Skip",
}

func (r Reason) String() string {
	if r < 0 || int(r) >= len(reasonNames) {
		return "Unknown"
	}
	return reasonNames[r]
}

// Activity describes whether a seat is expected to act
type Activity int

const (
	Active Activity = iota
	TemporarilyInactive
	PermanentlyInactive
)

var activityNames = []string{
	"Active",
	"TemporarilyInactive",
	"PermanentlyInactive",
}

func (a Activity) String() string {
	if a < 0 || int(a) >= len(activityNames) {
		return "Unknown"
	}
	return activityNames[a]
}
