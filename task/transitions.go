package task

// edges encodes the allowed status transition graph from §3 of the spec.
// Terminal statuses have no outbound entries.
var edges = map[Status][]Status{
	StatusBacklog:    {StatusReady, StatusCancelled},
	StatusReady:      {StatusInProgress, StatusBlocked, StatusCancelled},
	StatusInProgress: {StatusReview, StatusDone, StatusBlocked, StatusReady, StatusDeadletter},
	StatusBlocked:    {StatusReady, StatusCancelled, StatusDeadletter},
	StatusReview:     {StatusDone, StatusReady, StatusBlocked},
}

// CanTransition reports whether moving from-to is an allowed edge.
func CanTransition(from, to Status) bool {
	for _, s := range edges[from] {
		if s == to {
			return true
		}
	}
	return false
}
