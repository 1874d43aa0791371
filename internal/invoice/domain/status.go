package domain

type InvoiceStatus string

const (
	InvoiceStatusPending   InvoiceStatus = "pending"
	InvoiceStatusPaid      InvoiceStatus = "paid"
	InvoiceStatusDelivered InvoiceStatus = "delivered"
	InvoiceStatusCompleted InvoiceStatus = "completed"
	InvoiceStatusExpired   InvoiceStatus = "expired"
	InvoiceStatusRefunded  InvoiceStatus = "refunded"
)

type MilestoneStatus string

const (
	MilestoneStatusPending   MilestoneStatus = "pending"
	MilestoneStatusCompleted MilestoneStatus = "completed"
	MilestoneStatusReleased  MilestoneStatus = "released"
	MilestoneStatusDisputed  MilestoneStatus = "disputed"
)

// invoiceTransitions is the single source of truth for invoice lifecycle
// moves. completed and refunded are terminal.
var invoiceTransitions = map[InvoiceStatus][]InvoiceStatus{
	InvoiceStatusPending:   {InvoiceStatusPaid, InvoiceStatusExpired},
	InvoiceStatusPaid:      {InvoiceStatusDelivered, InvoiceStatusCompleted, InvoiceStatusRefunded},
	InvoiceStatusDelivered: {InvoiceStatusCompleted, InvoiceStatusRefunded},
}

func CanTransition(from, to InvoiceStatus) bool {
	for _, allowed := range invoiceTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// TransitionSources lists every state allowed to move to the given target.
// Conditional status writes derive their WHERE clause from this, so a row
// that already left escrow can never be moved again.
func TransitionSources(to InvoiceStatus) []InvoiceStatus {
	ordered := []InvoiceStatus{
		InvoiceStatusPending,
		InvoiceStatusPaid,
		InvoiceStatusDelivered,
	}
	var sources []InvoiceStatus
	for _, from := range ordered {
		if CanTransition(from, to) {
			sources = append(sources, from)
		}
	}
	return sources
}

var milestoneTransitions = map[MilestoneStatus][]MilestoneStatus{
	MilestoneStatusPending:   {MilestoneStatusCompleted, MilestoneStatusDisputed},
	MilestoneStatusCompleted: {MilestoneStatusReleased, MilestoneStatusDisputed},
}

func CanTransitionMilestone(from, to MilestoneStatus) bool {
	for _, allowed := range milestoneTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

func MilestoneTransitionSources(to MilestoneStatus) []MilestoneStatus {
	ordered := []MilestoneStatus{
		MilestoneStatusPending,
		MilestoneStatusCompleted,
	}
	var sources []MilestoneStatus
	for _, from := range ordered {
		if CanTransitionMilestone(from, to) {
			sources = append(sources, from)
		}
	}
	return sources
}
