package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to InvoiceStatus
		want     bool
	}{
		{InvoiceStatusPending, InvoiceStatusPaid, true},
		{InvoiceStatusPending, InvoiceStatusExpired, true},
		{InvoiceStatusPaid, InvoiceStatusDelivered, true},
		{InvoiceStatusPaid, InvoiceStatusCompleted, true},
		{InvoiceStatusPaid, InvoiceStatusRefunded, true},
		{InvoiceStatusDelivered, InvoiceStatusCompleted, true},
		{InvoiceStatusDelivered, InvoiceStatusRefunded, true},

		{InvoiceStatusPending, InvoiceStatusCompleted, false},
		{InvoiceStatusPending, InvoiceStatusDelivered, false},
		{InvoiceStatusDelivered, InvoiceStatusPaid, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestTerminalStatesHaveNoExits(t *testing.T) {
	all := []InvoiceStatus{
		InvoiceStatusPending, InvoiceStatusPaid, InvoiceStatusDelivered,
		InvoiceStatusCompleted, InvoiceStatusExpired, InvoiceStatusRefunded,
	}
	for _, terminal := range []InvoiceStatus{InvoiceStatusCompleted, InvoiceStatusRefunded, InvoiceStatusExpired} {
		for _, to := range all {
			assert.False(t, CanTransition(terminal, to), "%s -> %s", terminal, to)
		}
	}
}

func TestTransitionSources(t *testing.T) {
	assert.ElementsMatch(t,
		[]InvoiceStatus{InvoiceStatusPaid, InvoiceStatusDelivered},
		TransitionSources(InvoiceStatusCompleted))
	assert.ElementsMatch(t,
		[]InvoiceStatus{InvoiceStatusPaid, InvoiceStatusDelivered},
		TransitionSources(InvoiceStatusRefunded))
	assert.ElementsMatch(t,
		[]InvoiceStatus{InvoiceStatusPending},
		TransitionSources(InvoiceStatusPaid))
}

func TestMilestoneTransitionSources(t *testing.T) {
	assert.ElementsMatch(t,
		[]MilestoneStatus{MilestoneStatusCompleted},
		MilestoneTransitionSources(MilestoneStatusReleased))
	assert.ElementsMatch(t,
		[]MilestoneStatus{MilestoneStatusPending, MilestoneStatusCompleted},
		MilestoneTransitionSources(MilestoneStatusDisputed))
	assert.False(t, CanTransitionMilestone(MilestoneStatusReleased, MilestoneStatusDisputed))
	assert.False(t, CanTransitionMilestone(MilestoneStatusDisputed, MilestoneStatusReleased))
}
