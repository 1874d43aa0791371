package domain

import "errors"

var (
	ErrNotFound            = errors.New("invoice_not_found")
	ErrMilestoneNotFound   = errors.New("milestone_not_found")
	ErrInvalidTransition   = errors.New("invalid_invoice_transition")
	ErrNotPaid             = errors.New("invoice_not_paid")
	ErrMilestoneOutOfOrder = errors.New("milestone_out_of_order")
	ErrMilestoneNotPending = errors.New("milestone_not_pending")
	ErrMilestoneAmountsSum = errors.New("milestone_amounts_must_sum_to_gross")
	ErrAlreadyDelivered    = errors.New("invoice_already_delivered")
)
