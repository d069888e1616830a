package domain

import "fmt"

// ValidationError rejects bad input before anything is mutated.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func NewValidationError(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}

type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

func NewNotFound(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}

type ForbiddenError struct {
	Message string
}

func (e *ForbiddenError) Error() string {
	return e.Message
}

// InvalidStateError rejects a transition that the campaign's current status
// does not allow.
type InvalidStateError struct {
	CampaignID string
	Status     CampaignStatus
	Action     string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s campaign %s in status %s", e.Action, e.CampaignID, e.Status)
}

func NewInvalidState(campaignID string, status CampaignStatus, action string) error {
	return &InvalidStateError{CampaignID: campaignID, Status: status, Action: action}
}

// EnqueueError is raised inside a dispatch pass. It is absorbed into the
// campaign's FAILED status and audit log, never returned to a sendNow caller.
type EnqueueError struct {
	CampaignID string
	Err        error
}

func (e *EnqueueError) Error() string {
	return fmt.Sprintf("enqueueing campaign %s: %v", e.CampaignID, e.Err)
}

func (e *EnqueueError) Unwrap() error { return e.Err }

// DeliveryError is a per-job transport failure.
type DeliveryError struct {
	RecipientID string
	Attempt     int
	Permanent   bool
	Err         error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivering to recipient %s (attempt %d): %v", e.RecipientID, e.Attempt, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
