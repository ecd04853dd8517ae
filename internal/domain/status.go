package domain

import "fmt"

// Status is the order's position in the delivery lifecycle. The sequence is
// linear; cancelled is reachable from any non-terminal status.
type Status string

const (
	StatusNew                  Status = "new"
	StatusAwaitingConfirmation Status = "awaiting_confirmation"
	StatusWaitingOperator      Status = "waiting_operator"
	StatusAwaitingPayment      Status = "awaiting_payment"
	StatusPaid                 Status = "paid"
	StatusInDelivery           Status = "in_delivery"
	StatusCompleted            Status = "completed"
	StatusCancelled            Status = "cancelled"
)

// Event is something that happens to an order: a bot button press, an
// operator action, or a payment confirmation. Every status mutation in the
// system is expressed as one of these.
type Event string

const (
	// EventDetailsSubmitted — the chat user opened the order via deep link
	// and submitted/confirmed the order details.
	EventDetailsSubmitted Event = "details_submitted"
	// EventPhoneConfirmed — the chat user shared a contact matching the
	// order's phone.
	EventPhoneConfirmed Event = "phone_confirmed"
	// EventPaymentLinkSet — the operator issued a payment link.
	EventPaymentLinkSet Event = "payment_link_set"
	// EventPaymentConfirmed — the operator confirmed receipt of payment.
	EventPaymentConfirmed Event = "payment_confirmed"
	// EventTrackingSet — the operator issued a delivery tracking link.
	EventTrackingSet Event = "tracking_set"
	// EventDelivered — delivery marked complete.
	EventDelivered Event = "delivered"
	// EventCancelled — the operator or the client cancelled the order.
	EventCancelled Event = "cancelled"
)

// transitions is the full lifecycle table. An absent edge is an illegal
// transition. EventCancelled is handled separately in Next since it applies
// to every non-terminal status.
var transitions = map[Status]map[Event]Status{
	StatusNew: {
		EventDetailsSubmitted: StatusAwaitingConfirmation,
	},
	StatusAwaitingConfirmation: {
		EventPhoneConfirmed: StatusWaitingOperator,
	},
	StatusWaitingOperator: {
		EventPaymentLinkSet: StatusAwaitingPayment,
	},
	StatusAwaitingPayment: {
		EventPaymentConfirmed: StatusPaid,
	},
	StatusPaid: {
		EventTrackingSet: StatusInDelivery,
	},
	StatusInDelivery: {
		EventDelivered: StatusCompleted,
	},
}

// InvalidTransitionError reports an event that is not legal for the order's
// current status, including any event applied to a terminal status.
type InvalidTransitionError struct {
	From  Status
	Event Event
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition: event %q not allowed in status %q", e.Event, e.From)
}

// Terminal reports whether the status accepts no further events.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusAwaitingConfirmation, StatusWaitingOperator,
		StatusAwaitingPayment, StatusPaid, StatusInDelivery,
		StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Next returns the status an order moves to when ev occurs in status from.
// It returns an *InvalidTransitionError when the event is not legal there;
// terminal statuses reject every event.
func Next(from Status, ev Event) (Status, error) {
	if from.Terminal() {
		return from, &InvalidTransitionError{From: from, Event: ev}
	}
	if ev == EventCancelled {
		return StatusCancelled, nil
	}
	if to, ok := transitions[from][ev]; ok {
		return to, nil
	}
	return from, &InvalidTransitionError{From: from, Event: ev}
}
