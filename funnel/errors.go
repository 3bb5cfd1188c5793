// Package funnel holds the error taxonomy shared by the funnel packages.
package funnel

import (
	"fmt"
	"strconv"
)

// GatewayError reports a failed payment creation or status lookup.
// Callers must treat it as "not confirmed".
type GatewayError struct {
	Op     string
	Status int
	Err    error
}

func (e *GatewayError) Error() string {
	msg := "payment gateway: " + e.Op
	if e.Status != 0 {
		msg += " (" + strconv.Itoa(e.Status) + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *GatewayError) Unwrap() error { return e.Err }

// Code is used by the handler summaries.
func (e *GatewayError) Code() string { return "gateway" }

// UnresolvedPaymentError reports a confirmation that matches no known user.
type UnresolvedPaymentError struct {
	PaymentID string
}

func (e *UnresolvedPaymentError) Error() string {
	return fmt.Sprintf("payment %q cannot be matched to a user", e.PaymentID)
}

func (e *UnresolvedPaymentError) Code() string { return "unresolved_payment" }

// UnauthorizedActionError reports an operator action attempted by someone outside the allow-list.
type UnauthorizedActionError struct {
	Action  string
	ActorID int64
}

func (e *UnauthorizedActionError) Error() string {
	return fmt.Sprintf("user %d is not allowed to %s", e.ActorID, e.Action)
}

func (e *UnauthorizedActionError) Code() string { return "unauthorized" }

// ValidationError reports malformed user input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Code() string { return "validation" }

// NotificationDeliveryError reports a failed delivery to one recipient.
// Several of them are combined with errors.Join.
type NotificationDeliveryError struct {
	RecipientID int64
	Role        string
	Err         error
}

func (e *NotificationDeliveryError) Error() string {
	return fmt.Sprintf("deliver to %s %d: %v", e.Role, e.RecipientID, e.Err)
}

func (e *NotificationDeliveryError) Unwrap() error { return e.Err }

func (e *NotificationDeliveryError) Code() string { return "delivery" }

// Recipient roles used in NotificationDeliveryError.
const (
	RoleUser     = "user"
	RoleOperator = "operator"
)
