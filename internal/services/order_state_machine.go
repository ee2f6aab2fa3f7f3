package services

import (
	"slices"

	domain "github.com/petcorner/storefront/internal/domain"
)

// CustomerAction names an action a customer can trigger on an order.
type CustomerAction string

const (
	CustomerActionCancel     CustomerAction = "cancel"
	CustomerActionAttachNote CustomerAction = "attach_note"
)

// StatusDescriptor is what screens and handlers render for a status.
type StatusDescriptor struct {
	Status     domain.OrderStatus
	Label      string
	Actions    []CustomerAction
	Terminal   bool
	Recognized bool
}

// The repository enforces the same graph; this copy only gates requests before they are sent.
var orderStateTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusDraft:      {domain.OrderStatusValidated, domain.OrderStatusCancelled},
	domain.OrderStatusValidated:  {domain.OrderStatusProcessing, domain.OrderStatusDelivered, domain.OrderStatusCancelled},
	domain.OrderStatusProcessing: {domain.OrderStatusDelivered, domain.OrderStatusCancelled},
	domain.OrderStatusDelivered:  nil,
	domain.OrderStatusCancelled:  nil,
}

var orderStatusTable = map[domain.OrderStatus]StatusDescriptor{
	domain.OrderStatusDraft: {
		Status:     domain.OrderStatusDraft,
		Label:      "Draft",
		Actions:    []CustomerAction{CustomerActionCancel},
		Recognized: true,
	},
	domain.OrderStatusValidated: {
		Status:     domain.OrderStatusValidated,
		Label:      "Validated",
		Recognized: true,
	},
	domain.OrderStatusProcessing: {
		Status:     domain.OrderStatusProcessing,
		Label:      "Processing",
		Recognized: true,
	},
	domain.OrderStatusDelivered: {
		Status:     domain.OrderStatusDelivered,
		Label:      "Delivered",
		Actions:    []CustomerAction{CustomerActionAttachNote},
		Terminal:   true,
		Recognized: true,
	},
	domain.OrderStatusCancelled: {
		Status:     domain.OrderStatusCancelled,
		Label:      "Cancelled",
		Terminal:   true,
		Recognized: true,
	},
}

var unrecognizedStatus = StatusDescriptor{
	Status: domain.OrderStatusUnknown,
	Label:  "Unrecognized",
}

// customerActionTargets lists the status an action moves the order to; actions absent from the
// map leave the status untouched.
var customerActionTargets = map[CustomerAction]domain.OrderStatus{
	CustomerActionCancel: domain.OrderStatusCancelled,
}

// OrderStateMachine is the single source of order status rules on the client side.
type OrderStateMachine struct{}

// CanTransition reports whether target is reachable from current in one step.
// Re-requesting the current known status is allowed and treated as a no-op.
func (OrderStateMachine) CanTransition(current, target domain.OrderStatus) bool {
	if !current.Known() || !target.Known() {
		return false
	}
	if current == target {
		return true
	}
	return slices.Contains(orderStateTransitions[current], target)
}

// Transition validates a status change. changed is false for same-state requests so callers can
// skip side effects.
func (m OrderStateMachine) Transition(current, target domain.OrderStatus) (changed bool, err error) {
	if !m.CanTransition(current, target) {
		return false, &IllegalTransitionError{Current: current, Requested: target}
	}
	return current != target, nil
}

// Describe returns the label and customer actions for status. Unknown statuses expose no actions.
func (OrderStateMachine) Describe(status domain.OrderStatus) StatusDescriptor {
	desc, ok := orderStatusTable[status]
	if !ok {
		return cloneDescriptor(unrecognizedStatus)
	}
	return cloneDescriptor(desc)
}

// CustomerMay reports whether the customer-facing policy exposes action for status.
func (OrderStateMachine) CustomerMay(status domain.OrderStatus, action CustomerAction) bool {
	desc, ok := orderStatusTable[status]
	if !ok {
		return false
	}
	return slices.Contains(desc.Actions, action)
}

// AuthorizeCustomer checks both the customer policy and, for status-changing actions, the
// transition graph.
func (m OrderStateMachine) AuthorizeCustomer(status domain.OrderStatus, action CustomerAction) error {
	target, changesStatus := customerActionTargets[action]
	if !m.CustomerMay(status, action) {
		if changesStatus {
			return &IllegalTransitionError{Current: status, Requested: target}
		}
		return &ActionNotPermittedError{Status: status, Action: action}
	}
	if changesStatus {
		if _, err := m.Transition(status, target); err != nil {
			return err
		}
	}
	return nil
}

// CustomerActionFor resolves the customer action that moves an order from status to target. Targets
// no exposed action reaches are rejected as illegal transitions.
func (m OrderStateMachine) CustomerActionFor(status, target domain.OrderStatus) (CustomerAction, error) {
	for _, action := range m.Describe(status).Actions {
		if next, ok := customerActionTargets[action]; ok && next == target {
			if err := m.AuthorizeCustomer(status, action); err != nil {
				return "", err
			}
			return action, nil
		}
	}
	return "", &IllegalTransitionError{Current: status, Requested: target}
}

func cloneDescriptor(desc StatusDescriptor) StatusDescriptor {
	desc.Actions = slices.Clone(desc.Actions)
	if desc.Actions == nil {
		desc.Actions = []CustomerAction{}
	}
	return desc
}
