// Package domain contains core domain types for the support desk.
package domain

import "errors"

var (
	// ErrSessionNotFound is returned when a session id is not in the store.
	ErrSessionNotFound = errors.New("session not found")
	// ErrUnknownCategory is returned when a category label is not in the catalog.
	ErrUnknownCategory = errors.New("unknown category")
	// ErrNotPaymentConversation is returned when a payment option is selected
	// on a conversation that was not started for payment and billing.
	ErrNotPaymentConversation = errors.New("conversation does not accept payment options")
	// ErrNoPendingMessage is returned when a follow-up is requested but none is owed.
	ErrNoPendingMessage = errors.New("no pending follow-up message")
	// ErrMessagesPending is returned when input arrives before owed
	// follow-up messages were delivered.
	ErrMessagesPending = errors.New("follow-up messages are still pending")
)

// Category is the issue a user picked when opening the chat.
type Category string

// The category labels are shown verbatim on the help screen.
const (
	CategoryNotReceived  Category = "I did not receive this order"
	CategoryPortionSize  Category = "Item(s) portion size is not adequate"
	CategoryMissingItems Category = "Few item(s) are missing in my order"
	CategoryWrongItems   Category = "Item(s) delivered are incorrect or wrong"
	CategoryPoorQuality  Category = "Item(s) quality is poor"
	CategorySpillage     Category = "Item(s) has spillage issue"
	CategoryCoupon       Category = "I have coupon related query for this order"
	CategoryPayment      Category = "Payment and billing related query"
)

// Categories returns all categories in help-screen order.
func Categories() []Category {
	return []Category{
		CategoryNotReceived,
		CategoryPortionSize,
		CategoryMissingItems,
		CategoryWrongItems,
		CategoryPoorQuality,
		CategorySpillage,
		CategoryCoupon,
		CategoryPayment,
	}
}

// Valid reports whether c is one of the fixed categories.
func (c Category) Valid() bool {
	for _, known := range Categories() {
		if c == known {
			return true
		}
	}
	return false
}

// String returns the category label.
func (c Category) String() string {
	return string(c)
}
