package engine

import (
	"github.com/deykows/giftkeeper/internal/catalog"
	"github.com/deykows/giftkeeper/internal/commerce"
)

// calendarWireType is the vendor's purchase type for calendar gifts.
const calendarWireType = "CALENDAR_LEGACY"

// Order is the item-or-calendar variant of a purchase. Exactly two
// implementations exist; the shared recipient/message/user fields live on
// Request.
type Order interface {
	// resolve looks the order up in the catalog.
	resolve(c *catalog.Catalog) (catalog.Entry, bool)

	// wire builds the vendor request for this order.
	wire(recipientID, message string) commerce.PurchaseRequest

	// describe names the order for logs and error messages.
	describe() string
}

// ItemOrder purchases a gift item by its catalog type.
type ItemOrder struct {
	ItemType string
}

func (o ItemOrder) resolve(c *catalog.Catalog) (catalog.Entry, bool) {
	return c.ResolveItem(o.ItemType)
}

func (o ItemOrder) wire(recipientID, message string) commerce.PurchaseRequest {
	return commerce.PurchaseRequest{
		Type:        o.ItemType,
		RecipientID: recipientID,
		Message:     message,
	}
}

func (o ItemOrder) describe() string { return o.ItemType }

// CalendarOrder purchases an advent-style calendar by its catalog id.
type CalendarOrder struct {
	CalendarID string
}

func (o CalendarOrder) resolve(c *catalog.Catalog) (catalog.Entry, bool) {
	return c.ResolveCalendar(o.CalendarID)
}

func (o CalendarOrder) wire(recipientID, message string) commerce.PurchaseRequest {
	return commerce.PurchaseRequest{
		Type:        calendarWireType,
		RecipientID: recipientID,
		Message:     message,
		CalendarID:  o.CalendarID,
	}
}

func (o CalendarOrder) describe() string { return "calendar " + o.CalendarID }

// Request is one purchase on behalf of a requesting community user.
type Request struct {
	Order       Order
	RecipientID string
	Message     string

	// UserID is the requesting chat-platform user whose local balance
	// gates and pays for the purchase.
	UserID string
}

// Result reports a successful purchase.
type Result struct {
	Account     string // vendor account the purchase executed under
	Cost        int
	GemCount    int // acting account's cached gems after reconciliation
	UserBalance int // requesting user's local balance after the debit
	PoolTotal   int
}
