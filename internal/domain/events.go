/**
 * @description
 * Domain events emitted by the core during state transitions. The core never
 * talks to the notification transport directly: events are handed to an outbox
 * dispatcher which forwards them to the message broker, fire-and-forget.
 */
package domain

import "time"

// Event types published to the notification exchange.
const (
	EventListingExpiringSoon  = "listing.expiring_soon"
	EventListingExpired       = "listing.expired"
	EventFeaturedEnded        = "listing.featured_ended"
	EventPromotionEnded       = "listing.promotion_ended"
	EventGracePeriodEnding    = "listing.grace_period_ending"
	EventGracePeriodEnded     = "listing.grace_period_ended"
	EventViewCreditApplied    = "listing.view_credit_applied"
	EventAutoRenewalEnabled   = "listing.auto_renewal_enabled"
	EventAutoRenewalDisabled  = "listing.auto_renewal_disabled"
	EventAutoRenewalRefunded  = "listing.auto_renewal_refunded"
	EventListingRenewed       = "listing.renewed"
	EventListingPromoted      = "listing.promoted"
)

// Event is a user-facing notification payload. Title and Body are what the
// downstream push sink shows; the IDs let consumers route and aggregate.
type Event struct {
	Type      string    `json:"type"`
	ListingID string    `json:"listing_id,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	At        time.Time `json:"at"`
}

// NewEvent builds an event stamped with the given occurrence time.
func NewEvent(eventType, listingID, userID, title, body string, at time.Time) Event {
	return Event{
		Type:      eventType,
		ListingID: listingID,
		UserID:    userID,
		Title:     title,
		Body:      body,
		At:        at,
	}
}
