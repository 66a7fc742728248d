// Package classify labels a purchase message as confirmation, shipping,
// delivery or other.
package classify

import (
	"regexp"

	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/models"
)

var (
	deliveryRe     = regexp.MustCompile(`(?i)\b(delivered|has been delivered|was delivered|delivery complete|left at (?:your )?(?:door|porch|front)|picked up)\b`)
	shippingRe     = regexp.MustCompile(`(?i)\b(shipped|has shipped|on (?:its|the) way|out for delivery|in transit|tracking (?:number|#|info)|dispatched|arriving|track (?:your )?package)\b`)
	confirmationRe = regexp.MustCompile(`(?i)\b(ordered|order (?:confirmed|confirmation|received|placed)|thanks? (?:you )?for (?:your )?(?:order|purchase|ordering)|receipt|we(?:'ve| have) received your order|purchase confirmation)\b`)
	// "estimated delivery" is shipping language, not a delivery event
	notDeliveredRe = regexp.MustCompile(`(?i)\b(estimated|expected|scheduled) delivery\b|\bwill be delivered\b|\bbe delivered (?:by|on)\b`)
)

// Classify inspects subject and snippet. Later lifecycle stages win: a
// message that mentions both shipping and delivery is a delivery.
func Classify(subject, snippet string, f models.ExtractedFields) models.EmailType {
	text := subject + "\n" + snippet

	if f.DeliveryDate != nil || (deliveryRe.MatchString(text) && !onlyPromisesDelivery(text)) {
		return models.EmailTypeDelivery
	}
	if f.TrackingNumber != "" || f.ShipDate != nil || shippingRe.MatchString(text) {
		return models.EmailTypeShipping
	}
	if confirmationRe.MatchString(text) || f.OrderID != "" {
		return models.EmailTypeConfirmation
	}
	return models.EmailTypeOther
}

// onlyPromisesDelivery reports whether every delivery mention is a future
// promise rather than a completed event.
func onlyPromisesDelivery(text string) bool {
	stripped := notDeliveredRe.ReplaceAllString(text, "")
	return !deliveryRe.MatchString(stripped)
}
