package orders

import "strings"

const (
	prefixOrder       = "order:"
	prefixEmail       = "email:"
	prefixRule        = "rule:"
	prefixOrderIDIdx  = "idx:order_id:"
	prefixTrackingIdx = "idx:tracking:"
	prefixMerchantIdx = "idx:merchant:"
)

func orderKey(key string) string { return prefixOrder + key }

func emailKey(id string) string { return prefixEmail + id }

func ruleKey(domain string) string { return prefixRule + strings.ToLower(domain) }

// Order ids are only unique per merchant, so the index is scoped by
// orderIDScope. Tracking numbers are carrier-global.
func orderIDIndexKey(scope, id string) string {
	return prefixOrderIDIdx + scope + ":" + normalizeIdentifier(id)
}

func trackingIndexKey(number string) string {
	return prefixTrackingIdx + normalizeIdentifier(number)
}

func merchantIndexKey(merchant string) string { return prefixMerchantIdx + merchant }

func normalizeIdentifier(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
