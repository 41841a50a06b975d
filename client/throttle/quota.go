package throttle

import (
	"net/http"
	"strconv"
	"strings"
)

// Remaining-quota headers returned by the resource management API.
const (
	HeaderSubscriptionReads         = "x-ms-ratelimit-remaining-subscription-reads"
	HeaderSubscriptionResourceReads = "x-ms-ratelimit-remaining-subscription-resource-requests"
	HeaderTenantReads               = "x-ms-ratelimit-remaining-tenant-reads"
	HeaderTenantResourceReads       = "x-ms-ratelimit-remaining-tenant-resource-requests"
)

// QuotaSnapshot holds the remaining allowance per quota scope read from one
// response. A nil field means the header was absent or malformed.
type QuotaSnapshot struct {
	SubscriptionReads         *int
	SubscriptionResourceReads *int
	TenantReads               *int
	TenantResourceReads       *int
}

// ReadQuota extracts the four quota scopes from h.
func ReadQuota(h http.Header) QuotaSnapshot {
	return QuotaSnapshot{
		SubscriptionReads:         headerInt(h, HeaderSubscriptionReads),
		SubscriptionResourceReads: headerInt(h, HeaderSubscriptionResourceReads),
		TenantReads:               headerInt(h, HeaderTenantReads),
		TenantResourceReads:       headerInt(h, HeaderTenantResourceReads),
	}
}

// RemainingReads returns the first present scope, in order: subscription
// reads, subscription resource reads, tenant reads, tenant resource reads.
// The scopes are not combined; the adaptive controller downstream depends
// on this exact precedence.
func (q QuotaSnapshot) RemainingReads() (int, bool) {
	for _, v := range []*int{q.SubscriptionReads, q.SubscriptionResourceReads, q.TenantReads, q.TenantResourceReads} {
		if v != nil {
			return *v, true
		}
	}

	return 0, false
}

func headerInt(h http.Header, key string) *int {
	raw := strings.TrimSpace(h.Get(key))
	if raw == "" {
		return nil
	}

	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return nil
	}

	return &n
}

// Notifier receives the resolved remaining-reads value of every response
// passing through a [Throttle]. It runs synchronously on the request path
// and must return quickly. ok is false when no quota header was usable.
type Notifier interface {
	NotifyRemainingReads(reads int, ok bool)
}

// NotifierFunc adapts a plain func to [Notifier].
type NotifierFunc func(reads int, ok bool)

func (f NotifierFunc) NotifyRemainingReads(reads int, ok bool) {
	f(reads, ok)
}

// Notifiers fans a notification out to every non-nil n, in order.
func Notifiers(n ...Notifier) Notifier {
	return NotifierFunc(func(reads int, ok bool) {
		for _, next := range n {
			if next != nil {
				next.NotifyRemainingReads(reads, ok)
			}
		}
	})
}

