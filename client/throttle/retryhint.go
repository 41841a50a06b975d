package throttle

import (
	"bytes"
	"io"
	"math"
	"net/http"
	"regexp"
	"strconv"
	"strings"
)

var (
	retryMinutesRE = regexp.MustCompile(`(?i)try\s+again\s+after\s+'?(\d+)'?\s*minute`)
	retrySecondsRE = regexp.MustCompile(`(?i)try\s+again\s+after\s+'?(\d+)'?\s*second`)
)

// hintSource names where a retry hint was found, for logging.
type hintSource string

const (
	hintHeader  hintSource = "header"
	hintMinutes hintSource = "body-minutes"
	hintSeconds hintSource = "body-seconds"
	hintDefault hintSource = "default"
)

// RetryAfter extracts the number of seconds resp asks the caller to wait.
// The body is read in full and replaced with an in-memory copy, so it can
// still be consumed afterwards. It never fails: anything unreadable or
// malformed means no hint.
func RetryAfter(resp *http.Response) (int, bool) {
	if resp == nil {
		return 0, false
	}

	secs, _, ok := retryAfter(resp)
	return secs, ok
}

func retryAfter(resp *http.Response) (int, hintSource, bool) {
	if secs, ok := headerRetryAfter(resp.Header); ok {
		return secs, hintHeader, true
	}

	return bodyRetryAfter(materializeBody(resp))
}

// ParseRetryAfter runs the same lookup as [RetryAfter] over an already read
// header set and body text.
func ParseRetryAfter(h http.Header, body string) (int, bool) {
	if secs, ok := headerRetryAfter(h); ok {
		return secs, true
	}

	secs, _, ok := bodyRetryAfter(body)
	return secs, ok
}

func headerRetryAfter(h http.Header) (int, bool) {
	if h == nil {
		return 0, false
	}

	secs, err := strconv.Atoi(strings.TrimSpace(h.Get("Retry-After")))
	if err != nil || secs <= 0 {
		return 0, false
	}

	return secs, true
}

func bodyRetryAfter(body string) (int, hintSource, bool) {
	if body == "" {
		return 0, "", false
	}

	if mins, ok := firstPositive(retryMinutesRE, body); ok && mins <= math.MaxInt/60 {
		return mins * 60, hintMinutes, true
	}

	if secs, ok := firstPositive(retrySecondsRE, body); ok {
		return secs, hintSeconds, true
	}

	return 0, "", false
}

func firstPositive(re *regexp.Regexp, body string) (int, bool) {
	m := re.FindStringSubmatch(body)
	if len(m) < 2 {
		return 0, false
	}

	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return 0, false
	}

	return n, true
}

// materializeBody reads the whole body once and swaps in a replayable copy.
// Whatever was read before a read error is kept.
func materializeBody(resp *http.Response) string {
	if resp.Body == nil || resp.Body == http.NoBody {
		return ""
	}

	b, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(b))

	return string(b)
}
