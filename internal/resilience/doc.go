// Package resilience provides capped exponential backoff, retries and
// circuit breaking. Circuit breaking uses sony/gobreaker.
package resilience
