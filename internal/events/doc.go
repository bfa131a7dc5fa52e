// Package events broadcasts thumbnail deliveries and engine state changes to
// server-sent event subscribers.
package events
