// Package dedupe tracks recently seen keys for a bounded time window.
//
// The conversation store marks the ids of conversations it has deleted so a
// conversation-list refresh that was already in flight cannot bring them back.
package dedupe
