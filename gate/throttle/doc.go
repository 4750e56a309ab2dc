// Moderation gate component for per-subject throttling.
//
// Includes an interface and implementations using redis or memcached (shared between processes) and in-process memory.
//
// The shared implementations fail open: if the backend is unreachable, acquisition succeeds, so that message acceptance is never coupled to backend availability.
package throttle
