// Moderation gate for inbound end-user messages.
//
// This package (`github.com/moskvenov/replyer/gate`) decides, for each message from a non-administrator, whether it may be relayed. Messages pass through an ordered, short-circuiting pipeline of stages: per-subject throttling, ban and mute checks, and a media size limit. State lives in owned instances built once at startup: a rate limiter (in-process or redis), a ban cache kept consistent with durable storage, and a background sweeper which expires mutes.
//
// See `cmd/replyer` for the daemon built on this package.
package gate
