// Package acl is the anti-corruption layer between domain events and webhook
// receivers.
//
// Domain events never cross the wire as they are. [TranslateEvent] turns a
// [ports.Event] into the receiver's [WebhookPayload] contract, and
// [MapHTTPError] turns receiver status codes and client failures back into
// domain errors, so callers only ever see the domain taxonomy:
//
//	400, 422       domain.ValidationError   the receiver rejected the payload
//	409            domain.ConflictError     the receiver already has the delivery
//	401, 403, 404  domain.UnavailableError  misconfigured endpoint or credentials
//	429, 5xx       domain.UnavailableError  try again later
//
// Receivers may explain a [Rejection] in either a nested
// {"error":{"code","message","details"}} body or a flat {"code","message"} body.
package acl
