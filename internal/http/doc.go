// Package http provides HTTP handlers and middleware for the lab portal API.
//
// Callers are authenticated upstream; RequireIdentity reads the X-User-ID,
// X-User-Email and X-User-Role headers and rejects requests without an ID.
// The router exposes the following endpoints:
//   - GET /labs, POST /labs, PUT /labs/{id}, DELETE /labs/{id}: lab catalog
//     endpoints exchanging the `labDTO` payload defined in lab_handler.go.
//     Listing is open to any caller while mutations require the admin role.
//   - GET /labs/status: every lab with its live status (available, occupied
//     or under_maintenance).
//   - GET /labs/{id}/equipment, POST /labs/{id}/equipment, PUT /equipment/{id},
//     DELETE /equipment/{id}: inventory endpoints exchanging `equipmentDTO`.
//   - GET /inventory-log: append-only inventory history, newest first.
//     Optional lab_id, item_id and limit query parameters.
//   - POST /reservations: books a slot. Body: {"lab_id","purpose","start","end"}
//     with RFC 3339 times; a missing end books the default slot. Conflicts
//     answer 409 with the blocking reservation in the `conflict` field.
//   - GET /reservations, GET /labs/{id}/reservations: calendars filtered by the
//     optional from and to parameters. The lab listing also reports stored
//     overlaps.
//   - GET /reservations/mine: the caller's reservations, scope=upcoming|past.
//   - DELETE /reservations/{id}: cancels a reservation (owner or admin).
//   - GET /labs/{id}/calendar.ics: the lab calendar as text/calendar.
//   - POST /imports, POST /imports/{token}/commit, DELETE /imports/{token}:
//     academic load import. The preview takes a multipart form with `file`,
//     `period_start` and `period_end`; the token it returns is committed or
//     discarded later and expires on its own.
//
// Error bodies carry a Spanish `message`, an optional `error_code` and, for
// validation failures, a per-field `errors` map.
package http
