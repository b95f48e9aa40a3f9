// Package sequence implements sequence lifecycle management: enrolling and
// withdrawing leads, pausing and resuming workflows, and read-side stats.
//
// The service layer contains the business rules the HTTP surface relies on
// (one active enrollment per lead, draft auto-activation, counter upkeep).
// It depends on repository interfaces defined in this package and should
// never import from api/.
//
// Repository implementations live in repository/postgres/.
package sequence
