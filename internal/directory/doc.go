// Package directory stores user records and the registry of known user keys.
//
// A user is identified by role and name; its record lives at the user key
// ("user:Role:name") as JSON and the key is added to the registry set
// ("users"). Registration claims the user key with SETNX, so two concurrent
// registrations of the same user cannot both succeed.
//
// The messenger core only needs Exists, to reject messages addressed to
// unknown recipients before any conversation state is created.
package directory
