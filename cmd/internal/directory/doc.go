// Package directory is the read-side user directory referenced by the
// session and presence subsystems.
//
// Users are owned by the surrounding CRUD application; this package only
// resolves {id, role, supervisor} triples and verifies sign-in credentials.
// Only AGENT users carry a supervisor reference; SUPERVISOR users have none.
package directory
