// Package users looks up application user records for verified identity
// assertions. The directory is an external collaborator: the bridge never
// creates users, it only resolves them, scoped by organization ID when
// the assertion carries one.
package users
