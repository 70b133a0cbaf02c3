// Package domain defines the wire types exchanged with a policy decision
// point and the sentinel errors shared across the authorization middleware.
package domain
