// Package identity defines users, roles and the capabilities roles grant.
package identity
