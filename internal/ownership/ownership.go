// Package ownership decides whether a principal may delete a resource.
package ownership

import "errors"

var ErrForbidden = errors.New("forbidden")

// AuthorizeDelete allows the delete only when actor is exactly the recorded
// author name. An empty actor is never allowed.
func AuthorizeDelete(actor, author string) error {
	if actor == "" || actor != author {
		return ErrForbidden
	}
	return nil
}
