// ABOUTME: Identity check against GET /users/me
// ABOUTME: Used as a liveness probe and to show who the backend thinks the caller is

package client

import (
	"context"
	"net/http"
)

// User is the backend's view of the current caller.
type User struct {
	ID          string
	DisplayName string
}

// CurrentUser returns the backend's identity for the caller.
func (c *Client) CurrentUser(ctx context.Context) (*User, error) {
	const op = "current user"

	data, err := c.do(ctx, op, http.MethodGet, c.endpoint(nil, "users", "me"), nil)
	if err != nil {
		return nil, err
	}

	parsed, err := decodeObject(op, data)
	if err != nil {
		return nil, err
	}

	u := &User{}
	for _, key := range []string{"id", "userId"} {
		if id, ok := stringField(parsed, key); ok {
			u.ID = id
			break
		}
	}
	for _, key := range []string{"name", "username", "displayName"} {
		if name := parsed.Get(key).String(); name != "" {
			u.DisplayName = name
			break
		}
	}
	return u, nil
}
