// Package actorctx carries the authenticated identity id on a request
// context so logs below the HTTP layer can name the caller.
package actorctx

import "context"

type key struct{}

func WithUserID(ctx context.Context, userID string) context.Context {
	if userID == "" {
		return ctx
	}
	return context.WithValue(ctx, key{}, userID)
}

func UserIDFrom(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(key{}).(string)

	return v, ok && v != ""
}
