package interfaces

import "context"

// TabResolver maps a request origin (browser tab/target id) to the URL of
// the page currently loaded in it
type TabResolver interface {
	PageURL(ctx context.Context, originID string) (string, bool)
}
