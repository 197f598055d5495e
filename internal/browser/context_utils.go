package browser

import "context"

// CombineContext creates a context that is canceled when either parentCtx or
// secondaryCtx is canceled. Session operations must respect both the session
// lifetime and the caller's deadline.
func CombineContext(parentCtx, secondaryCtx context.Context) (context.Context, context.CancelFunc) {
	combinedCtx, cancel := context.WithCancel(parentCtx)

	go func() {
		select {
		case <-secondaryCtx.Done():
			cancel()
		case <-combinedCtx.Done():
			// Already canceled, likely from the parent.
		}
	}()

	return combinedCtx, cancel
}
