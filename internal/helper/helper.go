package helper

import "context"

// CheckDeadline reports whether the context is already cancelled or past
// its deadline, so repository calls can bail out before touching the DB.
func CheckDeadline(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
