// Package shutdown provides graceful shutdown for servus.
//
// This package handles process termination signals:
//
//   - Token: a single-fire shutdown broadcast armed on SIGINT/SIGTERM
//   - Handler: drain hooks run under one grace-period deadline
//
// Usage:
//
//	tok := shutdown.NewToken()
//	if err := tok.Arm(ctx); err != nil {
//		return err
//	}
//	defer tok.Disarm()
//	<-tok.Done() // every waiter is released
package shutdown
