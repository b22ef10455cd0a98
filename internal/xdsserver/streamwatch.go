package xdsserver

import "context"

// watchForStreamClose runs recv in its own goroutine and reports the
// first error it returns (io.EOF on a clean client close, or a
// transport error) on the returned channel. Every xDS stream must
// keep draining its request channel even though these particular
// services don't act on subsequent requests, both to notice when the
// client goes away and because gRPC requires the request stream to be
// read for the RPC to terminate cleanly.
func watchForStreamClose[Req any](ctx context.Context, recv func() (Req, error)) <-chan error {
	done := make(chan error, 1)
	go func() {
		for {
			if _, err := recv(); err != nil {
				done <- err
				return
			}
			select {
			case <-ctx.Done():
				return
			default:
			}
		}
	}()
	return done
}
