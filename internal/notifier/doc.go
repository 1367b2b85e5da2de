// Package notifier serializes desktop notifications.
//
// Server-side events can arrive in bursts. The Queue accepts requests from any
// number of goroutines and displays them one at a time, in submission order,
// with a fixed minimum spacing between one item's completion and the next
// item's display.
//
// # Display cycle
//
// For each dequeued request the queue consults the settings port; when
// notifications are disabled the request resolves as OutcomeDisabled without
// touching the presenter. Otherwise the presenter shows it, the sound port is
// fired, and the queue waits for the first of click, close, the fallback
// timeout or shutdown. A click also invokes the focus port with the request's
// target URL.
//
// # Failures
//
// A presenter error is local to its request: it is logged, the request
// resolves as OutcomeFailed and the queue moves on after the usual delay.
// Failed requests are never retried.
//
// # History
//
// The queue keeps a small in-memory history of recent results for status
// output.
package notifier
