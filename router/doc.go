// Package router multiplexes the kernel's logical channels.
//
// Shell requests arrive through Request (or the connect handler returned by
// ShellHandler), are dispatched by msg_type to exactly one Handler and always
// produce exactly one reply whose parent header is the request header.
// Requests that touch execution state go through a single FIFO queue and are
// handled one at a time; connect_request and history_request are answered
// immediately.
//
// # Correlation
//
// Each queued request registers a response channel keyed by its msg_id. The
// dispatch loop delivers the reply to the waiter whose key equals the reply's
// parent msg_id, so a caller never receives another request's reply.
//
// # IOPub
//
// Publish builds an envelope under the router's session and fans it out to
// every Subscription. Each subscriber has its own ordered buffer; when it is
// full the message is dropped for that subscriber and counted in Metrics.
// Publishing never blocks on a slow frontend.
//
// # Stdin
//
// A frontend Attaches a Keyboard under its identity. Input routes an
// input_request to the frontend chosen by the FocusPolicy (by default the
// session of the request being executed), holds that keyboard's lease until
// the matching input_reply arrives or the request is abandoned, and returns
// the entered value. Router satisfies engine.Publisher and
// engine.InputProvider.
//
// # Failure
//
// A handler error becomes an error reply. A handler panic is a crash: it is
// broadcast once as a crash message, the crashing request gets no reply, the
// router closes and the fatal error is delivered on Fatal. After a
// shutdown_request is acknowledged the router refuses all further shell
// traffic with ErrClosed.
package router
