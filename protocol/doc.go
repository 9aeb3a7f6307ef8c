// Package protocol defines the logical message structure shared by the kernel
// and its frontends.
//
// Every unit of communication is an Envelope: a Header identifying the
// message, the full Header of the message that caused it (ParentHeader), a
// MsgType drawn from a fixed enumeration, and a JSON content mapping whose
// shape is determined by the MsgType.
//
// # Correlation
//
// A reply always carries the request's Header as its ParentHeader, and so
// does every broadcast emitted while the request is processed. Observers can
// therefore rebuild causal chains without shared state:
//
//	req, _ := protocol.NewEnvelope(protocol.NewHeader(sessionID, "alice"), protocol.ExecuteRequest).
//	    Content(protocol.ExecuteRequestContent{Code: "1 + 1"}).
//	    Build()
//
//	reply, _ := protocol.NewEnvelope(kernelHeader, protocol.ExecuteReply).
//	    Parent(req.Header).
//	    Content(result).
//	    Build()
//
//	reply.IsReplyTo(req) // true
//
// # Channels
//
// Message types belong to one of four logical channels (Shell, IOPub, Stdin,
// Heartbeat); MsgType.Channel reports which. Heartbeat traffic is opaque and
// never travels inside an Envelope.
package protocol
