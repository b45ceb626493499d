/*
Package duplex implements a bidirectional stream endpoint.

A Stream composes one readable side and one writable side with independent
buffers and no coupling between them, modeling endpoints like a full-duplex
connection where inbound and outbound flows are unrelated. Saturating the
outbound buffer never slows inbound delivery, and pausing the inbound side
never stalls outbound writes; this is the opposite of a transform, whose
two sides share backpressure.

The inbound side is fed by a Source (pumped automatically) or by Push when
no source is given. The outbound side delivers to a Sink. Terminal events
converge: OnError fires once with the first error from either side, and
OnClose fires once after both sides are done.

	conn := duplex.New(src, sink, duplex.DefaultConfig())

	conn.OnData(handleInbound)
	conn.Write(chunk.FromString("outbound"))
*/
package duplex
