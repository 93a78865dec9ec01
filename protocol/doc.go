package protocol

// This package implements parsing and serialising of the frames that an
// IGE game server exchanges with its clients over a persistent message
// connection.
//
// The protocol aims to be
//
// - compact on the wire (commands travel as small integers, not names)
// - easy to implement on top of any message transport
// - human readable when dumped (every frame is a JSON document)
//
// === Handshake
//
// The first meaningful frame the server sends is the init frame. It carries
// the command table: the mapping from command names to the numeric indices
// the server will use for the rest of the session.
//
//   ```
//   {"cmd":"init","ncmds":{"move":1,"chat":2,"_igeRequest":3,"_igeResponse":4}}
//   ```
//
// The table is negotiated exactly once. After the handshake no frame ever
// carries a command name again.
//
// === Message frames
//
// Every ordinary frame is a two element JSON array: the command index
// followed by an arbitrary JSON payload.
//
//   ```
//   [1,{"x":12,"y":4}]
//   ```
//
// === Request / response envelopes
//
// Request/response exchanges are layered on top of ordinary frames using
// two reserved commands, `_igeRequest` and `_igeResponse`. Their payload is
// an envelope carrying a client-generated id, the logical command name the
// request was issued under, and the request or response body.
//
//   ```
//   [3,{"id":"a91f2c01","cmd":"chat","data":"hi"}]
//   [4,{"id":"a91f2c01","cmd":"chat","data":"ok"}]
//   ```
//
// The id is an opaque string to the server; it is echoed back verbatim so
// the client can associate the response with the originating request.
// Requests and responses may interleave freely with other traffic.
