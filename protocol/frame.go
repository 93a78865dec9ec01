package protocol

// Reserved command names. InitCommand only ever appears in the handshake
// frame; the other two are declared by the server in the init table like
// any ordinary command.
const (
	InitCommand     = "init"
	RequestCommand  = "_igeRequest"
	ResponseCommand = "_igeResponse"
)

// Init is the decoded handshake frame. Commands maps every command name
// the server will accept to the numeric index it travels under.
type Init struct {
	Commands map[string]int
}

// Message is a decoded ordinary frame `[index, payload]`. Payload holds
// the raw JSON of the second element, unparsed.
type Message struct {
	Index   int
	Payload []byte
}

// Envelope is the payload of a RequestCommand or ResponseCommand frame.
// Cmd is the logical command name the request was issued under and Data
// holds the raw JSON body.
type Envelope struct {
	ID   string
	Cmd  string
	Data []byte
}
