package model

// Message is the payload of a control Envelope. QUIT is the only variant
// today; the type exists so new control messages can be added without
// changing every stage's switch.
type Message int

const (
	MessageQuit Message = iota
)

// EnvelopeKind discriminates the three cases an Envelope can carry. Every
// stage's main loop is expected to switch exhaustively over these.
type EnvelopeKind int

const (
	EnvelopeImage EnvelopeKind = iota
	EnvelopePackage
	EnvelopeMessage
)

// Envelope is the tagged union {Image, Package, Message} passed between
// pipeline stages over bounded queues. Exactly one of Img/Pkg is non-nil
// depending on Kind; EnvelopeMessage carries neither.
type Envelope struct {
	Kind EnvelopeKind
	Img  *Image
	Pkg  *Package
	Msg  Message
}

// NewImageEnvelope wraps an Image.
func NewImageEnvelope(img *Image) Envelope {
	return Envelope{Kind: EnvelopeImage, Img: img}
}

// NewPackageEnvelope wraps a Package boundary marker.
func NewPackageEnvelope(pkg *Package) Envelope {
	return Envelope{Kind: EnvelopePackage, Pkg: pkg}
}

// QuitEnvelope is the terminal broadcast marker. The Source stage emits
// exactly one when configured non-waiting and drained; every stage
// forwards it to all outbound queues and terminates after processing the
// batch containing it.
func QuitEnvelope() Envelope {
	return Envelope{Kind: EnvelopeMessage, Msg: MessageQuit}
}

// IsQuit reports whether e is the terminal QUIT marker.
func (e Envelope) IsQuit() bool {
	return e.Kind == EnvelopeMessage && e.Msg == MessageQuit
}
