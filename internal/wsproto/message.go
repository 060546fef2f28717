package wsproto

import "unicode/utf8"

// Message is a fully reassembled data message (TEXT or BINARY).
// Control frames never become a Message; they are delivered straight
// from the parser to the connection's control-frame handling.
type Message struct {
	Opcode  Opcode
	Payload []byte
}

// Reassembler accumulates data frames into complete messages,
// enforcing the fragmentation sequencing and size rules of §4.6: the
// first frame of a message carries a data opcode with FIN=0 (or
// FIN=1 for an unfragmented message), every subsequent frame must be
// CONTINUATION, and the last has FIN=1.
type Reassembler struct {
	MaxMessageSize uint64

	inProgress bool
	opcode     Opcode
	buf        []byte
}

func NewReassembler(maxMessageSize uint64) *Reassembler {
	return &Reassembler{MaxMessageSize: maxMessageSize}
}

// Feed processes one data-opcode frame (CONTINUATION, TEXT, or
// BINARY). It returns a completed Message once the frame carrying
// FIN=1 arrives; otherwise ok is false and the frame has simply been
// absorbed into the in-progress buffer.
func (r *Reassembler) Feed(f Frame) (msg Message, ok bool, err error) {
	if f.Opcode == OpContinuation {
		if !r.inProgress {
			return Message{}, false, protoErr(CloseProtocolError, "continuation frame without a preceding data frame")
		}
	} else {
		if r.inProgress {
			return Message{}, false, protoErr(CloseProtocolError, "new data frame while a fragmented message is still open")
		}
		r.inProgress = true
		r.opcode = f.Opcode
		r.buf = r.buf[:0]
	}

	if uint64(len(r.buf))+uint64(len(f.Payload)) > r.MaxMessageSize {
		r.reset()
		return Message{}, false, protoErr(CloseMessageTooBig, "reassembled message exceeds the configured maximum size")
	}
	r.buf = append(r.buf, f.Payload...)

	if !f.FIN {
		return Message{}, false, nil
	}

	opcode, payload := r.opcode, r.buf
	r.reset()

	if opcode == OpText && !utf8.Valid(payload) {
		return Message{}, false, protoErr(CloseInvalidPayloadUTF8, "text message payload is not valid UTF-8")
	}
	return Message{Opcode: opcode, Payload: payload}, true, nil
}

func (r *Reassembler) reset() {
	r.inProgress = false
	r.buf = nil
}
