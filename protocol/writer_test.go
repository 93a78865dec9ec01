package protocol_test

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/goblincore/ige/protocol"
)

var _ = Describe("Parsing / Writer", func() {
	Describe("EncodeMessage", func() {
		It("builds a two element pair of index and payload", func() {
			frame, err := protocol.EncodeMessage(1, []byte(`{"x":1}`))
			Expect(err).To(Succeed())
			Expect(frame).To(MatchJSON(`[1,{"x":1}]`))
		})

		It("encodes an empty payload as null", func() {
			frame, err := protocol.EncodeMessage(7, nil)
			Expect(err).To(Succeed())
			Expect(frame).To(MatchJSON(`[7,null]`))
		})

		It("round trips through ParseMessage", func() {
			frame, err := protocol.EncodeMessage(3, []byte(`"hi"`))
			Expect(err).To(Succeed())

			msg, err := protocol.ParseMessage(frame)
			Expect(err).To(Succeed())
			Expect(msg.Index).To(Equal(3))
			Expect(string(msg.Payload)).To(Equal(`"hi"`))
		})
	})

	Describe("EncodeEnvelope", func() {
		It("includes the id, command name and data", func() {
			out, err := protocol.EncodeEnvelope(&protocol.Envelope{
				ID:   "abc",
				Cmd:  "chat",
				Data: []byte(`"hi"`),
			})
			Expect(err).To(Succeed())
			Expect(out).To(MatchJSON(`{"id":"abc","cmd":"chat","data":"hi"}`))
		})

		It("encodes empty data as null", func() {
			out, err := protocol.EncodeEnvelope(&protocol.Envelope{
				ID:  "abc",
				Cmd: "chat",
			})
			Expect(err).To(Succeed())
			Expect(out).To(MatchJSON(`{"id":"abc","cmd":"chat","data":null}`))
		})
	})
})
