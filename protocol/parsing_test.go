package protocol_test

import (
	"errors"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/goblincore/ige/protocol"
)

var _ = Describe("Parsing", func() {
	Describe("IsInit()", func() {
		It("recognises an init frame", func() {
			Expect(protocol.IsInit([]byte(`{"cmd":"init","ncmds":{}}`))).To(BeTrue())
		})

		It("rejects ordinary frames", func() {
			Expect(protocol.IsInit([]byte(`[1,{"x":1}]`))).To(BeFalse())
			Expect(protocol.IsInit([]byte(`{"cmd":"other"}`))).To(BeFalse())
		})
	})

	Describe("ParseInit()", func() {
		It("returns an error if the data is not valid JSON", func() {
			_, err := protocol.ParseInit([]byte(`{"cmd":`))
			Expect(err).To(MatchError(protocol.ErrInvalidJSON))
		})

		It("returns an error if the frame is not an init frame", func() {
			_, err := protocol.ParseInit([]byte(`{"cmd":"move"}`))
			Expect(err).To(MatchError(protocol.ErrNotInitFrame))
		})

		It("returns an error if the command table is missing", func() {
			_, err := protocol.ParseInit([]byte(`{"cmd":"init"}`))
			Expect(err).To(MatchError(protocol.ErrInitMissingTable))
		})

		It("returns an error if a command maps to a non-integer index", func() {
			_, err := protocol.ParseInit([]byte(`{"cmd":"init","ncmds":{"move":"one"}}`))
			Expect(errors.Is(err, protocol.ErrBadTableIndex)).To(BeTrue())
		})

		It("parses a valid init frame", func() {
			init, err := protocol.ParseInit([]byte(`{"cmd":"init","ncmds":{"move":1,"chat":2}}`))
			Expect(err).To(Succeed())
			Expect(init.Commands).To(Equal(map[string]int{
				"move": 1,
				"chat": 2,
			}))
		})
	})

	Describe("ParseMessage()", func() {
		It("returns an error if the data is not valid JSON", func() {
			_, err := protocol.ParseMessage([]byte(`[1,`))
			Expect(err).To(MatchError(protocol.ErrInvalidJSON))
		})

		It("returns an error if the frame is not an array", func() {
			_, err := protocol.ParseMessage([]byte(`{"cmd":"init"}`))
			Expect(err).To(MatchError(protocol.ErrFrameNotPair))
		})

		It("returns an error if the frame is not a two element pair", func() {
			_, err := protocol.ParseMessage([]byte(`[1]`))
			Expect(err).To(MatchError(protocol.ErrFrameNotPair))

			_, err = protocol.ParseMessage([]byte(`[1,2,3]`))
			Expect(err).To(MatchError(protocol.ErrFrameNotPair))
		})

		It("returns an error if the command index is not a number", func() {
			_, err := protocol.ParseMessage([]byte(`["move",{"x":1}]`))
			Expect(errors.Is(err, protocol.ErrBadCommandIndex)).To(BeTrue())
		})

		It("parses a valid frame", func() {
			msg, err := protocol.ParseMessage([]byte(`[1,{"x":12,"y":4}]`))
			Expect(err).To(Succeed())
			Expect(msg.Index).To(Equal(1))
			Expect(msg.Payload).To(MatchJSON(`{"x":12,"y":4}`))
		})

		It("keeps scalar payloads raw", func() {
			msg, err := protocol.ParseMessage([]byte(`[2,"hi"]`))
			Expect(err).To(Succeed())
			Expect(msg.Index).To(Equal(2))
			Expect(string(msg.Payload)).To(Equal(`"hi"`))
		})
	})

	Describe("ParseEnvelope()", func() {
		It("returns an error if the data is not valid JSON", func() {
			_, err := protocol.ParseEnvelope([]byte(`{"id":`))
			Expect(err).To(MatchError(protocol.ErrInvalidJSON))
		})

		It("returns an error if the id is missing", func() {
			_, err := protocol.ParseEnvelope([]byte(`{"cmd":"chat","data":"hi"}`))
			Expect(err).To(MatchError(protocol.ErrEnvelopeMissingID))
		})

		It("allows the command name to be absent", func() {
			env, err := protocol.ParseEnvelope([]byte(`{"id":"abc","data":"hi"}`))
			Expect(err).To(Succeed())
			Expect(env.ID).To(Equal("abc"))
			Expect(env.Cmd).To(BeEmpty())
			Expect(string(env.Data)).To(Equal(`"hi"`))
		})

		It("parses a valid envelope", func() {
			env, err := protocol.ParseEnvelope([]byte(`{"id":"abc","cmd":"chat","data":"hi"}`))
			Expect(err).To(Succeed())
			Expect(env.ID).To(Equal("abc"))
			Expect(env.Cmd).To(Equal("chat"))
			Expect(string(env.Data)).To(Equal(`"hi"`))
		})
	})
})
