package mockgame_test

import (
	"context"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/goblincore/ige/internal/mockgame"
)

var _ = Describe("mockgame / State", func() {
	Describe("Close()", func() {
		It("does not panic when closed twice", func() {
			state := mockgame.NewState()
			defer state.Close()

			Expect(func() { state.Close() }).NotTo(Panic())
			Expect(func() { state.Close() }).NotTo(Panic())
		})
	})

	Describe("Set() / Get()", func() {
		It("can read a key that is written", func() {
			state := mockgame.NewState()
			defer state.Close()

			err := state.Set(context.Background(), "foo", "bar")
			Expect(err).To(Succeed())

			Expect(state.Get(context.Background(), "foo")).To(Equal([]byte(`"bar"`)))
		})

		It("sends on the update channel when values are set", func() {
			state := mockgame.NewState()
			defer state.Close()

			updateChan := state.ListenToUpdates()
			err := state.Set(context.Background(), "foo", "bar")
			Expect(err).To(Succeed())

			update, ok := <-updateChan
			Expect(ok).To(BeTrue())
			Expect(update).To(Equal(&mockgame.Update{
				Key:   "foo",
				Value: []byte(`"bar"`),
			}))
		})
	})
})
