package transport_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/goblincore/ige/internal/mockgame"
	"github.com/goblincore/ige/protocol"
	"github.com/goblincore/ige/stream"
	"github.com/goblincore/ige/transport"
)

func makeServer() *mockgame.Server {
	server := mockgame.NewServer(mockgame.Options{
		Host: "127.0.0.1",
		Port: 0,
	})

	Expect(server.Start(context.Background())).To(Succeed())
	return server
}

var _ = Describe("Websocket", func() {
	It("surfaces the connect event and the server's init frame", func() {
		server := makeServer()
		defer server.Stop()

		ws := transport.NewWebsocket(transport.Options{})
		Expect(ws.Dial(context.Background(), "ws://"+server.Addr())).To(Succeed())
		defer ws.Close()

		var event stream.Event
		Eventually(ws.Events()).Should(Receive(&event))
		Expect(event.Kind).To(Equal(stream.EventConnect))

		Eventually(ws.Events()).Should(Receive(&event))
		Expect(event.Kind).To(Equal(stream.EventMessage))
		Expect(protocol.IsInit(event.Data)).To(BeTrue())
	})

	It("surfaces the close reason when the server refuses the connection", func() {
		server := makeServer()
		defer server.Stop()
		server.Refuse(true)

		ws := transport.NewWebsocket(transport.Options{})
		Expect(ws.Dial(context.Background(), "ws://"+server.Addr())).To(Succeed())
		defer ws.Close()

		var event stream.Event
		Eventually(ws.Events()).Should(Receive(&event))
		Expect(event.Kind).To(Equal(stream.EventConnect))

		Eventually(ws.Events()).Should(Receive(&event))
		Expect(event.Kind).To(Equal(stream.EventDisconnect))
		Expect(event.Reason).To(Equal("booted"))
	})

	Describe("rate limiting", func() {
		It("paces outbound sends through the token bucket", func() {
			server := makeServer()
			defer server.Stop()

			ws := transport.NewWebsocket(transport.Options{
				RateLimit: &transport.RateLimitConfig{
					MessagesPerSecond: 20,
					Burst:             1,
					Enabled:           true,
				},
			})
			Expect(ws.Dial(context.Background(), "ws://"+server.Addr())).To(Succeed())
			defer ws.Close()

			// Burst 1 at 20/s means the second and third send each wait
			// ~50ms for a token
			started := time.Now()
			for i := 0; i < 3; i++ {
				Expect(ws.Send(context.Background(), []byte(`[1,null]`))).To(Succeed())
			}

			Expect(time.Since(started)).To(BeNumerically(">=", 80*time.Millisecond))
		})

		It("gives up waiting for a token when the context is cancelled", func() {
			server := makeServer()
			defer server.Stop()

			ws := transport.NewWebsocket(transport.Options{
				RateLimit: &transport.RateLimitConfig{
					MessagesPerSecond: 1,
					Burst:             1,
					Enabled:           true,
				},
			})
			Expect(ws.Dial(context.Background(), "ws://"+server.Addr())).To(Succeed())
			defer ws.Close()

			// Drain the only token, then the next send has to wait
			Expect(ws.Send(context.Background(), []byte(`[1,null]`))).To(Succeed())

			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			Expect(ws.Send(ctx, []byte(`[1,null]`))).To(HaveOccurred())
		})
	})

	Describe("Close()", func() {
		It("unblocks senders stuck on a full queue after the write pump dies", func() {
			server := makeServer()

			ws := transport.NewWebsocket(transport.Options{SendBuffer: 1})
			Expect(ws.Dial(context.Background(), "ws://"+server.Addr())).To(Succeed())

			// Kill the connection out from under the write pump
			Expect(server.Stop()).To(Succeed())

			finished := make(chan struct{})
			go func() {
				defer close(finished)

				// More frames than the queue holds; without a live pump
				// these would block forever
				for i := 0; i < 10; i++ {
					ws.Send(context.Background(), []byte(`[1,null]`))
				}
			}()

			ws.Close()
			Eventually(finished).Should(BeClosed())

			Expect(ws.Send(context.Background(), []byte(`[1,null]`))).To(MatchError(transport.ErrConnectionClosed))
		})
	})

	It("carries a full client session end to end", func() {
		server := makeServer()
		defer server.Stop()

		client := stream.New(stream.Options{
			Transport: transport.NewWebsocket(transport.Options{}),
		})
		defer client.Close()

		ready := make(chan struct{})
		err := client.Start(context.Background(), "ws://"+server.Addr(), func() {
			close(ready)
		})
		Expect(err).To(Succeed())
		Eventually(ready).Should(BeClosed())

		Expect(client.Commands()).To(ContainElement("worldUpdate"))

		// Request/response round trip: the mock server echoes the body
		responses := make(chan []byte, 1)
		client.Request("chat", []byte(`"hi"`), func(data []byte, err error) {
			Expect(err).To(Succeed())
			responses <- data
		})
		Eventually(responses).Should(Receive(MatchJSON(`"hi"`)))

		// World-state changes arrive as worldUpdate frames
		updates := make(chan []byte, 1)
		client.On("worldUpdate", func(payload []byte) { updates <- payload })

		Expect(server.State().Set(context.Background(), "score", 42)).To(Succeed())
		Eventually(updates).Should(Receive(MatchJSON(`{"key":"score","value":42}`)))
	})
})
