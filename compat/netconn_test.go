package compat

import (
	"net"
	"testing"
	"time"

	amqp "github.com/Azure/go-amqp"
	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/require"
)

func TestPumpStopLeavesNoGoroutine(t *testing.T) {
	defer leaktest.Check(t)()

	client, server := net.Pipe()
	defer server.Close()

	// drain whatever the core writes (the protocol header) so Send doesn't
	// block; NewConn writes the header synchronously, so this runs first
	go func() {
		buf := make([]byte, 4096)
		for {
			if _, err := server.Read(buf); err != nil {
				return
			}
		}
	}()

	transport := NewNetConnTransport(client)
	core, err := amqp.NewConn(transport, &amqp.ConnOptions{ContainerID: "pump-test"})
	require.NoError(t, err)

	pump := NewPump(client, core, 50*time.Millisecond)
	go pump.Run()

	time.Sleep(120 * time.Millisecond)
	pump.Stop()
	require.NoError(t, pump.Err())
}
