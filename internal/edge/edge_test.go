package edge

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/adriannosampaio/darkrenderer/internal/config"
	"github.com/adriannosampaio/darkrenderer/internal/sceneio"
	"github.com/adriannosampaio/darkrenderer/internal/transport"
)

func testConfig() *config.GlobalConfig {
	return &config.GlobalConfig{
		Processing: config.ProcessingConfig{
			CPU:      config.CPUConfig{Active: true, UseMulticore: false},
			TaskSize: 2,
		},
	}
}

// Scenario 5 (spec.md §8): a client that disconnects before sending anything aborts
// the session cleanly; the server reports no error and keeps accepting.
func TestHandleSessionAbortsCleanlyOnEarlyDisconnect(t *testing.T) {
	serverRaw, clientRaw := net.Pipe()
	srv := &Server{cfg: testConfig()}

	require.NoError(t, clientRaw.Close())

	mode, err := srv.handleSession(serverRaw)
	require.NoError(t, err)
	require.Equal(t, ShutdownNone, mode)
}

type sessionOutcome struct {
	mode ShutdownMode
	err  error
}

func TestHandleSessionEndToEndSingleCPU(t *testing.T) {
	serverRaw, clientRaw := net.Pipe()
	srv := &Server{cfg: testConfig()}
	clientConn := transport.New(clientRaw)

	outcome := make(chan sessionOutcome, 1)
	go func() {
		mode, err := srv.handleSession(serverRaw)
		outcome <- sessionOutcome{mode, err}
	}()

	scene := "1 4 7 0 0 0 1 0 0 0 1 0 " +
		"0.1 0.1 1 0 0 -1 0.1 0.1 1 0 0 -1 0.1 0.1 1 0 0 -1 0.1 0.1 1 0 0 -1"
	require.NoError(t, clientConn.Send(scene, false))

	for i := 0; i < 2; i++ {
		frame, err := clientConn.Recv(false)
		require.NoError(t, err)
		_, err = sceneio.ParseResult(frame)
		require.NoError(t, err)
	}

	report, err := clientConn.Recv(false)
	require.NoError(t, err)
	require.Contains(t, report, "CPU")

	require.NoError(t, clientConn.Close())
	got := <-outcome
	require.NoError(t, got.err)
	require.Equal(t, ShutdownNone, got.mode)
}

func TestHandleSessionExitEdge(t *testing.T) {
	serverRaw, clientRaw := net.Pipe()
	srv := &Server{cfg: testConfig()}
	clientConn := transport.New(clientRaw)

	outcome := make(chan sessionOutcome, 1)
	go func() {
		mode, err := srv.handleSession(serverRaw)
		outcome <- sessionOutcome{mode, err}
	}()

	require.NoError(t, clientConn.Send("EXIT_EDGE", false))
	got := <-outcome
	require.NoError(t, got.err)
	require.Equal(t, ShutdownEdge, got.mode)
}

func TestHandleSessionExitAll(t *testing.T) {
	serverRaw, clientRaw := net.Pipe()
	srv := &Server{cfg: testConfig()}
	clientConn := transport.New(clientRaw)

	outcome := make(chan sessionOutcome, 1)
	go func() {
		mode, err := srv.handleSession(serverRaw)
		outcome <- sessionOutcome{mode, err}
	}()

	require.NoError(t, clientConn.Send("EXIT_ALL", false))
	got := <-outcome
	require.NoError(t, got.err)
	require.Equal(t, ShutdownAll, got.mode)
}

// When a cloud tracer is active, EXIT_ALL must cascade an EXIT to the cloud peer
// (spec.md §4.5 step 1), not just shut the edge process down silently.
func TestHandleSessionExitAllForwardsExitToCloudPeer(t *testing.T) {
	cloudLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer cloudLn.Close()

	received := make(chan string, 1)
	go func() {
		raw, err := cloudLn.Accept()
		if err != nil {
			return
		}
		defer raw.Close()
		frame, _ := transport.New(raw).Recv(false)
		received <- frame
	}()

	addr := cloudLn.Addr().(*net.TCPAddr)
	cfg := testConfig()
	cfg.Processing.Cloud.Active = true
	cfg.Cloud = config.EndpointConfig{IP: addr.IP.String(), Port: addr.Port}

	serverRaw, clientRaw := net.Pipe()
	srv := &Server{cfg: cfg}
	clientConn := transport.New(clientRaw)

	outcome := make(chan sessionOutcome, 1)
	go func() {
		mode, err := srv.handleSession(serverRaw)
		outcome <- sessionOutcome{mode, err}
	}()

	require.NoError(t, clientConn.Send("EXIT_ALL", false))
	got := <-outcome
	require.NoError(t, got.err)
	require.Equal(t, ShutdownAll, got.mode)
	require.Equal(t, "EXIT", <-received)
}

func TestHandleSessionAppliesConfigOverrides(t *testing.T) {
	serverRaw, clientRaw := net.Pipe()
	srv := &Server{cfg: testConfig()}
	clientConn := transport.New(clientRaw)

	outcome := make(chan sessionOutcome, 1)
	go func() {
		mode, err := srv.handleSession(serverRaw)
		outcome <- sessionOutcome{mode, err}
	}()

	require.NoError(t, clientConn.Send("CONFIG TSIZE 4", false))

	scene := "1 4 7 0 0 0 1 0 0 0 1 0 " +
		"0.1 0.1 1 0 0 -1 0.1 0.1 1 0 0 -1 0.1 0.1 1 0 0 -1 0.1 0.1 1 0 0 -1"
	require.NoError(t, clientConn.Send(scene, false))

	// TSIZE 4 over 4 rays means a single task, so exactly one result frame.
	frame, err := clientConn.Recv(false)
	require.NoError(t, err)
	_, err = sceneio.ParseResult(frame)
	require.NoError(t, err)

	report, err := clientConn.Recv(false)
	require.NoError(t, err)
	require.Contains(t, report, "CPU")

	require.NoError(t, clientConn.Close())
	got := <-outcome
	require.NoError(t, got.err)
}
