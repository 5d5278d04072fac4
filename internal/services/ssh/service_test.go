package ssh

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"io"
	"os"
	"testing"
	"time"

	"github.com/fgeck/gostation-homelab/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

// Mock implementations
type mockSSHSession struct {
	runFunc   func(cmd string, stdout, stderr *bytes.Buffer) error
	closeFunc func() error
}

func (m *mockSSHSession) Run(cmd string, stdout, stderr *bytes.Buffer) error {
	if m.runFunc != nil {
		return m.runFunc(cmd, stdout, stderr)
	}
	return nil
}

func (m *mockSSHSession) Close() error {
	if m.closeFunc != nil {
		return m.closeFunc()
	}
	return nil
}

type mockSSHClient struct {
	newSessionFunc func() (SSHSession, error)
	closeFunc      func() error
}

func (m *mockSSHClient) NewSession() (SSHSession, error) {
	if m.newSessionFunc != nil {
		return m.newSessionFunc()
	}
	return &mockSSHSession{}, nil
}

func (m *mockSSHClient) Close() error {
	if m.closeFunc != nil {
		return m.closeFunc()
	}
	return nil
}

type mockClientFactory struct {
	newClientFunc func(network, addr string, config *ssh.ClientConfig) (SSHClient, error)
}

func (m *mockClientFactory) NewClient(network, addr string, config *ssh.ClientConfig) (SSHClient, error) {
	if m.newClientFunc != nil {
		return m.newClientFunc(network, addr, config)
	}
	return &mockSSHClient{}, nil
}

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

// generateTestKey generates a valid ed25519 key for testing using crypto/ed25519.
func generateTestKey(t *testing.T) []byte {
	t.Helper()

	_, privateKey, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	pemBlock, err := ssh.MarshalPrivateKey(privateKey, "")
	require.NoError(t, err)

	return pem.EncodeToMemory(pemBlock)
}

func testConfig(t *testing.T) models.RemoteConfig {
	return models.RemoteConfig{
		Host:       "192.168.1.2",
		Port:       22,
		Username:   "root",
		PrivateKey: generateTestKey(t),
	}
}

func sessionFactory(session *mockSSHSession) *mockClientFactory {
	return &mockClientFactory{
		newClientFunc: func(network, addr string, config *ssh.ClientConfig) (SSHClient, error) {
			return &mockSSHClient{
				newSessionFunc: func() (SSHSession, error) {
					return session, nil
				},
			}, nil
		},
	}
}

func TestFetch_Success(t *testing.T) {
	var capturedCommand, capturedAddr string

	factory := &mockClientFactory{
		newClientFunc: func(network, addr string, config *ssh.ClientConfig) (SSHClient, error) {
			capturedAddr = addr
			return &mockSSHClient{
				newSessionFunc: func() (SSHSession, error) {
					return &mockSSHSession{
						runFunc: func(cmd string, stdout, stderr *bytes.Buffer) error {
							capturedCommand = cmd
							stdout.WriteString("Station aa:bb:cc:dd:ee:01 (on wlan0)\n")
							return nil
						},
					}, nil
				},
			}, nil
		},
	}

	svc := NewWithClientFactory(testLogger(), testConfig(t), factory)
	out, err := svc.Fetch(context.Background(), "/usr/sbin/iw", "wlan0")

	require.NoError(t, err)
	assert.Equal(t, "Station aa:bb:cc:dd:ee:01 (on wlan0)\n", string(out))
	assert.Equal(t, "192.168.1.2:22", capturedAddr)
	assert.Equal(t, `'/usr/sbin/iw' 'dev' 'wlan0' 'station' 'dump'`, capturedCommand)
}

func TestFetch_QuotesHostileInterface(t *testing.T) {
	var capturedCommand string
	factory := sessionFactory(&mockSSHSession{
		runFunc: func(cmd string, stdout, stderr *bytes.Buffer) error {
			capturedCommand = cmd
			return nil
		},
	})

	svc := NewWithClientFactory(testLogger(), testConfig(t), factory)
	_, err := svc.Fetch(context.Background(), "iw", "wlan0'; reboot; '")

	require.NoError(t, err)
	assert.Equal(t, `'iw' 'dev' 'wlan0'\''; reboot; '\''' 'station' 'dump'`, capturedCommand)
}

func TestFetch_NonZeroExit(t *testing.T) {
	factory := sessionFactory(&mockSSHSession{
		runFunc: func(cmd string, stdout, stderr *bytes.Buffer) error {
			stdout.WriteString("Station aa:bb:cc:dd:ee:01\n")
			stderr.WriteString("command failed: No such device (-19)\n")
			return &ssh.ExitError{}
		},
	})

	svc := NewWithClientFactory(testLogger(), testConfig(t), factory)
	out, err := svc.Fetch(context.Background(), "iw", "wlan0")

	assert.Nil(t, out)
	var fetchErr *models.FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, models.FetchNonZeroExit, fetchErr.Reason)
	assert.Equal(t, "command failed: No such device (-19)", fetchErr.Stderr)
	assert.Equal(t, "Station aa:bb:cc:dd:ee:01\n", string(fetchErr.Output))
}

func TestFetch_ConnectionFailed(t *testing.T) {
	factory := &mockClientFactory{
		newClientFunc: func(network, addr string, config *ssh.ClientConfig) (SSHClient, error) {
			return nil, errors.New("connection refused")
		},
	}

	svc := NewWithClientFactory(testLogger(), testConfig(t), factory)
	_, err := svc.Fetch(context.Background(), "iw", "wlan0")

	var fetchErr *models.FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, models.FetchSpawnFailed, fetchErr.Reason)
	assert.Contains(t, err.Error(), "failed to connect")
}

func TestFetch_SessionFailed(t *testing.T) {
	factory := &mockClientFactory{
		newClientFunc: func(network, addr string, config *ssh.ClientConfig) (SSHClient, error) {
			return &mockSSHClient{
				newSessionFunc: func() (SSHSession, error) {
					return nil, errors.New("session creation failed")
				},
			}, nil
		},
	}

	svc := NewWithClientFactory(testLogger(), testConfig(t), factory)
	_, err := svc.Fetch(context.Background(), "iw", "wlan0")

	var fetchErr *models.FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, models.FetchSpawnFailed, fetchErr.Reason)
	assert.Contains(t, err.Error(), "failed to create session")
}

func TestFetch_TimeoutClosesSession(t *testing.T) {
	closed := make(chan struct{})
	release := make(chan struct{})
	factory := sessionFactory(&mockSSHSession{
		runFunc: func(cmd string, stdout, stderr *bytes.Buffer) error {
			<-release
			return errors.New("session closed")
		},
		closeFunc: func() error {
			select {
			case <-closed:
			default:
				close(closed)
				close(release)
			}
			return nil
		},
	})

	svc := NewWithClientFactory(testLogger(), testConfig(t), factory)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := svc.Fetch(ctx, "iw", "wlan0")

	var fetchErr *models.FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, models.FetchTimeout, fetchErr.Reason)
	select {
	case <-closed:
	default:
		t.Fatal("session was not closed on timeout")
	}
}

func TestFetch_SlowConnectTimesOut(t *testing.T) {
	factory := &mockClientFactory{
		newClientFunc: func(network, addr string, config *ssh.ClientConfig) (SSHClient, error) {
			time.Sleep(100 * time.Millisecond)
			return &mockSSHClient{}, nil
		},
	}

	svc := NewWithClientFactory(testLogger(), testConfig(t), factory)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := svc.Fetch(ctx, "iw", "wlan0")

	var fetchErr *models.FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, models.FetchTimeout, fetchErr.Reason)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFetch_NoPrivateKey(t *testing.T) {
	cfg := models.RemoteConfig{Host: "192.168.1.2", Port: 22, Username: "root"}
	svc := NewWithClientFactory(testLogger(), cfg, &mockClientFactory{})

	_, err := svc.Fetch(context.Background(), "iw", "wlan0")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no private key")
}

func TestTestConnection_Success(t *testing.T) {
	factory := sessionFactory(&mockSSHSession{
		runFunc: func(cmd string, stdout, stderr *bytes.Buffer) error {
			if cmd == "echo OK" {
				stdout.WriteString("OK\n")
				return nil
			}
			return errors.New("unexpected command")
		},
	})

	svc := NewWithClientFactory(testLogger(), testConfig(t), factory)
	result, err := svc.TestConnection(context.Background())

	require.NoError(t, err)
	assert.True(t, result.CommandRun)
	assert.Contains(t, result.Output, "OK")
	assert.Nil(t, result.Error)
}

func TestTestConnection_Failed(t *testing.T) {
	factory := &mockClientFactory{
		newClientFunc: func(network, addr string, config *ssh.ClientConfig) (SSHClient, error) {
			return nil, errors.New("connection refused")
		},
	}

	svc := NewWithClientFactory(testLogger(), testConfig(t), factory)
	result, err := svc.TestConnection(context.Background())

	require.NoError(t, err)
	assert.False(t, result.CommandRun)
	assert.NotNil(t, result.Error)
	assert.Contains(t, result.Error.Error(), "failed to connect")
}

func TestBuildConfig_WithKeyPath(t *testing.T) {
	keyPath := t.TempDir() + "/test_key"
	require.NoError(t, os.WriteFile(keyPath, generateTestKey(t), 0o600))

	svc := NewWithClientFactory(testLogger(), models.RemoteConfig{
		Host:     "192.168.1.2",
		Port:     22,
		Username: "root",
		KeyPath:  keyPath,
	}, &mockClientFactory{})

	sshConfig, err := svc.buildConfig()

	require.NoError(t, err)
	assert.Equal(t, "root", sshConfig.User)
}

func TestBuildConfig_InvalidPrivateKey(t *testing.T) {
	svc := NewWithClientFactory(testLogger(), models.RemoteConfig{
		Host:       "192.168.1.2",
		Port:       22,
		Username:   "root",
		PrivateKey: []byte("invalid key"),
	}, &mockClientFactory{})

	_, err := svc.buildConfig()

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse private key")
}
