package runtime

import "time"

// SocketType selects the I/O event-loop transport backing a connection.
type SocketType string

const (
	SocketNIO    SocketType = "NIO"
	SocketEPOLL  SocketType = "EPOLL"
	SocketKQUEUE SocketType = "KQUEUE"
)

// Config recognizes every configuration key of spec §6. This repo does not
// parse flags or files itself (CLI shells are out of scope, spec §1); an
// embedding application populates Config directly, or via its own flag
// package the way the teacher's examples/word-count/wordcountctl uses
// github.com/jessevdk/go-flags against server.Config.
type Config struct {
	TLSEnabled           bool
	KeyStore             string
	KsPasswordFile       string
	TrustStore           string
	TsPasswordFile       string
	SASLPlainTextEnabled bool
	UsernameFile         string
	PasswordFile         string

	HandshakeTimeout        time.Duration
	RequestTimeout          time.Duration
	IdleConnectionTimeout   time.Duration
	KeepAlivePeriod         time.Duration
	ConnectionTimeout       time.Duration
	ConnectionRetryRate     time.Duration

	ClientID string

	SocketType             SocketType
	EventLoopThreadFormat  string
	EventLoopThreads       int
	ShutdownEventLoop      bool
	ChannelOptions         map[string]string

	WorkflowTimeout   time.Duration
	WorkflowRetryRate time.Duration
	WorkflowRetry     int
}

// DefaultConfig returns a Config with the reference implementation's
// conservative defaults.
func DefaultConfig() Config {
	return Config{
		SocketType:            SocketNIO,
		EventLoopThreadFormat: "corfu-io-%d",
		EventLoopThreads:      4,
		ShutdownEventLoop:     true,

		HandshakeTimeout:      10 * time.Second,
		RequestTimeout:        5 * time.Second,
		IdleConnectionTimeout: 60 * time.Second,
		KeepAlivePeriod:       15 * time.Second,
		ConnectionTimeout:     5 * time.Second,
		ConnectionRetryRate:   time.Second,

		WorkflowTimeout:   30 * time.Second,
		WorkflowRetryRate: time.Second,
		WorkflowRetry:     3,
	}
}
