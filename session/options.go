package session

import (
	"context"
	"net/http"
	"time"

	"trilex/archive"
	"trilex/config"
	"trilex/metrics"

	"github.com/gorilla/websocket"
)

// Config holds the transport settings of a Session.
type Config struct {
	Endpoint            string
	CredentialTransport string
	HandshakeTimeout    time.Duration
	WriteTimeout        time.Duration
	Reconnect           config.Reconnect
}

// FromConfig picks the session settings out of the loaded configuration.
func FromConfig(cfg config.Config) Config {
	return Config{
		Endpoint:            cfg.Endpoint,
		CredentialTransport: cfg.CredentialTransport,
		HandshakeTimeout:    cfg.HandshakeTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Reconnect:           cfg.Reconnect,
	}
}

// Conn is the part of *websocket.Conn a Session uses.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// DialFunc opens a connection to target.
type DialFunc func(ctx context.Context, target string, header http.Header) (Conn, error)

// Recorder receives traffic records. *metrics.Collector implements it.
type Recorder interface {
	Record(r metrics.Record)
}

type Option func(*Session)

func WithDialer(dial DialFunc) Option {
	return func(s *Session) { s.dial = dial }
}

func WithNotifier(n Notifier) Option {
	return func(s *Session) { s.notifier = n }
}

func WithRecorder(r Recorder) Option {
	return func(s *Session) { s.recorder = r }
}

// WithArchive stores received messages and notifications in a.
func WithArchive(a archive.Archive) Option {
	return func(s *Session) { s.archive = a }
}

func gorillaDialer(timeout time.Duration) DialFunc {
	d := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: timeout,
	}
	return func(ctx context.Context, target string, header http.Header) (Conn, error) {
		conn, resp, err := d.DialContext(ctx, target, header)
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		if err != nil {
			if resp != nil {
				return nil, &HandshakeError{StatusCode: resp.StatusCode, Err: err}
			}
			return nil, err
		}
		return conn, nil
	}
}
