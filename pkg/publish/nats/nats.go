package nats

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/nats-io/nats.go"

	"github.com/mpapenbr/iracelog-strategy-service-go/log"
	"github.com/mpapenbr/iracelog-strategy-service-go/pkg/model"
)

const DefaultPrefix = "enriched"

// Conn is the part of *nats.Conn used by the sink
type Conn interface {
	Publish(subj string, data []byte) error
}

var _ Conn = (*nats.Conn)(nil)

// Sink publishes lap results on the subject <prefix>.<track>.
type Sink struct {
	conn   Conn
	prefix string
	logger *log.Logger
}

type Option func(*Sink)

func WithPrefix(prefix string) Option {
	return func(s *Sink) {
		s.prefix = prefix
	}
}

func WithLogger(l *log.Logger) Option {
	return func(s *Sink) {
		s.logger = l
	}
}

func New(conn Conn, opts ...Option) *Sink {
	ret := &Sink{conn: conn, prefix: DefaultPrefix, logger: log.Default().Named("nats")}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// Connect opens a connection to url. The connection reconnects on its own.
func Connect(url string, logger *log.Logger) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name("iss"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", log.ErrorField(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", log.String("url", c.ConnectedUrl()))
		}),
	)
}

func (s *Sink) Name() string {
	return "nats"
}

func (s *Sink) Publish(ctx context.Context, res *model.LapResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(res)
	if err != nil {
		return err
	}
	subj := Subject(s.prefix, res.RaceContext.RaceInfo.TrackName)
	s.logger.Debug("publishing", log.String("subject", subj))
	return s.conn.Publish(subj, data)
}

// Subject builds a valid subject for a track name. Characters with a special
// meaning in subjects are replaced.
func Subject(prefix, track string) string {
	token := strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, strings.ToLower(strings.TrimSpace(track)))
	if token == "" {
		token = "unknown"
	}
	return prefix + "." + token
}
