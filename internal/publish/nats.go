// Package publish forwards decoded readings to a NATS subject.
package publish

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"gitlab.com/d21d3q/minowmbus/pkg/minowmbus"
)

// Message is the JSON payload published for each reading.
type Message struct {
	ReceivedAt time.Time      `json:"received_at"`
	Driver     string         `json:"driver"`
	MeterID    string         `json:"meter_id"`
	RawHex     string         `json:"raw_hex"`
	Fields     map[string]any `json:"fields"`
}

type conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// Publisher sends readings to NATS. Each reading goes to
// <subject>.<driver>.<meter id>.
type Publisher struct {
	nc      conn
	subject string
}

// Connect dials the NATS server at url.
func Connect(url, subject string) (*Publisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("minowmbus-analyze"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logrus.WithError(err).Warn("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logrus.WithField("url", c.ConnectedUrl()).Info("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return newPublisher(nc, subject), nil
}

func newPublisher(nc conn, subject string) *Publisher {
	return &Publisher{nc: nc, subject: subject}
}

// SubjectFor builds the subject for a reading. Tokens are sanitised so a
// meter id or driver name can never add subject levels or wildcards.
func SubjectFor(base, driverName, meterID string) string {
	parts := []string{base, token(driverName)}
	if meterID != "" {
		parts = append(parts, token(meterID))
	}
	return strings.Join(parts, ".")
}

func token(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t':
			return '_'
		}
		return r
	}, s)
}

// Encode renders the message payload for res.
func Encode(receivedAt time.Time, res minowmbus.Result) ([]byte, error) {
	return json.Marshal(Message{
		ReceivedAt: receivedAt.UTC(),
		Driver:     res.Driver,
		MeterID:    res.MeterID(),
		RawHex:     res.RawHex,
		Fields:     res.Fields,
	})
}

// Publish sends one reading.
func (p *Publisher) Publish(receivedAt time.Time, res minowmbus.Result) error {
	data, err := Encode(receivedAt, res)
	if err != nil {
		return fmt.Errorf("encode reading: %w", err)
	}
	subject := SubjectFor(p.subject, res.Driver, res.MeterID())
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	logrus.WithFields(logrus.Fields{"subject": subject, "bytes": len(data)}).Debug("published reading")
	return nil
}

// Close flushes pending messages and closes the connection.
func (p *Publisher) Close() error {
	return p.nc.Drain()
}
