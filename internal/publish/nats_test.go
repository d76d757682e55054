package publish

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gitlab.com/d21d3q/minowmbus/internal/testutil"
	"gitlab.com/d21d3q/minowmbus/pkg/minowmbus"
)

type recordingConn struct {
	subjects []string
	payloads [][]byte
	err      error
	drained  bool
}

func (c *recordingConn) Publish(subject string, data []byte) error {
	if c.err != nil {
		return c.err
	}
	c.subjects = append(c.subjects, subject)
	c.payloads = append(c.payloads, data)
	return nil
}

func (c *recordingConn) Drain() error {
	c.drained = true
	return nil
}

func TestSubjectFor(t *testing.T) {
	require.Equal(t, "wmbus.readings.minomess_sva.21314151", SubjectFor("wmbus.readings", "minomess_sva", "21314151"))
	require.Equal(t, "wmbus.readings.unknown", SubjectFor("wmbus.readings", "unknown", ""))
	require.Equal(t, "base.a_b.x_y__", SubjectFor("base", "a.b", "x y*>"))
}

func TestPublish(t *testing.T) {
	res, err := minowmbus.AnalyzeHex(context.Background(), testutil.LoadHex(t, "minomess/zenner_cold.hex"))
	require.NoError(t, err)

	nc := &recordingConn{}
	p := newPublisher(nc, "wmbus.readings")
	at := time.Date(2021, 12, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, p.Publish(at, res))
	require.Equal(t, []string{"wmbus.readings.minomess_sva.21314151"}, nc.subjects)

	var msg Message
	require.NoError(t, json.Unmarshal(nc.payloads[0], &msg))
	require.Equal(t, "minomess_sva", msg.Driver)
	require.Equal(t, "21314151", msg.MeterID)
	require.True(t, msg.ReceivedAt.Equal(at))
	require.Equal(t, "OK", msg.Fields["status"])

	require.NoError(t, p.Close())
	require.True(t, nc.drained)
}

func TestPublishError(t *testing.T) {
	nc := &recordingConn{err: errors.New("connection closed")}
	p := newPublisher(nc, "wmbus.readings")
	err := p.Publish(time.Now(), minowmbus.Result{Driver: "unknown"})
	require.ErrorContains(t, err, "connection closed")
}
