package metrics

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorAggregates(t *testing.T) {
	c, err := NewCollector("")
	require.NoError(t, err)
	c.Start()

	c.Record(Record{Kind: KindConnNew})
	c.Record(Record{Kind: KindReconnect, RoomId: "r1"})
	c.Record(Record{Kind: KindFrameIn, FrameType: "chat_message", RoomId: "r1", Bytes: 10})
	c.Record(Record{Kind: KindFrameIn, FrameType: "chat_message", RoomId: "r1", Bytes: 5})
	c.Record(Record{Kind: KindFrameOut, FrameType: "send_message", RoomId: "r1", Bytes: 7})
	c.Record(Record{Kind: KindMalformed})
	c.Record(Record{Kind: KindError})
	c.Close()
	<-c.Done

	s := c.Stats
	assert.Equal(t, 1, s.TotalConnections)
	assert.Equal(t, 1, s.ReconnectCount)
	assert.Equal(t, 2, s.FramesIn)
	assert.EqualValues(t, 15, s.BytesIn)
	assert.Equal(t, 1, s.FramesOut)
	assert.Equal(t, 1, s.MalformedCount)
	assert.Equal(t, 1, s.ErrorCount)
	assert.Equal(t, 2, s.TypeCounts["chat_message"])
	assert.Equal(t, 4, s.RoomCounts["r1"])

	var buf bytes.Buffer
	c.PrintSummary(&buf)
	assert.Contains(t, buf.String(), "Frames In: 2 (15 bytes)")
	assert.Contains(t, buf.String(), "chat_message: 2")
}

func TestCollectorRecordAfterCloseIsIgnored(t *testing.T) {
	c, err := NewCollector("")
	require.NoError(t, err)
	c.Start()
	c.Close()
	c.Close()
	<-c.Done

	assert.NotPanics(t, func() { c.Record(Record{Kind: KindFrameIn}) })
	assert.Zero(t, c.Stats.FramesIn)
}

func TestCollectorWritesCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.csv")
	c, err := NewCollector(path)
	require.NoError(t, err)
	c.Start()
	c.Record(Record{Kind: KindFrameOut, FrameType: "join_room", RoomId: "room-42", Bytes: 40})
	c.Close()
	<-c.Done

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"timestamp", "kind", "frameType", "bytes", "roomId"}, rows[0])
	assert.Equal(t, []string{KindFrameOut, "join_room", "40", "room-42"}, rows[1][1:])
}
