package metrics

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// Record kinds.
const (
	KindFrameIn   = "FRAME_IN"
	KindFrameOut  = "FRAME_OUT"
	KindConnNew   = "CONN_NEW"
	KindReconnect = "RECONNECT"
	KindMalformed = "MALFORMED"
	KindError     = "ERROR"
)

type Record struct {
	Timestamp time.Time
	Kind      string
	FrameType string
	RoomId    string
	Bytes     int
}

type Collector struct {
	records   chan Record
	Done      chan struct{}
	csvFile   *os.File
	csvWriter *csv.Writer
	Stats     Statistics

	mu      sync.Mutex
	closed  bool
	dropped atomic.Int64
}

type Statistics struct {
	FramesIn         int
	FramesOut        int
	BytesIn          int64
	BytesOut         int64
	TotalConnections int
	ReconnectCount   int
	MalformedCount   int
	ErrorCount       int
	DroppedCount     int64
	StartTime        time.Time
	EndTime          time.Time

	TypeCounts map[string]int
	RoomCounts map[string]int
}

// NewCollector creates a collector. A non-empty csvPath also writes every
// record to that file.
func NewCollector(csvPath string) (*Collector, error) {
	c := &Collector{
		records: make(chan Record, 10000),
		Done:    make(chan struct{}),
		Stats: Statistics{
			TypeCounts: make(map[string]int),
			RoomCounts: make(map[string]int),
		},
	}

	if csvPath != "" {
		file, err := os.Create(csvPath)
		if err != nil {
			return nil, fmt.Errorf("create metrics csv: %w", err)
		}
		c.csvFile = file
		c.csvWriter = csv.NewWriter(file)
		c.csvWriter.Write([]string{"timestamp", "kind", "frameType", "bytes", "roomId"})
		c.csvWriter.Flush()
	}
	return c, nil
}

// Record queues r without blocking; records are dropped when the buffer is
// full or the collector is closed.
func (c *Collector) Record(r Record) {
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.records <- r:
	default:
		c.dropped.Add(1)
	}
}

func (c *Collector) Start() {
	c.Stats.StartTime = time.Now()
	go func() {
		for r := range c.records {
			switch r.Kind {
			case KindConnNew:
				c.Stats.TotalConnections++
			case KindReconnect:
				c.Stats.ReconnectCount++
			case KindMalformed:
				c.Stats.MalformedCount++
			case KindError:
				c.Stats.ErrorCount++
			case KindFrameIn:
				c.Stats.FramesIn++
				c.Stats.BytesIn += int64(r.Bytes)
				c.Stats.TypeCounts[r.FrameType]++
			case KindFrameOut:
				c.Stats.FramesOut++
				c.Stats.BytesOut += int64(r.Bytes)
				c.Stats.TypeCounts[r.FrameType]++
			}
			if r.RoomId != "" {
				c.Stats.RoomCounts[r.RoomId]++
			}

			if c.csvWriter != nil {
				c.csvWriter.Write([]string{
					r.Timestamp.Format(time.RFC3339Nano),
					r.Kind,
					r.FrameType,
					strconv.Itoa(r.Bytes),
					r.RoomId,
				})
			}
		}
		if c.csvWriter != nil {
			c.csvWriter.Flush()
			c.csvFile.Close()
		}
		c.Stats.DroppedCount = c.dropped.Load()
		c.Stats.EndTime = time.Now()
		close(c.Done)
	}()
}

// Close stops accepting records. Wait on Done before reading Stats.
func (c *Collector) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.records)
}

func (c *Collector) PrintSummary(w io.Writer) {
	duration := c.Stats.EndTime.Sub(c.Stats.StartTime).Seconds()

	fmt.Fprintln(w, "========= Session Metrics =========")
	fmt.Fprintf(w, "Duration: %.2f seconds\n", duration)
	fmt.Fprintf(w, "Connections: %d\n", c.Stats.TotalConnections)
	fmt.Fprintf(w, "Reconnects: %d\n", c.Stats.ReconnectCount)
	fmt.Fprintf(w, "Frames In: %d (%d bytes)\n", c.Stats.FramesIn, c.Stats.BytesIn)
	fmt.Fprintf(w, "Frames Out: %d (%d bytes)\n", c.Stats.FramesOut, c.Stats.BytesOut)
	fmt.Fprintf(w, "Malformed: %d\n", c.Stats.MalformedCount)
	fmt.Fprintf(w, "Errors: %d\n", c.Stats.ErrorCount)
	fmt.Fprintf(w, "Dropped Records: %d\n", c.Stats.DroppedCount)

	fmt.Fprintln(w, "\n--- Frame Type Distribution ---")
	types := make([]string, 0, len(c.Stats.TypeCounts))
	for k := range c.Stats.TypeCounts {
		types = append(types, k)
	}
	sort.Strings(types)
	for _, k := range types {
		fmt.Fprintf(w, "%s: %d\n", k, c.Stats.TypeCounts[k])
	}

	fmt.Fprintln(w, "===================================")
}
