package main

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"trilex/auth"
	"trilex/config"
	"trilex/logger"
	"trilex/metrics"
	"trilex/model"
	"trilex/session"
)

// ackWait bounds how long a load worker waits for acknowledgements.
const ackWait = 5 * time.Second

var predefinedMessages = []string{
	"Hello, is the consultation still on?", "I have uploaded the documents",
	"Could you review the contract draft?", "Thank you for the quick reply",
	"When is the hearing scheduled?", "Please confirm the booking",
	"I will send the payment today", "Can we move the meeting to Friday?",
	"The firm invitation is accepted", "See you at the office",
}

type loadResult struct {
	Sent      int
	Acked     int
	Delivered int
	Failed    int
}

func (r *loadResult) add(o loadResult) {
	r.Sent += o.Sent
	r.Acked += o.Acked
	r.Delivered += o.Delivered
	r.Failed += o.Failed
}

// runLoad opens numSessions sessions in roomID and has each send
// messagesPerSession messages.
func runLoad(ctx context.Context, cfg config.Config, collector *metrics.Collector, roomID string, numSessions, messagesPerSession int) error {
	fmt.Printf("Starting load test with sessions=%d, messages=%d, room=%s\n", numSessions, messagesPerSession, roomID)

	var wg sync.WaitGroup
	results := make(chan loadResult, numSessions)
	start := time.Now()

	for i := 0; i < numSessions; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			results <- runLoadWorker(ctx, cfg, collector, id, roomID, messagesPerSession)
		}(i)
	}
	wg.Wait()
	close(results)
	duration := time.Since(start)

	var total loadResult
	for r := range results {
		total.add(r)
	}

	fmt.Println("--- Load Test Complete ---")
	fmt.Printf("Sent: %d  Acked: %d  Delivered: %d  Failed: %d\n", total.Sent, total.Acked, total.Delivered, total.Failed)
	fmt.Printf("Wall Time: %.2f seconds\n", duration.Seconds())
	if duration > 0 {
		fmt.Printf("Throughput: %.2f msg/s\n", float64(total.Sent)/duration.Seconds())
	}
	return nil
}

func runLoadWorker(ctx context.Context, cfg config.Config, collector *metrics.Collector, id int, roomID string, n int) loadResult {
	var res loadResult

	var opts []session.Option
	if collector != nil {
		opts = append(opts, session.WithRecorder(collector))
	}
	s := session.New(session.FromConfig(cfg), auth.Static(cfg.Token), opts...)
	defer s.Disconnect()

	if err := s.Connect(ctx, roomID); err != nil {
		logger.WarnF("Load worker %d failed to connect: %v", id, err)
		res.Failed = n
		return res
	}

	rnd := rand.New(rand.NewSource(time.Now().UnixNano() + int64(id)))
	ids := make([]string, 0, n)
	for j := 0; j < n; j++ {
		correlationID := model.NewCorrelationID()
		text := predefinedMessages[rnd.Intn(len(predefinedMessages))]
		if err := s.SendMessage(ctx, text, roomID, correlationID); err != nil {
			logger.WarnF("Load worker %d failed send (%d/%d): %v", id, j+1, n, err)
			res.Failed++
			continue
		}
		ids = append(ids, correlationID)
		res.Sent++
	}

	deadline := time.Now().Add(ackWait)
	for time.Now().Before(deadline) && ctx.Err() == nil {
		if pending(s, ids) == 0 {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	for _, correlationID := range ids {
		rec, _ := s.Delivery(correlationID)
		if rec.Status >= model.StatusSent {
			res.Acked++
		}
		if rec.Status >= model.StatusDelivered {
			res.Delivered++
		}
	}
	return res
}

func pending(s *session.Session, ids []string) int {
	n := 0
	for _, id := range ids {
		if rec, ok := s.Delivery(id); !ok || rec.Status < model.StatusSent {
			n++
		}
	}
	return n
}
