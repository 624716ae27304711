package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"trilex/api"
	"trilex/archive"
	"trilex/archive/mongo"
	"trilex/archive/sqlite"
	"trilex/auth"
	"trilex/config"
	"trilex/logger"
	"trilex/metrics"
	"trilex/model"
	"trilex/session"

	"github.com/fatih/color"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("client", flag.ContinueOnError)
	roomID := fs.String("room", "", "room to join after connecting")
	loadSessions := fs.Int("load-sessions", 0, "run a load test with this many sessions instead of the interactive client")
	loadMessages := fs.Int("load-messages", 100, "messages per load-test session")

	cfg, err := config.ParseFlags(fs, args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger.Init(os.Stderr, level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	collector, err := metrics.NewCollector(cfg.MetricsCSV)
	if err != nil {
		return fmt.Errorf("failed to create collector: %w", err)
	}
	collector.Start()
	defer func() {
		collector.Close()
		<-collector.Done
		collector.PrintSummary(os.Stdout)
	}()

	if *loadSessions > 0 {
		if *roomID == "" {
			return errors.New("-room is required for a load test")
		}
		return runLoad(ctx, cfg, collector, *roomID, *loadSessions, *loadMessages)
	}

	store, err := openArchive(ctx, cfg.Archive)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	creds := auth.NewStore(cfg.Token)
	opts := []session.Option{
		session.WithRecorder(collector),
		session.WithNotifier(session.NotifierFunc(printToast)),
	}
	if store != nil {
		opts = append(opts, session.WithArchive(store))
	}
	s := session.New(session.FromConfig(cfg), creds, opts...)
	creds.OnLogout(s.Disconnect)

	if err := s.Restore(ctx); err != nil {
		logger.Warn("Could not restore archived history", "error", err)
	}
	for _, msg := range s.Messages() {
		printMessage(msg)
	}

	events, cancel := s.Subscribe(256)
	defer cancel()
	go printEvents(events)

	if err := s.Connect(ctx, *roomID); err != nil {
		return err
	}

	c := &console{
		session: s,
		rest:    api.NewClient(cfg.APIBaseURL, creds, nil),
		creds:   creds,
		room:    *roomID,
		out:     os.Stdout,
	}
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			creds.Logout()
			return nil
		case line, ok := <-lines:
			if !ok {
				creds.Logout()
				return nil
			}
			if quit := c.handle(ctx, line); quit {
				creds.Logout()
				return nil
			}
		}
	}
}

func openArchive(ctx context.Context, cfg config.Archive) (archive.Archive, error) {
	switch cfg.Driver {
	case "sqlite":
		store, err := sqlite.Open(cfg.Path)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "mongo":
		store, err := mongo.Connect(ctx, mongo.Options{
			URI:              cfg.MongoURI,
			Database:         cfg.MongoDatabase,
			MinPoolSize:      cfg.MinPoolSize,
			MaxPoolSize:      cfg.MaxPoolSize,
			OperationTimeout: cfg.OperationTimeout,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	return nil, nil
}

// console turns stdin lines into session actions. Lines starting with a
// slash are commands; anything else is sent to the current room.
type console struct {
	session *session.Session
	rest    *api.Client
	creds   *auth.Store
	room    string
	out     io.Writer
}

func (c *console) handle(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		c.send(ctx, line)
		return false
	}

	cmd, arg, _ := strings.Cut(line[1:], " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "quit", "exit":
		return true
	case "join":
		if err := c.session.JoinRoom(ctx, arg); err != nil {
			fmt.Fprintf(c.out, "join failed: %v\n", err)
			return false
		}
		c.room = arg
	case "typing":
		_ = c.session.SendTypingIndicator(ctx, arg != "off")
	case "status":
		for id, rec := range c.session.Deliveries() {
			fmt.Fprintf(c.out, "%s  %-9s %s\n", id, rec.Status, rec.MessageID)
		}
		fmt.Fprintf(c.out, "connected=%t unread=%d typing=%v\n",
			c.session.Connected(), c.session.UnreadCount(), c.session.TypingUsers())
	case "read":
		if !c.session.MarkNotificationReadLocally(arg) {
			fmt.Fprintf(c.out, "no notification %q\n", arg)
			return false
		}
		if _, err := c.rest.MarkNotificationRead(ctx, arg); err != nil {
			fmt.Fprintf(c.out, "mark read failed: %v\n", err)
		}
	case "clear":
		c.session.ClearNotifications()
	case "rooms":
		page, err := c.rest.Rooms(ctx, api.PageParams{})
		if err != nil {
			fmt.Fprintf(c.out, "rooms failed: %v\n", err)
			return false
		}
		for _, r := range page.Results {
			fmt.Fprintf(c.out, "%s  booking=%s unread=%d\n", r.ID, r.BookingID, r.UnreadCount)
		}
	case "history":
		page, err := c.rest.Messages(ctx, c.room, api.PageParams{})
		if err != nil {
			fmt.Fprintf(c.out, "history failed: %v\n", err)
			return false
		}
		for _, m := range page.Results {
			fmt.Fprintf(c.out, "[%s] %s: %s\n", m.CreatedAt, m.Sender.ID, m.Message)
		}
	case "reconnect":
		c.session.Disconnect()
		if err := c.session.Connect(ctx, c.room); err != nil {
			fmt.Fprintf(c.out, "reconnect failed: %v\n", err)
		}
	case "logout":
		c.creds.Logout()
	default:
		fmt.Fprintf(c.out, "unknown command /%s\n", cmd)
	}
	return false
}

func (c *console) send(ctx context.Context, text string) {
	if c.room == "" {
		fmt.Fprintln(c.out, "join a room first: /join <room>")
		return
	}
	id := model.NewCorrelationID()
	if err := c.session.SendMessage(ctx, text, c.room, id); err != nil {
		fmt.Fprintf(c.out, "send failed: %v\n", err)
	}
}

var (
	senderColor = color.New(color.FgCyan, color.Bold)
	toastColor  = color.New(color.FgYellow, color.Bold)
	statusColor = color.New(color.FgHiBlack)
)

func printEvents(events <-chan session.Event) {
	for e := range events {
		switch e.Kind {
		case session.EventConnected:
			statusColor.Println("-- connected")
		case session.EventDisconnected:
			if e.Err != nil {
				statusColor.Printf("-- disconnected: %v\n", e.Err)
			} else {
				statusColor.Println("-- disconnected")
			}
		case session.EventError:
			statusColor.Printf("-- error: %v\n", e.Err)
		case session.EventFrame:
			printFrame(e.Frame)
		}
	}
}

func printFrame(frame model.Inbound) {
	switch f := frame.(type) {
	case model.ChatMessageFrame:
		printMessage(f.ChatMessage)
	case model.MessageSentFrame:
		statusColor.Printf("   sent %s\n", f.ClientTempID)
	case model.MessageDeliveredFrame:
		statusColor.Printf("   delivered %s\n", f.ClientTempID)
	case model.MessageReadFrame:
		statusColor.Printf("   read %s\n", f.ClientTempID)
	case model.UnreadCountFrame:
		statusColor.Printf("   unread notifications: %d\n", f.Count)
	case model.TypingFrame:
		if f.IsTyping {
			statusColor.Printf("   %s is typing...\n", f.UserID)
		}
	}
}

func printMessage(msg model.ChatMessage) {
	name := msg.Sender.Name
	if name == "" {
		name = msg.Sender.ID
	}
	fmt.Printf("[%s] %s: %s\n", msg.RoomID, senderColor.Sprint(name), msg.Message)
}

func printToast(t session.Toast) {
	toastColor.Printf("** %s ** %s  (%s: %s)\n", t.Title, t.Description, t.ActionLabel, t.ActionPath)
}
