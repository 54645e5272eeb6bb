package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"console-chat/internal/api"
	"console-chat/internal/auth"
	"console-chat/internal/chat"
	"console-chat/internal/config"
	"console-chat/internal/roles"
)

// messageView is the slice of the session the printer reads.
type messageView interface {
	Messages() []chat.Message
	TypingLabel() string
}

// printer serializes console output. Printed entries are remembered by id,
// not by position: the list is timestamp-sorted, so a live message can land
// in front of entries that were already shown.
type printer struct {
	mu      sync.Mutex
	view    messageView
	out     io.Writer
	printed map[string]struct{}
	label   string
}

func newPrinter(out io.Writer) *printer {
	return &printer{out: out, printed: make(map[string]struct{})}
}

func (p *printer) redraw() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, m := range p.view.Messages() {
		if _, done := p.printed[m.ID]; done {
			continue
		}
		p.printed[m.ID] = struct{}{}
		switch {
		case m.Origin == chat.OriginStatus:
			fmt.Fprintf(p.out, "  -- %s --\n", m.Content)
		case m.IsFile:
			fmt.Fprintf(p.out, "[%s] %s (%s): 📎 %s%s\n", m.Timestamp.Format("15:04"), m.Sender, m.Role.Display(), m.FilePath, deliveryTag(m))
		default:
			fmt.Fprintf(p.out, "[%s] %s (%s): %s%s\n", m.Timestamp.Format("15:04"), m.Sender, m.Role.Display(), m.Content, deliveryTag(m))
		}
	}

	if label := p.view.TypingLabel(); label != p.label {
		p.label = label
		if label != "" {
			fmt.Fprintln(p.out, "  "+label)
		}
	}
}

func deliveryTag(m chat.Message) string {
	switch m.Delivery {
	case chat.DeliverySending:
		return " (sending...)"
	case chat.DeliveryError:
		return " (failed, /retry " + m.ID + ")"
	default:
		return ""
	}
}

func main() {
	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	cfg := config.Load()
	cred := auth.NewCredential(cfg.Token)
	if err := cred.Check(time.Now()); err != nil {
		log.Fatal().Err(err).Msg("[console] credential rejected, sign in again")
	}

	role := roles.Parse(cfg.Role)
	fmt.Printf("Signed in as %s (%s)\n", cfg.Username, role.Display())
	for _, l := range roles.LinksFor(role) {
		fmt.Printf("  %-16s %s\n", l.Label, l.Path)
	}

	rest := api.New(cfg.APIBaseURL, cred)
	conn := chat.NewConn(cfg.SocketURL, cred, chat.ConnOptions{
		RetryDelay: cfg.RetryDelay,
		MaxRetries: cfg.MaxRetries,
	})

	p := newPrinter(os.Stdout)
	sess := chat.NewSession(conn, rest, chat.SessionOptions{
		Self:      cfg.Username,
		Role:      role,
		TypingTTL: cfg.TypingTTL,
	}, chat.UIEvents{
		OnUpdate: func() { p.redraw() },
		OnNotice: func(text string) { fmt.Println("! " + text) },
		OnAuthExpired: func() {
			fmt.Println("! session expired, sign in again")
			os.Exit(1)
		},
	})
	p.view = sess

	sess.Start()
	defer sess.Close()

	if len(os.Args) > 1 {
		sess.SelectRoom(context.Background(), os.Args[1])
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	fmt.Println("Commands: /room <id>, /file <path>, /retry <id>, /discard <id>, /quit")

	for {
		select {
		case <-stop:
			fmt.Println("\nLeaving chat...")
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if handleLine(sess, line) {
				return
			}
		}
	}
}

// handleLine returns true when the console should exit.
func handleLine(sess *chat.Session, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}

	if strings.HasPrefix(line, "/") {
		parts := strings.SplitN(line, " ", 2)
		arg := ""
		if len(parts) > 1 {
			arg = strings.TrimSpace(parts[1])
		}

		switch parts[0] {
		case "/quit":
			return true
		case "/room":
			if arg == "" {
				fmt.Println("usage: /room <id>")
				return false
			}
			sess.SelectRoom(context.Background(), arg)
		case "/file":
			data, err := os.ReadFile(arg)
			if err != nil {
				fmt.Println("! " + err.Error())
				return false
			}
			sess.SendAttachment(context.Background(), arg, data)
		case "/retry":
			if err := sess.Retry(context.Background(), arg); err != nil {
				fmt.Println("! " + err.Error())
			}
		case "/discard":
			if err := sess.Discard(arg); err != nil {
				fmt.Println("! " + err.Error())
			}
		default:
			fmt.Println("unknown command: " + parts[0])
		}
		return false
	}

	sess.InputChanged(true)
	sess.Send(context.Background(), line)
	sess.InputChanged(false)
	return false
}
