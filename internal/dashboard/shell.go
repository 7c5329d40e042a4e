package dashboard

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/atomicbank/internal/session"
	"github.com/punchamoorthee/atomicbank/internal/transfer"
	"github.com/punchamoorthee/atomicbank/internal/view"
)

// ErrQuit is returned by Exec for the quit command.
var ErrQuit = errors.New("quit")

const shellHelp = `commands:
  login <handle>     sign in as a registry identity
  logout             sign out
  nav <screen>       dashboard | history | settings
  menu               toggle the profile menu
  settings           open Account Settings from the menu
  all                view all transactions
  amount <value>     set the transfer amount
  to <id|handle>     choose the recipient
  send               submit the transfer in the background
  deposit            add the fixed top-up to your wallet in the background
  wait               block until background submissions finish
  refresh            re-fetch balance and history
  show               redraw the current screen
  help               this text
  quit               exit
`

// Console serialises writes from the shell and the notifier onto one writer.
type Console struct {
	mu sync.Mutex
	w  io.Writer
}

func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

func (c *Console) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.w.Write(p)
}

// Shell is a line-oriented front-end over a Dashboard.
//
// Submissions started through Dispatch run in the background and announce themselves
// through the notifier when they finish. out must tolerate concurrent writers; use a
// Console shared with the notifier.
type Shell struct {
	dash    *Dashboard
	out     io.Writer
	pending sync.WaitGroup
}

func NewShell(dash *Dashboard, out io.Writer) *Shell {
	return &Shell{dash: dash, out: out}
}

// PrintNotifier writes notices to w as status lines.
func PrintNotifier(w io.Writer) transfer.Notifier {
	return transfer.NotifierFunc(func(n transfer.Notice) {
		prefix := "[ok]"
		if n.Level == transfer.LevelError {
			prefix = "[!!]"
		}
		fmt.Fprintf(w, "%s %s\n", prefix, n.Message)
	})
}

// Run reads commands until EOF or quit, redrawing after each one. It returns once
// background submissions have finished.
func (s *Shell) Run(ctx context.Context, in io.Reader) error {
	defer s.Wait()
	if err := s.render(); err != nil {
		return err
	}
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(s.out, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		err := s.Dispatch(ctx, scanner.Text())
		switch {
		case errors.Is(err, ErrQuit):
			return nil
		case err != nil:
			fmt.Fprintf(s.out, "error: %v\n", err)
		}
	}
}

// Dispatch runs line like Exec, except that send and deposit are started in the
// background so other commands stay live while the ledger answers.
func (s *Shell) Dispatch(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	switch strings.ToLower(fields[0]) {
	case "send", "deposit":
		s.pending.Add(1)
		go func() {
			defer s.pending.Done()
			if err := s.Exec(ctx, line); err != nil {
				fmt.Fprintf(s.out, "error: %v\n", err)
			}
		}()
		return nil
	}
	return s.Exec(ctx, line)
}

// Wait blocks until every background submission has finished.
func (s *Shell) Wait() { s.pending.Wait() }

// render draws the current frame in a single write so it cannot interleave with notices.
func (s *Shell) render() error {
	var buf bytes.Buffer
	if err := view.Render(&buf, s.dash.Frame()); err != nil {
		return err
	}
	_, err := s.out.Write(buf.Bytes())
	return err
}

// Exec runs one command line.
func (s *Shell) Exec(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	var err error
	switch cmd {
	case "quit", "exit":
		return ErrQuit
	case "help":
		_, err = io.WriteString(s.out, shellHelp)
		return err
	case "login":
		if len(args) != 1 {
			return errors.New("usage: login <handle>")
		}
		_, err = s.dash.Login(ctx, args[0])
	case "logout":
		s.dash.Logout()
	case "nav":
		if len(args) != 1 {
			return errors.New("usage: nav <screen>")
		}
		var screen view.Screen
		if screen, err = view.ParseScreen(args[0]); err == nil {
			err = s.dash.Navigate(screen)
		}
	case "menu":
		err = s.dash.ToggleMenu()
	case "settings":
		err = s.dash.OpenSettingsFromMenu()
	case "all":
		err = s.dash.ViewAll()
	case "amount":
		if len(args) != 1 {
			return errors.New("usage: amount <value>")
		}
		var amount decimal.Decimal
		if amount, err = decimal.NewFromString(strings.TrimPrefix(args[0], "$")); err != nil {
			return fmt.Errorf("invalid amount %q", args[0])
		}
		err = s.dash.SetAmount(amount)
	case "to":
		if len(args) != 1 {
			return errors.New("usage: to <id|handle>")
		}
		var id int64
		if id, err = s.resolveRecipient(args[0]); err == nil {
			err = s.dash.SelectRecipient(id)
		}
	case "send":
		_, err = s.dash.Transfer(ctx)
	case "deposit":
		_, err = s.dash.Deposit(ctx)
	case "refresh":
		err = s.dash.Refresh(ctx)
	case "wait":
		s.Wait()
	case "show":
	default:
		return fmt.Errorf("unknown command %q (try help)", cmd)
	}

	// Submission failures have already been surfaced as notices.
	submitted := (cmd == "send" || cmd == "deposit") && !errors.Is(err, session.ErrLoggedOut)
	if err != nil && !submitted {
		return err
	}
	return s.render()
}

func (s *Shell) resolveRecipient(arg string) (int64, error) {
	if id, err := strconv.ParseInt(arg, 10, 64); err == nil {
		return id, nil
	}
	ident, ok := s.dash.registry.LookupHandle(arg)
	if !ok {
		return 0, fmt.Errorf("unknown recipient %q", arg)
	}
	return ident.ID, nil
}
