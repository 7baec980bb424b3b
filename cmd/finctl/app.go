package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"finboard/internal/client"
	"finboard/internal/core"
	"finboard/internal/feed"
	"finboard/internal/log"
)

const defaultServer = "http://localhost:8081"

// app is the state shared by every command.
type app struct {
	server    string
	credsPath string
	pageSize  int
	verbose   bool

	in     *bufio.Reader
	out    io.Writer
	errOut io.Writer
	now    func() time.Time
}

func newApp(in io.Reader, out, errOut io.Writer) *app {
	server := os.Getenv("FINBOARD_URL")
	if server == "" {
		server = defaultServer
	}
	return &app{
		server:    server,
		credsPath: defaultCredentialsPath(),
		pageSize:  feed.DefaultPageSize,
		in:        bufio.NewReader(in),
		out:       out,
		errOut:    errOut,
		now:       time.Now,
	}
}

func (a *app) logger() *log.Logger {
	level := slog.LevelWarn
	if a.verbose {
		level = slog.LevelDebug
	}
	return log.New(log.Config{
		Level:     level,
		Component: log.ComponentClient,
		Handler:   slog.NewTextHandler(a.errOut, &slog.HandlerOptions{Level: level}),
	})
}

func (a *app) client(server string) (*client.Client, error) {
	return client.New(server)
}

// session loads the saved credentials and a client for their server.
func (a *app) session() (credentials, *client.Client, error) {
	creds, err := loadCredentials(a.credsPath, a.now())
	if err != nil {
		return credentials{}, nil, err
	}
	c, err := a.client(creds.Server)
	if err != nil {
		return credentials{}, nil, err
	}
	return creds, c, nil
}

// controller builds a feed over the saved session. A rejected token removes
// the credentials file.
func (a *app) controller(creds credentials, api feed.ExpenseAPI) *feed.Controller {
	sess := feed.NewMemorySession(creds.Token)
	sess.OnLogout(func() {
		if err := removeCredentials(a.credsPath); err != nil {
			fmt.Fprintln(a.errOut, "warning:", err)
		}
	})
	return feed.NewController(api, sess,
		feed.WithPageSize(a.pageSize),
		feed.WithLogger(a.logger().WithComponent(log.ComponentFeed)),
		feed.WithNotifier(feed.NotifierFunc(a.notify)),
		feed.WithNavigator(feed.NavigatorFunc(func() {
			fmt.Fprintln(a.errOut, "Session expired; run `finctl login` to sign in again.")
		})),
	)
}

func (a *app) notify(n feed.Notification) {
	if n.Description == "" {
		fmt.Fprintf(a.errOut, "[%s] %s\n", n.Severity, n.Title)
		return
	}
	fmt.Fprintf(a.errOut, "[%s] %s: %s\n", n.Severity, n.Title, n.Description)
}

// direct converts a 401 from a call made outside the feed into a sign-out.
func (a *app) direct(err error) error {
	if errors.Is(err, core.ErrUnauthorized) {
		_ = removeCredentials(a.credsPath)
		return errNotSignedIn
	}
	return err
}

func (a *app) readLine(prompt string) (string, error) {
	if prompt != "" {
		fmt.Fprint(a.errOut, prompt)
	}
	line, err := a.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func printExpenses(w io.Writer, items []core.Expense, header bool) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if header {
		fmt.Fprintln(tw, "DATE\tAMOUNT\tCATEGORY\tDESCRIPTION\tID")
	}
	for _, e := range items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.Date, e.Amount, e.Category, e.Description, e.ID)
	}
	_ = tw.Flush()
}
