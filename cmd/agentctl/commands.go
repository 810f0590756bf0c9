package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/jrsteele09/go-agent-client/client"
	"github.com/jrsteele09/go-agent-client/offline"
	"github.com/jrsteele09/go-agent-client/resources"
	"github.com/spf13/pflag"
)

const passwordEnvVar = "AGENTCTL_PASSWORD"

func (a *app) dispatch(ctx context.Context, cmd string, args []string, out io.Writer) error {
	switch cmd {
	case "login":
		return a.login(ctx, args, out)
	case "logout":
		a.client.SignOut(ctx)
		fmt.Fprintln(out, "signed out")
		return nil
	case "agents":
		return a.agents(ctx, args, out)
	case "sources":
		return a.sources(ctx, args, out)
	case "chat":
		return a.chat(ctx, args, out)
	case "history":
		return a.history(ctx, args, out)
	case "queue":
		return a.queueCmd(ctx, args, out)
	case "storage":
		return a.storageCmd(args, out)
	}
	return fmt.Errorf("unknown command %q", cmd)
}

func subcommand(args []string) (string, []string) {
	if len(args) == 0 {
		return "", nil
	}
	return args[0], args[1:]
}

func newFlags(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func needArgs(fs *pflag.FlagSet, n int, usage string) error {
	if fs.NArg() < n {
		return fmt.Errorf("usage: %s", usage)
	}
	return nil
}

func (a *app) login(ctx context.Context, args []string, out io.Writer) error {
	fs := newFlags("login")
	email := fs.String("email", "", "account email")
	password := fs.String("password", os.Getenv(passwordEnvVar), "account password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if _, err := a.client.SignIn(ctx, *email, *password); err != nil {
		return err
	}
	fmt.Fprintf(out, "signed in as %s\n", *email)
	return nil
}

func (a *app) agents(ctx context.Context, args []string, out io.Writer) error {
	sub, args := subcommand(args)
	fs := newFlags("agents " + sub)
	var in resources.AgentInput
	if sub == "create" || sub == "update" {
		fs.StringVar(&in.Name, "name", "", "agent name")
		fs.StringVar(&in.Description, "description", "", "short description")
		fs.StringVar(&in.Model, "model", "", "model identifier")
		fs.StringVar(&in.Instructions, "instructions", "", "system instructions")
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	switch sub {
	case "list":
		list, err := a.svc.Agents.List(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tMODEL\tUPDATED")
		for _, ag := range list {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", ag.ID, ag.Name, ag.Model, ag.UpdatedAt.Format(time.DateTime))
		}
		return tw.Flush()
	case "get":
		if err := needArgs(fs, 1, "agents get ID"); err != nil {
			return err
		}
		ag, err := a.svc.Agents.Get(ctx, fs.Arg(0))
		if err != nil {
			return err
		}
		printAgent(out, ag)
		return nil
	case "create":
		ag, res, err := a.svc.Agents.Create(ctx, in)
		if err != nil {
			return err
		}
		if ag == nil {
			printDeferred(out, res)
			return nil
		}
		fmt.Fprintf(out, "created agent %s %s\n", ag.ID, ag.Name)
		return nil
	case "update":
		if err := needArgs(fs, 1, "agents update ID --name NAME"); err != nil {
			return err
		}
		ag, res, err := a.svc.Agents.Update(ctx, fs.Arg(0), in)
		if err != nil {
			return err
		}
		if ag == nil {
			printDeferred(out, res)
			return nil
		}
		fmt.Fprintf(out, "updated agent %s %s\n", ag.ID, ag.Name)
		return nil
	case "delete":
		if err := needArgs(fs, 1, "agents delete ID"); err != nil {
			return err
		}
		res, err := a.svc.Agents.Delete(ctx, fs.Arg(0))
		if err != nil {
			return err
		}
		if res.Deferred {
			printDeferred(out, res)
			return nil
		}
		fmt.Fprintf(out, "deleted agent %s\n", fs.Arg(0))
		return nil
	}
	return fmt.Errorf("usage: agents list|get|create|update|delete")
}

func printAgent(out io.Writer, ag *resources.Agent) {
	fmt.Fprintf(out, "id:           %s\n", ag.ID)
	fmt.Fprintf(out, "name:         %s\n", ag.Name)
	fmt.Fprintf(out, "description:  %s\n", ag.Description)
	fmt.Fprintf(out, "model:        %s\n", ag.Model)
	fmt.Fprintf(out, "instructions: %s\n", ag.Instructions)
}

func printDeferred(out io.Writer, res client.Result) {
	fmt.Fprintf(out, "queued %s: %s\n", res.QueueID, res.Message)
}

func (a *app) sources(ctx context.Context, args []string, out io.Writer) error {
	sub, args := subcommand(args)
	fs := newFlags("sources " + sub)
	title := fs.String("title", "", "source title")
	content := fs.String("content", "", "text content")
	if err := fs.Parse(args); err != nil {
		return err
	}

	switch sub {
	case "list":
		if err := needArgs(fs, 1, "sources list AGENT"); err != nil {
			return err
		}
		list, err := a.svc.Sources.List(ctx, fs.Arg(0))
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tKIND\tTITLE\tSIZE")
		for _, src := range list {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", src.ID, src.Kind, firstNonEmpty(src.Title, src.Filename, src.URL), src.Size)
		}
		return tw.Flush()
	case "add-text":
		if err := needArgs(fs, 1, "sources add-text AGENT --content TEXT"); err != nil {
			return err
		}
		src, res, err := a.svc.Sources.AddText(ctx, resources.TextSourceInput{AgentID: fs.Arg(0), Title: *title, Content: *content})
		return printSource(out, src, res, err)
	case "add-url":
		if err := needArgs(fs, 2, "sources add-url AGENT URL"); err != nil {
			return err
		}
		src, res, err := a.svc.Sources.AddURL(ctx, resources.URLSourceInput{AgentID: fs.Arg(0), Title: *title, URL: fs.Arg(1)})
		return printSource(out, src, res, err)
	case "upload":
		if err := needArgs(fs, 2, "sources upload AGENT FILE"); err != nil {
			return err
		}
		f, err := os.Open(fs.Arg(1))
		if err != nil {
			return err
		}
		defer f.Close()
		src, err := a.svc.Sources.Upload(ctx, fs.Arg(0), filepath.Base(fs.Arg(1)), f)
		return printSource(out, src, client.Result{}, err)
	case "download":
		if err := needArgs(fs, 1, "sources download ID [FILE]"); err != nil {
			return err
		}
		return a.download(ctx, fs.Arg(0), fs.Arg(1), out)
	case "delete":
		if err := needArgs(fs, 1, "sources delete ID"); err != nil {
			return err
		}
		res, err := a.svc.Sources.Delete(ctx, fs.Arg(0))
		if err != nil {
			return err
		}
		if res.Deferred {
			printDeferred(out, res)
			return nil
		}
		fmt.Fprintf(out, "deleted source %s\n", fs.Arg(0))
		return nil
	}
	return fmt.Errorf("usage: sources list|add-text|add-url|upload|download|delete")
}

func printSource(out io.Writer, src *resources.Source, res client.Result, err error) error {
	if err != nil {
		return err
	}
	if src == nil {
		printDeferred(out, res)
		return nil
	}
	fmt.Fprintf(out, "added %s source %s\n", src.Kind, src.ID)
	return nil
}

// download writes to path, or to out when path is empty or "-". A partial
// file is removed on failure.
func (a *app) download(ctx context.Context, id, path string, out io.Writer) error {
	if path == "" || path == "-" {
		return a.svc.Sources.Download(ctx, id, out)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := a.svc.Sources.Download(ctx, id, f); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}

func (a *app) chat(ctx context.Context, args []string, out io.Writer) error {
	fs := newFlags("chat")
	session := fs.String("session", "", "continue an existing session")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := needArgs(fs, 2, "chat AGENT MESSAGE..."); err != nil {
		return err
	}
	reply, res, err := a.svc.Chat.Send(ctx, resources.ChatRequest{
		AgentID:   fs.Arg(0),
		SessionID: *session,
		Message:   strings.Join(fs.Args()[1:], " "),
	})
	if err != nil {
		return err
	}
	if reply == nil {
		printDeferred(out, res)
		return nil
	}
	fmt.Fprintf(out, "[%s] %s\n", reply.SessionID, reply.Reply.Content)
	return nil
}

func (a *app) history(ctx context.Context, args []string, out io.Writer) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: history SESSION")
	}
	msgs, err := a.svc.Chat.History(ctx, args[0])
	if err != nil {
		return err
	}
	for _, m := range msgs {
		fmt.Fprintf(out, "%s %-9s %s\n", m.CreatedAt.Format(time.TimeOnly), m.Role, m.Content)
	}
	return nil
}

func (a *app) queueCmd(ctx context.Context, args []string, out io.Writer) error {
	sub, args := subcommand(args)
	fs := newFlags("queue " + sub)
	timeout := fs.Duration("timeout", 30*time.Second, "how long to wait for the queue to empty")
	if err := fs.Parse(args); err != nil {
		return err
	}

	switch sub {
	case "", "status":
		printStatus(out, a.client.QueueStatus())
		return nil
	case "list":
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tPRIORITY\tMETHOD\tURL\tRETRIES\tQUEUED")
		for _, r := range a.queue.Requests() {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d/%d\t%s\n", r.ID, r.Priority, r.Method, r.URL, r.RetryCount, r.MaxRetries,
				time.UnixMilli(r.Timestamp).Format(time.DateTime))
		}
		return tw.Flush()
	case "clear":
		a.client.ClearQueue()
		fmt.Fprintln(out, "queue cleared")
		return nil
	case "drain":
		return a.drain(ctx, *timeout, out)
	}
	return fmt.Errorf("usage: queue status|list|clear|drain")
}

func printStatus(out io.Writer, st offline.Status) {
	state := "offline"
	if st.IsOnline {
		state = "online"
	}
	fmt.Fprintf(out, "%d queued (%d high, %d medium, %d low), %s\n", st.QueueLength, st.HighCount, st.MediumCount, st.LowCount, state)
}

var errStillQueued = errors.New("requests still queued")

// drain replays the queue now, waiting until it is empty or timeout elapses.
func (a *app) drain(ctx context.Context, timeout time.Duration, out io.Writer) error {
	if a.opts.offline {
		return errors.New("cannot drain with --offline")
	}
	if !a.prober.Check(ctx) {
		return errors.New("backend unreachable, nothing replayed")
	}
	a.queue.SetOnline(true)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		st := a.queue.Status()
		if st.QueueLength == 0 && !st.IsProcessing {
			printStatus(out, st)
			return nil
		}
		select {
		case <-ctx.Done():
			printStatus(out, st)
			return errStillQueued
		case <-ticker.C:
		}
	}
}

func (a *app) storageCmd(args []string, out io.Writer) error {
	if sub, _ := subcommand(args); sub != "info" && sub != "" {
		return fmt.Errorf("usage: storage info")
	}
	info, ok := a.kv.StorageInfo()
	if !ok {
		return errors.New("storage unavailable")
	}
	keys := make([]string, 0, len(info))
	for k := range info {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tBYTES")
	for _, k := range keys {
		fmt.Fprintf(tw, "%s\t%d\n", k, info[k])
	}
	return tw.Flush()
}
