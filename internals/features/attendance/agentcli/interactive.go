package agentcli

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"

	"fieldforce_backend/internals/features/attendance/tracker"
)

const interactiveHelp = `commands:
  in <odometer> [photo-file]    check in (with the current location)
  out <odometer> [photo-file]   check out
  sample                        record the current location now
  resume                        app came back to the foreground; sample if due
  status                        open session and today's totals
  quit                          stop sampling and exit (an open session stays open)`

func runLoop(ctx context.Context, args []string, in io.Reader, out io.Writer) error {
	var cf commonFlags
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	cf.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	a, err := connect(ctx, cf)
	if err != nil {
		return err
	}
	defer a.close()
	return a.interactive(ctx, in, out)
}

// interactive keeps one tracker alive for the whole run so its sampler keeps
// recording between commands.
func (a *agent) interactive(ctx context.Context, in io.Reader, out io.Writer) error {
	t := a.newTracker()
	defer t.Close()

	if sess, err := t.Recover(ctx); err != nil {
		fmt.Fprintf(out, "could not check for an open session: %v\n", err)
	} else if sess != nil {
		fmt.Fprintf(out, "resumed open session %s\n", sess.ID)
	}
	fmt.Fprintf(out, "%s is %s. Type `help` for commands.\n", a.userName, t.State())

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		fmt.Fprint(out, "> ")
		var line string
		var ok bool
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return nil
		case line, ok = <-lines:
			if !ok {
				return nil
			}
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch strings.ToLower(fields[0]) {
		case "quit", "exit":
			if t.State() == tracker.StateCheckedIn {
				fmt.Fprintf(out, "session %s stays open; sampling stops until the agent runs again\n", t.SessionID())
			}
			return nil
		case "help", "?":
			fmt.Fprintln(out, interactiveHelp)
		case "status":
			v, err := a.status(ctx)
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
				continue
			}
			_ = printJSON(out, struct {
				*statusView
				Local interface{} `json:"local"`
			}{v, t.Status()})
		case "in", "checkin":
			odo, photo, err := odometerArgs(fields)
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
				continue
			}
			res, err := a.checkIn(ctx, t, odo, photo, true)
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
				continue
			}
			fmt.Fprintf(out, "checked in: session %s at %s\n", res.SessionID, res.CheckInAt.Format("15:04:05"))
		case "out", "checkout":
			odo, photo, err := odometerArgs(fields)
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
				continue
			}
			res, err := a.checkOut(ctx, t, odo, photo, true)
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
				continue
			}
			fmt.Fprintf(out, "checked out: %d min, distance %.1f\n", res.DurationMinutes, res.Distance)
			if res.DistanceClamped {
				fmt.Fprintln(out, "warning: odometer went down; distance recorded as 0")
			}
		case "sample":
			s, err := t.SampleNow(ctx)
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
				continue
			}
			if s == nil {
				fmt.Fprintln(out, "no sample taken")
				continue
			}
			fmt.Fprintf(out, "sample %.5f,%.5f at %s\n", s.Latitude, s.Longitude, s.CapturedAt.Format("15:04:05"))
		case "resume":
			t.Nudge()
		default:
			fmt.Fprintf(out, "unknown command %q\n", fields[0])
			log.Printf("[WARN] unknown interactive command %q", fields[0])
		}
	}
}

func odometerArgs(fields []string) (float64, string, error) {
	if len(fields) < 2 {
		return 0, "", fmt.Errorf("usage: %s <odometer> [photo-file]", fields[0])
	}
	odo, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return 0, "", fmt.Errorf("odometer %q is not a number", fields[1])
	}
	photo := ""
	if len(fields) > 2 {
		photo = fields[2]
	}
	return odo, photo, nil
}
