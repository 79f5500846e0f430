// Package agentcli is the field agent: it hosts the tracker against the REST
// gateway (or straight against the database with --direct).
package agentcli

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"fieldforce_backend/internals/configs"
	database "fieldforce_backend/internals/databases"
	"fieldforce_backend/internals/features/attendance/metrics"
	"fieldforce_backend/internals/features/attendance/sessions/service"
	"fieldforce_backend/internals/features/attendance/tracker"
	"fieldforce_backend/internals/features/attendance/tracker/gatewayclient"
	"fieldforce_backend/internals/features/attendance/tracker/geo"
	authRepo "fieldforce_backend/internals/features/users/auth/repository"
	helperOSS "fieldforce_backend/internals/helpers/oss"
)

var ErrUsage = errors.New("usage")

const usageText = `fieldagent <command> [flags]

commands:
  login     sign in and store the access token
  logout    forget the stored token
  status    show the open session and today's totals
  checkin   --odometer N [--photo file] [--with-location]
  checkout  --odometer N [--photo file] [--with-location]
  sample    record the current location now
  run       interactive session with background location sampling

common flags: --token-file, --geo (static:lat,lng | replay:file | replay-loop:file | denied),
              --direct --user NAME (talk to the database instead of the API)`

func Usage() string { return usageText }

func Execute(args []string) error {
	if len(args) < 1 {
		return usageError()
	}
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return execute(ctx, args, os.Stdin, os.Stdout)
}

func usageError() error {
	return fmt.Errorf("%w: %s", ErrUsage, usageText)
}

func execute(ctx context.Context, args []string, in io.Reader, out io.Writer) error {
	switch args[0] {
	case "login":
		return runLogin(ctx, args[1:], in, out)
	case "logout":
		return runLogout(args[1:], out)
	case "status":
		return runStatus(ctx, args[1:], out)
	case "checkin":
		return runCheckIn(ctx, args[1:], out)
	case "checkout":
		return runCheckOut(ctx, args[1:], out)
	case "sample":
		return runSample(ctx, args[1:], out)
	case "run":
		return runLoop(ctx, args[1:], in, out)
	case "help", "-h", "--help":
		_, err := fmt.Fprintln(out, usageText)
		return err
	default:
		return usageError()
	}
}

/* ====================== shared setup ====================== */

type commonFlags struct {
	tokenFile string
	geo       string
	direct    bool
	user      string
}

func (f *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.tokenFile, "token-file", defaultTokenFile(), "where login stores the access token")
	fs.StringVar(&f.geo, "geo", configs.GetEnv("FIELDAGENT_GEO", "denied"), "location source")
	fs.BoolVar(&f.direct, "direct", false, "use the database (DB_* env) instead of the API")
	fs.StringVar(&f.user, "user", "", "user name or email for --direct")
}

// agent is everything a command needs to drive one user's tracker.
type agent struct {
	gw       tracker.Gateway
	geo      tracker.Geolocator
	cfg      tracker.Config
	userID   uuid.UUID
	userName string
	upload   func(ctx context.Context, filename string, data []byte) (string, error)
	close    func()
}

func (a *agent) newTracker() *tracker.Tracker {
	return tracker.New(a.gw, a.geo, a.userID, a.cfg)
}

func connect(ctx context.Context, f commonFlags) (*agent, error) {
	src, err := geo.Parse(f.geo)
	if err != nil {
		return nil, err
	}
	a := &agent{geo: src, cfg: tracker.LoadConfig(), close: func() {}}

	if f.direct {
		return connectDirect(ctx, a, f.user)
	}

	creds, err := LoadCredentials(f.tokenFile)
	if err != nil {
		return nil, err
	}
	if creds.Expired(time.Now()) {
		return nil, errors.Wrap(ErrNotLoggedIn, "stored token expired")
	}
	client := gatewayclient.New(creds.BaseURL, creds.Token, creds.UserID)
	a.gw, a.userID, a.userName = client, creds.UserID, creds.UserName
	a.upload = client.UploadPhoto
	return a, nil
}

func connectDirect(ctx context.Context, a *agent, ident string) (*agent, error) {
	if strings.TrimSpace(ident) == "" {
		return nil, errors.New("--user is required with --direct")
	}
	db, err := database.Open(configs.GetEnv("DB_DRIVER", "postgres"))
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	closeDB := func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	user, err := authRepo.FindUserByEmailOrUsername(db.WithContext(ctx), ident)
	if err != nil {
		closeDB()
		return nil, errors.Wrapf(err, "user %q", ident)
	}
	if !user.IsActive {
		closeDB()
		return nil, errors.Errorf("user %q is deactivated", ident)
	}

	svc := service.NewAttendanceService(db)
	svc.Location = a.cfg.Location
	a.gw = service.NewDirectGateway(svc, user.ID)
	a.userID, a.userName = user.ID, user.UserName
	store := helperOSS.NewPhotoStoreFromEnv()
	a.upload = func(ctx context.Context, filename string, data []byte) (string, error) {
		return store.SavePhoto(ctx, user.ID, filename, data)
	}
	a.close = closeDB
	return a, nil
}

func (a *agent) photoURL(ctx context.Context, path string) (*string, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	url, err := a.upload(ctx, filepath.Base(path), data)
	if err != nil {
		return nil, errors.Wrap(err, "upload photo")
	}
	return &url, nil
}

// position reads one fix for a manual check-in/out. A failed read is logged and
// the operation goes ahead without a location.
func (a *agent) position(ctx context.Context) *tracker.Position {
	p, err := a.geo.CurrentPosition(ctx, tracker.PositionOptions{EnableHighAccuracy: true, Timeout: a.cfg.GeoTimeout})
	if err != nil {
		log.Printf("[WARN] no location for this action: %v", err)
		return nil
	}
	return &p
}

func printJSON(out io.Writer, v interface{}) error {
	raw, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(raw))
	return err
}

/* ====================== login / logout ====================== */

func runLogin(ctx context.Context, args []string, in io.Reader, out io.Writer) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	baseURL := fs.String("base-url", configs.GetEnv("FIELDAGENT_BASE_URL", "http://localhost:3000"), "API base URL")
	identifier := fs.String("identifier", "", "user name or email")
	password := fs.String("password", configs.GetEnv("FIELDAGENT_PASSWORD"), "password (prompted when empty)")
	tokenFile := fs.String("token-file", defaultTokenFile(), "where to store the access token")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *identifier == "" {
		return errors.New("--identifier is required")
	}
	if *password == "" {
		fmt.Fprint(out, "password: ")
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && line == "" {
			return errors.Wrap(err, "read password")
		}
		*password = strings.TrimSpace(line)
	}

	client := gatewayclient.New(*baseURL, "", uuid.Nil)
	res, err := client.Login(ctx, *identifier, *password)
	if err != nil {
		return err
	}
	if err := SaveCredentials(*tokenFile, &Credentials{
		BaseURL:   client.BaseURL,
		Token:     res.Token,
		UserID:    res.UserID,
		UserName:  res.UserName,
		ExpiresAt: res.ExpiresAt,
	}); err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "logged in as %s (%s), token valid until %s\n",
		res.UserName, res.UserID, res.ExpiresAt.Format(time.RFC3339))
	return err
}

func runLogout(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("logout", flag.ContinueOnError)
	tokenFile := fs.String("token-file", defaultTokenFile(), "stored token")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := RemoveCredentials(*tokenFile); err != nil {
		return err
	}
	_, err := fmt.Fprintln(out, "logged out")
	return err
}

/* ====================== one-shot commands ====================== */

type statusView struct {
	UserID      uuid.UUID            `json:"user_id"`
	UserName    string               `json:"user_name,omitempty"`
	State       tracker.State        `json:"state"`
	OpenSession *tracker.Session     `json:"open_session,omitempty"`
	Today       metrics.DailySummary `json:"today"`
}

func runStatus(ctx context.Context, args []string, out io.Writer) error {
	var cf commonFlags
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	cf.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	a, err := connect(ctx, cf)
	if err != nil {
		return err
	}
	defer a.close()

	v, err := a.status(ctx)
	if err != nil {
		return err
	}
	return printJSON(out, v)
}

func (a *agent) status(ctx context.Context) (*statusView, error) {
	open, err := a.gw.GetOpenSession(ctx, a.userID)
	if err != nil {
		return nil, err
	}
	day, _ := metrics.DayBounds(a.cfg.Now(), a.cfg.Location)
	list, err := a.gw.ListSessionsForDay(ctx, a.userID, day)
	if err != nil {
		return nil, err
	}
	facts := make([]metrics.SessionFacts, 0, len(list))
	for _, s := range list {
		facts = append(facts, s.Facts())
	}
	v := &statusView{
		UserID:      a.userID,
		UserName:    a.userName,
		State:       tracker.StateCheckedOut,
		OpenSession: open,
		Today:       metrics.Summarize(a.userID, day, facts),
	}
	if open != nil {
		v.State = tracker.StateCheckedIn
	}
	return v, nil
}

type actionFlags struct {
	commonFlags
	odometer     float64
	photo        string
	withLocation bool
}

func parseAction(name string, args []string) (*actionFlags, error) {
	var af actionFlags
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	af.register(fs)
	fs.Float64Var(&af.odometer, "odometer", -1, "odometer reading")
	fs.StringVar(&af.photo, "photo", "", "photo file to upload")
	fs.BoolVar(&af.withLocation, "with-location", false, "attach the current location")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	seen := false
	fs.Visit(func(f *flag.Flag) { seen = seen || f.Name == "odometer" })
	if !seen {
		return nil, errors.New("--odometer is required")
	}
	return &af, nil
}

func runCheckIn(ctx context.Context, args []string, out io.Writer) error {
	af, err := parseAction("checkin", args)
	if err != nil {
		return err
	}
	a, err := connect(ctx, af.commonFlags)
	if err != nil {
		return err
	}
	defer a.close()

	t := a.newTracker()
	defer t.Close()
	if _, err := t.Recover(ctx); err != nil {
		return err
	}
	res, err := a.checkIn(ctx, t, af.odometer, af.photo, af.withLocation)
	if err != nil {
		return err
	}
	return printJSON(out, res)
}

func (a *agent) checkIn(ctx context.Context, t *tracker.Tracker, odometer float64, photo string, withLocation bool) (*tracker.CheckInResult, error) {
	url, err := a.photoURL(ctx, photo)
	if err != nil {
		return nil, err
	}
	req := tracker.CheckInRequest{Odometer: odometer, PhotoURL: url}
	if withLocation {
		req.Location = a.position(ctx)
	}
	return t.CheckIn(ctx, req)
}

func runCheckOut(ctx context.Context, args []string, out io.Writer) error {
	af, err := parseAction("checkout", args)
	if err != nil {
		return err
	}
	a, err := connect(ctx, af.commonFlags)
	if err != nil {
		return err
	}
	defer a.close()

	t := a.newTracker()
	defer t.Close()
	if _, err := t.Recover(ctx); err != nil {
		return err
	}
	res, err := a.checkOut(ctx, t, af.odometer, af.photo, af.withLocation)
	if err != nil {
		return err
	}
	return printJSON(out, res)
}

func (a *agent) checkOut(ctx context.Context, t *tracker.Tracker, odometer float64, photo string, withLocation bool) (*tracker.CheckOutResult, error) {
	url, err := a.photoURL(ctx, photo)
	if err != nil {
		return nil, err
	}
	req := tracker.CheckOutRequest{Odometer: odometer, PhotoURL: url}
	if withLocation {
		req.Location = a.position(ctx)
	}
	res, err := t.CheckOut(ctx, req)
	if err != nil {
		return nil, err
	}
	for _, w := range res.Warnings {
		log.Printf("[WARN] %s", w)
	}
	return res, nil
}

func runSample(ctx context.Context, args []string, out io.Writer) error {
	var cf commonFlags
	fs := flag.NewFlagSet("sample", flag.ContinueOnError)
	cf.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	a, err := connect(ctx, cf)
	if err != nil {
		return err
	}
	defer a.close()

	t := a.newTracker()
	defer t.Close()
	if _, err := t.Recover(ctx); err != nil {
		return err
	}
	s, err := t.SampleNow(ctx)
	if err != nil {
		return err
	}
	return printJSON(out, s)
}
