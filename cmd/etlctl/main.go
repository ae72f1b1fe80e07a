// Command etlctl submits source files to the data portal and inspects the
// upload history from a terminal.
package main

import (
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
	"text/tabwriter"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hiswaca/etl-console/internal/auth"
	"github.com/hiswaca/etl-console/internal/client"
	"github.com/hiswaca/etl-console/internal/config"
	"github.com/hiswaca/etl-console/internal/etl"
	"github.com/hiswaca/etl-console/internal/model"
)

const usage = `usage: etlctl <command> [flags]

commands:
  submit   -file PATH -model CODE|ID [-period YYYY-MM] [-public]
  uploads  [-page N] [-status PENDING|PROCESSING|COMPLETED|FAILED]
  models
  token    -user ID [-role ADMIN|PARTNER|PUBLIC] [-ttl 24h]
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var code int
	switch os.Args[1] {
	case "submit":
		code = runSubmit(ctx, cfg, os.Args[2:])
	case "uploads":
		code = runUploads(ctx, cfg, os.Args[2:])
	case "models":
		code = runModels(cfg)
	case "token":
		code = runToken(cfg, os.Args[2:])
	default:
		fmt.Fprint(os.Stderr, usage)
		code = 2
	}
	os.Exit(code)
}

// portalFlags registers the connection flags shared by every command
func portalFlags(fs *flag.FlagSet, cfg *config.Config) (baseURL, token *string) {
	baseURL = fs.String("base-url", cfg.Portal.BaseURL, "portal API base URL")
	token = fs.String("token", cfg.Portal.ServiceToken, "bearer token (default PORTAL_SERVICE_TOKEN)")
	return baseURL, token
}

func newPortalClient(cfg *config.Config, baseURL, token string) *client.PortalClient {
	portal := cfg.Portal
	portal.BaseURL = baseURL
	return client.NewPortalClient(&portal, auth.StaticCredentials(token))
}

func runSubmit(ctx context.Context, cfg *config.Config, args []string) int {
	fs := flag.NewFlagSet("submit", flag.ExitOnError)
	baseURL, token := portalFlags(fs, cfg)
	path := fs.String("file", "", "CSV or XLSX source file")
	dataModel := fs.String("model", "", "data model code or id")
	period := fs.String("period", "", "reference period (YYYY-MM)")
	public := fs.Bool("public", false, "publish the created indicators")
	cadence := fs.Duration("cadence", cfg.ETL.NarrationCadence, "delay between narration lines")
	verbose := fs.Bool("v", false, "show internal logs")
	_ = fs.Parse(args)

	if !*verbose {
		log.SetOutput(io.Discard)
	}

	jobCfg := model.IngestionJobConfig{
		DataModelID: *dataModel,
		Period:      *period,
		Public:      *public,
	}
	if *path != "" {
		f, err := os.Open(*path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "etlctl: %v\n", err)
			return 1
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			fmt.Fprintf(os.Stderr, "etlctl: %v\n", err)
			return 1
		}
		jobCfg.SourceFile = &model.SourceFile{Name: filepath.Base(*path), Size: info.Size(), Reader: f}
	}

	coord := etl.NewCoordinator(newPortalClient(cfg, *baseURL, *token), cfg.ETL.DataModels, nil)
	tracker := etl.NewTracker(coord, etl.Narrator{Cadence: *cadence}, printer{w: os.Stdout})

	job, err := tracker.Submit(ctx, etl.NewJob(), jobCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "etlctl: %v\n", err)
		return 2
	}
	if job.Status != model.IngestionDone {
		return 1
	}
	return 0
}

func runUploads(ctx context.Context, cfg *config.Config, args []string) int {
	fs := flag.NewFlagSet("uploads", flag.ExitOnError)
	baseURL, token := portalFlags(fs, cfg)
	page := fs.Int("page", 1, "page number")
	statusFlag := fs.String("status", "", "only uploads with this status")
	_ = fs.Parse(args)

	log.SetOutput(io.Discard)

	var status model.UploadStatus
	if *statusFlag != "" {
		var ok bool
		if status, ok = model.ParseUploadStatus(*statusFlag); !ok {
			fmt.Fprintf(os.Stderr, "etlctl: unknown status %q\n", *statusFlag)
			return 2
		}
	}

	result, err := newPortalClient(cfg, *baseURL, *token).ListUploads(ctx, *page, status)
	if err != nil {
		fmt.Fprintf(os.Stderr, "etlctl: %s\n", client.UserMessage(err))
		return 1
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tFILE\tFORMAT\tSTATUS\tROWS\tUPLOADED")
	for _, u := range result.Results {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d/%d\t%s\n",
			u.ID, u.FileName, u.FileFormat, u.Status, u.ProcessedRows, u.TotalRows,
			u.UploadedAt.Local().Format("2006-01-02 15:04"))
	}
	_ = tw.Flush()
	fmt.Printf("%d of %d uploads\n", len(result.Results), result.Count)
	return 0
}

func runModels(cfg *config.Config) int {
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCODE\tLABEL\tFORMAT")
	for _, m := range cfg.ETL.DataModels {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", m.ID, m.Code, m.Label, m.Format)
	}
	_ = tw.Flush()
	return 0
}

// runToken mints a development token signed with JWT_SECRET
func runToken(cfg *config.Config, args []string) int {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	user := fs.String("user", "", "user id")
	email := fs.String("email", "", "user email")
	role := fs.String("role", model.RoleAdmin, "portal role")
	ttl := fs.Duration("ttl", time.Duration(cfg.JWT.Expiration)*time.Hour, "token lifetime")
	_ = fs.Parse(args)

	if *user == "" {
		fmt.Fprintln(os.Stderr, "etlctl: -user is required")
		return 2
	}

	now := time.Now()
	token, err := auth.SignLegacyToken(cfg.JWT.Secret, auth.LegacyClaims{
		UserID: *user,
		Email:  *email,
		Role:   strings.ToUpper(*role),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(*ttl)),
		},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "etlctl: %v\n", err)
		return 1
	}
	fmt.Println(token)
	return 0
}

// printer writes narration lines as they are appended
type printer struct {
	w io.Writer
}

func (p printer) LineAppended(_ string, _ int, line string) {
	fmt.Fprintln(p.w, line)
}

func (p printer) JobChanged(job model.IngestionJob) {
	if job.Status == model.IngestionProcessing && job.DataModel != nil {
		fmt.Fprintf(p.w, "job %s: %s -> %s\n", job.ID, job.FileName, job.DataModel.Code)
	}
}
