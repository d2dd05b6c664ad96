// Package main provides a CLI for rendering combat logs locally and for
// submitting them to, or reading them back from, the report worker.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"moxie/internal/cache"
	"moxie/internal/config"
	"moxie/internal/db"
	"moxie/internal/processor"
	"moxie/internal/queue"
	"moxie/internal/report"
)

const usage = `usage:
  moxie render [-instant 40183,5539] [-pretty] <file>
  moxie submit <file>
  moxie show <upload-id>
  moxie migrate
`

// errUsage is returned for bad invocations; usage has already been printed.
var errUsage = errors.New("invalid arguments")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return errUsage
	}

	switch args[0] {
	case "render":
		return runRender(args[1:], stdout, stderr)
	case "submit":
		return runSubmit(ctx, args[1:], stdout, stderr)
	case "show":
		return runShow(ctx, args[1:], stdout, stderr)
	case "migrate":
		return runMigrate(ctx, args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n%s", args[0], usage)
		return errUsage
	}
}

func runRender(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("render", flag.ContinueOnError)
	fs.SetOutput(stderr)
	instant := fs.String("instant", "", "comma separated instant skill ids (default: INSTANT_SKILLS)")
	pretty := fs.Bool("pretty", false, "indent the JSON output")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if fs.NArg() != 1 {
		fmt.Fprint(stderr, usage)
		return errUsage
	}

	reducerCfg, err := config.LoadReducer()
	if err != nil {
		return err
	}
	if *instant != "" {
		ids, err := parseSkillIDs(*instant)
		if err != nil {
			return fmt.Errorf("parse -instant: %w", err)
		}
		reducerCfg.InstantSkills = ids
	}

	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}

	rep, err := report.NewBuilder(reducerCfg.InstantSet(), report.WithMaxRecordBytes(reducerCfg.MaxRecordBytes)).Build(data)
	if err != nil {
		return fmt.Errorf("%s: %w", report.Kind(err), err)
	}

	enc := json.NewEncoder(stdout)
	if *pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(rep)
}

func runSubmit(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) != 1 {
		fmt.Fprint(stderr, usage)
		return errUsage
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	pool, err := db.NewPool(ctx, cfg.DBURL, 1)
	if err != nil {
		return err
	}
	defer pool.Close()

	client, err := newRedisClient(cfg.RedisURL)
	if err != nil {
		return err
	}
	defer client.Close()

	id, err := db.NewUploadStore(pool).Insert(ctx, filepath.Base(args[0]), data)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(processor.JobPayload{UploadID: id.String()})
	if err != nil {
		return err
	}
	if err := queue.NewRedisQueue(client, cfg.RedisQueue).Enqueue(ctx, payload); err != nil {
		return err
	}

	fmt.Fprintln(stdout, id)
	return nil
}

func runShow(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) != 1 {
		fmt.Fprint(stderr, usage)
		return errUsage
	}

	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("parse upload id: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	client, err := newRedisClient(cfg.RedisURL)
	if err != nil {
		return err
	}
	defer client.Close()

	pool, err := db.NewPool(ctx, cfg.DBURL, 1)
	if err != nil {
		return err
	}
	defer pool.Close()

	return showReport(ctx, id,
		cache.NewReportCache(client, cfg.ResultTTL),
		db.NewUploadStore(pool),
		db.NewReportReader(pool),
		stdout, stderr)
}

type reportCache interface {
	Get(ctx context.Context, uploadID uuid.UUID) ([]byte, error)
	Put(ctx context.Context, uploadID uuid.UUID, reportJSON []byte) error
}

type uploadStatuses interface {
	GetStatus(ctx context.Context, id uuid.UUID) (*db.UploadStatus, error)
}

type storedReports interface {
	Load(ctx context.Context, uploadID uuid.UUID) (*report.Report, error)
}

// showReport prints the cached report, or rebuilds it from Postgres and
// re-caches it on a miss.
func showReport(ctx context.Context, id uuid.UUID, rc reportCache, uploads uploadStatuses, reports storedReports, stdout, stderr io.Writer) error {
	data, err := rc.Get(ctx, id)
	if err == nil {
		_, err = stdout.Write(append(data, '\n'))
		return err
	}
	if !errors.Is(err, cache.ErrMiss) {
		return err
	}

	st, err := uploads.GetStatus(ctx, id)
	if err != nil {
		return fmt.Errorf("upload %s: %w", id, err)
	}
	switch st.Status {
	case db.StatusFailed:
		return fmt.Errorf("upload %s failed: %s: %s", id, st.FailureKind, st.FailureMessage)
	case db.StatusPending:
		return fmt.Errorf("upload %s has not been processed yet", id)
	}

	rep, err := reports.Load(ctx, id)
	if err != nil {
		return fmt.Errorf("load report %s: %w", id, err)
	}
	data, err = json.Marshal(rep)
	if err != nil {
		return err
	}
	if err := rc.Put(ctx, id, data); err != nil {
		fmt.Fprintf(stderr, "warning: %v\n", err)
	}

	_, err = stdout.Write(append(data, '\n'))
	return err
}

func runMigrate(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) != 0 {
		fmt.Fprint(stderr, usage)
		return errUsage
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := db.Migrate(ctx, cfg.DBURL); err != nil {
		return err
	}
	fmt.Fprintln(stdout, "schema up to date")
	return nil
}

func newRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

func parseSkillIDs(s string) ([]uint32, error) {
	var ids []uint32
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseUint(part, 10, 32)
		if err != nil {
			return nil, err
		}
		ids = append(ids, uint32(id))
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no skill ids in %q", s)
	}
	return ids, nil
}
