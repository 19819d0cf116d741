package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kapu/enginearena/internal/board"
	appcfg "github.com/kapu/enginearena/internal/config"
	"github.com/kapu/enginearena/internal/engine"
	"github.com/kapu/enginearena/internal/match"
	"github.com/kapu/enginearena/internal/obslog"
)

// procStream adapts a spawned engine process to the duplex stream a
// session expects: reads come from stdout, writes go to stdin.
type procStream struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
}

func (p *procStream) Read(b []byte) (int, error)  { return p.stdout.Read(b) }
func (p *procStream) Write(b []byte) (int, error) { return p.stdin.Write(b) }

func (p *procStream) Close() error {
	_ = p.stdin.Close()
	_ = p.stdout.Close()
	done := make(chan struct{})
	go func() {
		_ = p.cmd.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		if p.cmd.Process != nil {
			_ = p.cmd.Process.Kill()
		}
		<-done
	}
	return nil
}

func spawnEngine(command string) (*procStream, error) {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty engine command")
	}
	cmd := exec.Command(parts[0], parts[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", parts[0], err)
	}
	return &procStream{cmd: cmd, stdin: stdin, stdout: stdout}, nil
}

func newBoard(variant string) (board.Board, error) {
	switch variant {
	case "standard":
		return board.NewStandard(), nil
	case "crazyhouse":
		return board.NewCrazyhouse(), nil
	}
	return nil, fmt.Errorf("unknown variant %q", variant)
}

func buildSession(ids *engine.IDSource, name, command, settingsPath string, cfg *appcfg.AppConfig) (*engine.Session, error) {
	stream, err := spawnEngine(command)
	if err != nil {
		return nil, err
	}
	s := engine.NewSession(ids, name, stream, engine.UCI{},
		engine.WithLogger(obslog.L()),
		engine.WithHeartbeatTimeout(cfg.HeartbeatTimeout),
	)
	if settingsPath != "" {
		st, err := engine.LoadSettings(settingsPath)
		if err != nil {
			return nil, fmt.Errorf("settings for %s: %w", name, err)
		}
		s.ApplySettings(st)
	}
	return s, nil
}

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	logger := obslog.L()
	defer func() { _ = logger.Sync() }()

	b, err := newBoard(cfg.Variant)
	if err != nil {
		log.Fatalf("board init error: %v", err)
	}
	tc, err := engine.ParseTimeControl(cfg.TimeControl)
	if err != nil {
		log.Fatalf("time control error: %v", err)
	}

	ids := engine.NewIDSource()
	white, err := buildSession(ids, "white", cfg.WhiteEngineCmd, cfg.WhiteSettingsPath, cfg)
	if err != nil {
		log.Fatalf("white engine error: %v", err)
	}
	black, err := buildSession(ids, "black", cfg.BlackEngineCmd, cfg.BlackSettingsPath, cfg)
	if err != nil {
		log.Fatalf("black engine error: %v", err)
	}

	driver := match.NewDriver(logger, b, white, black, match.Config{
		MaxPlies:    cfg.MaxPlies,
		TimeControl: tc,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go white.Run(ctx)
	go black.Run(ctx)

	rec, err := driver.Play(ctx)
	if err != nil {
		logger.Error("game_aborted", zap.Error(err))
	}

	for _, s := range []*engine.Session{white, black} {
		s := s
		s.Post(func() { s.Quit() })
	}

	persist(ctx, cfg, logger, rec)

	fmt.Printf("%s vs %s: %s (%s), %d plies\n",
		rec.White, rec.Black, rec.Result, rec.Termination, rec.Plies)
	fmt.Println(strings.Join(rec.MovesUCI, " "))
}

func persist(ctx context.Context, cfg *appcfg.AppConfig, logger *zap.Logger, rec *match.Record) {
	// persistence failures are reported, never fatal
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Warn("redis_url_invalid", zap.Error(err))
		} else {
			rdb := redis.NewClient(opts)
			defer func() { _ = rdb.Close() }()
			if err := match.NewStore(rdb, cfg.RecordTTL).Save(pctx, rec); err != nil {
				logger.Warn("record_store_failed", zap.Error(err))
			}
		}
	}

	if cfg.DatabaseURL != "" {
		repo, err := match.NewRepository(cfg.DatabaseURL)
		if err != nil {
			logger.Warn("archive_open_failed", zap.Error(err))
			return
		}
		defer func() { _ = repo.Close() }()
		if err := repo.EnsureSchema(pctx); err != nil {
			logger.Warn("archive_schema_failed", zap.Error(err))
			return
		}
		if err := repo.Archive(pctx, rec); err != nil {
			logger.Warn("archive_failed", zap.Error(err))
		}
	}
}
