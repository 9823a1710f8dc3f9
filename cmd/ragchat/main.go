package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"ragchat/internal/bootstrap"
	"ragchat/internal/config"
	"ragchat/internal/logger"
	"ragchat/internal/tui"
	"ragchat/internal/watcher"
)

func main() {
	_ = godotenv.Load()

	var cfgPath, watchDir string
	flag.StringVar(&cfgPath, "config", "", "Path to YAML or TOML config file (optional; uses ~/.config/ragchat/config.yaml if not provided)")
	flag.StringVar(&watchDir, "watch", "", "Directory to watch; new and changed documents are ingested automatically")
	flag.Usage = func() {
		fmt.Fprintln(flag.CommandLine.Output(), "Usage: ragchat [--config=config.yaml] [--watch=dir] [file1.pdf file2.md ...]")
		flag.PrintDefaults()
	}
	flag.Parse()

	var cfg *config.AppConfig
	var err error
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	// The terminal belongs to the UI, so logs always go to a file.
	if cfg.Log.File == "" {
		cfg.Log.File = filepath.Join(os.TempDir(), "ragchat.log")
	}
	lg, logCloser, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("failed to open log: %v", err)
	}
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	factory, err := bootstrap.New(ctx, cfg, lg)
	if err != nil {
		log.Fatalf("failed to initialise components: %v", err)
	}
	defer factory.Close()

	kb, err := factory.NewKnowledgeBase("local")
	if err != nil {
		log.Fatalf("failed to create knowledge base: %v", err)
	}

	var program *tea.Program
	var opts []tui.Option
	var w *watcher.Watcher
	if watchDir != "" {
		w = watcher.New(watchDir, func(ctx context.Context, path string) error {
			report, err := kb.Ingest(ctx, path)
			if err != nil {
				program.Send(tui.NoticeMsg(fmt.Sprintf("Watcher could not ingest %s: %v", filepath.Base(path), err)))
				return err
			}
			program.Send(tui.NoticeMsg(fmt.Sprintf("Watcher ingested %s (%d chunks) in %.2f seconds",
				report.Source, report.Chunks, report.Duration.Seconds())))
			return nil
		}, 500*time.Millisecond, lg.With("component", "watcher"))
		// A cleared knowledge base must take watched files again even if unchanged.
		opts = append(opts, tui.OnClear(w.Forget))
	}
	program = tea.NewProgram(tui.New(ctx, kb, flag.Args(), opts...), tea.WithAltScreen(), tea.WithContext(ctx))
	if w != nil {
		go func() {
			if err := w.Run(ctx); err != nil {
				lg.Error("watcher stopped", "error", err)
				program.Send(tui.NoticeMsg("Directory watcher stopped: " + err.Error()))
			}
		}()
	}

	if _, err := program.Run(); err != nil && ctx.Err() == nil {
		log.Fatal(err)
	}
	_ = kb.Clear(context.Background())
}
