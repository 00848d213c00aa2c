package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"lingolens/internal/app"
	"lingolens/internal/config"
	"lingolens/internal/httpapi"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		cfgPath      string
		addr         string
		modelsDir    string
		cardsFile    string
		imagesDir    string
		tempDir      string
		catalogFile  string
		defaultModel string
		targetLang   string
		hubBaseURL   string
		logLevel     string
		corsOrigins  string
	)

	cmd := &cobra.Command{
		Use:   "lingolens",
		Short: "Point-and-learn language server: camera frame in, spoken flashcard out",
		Long: "lingolens serves the orchestration core of a camera-to-flashcard language\n" +
			"learning app: model catalog and downloads, vision-language inference with\n" +
			"token streaming, translation, speech, and persisted flashcards.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Config{}
			if cfgPath != "" {
				loaded, err := config.Load(cfgPath)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				cfg = loaded
			}
			// Flags override the config file only when set explicitly.
			overlay := map[string]*string{
				"addr":          &cfg.Addr,
				"models-dir":    &cfg.ModelsDir,
				"cards-file":    &cfg.CardsFile,
				"card-images":   &cfg.CardImagesDir,
				"temp-dir":      &cfg.TempDir,
				"catalog":       &cfg.CatalogFile,
				"default-model": &cfg.DefaultModel,
				"target-lang":   &cfg.TargetLanguage,
				"hub-base-url":  &cfg.HubBaseURL,
			}
			values := map[string]string{
				"addr":          addr,
				"models-dir":    modelsDir,
				"cards-file":    cardsFile,
				"card-images":   imagesDir,
				"temp-dir":      tempDir,
				"catalog":       catalogFile,
				"default-model": defaultModel,
				"target-lang":   targetLang,
				"hub-base-url":  hubBaseURL,
			}
			for name, dst := range overlay {
				if cmd.Flags().Changed(name) || *dst == "" {
					*dst = values[name]
				}
			}
			if cfg.Addr == "" {
				cfg.Addr = ":8090"
			}
			return serve(cfg, logLevel, corsOrigins)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&cfgPath, "config", "c", "", "Config file (.yaml/.json/.toml)")
	f.StringVar(&addr, "addr", ":8090", "HTTP listen address")
	f.StringVar(&modelsDir, "models-dir", "", "Directory holding downloaded model files")
	f.StringVar(&cardsFile, "cards-file", "", "JSON snapshot of saved flashcards")
	f.StringVar(&imagesDir, "card-images", "", "Directory for card image copies")
	f.StringVar(&tempDir, "temp-dir", "", "Directory for per-capture temp files")
	f.StringVar(&catalogFile, "catalog", "", "Extra model catalog file")
	f.StringVar(&defaultModel, "default-model", "", "Model id used when a load request omits one")
	f.StringVar(&targetLang, "target-lang", "", "Default translation target language code")
	f.StringVar(&hubBaseURL, "hub-base-url", "", "Model hosting origin override")
	f.StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	f.StringVar(&corsOrigins, "cors-origins", "", "Comma-separated allowed CORS origins (empty disables CORS)")
	return cmd
}

func serve(cfg config.Config, logLevel, corsOrigins string) error {
	lvl, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(lvl).With().Timestamp().Logger()

	a, err := app.New(cfg, log)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a.Run(ctx)

	httpapi.SetLogger(log)
	httpapi.SetBaseContext(ctx)
	if origins := splitCSV(corsOrigins); len(origins) > 0 {
		httpapi.SetCORSOptions(true, origins,
			[]string{"GET", "POST", "DELETE", "OPTIONS"},
			[]string{"Accept", "Content-Type", "X-Log-Level"})
	}

	srv := &http.Server{Addr: cfg.Addr, Handler: httpapi.NewMux(a)}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Str("models_dir", cfg.ModelsDir).Msg("lingolens listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Graceful shutdown (Ctrl+C / SIGTERM)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-stop:
	}
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown error")
	}
	a.Close()
	return nil
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
