package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"gitlab.com/d21d3q/minowmbus/internal/config"
	"gitlab.com/d21d3q/minowmbus/internal/publish"
	"gitlab.com/d21d3q/minowmbus/internal/store"
	"gitlab.com/d21d3q/minowmbus/pkg/minowmbus"
)

var (
	rootCmd = &cobra.Command{
		Use:   "minowmbus-analyze [hex]",
		Short: "Decode Wireless M-Bus telegrams of minomess water meters",
		Long: "minowmbus-analyze decodes Wireless M-Bus telegrams of Zenner/Mino minomess meters.\n" +
			"Without an argument it reads one telegram per line from stdin.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession()
			if err != nil {
				return err
			}
			defer s.close()
			ctx := cmd.Context()
			if len(args) == 0 {
				return s.runInteractive(ctx)
			}
			return s.analyze(ctx, args[0])
		},
	}

	keyHex      string
	configPath  string
	debug       bool
	dbPath      string
	natsURL     string
	natsSubject string
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&keyHex, "key", "", "hex-encoded 16-byte AES key (32 hex chars)")
	flags.StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	flags.BoolVar(&debug, "debug", false, "enable debug logging")
	flags.StringVar(&dbPath, "db", "", "store readings in this SQLite database")
	flags.StringVar(&natsURL, "nats-url", "", "publish readings to this NATS server")
	flags.StringVar(&natsSubject, "nats-subject", "", "base NATS subject (default "+config.DefaultSubject+")")
}

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	ctx := context.Background()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logrus.Fatal(err)
	}
}

type session struct {
	analyzer  *minowmbus.Analyzer
	opts      minowmbus.AnalyzeOptions
	db        *store.DB
	publisher *publish.Publisher
}

func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if dbPath != "" {
		cfg.Store.SQLitePath = dbPath
	}
	if natsURL != "" {
		cfg.NATS.URL = natsURL
	}
	if natsSubject != "" {
		cfg.NATS.Subject = natsSubject
	}
	if debug {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

func newSession() (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logrus.SetLevel(cfg.Level())

	s := &session{
		analyzer: minowmbus.NewAnalyzer(),
		opts:     cfg.AnalyzeOptions(keyHex),
	}
	logrus.WithFields(logrus.Fields{
		"drivers": s.analyzer.Drivers(),
		"meters":  len(cfg.Meters),
	}).Debug("analyzer ready")

	if cfg.Store.SQLitePath != "" {
		s.db, err = store.Open(cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		logrus.WithField("path", cfg.Store.SQLitePath).Info("storing readings")
	}
	if cfg.NATS.URL != "" {
		s.publisher, err = publish.Connect(cfg.NATS.URL, cfg.NATS.Subject)
		if err != nil {
			s.close()
			return nil, err
		}
		logrus.WithFields(logrus.Fields{"url": cfg.NATS.URL, "subject": cfg.NATS.Subject}).Info("publishing readings")
	}
	return s, nil
}

func (s *session) close() {
	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			logrus.WithError(err).Warn("failed to drain nats connection")
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			logrus.WithError(err).Warn("failed to close database")
		}
	}
}

func (s *session) runInteractive(ctx context.Context) error {
	scanner := bufio.NewScanner(os.Stdin)
	logrus.Info("minowmbus analyze mode. Paste a hex telegram and press Enter (Ctrl+D to exit).")
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := s.analyze(ctx, line); err != nil {
			logrus.WithError(err).Error("failed to decode telegram")
		}
	}
	return scanner.Err()
}

func (s *session) analyze(ctx context.Context, hex string) error {
	result, err := s.analyzer.Analyze(ctx, hex, s.opts)
	if err != nil {
		return err
	}
	fmt.Println(result.String())

	receivedAt := time.Now()
	if s.db != nil && result.Fields != nil {
		id, err := s.db.Insert(ctx, receivedAt, result)
		if err != nil {
			return err
		}
		logrus.WithFields(logrus.Fields{"meter_id": result.MeterID(), "reading": id}).Debug("stored reading")
	}
	if s.publisher != nil {
		if err := s.publisher.Publish(receivedAt, result); err != nil {
			return err
		}
	}
	return nil
}
