package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/admitflow/admitflow/pkg/browser"
	"github.com/admitflow/admitflow/pkg/config"
	"github.com/admitflow/admitflow/pkg/engine"
	"github.com/admitflow/admitflow/pkg/log"
	"github.com/admitflow/admitflow/pkg/log/sinks"
	"github.com/admitflow/admitflow/pkg/security"
	"github.com/admitflow/admitflow/pkg/storage"
	"github.com/admitflow/admitflow/pkg/vision"
)

type CheckCmd struct {
	Site     string `arg:"" help:"Path to the site configuration YAML."`
	Username string `help:"Portal account username." env:"ADMITFLOW_USERNAME" required:""`
	Password string `help:"Portal account password." env:"ADMITFLOW_PASSWORD" required:""`

	AppID        string `name:"app-id" help:"Application reference number to look up."`
	StudentName  string `help:"Applicant name to look up."`
	StudentEmail string `help:"Applicant email to look up."`

	Out        string `help:"Directory for offers, metadata, and logs." default:".admitflow"`
	Headless   bool   `help:"Run the browser headless." default:"true" negatable:""`
	RunTimeout int    `help:"Overall run budget in seconds." default:"600"`

	VisionModel string `help:"Multimodal model for visual element location." default:"gpt-4o"`
}

func (c *CheckCmd) Run() error {
	if c.AppID == "" && c.StudentName == "" && c.StudentEmail == "" {
		return fmt.Errorf("at least one of --app-id, --student-name, or --student-email is required")
	}

	runID := uuid.New().String()

	logsDir := filepath.Join(c.Out, "logs")
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return fmt.Errorf("creating logs directory %q: %w", logsDir, err)
	}
	logFilePath := filepath.Join(logsDir, fmt.Sprintf("%s.json", runID))
	fileSink, err := sinks.NewFileSink(logFilePath)
	if err != nil {
		return fmt.Errorf("creating file log sink: %w", err)
	}

	router := log.NewRouter(sinks.NewConsoleSink(), fileSink)
	router.SetRedactor(security.NewRedactor(c.Password))
	logger := log.NewZerologAdapter(zerolog.New(router).With().Timestamp().Logger())

	logger.Info().Str("run_id", runID).Msg("Starting application check")
	logger.Info().Msgf("Logs will be saved to %q", logFilePath)

	defer func() {
		if err := router.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "error during log shutdown: %v\n", err)
		}
	}()

	if err := godotenv.Load(); err != nil {
		logger.Warn().Err(err).Msg("No .env file found, relying on existing ENV")
	}

	site, err := config.LoadSiteFromFile(c.Site)
	if err != nil {
		logger.Error().Err(err).Msgf("Failed to load site configuration %s", c.Site)
		return fmt.Errorf("loading site configuration %q: %w", c.Site, err)
	}
	logger.Info().Msgf("Loaded site configuration: %q", site.Name)

	downloadDir := filepath.Join(c.Out, "downloads")
	if err := os.MkdirAll(downloadDir, 0o755); err != nil {
		return fmt.Errorf("creating downloads directory %q: %w", downloadDir, err)
	}
	downloadDir, err = filepath.Abs(downloadDir)
	if err != nil {
		return fmt.Errorf("resolving downloads directory: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(c.RunTimeout)*time.Second)
	defer cancel()

	driver := browser.NewChrome(browser.Options{
		Headless:    c.Headless,
		DownloadDir: downloadDir,
	}, logger)
	if err := driver.Start(ctx); err != nil {
		logger.Error().Err(err).Msg("Failed to launch browser")
		return fmt.Errorf("launching browser: %w", err)
	}
	defer driver.Close()

	locator := c.buildLocator(logger)

	store := storage.NewStore(c.Out)
	eng := engine.New(site, driver, locator, store, logger)

	result := eng.Execute(ctx, engine.RunRequest{
		RunID:         runID,
		Username:      c.Username,
		Password:      c.Password,
		ApplicationID: c.AppID,
		StudentName:   c.StudentName,
		StudentEmail:  c.StudentEmail,
	})

	if !result.Success {
		return fmt.Errorf("run failed during %s (last completed %s): %s",
			result.FailedState, result.CompletedState, result.Reason)
	}

	logger.Info().Str("status", result.Status).Msgf("Application status: %s", result.Status)
	if result.Downloaded {
		logger.Info().Msgf("Offer saved to %q", result.OfferPath)
	}
	return nil
}

// buildLocator wires the visual fallback tier when an API key is
// available and degrades to the always-miss locator otherwise.
func (c *CheckCmd) buildLocator(logger log.Logger) vision.Locator {
	if os.Getenv("OPENAI_API_KEY") == "" {
		logger.Warn().Msg("OPENAI_API_KEY not set, visual element location disabled")
		return vision.Disabled{}
	}
	model, err := openai.New(openai.WithModel(c.VisionModel))
	if err != nil {
		logger.Warn().Err(err).Msg("Could not initialize vision model, visual element location disabled")
		return vision.Disabled{}
	}
	return vision.NewLLMLocator(model, logger)
}
