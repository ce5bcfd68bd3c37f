package cli

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/admitflow/admitflow/pkg/config"
	"github.com/admitflow/admitflow/pkg/log"
	"github.com/admitflow/admitflow/pkg/log/sinks"
)

type LintCmd struct {
	Site string `arg:"" help:"Path to the site configuration YAML."`
}

func (l *LintCmd) Run() error {
	router := log.NewRouter(sinks.NewConsoleSink())
	logger := log.NewZerologAdapter(zerolog.New(router).With().Timestamp().Logger())
	defer router.Close()

	logger.Info().Msgf("Validating %s", l.Site)

	site, err := config.LoadSiteFromFile(l.Site)
	if err != nil {
		logger.Error().Err(err).Msg("Site configuration validation failed")
		return fmt.Errorf("validating site configuration %q: %w", l.Site, err)
	}

	for _, phase := range site.Phases() {
		logger.Info().
			Str("phase", phase.Name).
			Int("steps", len(phase.Phase.Steps)).
			Msg("Phase validated")
	}
	if len(site.StatusRules) > 0 {
		logger.Info().Int("rules", len(site.StatusRules)).Msg("Status rules validated")
	}

	logger.Info().Msgf("Site configuration %q is valid", site.Name)
	return nil
}
