package pipeline

import (
	"errors"
	"log/slog"

	"git.home.luguber.info/inful/assetbuilder/internal/config"
	"git.home.luguber.info/inful/assetbuilder/internal/history"
	"git.home.luguber.info/inful/assetbuilder/internal/notify"
)

// Services are the optional external services a pipeline reports to.
type Services struct {
	History  *history.Store
	Notifier notify.Publisher
}

// OpenServices connects the services configured in cfg. Unconfigured services
// stay nil.
func OpenServices(cfg *config.Config, logger *slog.Logger) (*Services, error) {
	s := &Services{}
	if cfg.History.Path != "" {
		store, err := history.Open(cfg.History.Path)
		if err != nil {
			return nil, err
		}
		s.History = store
	}
	if cfg.Notify.URL != "" {
		pub, err := notify.Connect(cfg.Notify, logger)
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		s.Notifier = pub
	}
	return s, nil
}

// Close releases every open service.
func (s *Services) Close() error {
	var errs []error
	if s.Notifier != nil {
		errs = append(errs, s.Notifier.Close())
	}
	if s.History != nil {
		errs = append(errs, s.History.Close())
	}
	return errors.Join(errs...)
}
