package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/lsp-toolkit/socialrecovery"
	"github.com/lsp-toolkit/socialrecovery/actor"
	"github.com/lsp-toolkit/socialrecovery/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	configFlag   = "config"
	profileFlag  = "profile"
	endpointFlag = "endpoint"
	networkFlag  = "network"
	logLevelFlag = "log-level"
)

// dialFunc connects to the JSON-RPC endpoint. Returned function releases the
// connection.
type dialFunc func(ctx context.Context, url string) (actor.Backend, func(), error)

func dialEthereum(ctx context.Context, url string) (actor.Backend, func(), error) {
	c, err := socialrecovery.DialBackend(ctx, url)
	if err != nil {
		return nil, nil, err
	}

	return c, c.Close, nil
}

type app struct {
	dial dialFunc

	configPath string
	profile    string
	endpoint   string
	network    string
	logLevel   string

	cfg *config.Config
	log *zap.Logger
}

func newApp() *app {
	return &app{dial: dialEthereum}
}

func (a *app) command() *cobra.Command {
	root := &cobra.Command{
		Use:               "socialrecovery",
		Short:             "Manages LSP11 social recovery of a LUKSO Universal Profile",
		SilenceUsage:      true,
		PersistentPreRunE: a.init,
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, configFlag, "", "Path to the YAML configuration file")
	flags.StringVar(&a.profile, profileFlag, "", "Address of the Universal Profile")
	flags.StringVar(&a.endpoint, endpointFlag, "", "JSON-RPC endpoint, overrides --network")
	flags.StringVar(&a.network, networkFlag, "", "Name of the network from the registry, e.g. 'l16'")
	flags.StringVar(&a.logLevel, logLevelFlag, "", "Logging level: debug, info, warn or error")

	root.AddCommand(
		deployCommand(a),
		addGuardianCommand(a),
		removeGuardianCommand(a),
		setThresholdCommand(a),
		setSecretCommand(a),
		voteCommand(a),
		recoverCommand(a),
		addressCommand(a),
		guardiansCommand(a),
		thresholdCommand(a),
		voteOfCommand(a),
		processesCommand(a),
		stateCommand(a),
		permissionsCommand(a),
		networksCommand(a),
	)

	return root
}

func (a *app) init(*cobra.Command, []string) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}

	if a.profile != "" {
		cfg.Profile = a.profile
	}
	if a.endpoint != "" {
		cfg.Endpoint = a.endpoint
	}
	if a.network != "" {
		cfg.Network = a.network
		if a.endpoint == "" {
			cfg.Endpoint = ""
		}
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}

	a.log, err = newLogger(cfg.Logging.Level)
	if err != nil {
		return err
	}

	a.cfg = cfg

	return nil
}

// newLogger builds development logger for debug level and production logger
// otherwise.
func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	var c zap.Config
	if lvl == zapcore.DebugLevel {
		c = zap.NewDevelopmentConfig()
	} else {
		c = zap.NewProductionConfig()
		c.Encoding = "console"
		c.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	c.Level = zap.NewAtomicLevelAt(lvl)

	return c.Build()
}

// client connects to the configured endpoint and constructs Client of the
// configured profile. Returned function releases the connection.
func (a *app) client(ctx context.Context, withSigner bool) (*socialrecovery.Client, func(), error) {
	if a.cfg.Profile == "" {
		return nil, nil, errors.New("missing profile address, use --profile")
	}

	target, err := parseAddress(a.cfg.Profile)
	if err != nil {
		return nil, nil, fmt.Errorf("profile: %w", err)
	}

	var signer actor.Signer
	if withSigner {
		signer, err = a.cfg.Signer()
		if err != nil {
			return nil, nil, fmt.Errorf("load signing key: %w", err)
		}
		if signer == nil {
			return nil, nil, fmt.Errorf("missing signing key, set %s or configure the key", config.EnvPrivateKey)
		}
	}

	code, err := a.cfg.Bytecode()
	if err != nil {
		return nil, nil, err
	}

	url, err := a.cfg.RPCURL()
	if err != nil {
		return nil, nil, err
	}

	backend, closeFn, err := a.dial(ctx, url)
	if err != nil {
		return nil, nil, err
	}

	c, err := socialrecovery.New(target, socialrecovery.Prm{
		Logger:           a.log,
		Backend:          backend,
		Signer:           signer,
		Networks:         a.cfg.Registry(),
		RecoveryBytecode: code,
		PollInterval:     a.cfg.PollInterval,
	})
	if err != nil {
		closeFn()
		return nil, nil, err
	}

	return c, closeFn, nil
}

// run wraps command action requiring Client.
func (a *app) run(withSigner bool, f func(cmd *cobra.Command, c *socialrecovery.Client, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		c, closeFn, err := a.client(cmd.Context(), withSigner)
		if err != nil {
			return err
		}
		defer closeFn()

		return f(cmd, c, args)
	}
}
