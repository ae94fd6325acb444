package cmd

import (
	"context"
	"crypto/ecdsa"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog/log"
	"golang.org/x/xerrors"

	"go.dedis.ch/mpcagent/agent"
	"go.dedis.ch/mpcagent/distribute"
	"go.dedis.ch/mpcagent/engine/mpspdz"
	"go.dedis.ch/mpcagent/fetch"
	"go.dedis.ch/mpcagent/registry"
	"go.dedis.ch/mpcagent/session"
	"go.dedis.ch/mpcagent/slotpool"
)

// -----------------------------------------------------------------------------
// Computation agent

// StartComputation wires and runs one computation agent from its config file
func StartComputation(confPath string) error {
	conf, err := agent.ConfigFromYAML(confPath)
	if err != nil {
		return xerrors.Errorf("failed to load config: %v", err)
	}

	reg, err := registry.New(conf.Agents)
	if err != nil {
		return err
	}
	playerID, ok := reg.Index(conf.Self)
	if !ok {
		return xerrors.Errorf("self address %s is not in the agent registry", conf.Self)
	}

	pool := slotpool.NewPool(conf.PortBase, conf.PortStep, conf.SlotCount)
	invoker := mpspdz.NewInvoker(conf.EngineDir)

	manager := session.NewManager(session.Config{
		Protocol:     conf.Protocol,
		PlayerID:     playerID,
		PlayerHosts:  reg.Addresses(),
		Programs:     conf.Programs,
		RunTimeout:   conf.RunTimeoutDuration(),
		GracePeriod:  conf.GracePeriodDuration(),
		RetentionTTL: conf.RetentionTTLDuration(),
	}, pool, invoker)

	err = manager.RetentionDaemon(context.Background(), conf.RetentionTTLDuration())
	if err != nil {
		return err
	}

	log.Info().Int("player", playerID).Int("port_base", conf.PortBase).
		Int("slots", conf.SlotCount).Msg("starting computation agent")

	return agent.NewComputationServer(conf.Listen, manager).Start()
}

// -----------------------------------------------------------------------------
// Encryption agent

// StartEncryption wires and runs one encryption agent from its config file.
// With daemon set it only serves the HTTP API; otherwise an interactive
// prompt drives distributions from the terminal.
func StartEncryption(confPath string, daemon bool) error {
	conf, err := agent.ConfigFromYAML(confPath)
	if err != nil {
		return xerrors.Errorf("failed to load config: %v", err)
	}

	reg, err := registry.New(conf.Agents)
	if err != nil {
		return err
	}

	var key *ecdsa.PrivateKey
	if conf.KeyFile != "" {
		key, err = crypto.LoadECDSA(conf.KeyFile)
		if err != nil {
			return xerrors.Errorf("failed to load signing key: %v", err)
		}
	}

	gateway := fetch.NewHTTPGateway(conf.FetchToken)
	client := distribute.NewClient(reg, key)
	server := agent.NewEncryptionServer(conf.Listen, gateway, client)

	log.Info().Int("parties", reg.Len()).Msg("starting encryption agent")

	if daemon {
		return server.Start()
	}

	go func() {
		if err := server.Start(); err != nil {
			log.Error().Msgf("http server stopped: %v", err)
		}
	}()

	return promptLoop(reg, gateway, client)
}
