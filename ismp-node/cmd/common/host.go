package common

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/oasisprotocol/ismp/common/logging"
	"github.com/oasisprotocol/ismp/config"
	"github.com/oasisprotocol/ismp/ismp/api"
	"github.com/oasisprotocol/ismp/ismp/consensus/committee"
	"github.com/oasisprotocol/ismp/ismp/host"
	"github.com/oasisprotocol/ismp/ismp/host/store"
	"github.com/oasisprotocol/ismp/ismp/router"
	"github.com/oasisprotocol/ismp/ismp/statemachine/merkle"
)

// NewHost constructs a host with all consensus clients named in the
// configuration registered. Items not addressed to a known module are
// logged and accepted.
func NewHost(cfg *config.Config) (*host.Host, error) {
	st, err := store.New(&store.Config{
		Backend: cfg.Storage.Backend,
		DataDir: cfg.Storage.DataDir,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	r := router.New()
	r.SetFallback(&logModule{
		logger: logging.GetLogger("ismp-node/module"),
	})

	h, err := host.New(host.Config{StateMachine: api.StateMachine(cfg.Host.StateMachine)}, st, r)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	for i := range cfg.ConsensusClients {
		cc := &cfg.ConsensusClients[i]
		client, id, err := newConsensusClient(cc)
		if err != nil {
			_ = h.Close()
			return nil, err
		}
		if err = h.RegisterConsensusClient(id, client); err != nil {
			_ = h.Close()
			return nil, err
		}
	}

	return h, nil
}

func newConsensusClient(cfg *config.ConsensusClientConfig) (api.ConsensusClient, api.ConsensusClientID, error) {
	id, err := cfg.ClientID()
	if err != nil {
		return nil, id, err
	}

	switch cfg.Kind {
	case config.ConsensusClientKindCommittee:
		stateMachines := make(map[api.StateMachine]api.StateMachineClient)
		for _, sm := range cfg.StateMachines {
			switch sm.Kind {
			case config.StateMachineKindMerkle:
				stateMachines[api.StateMachine(sm.ID)] = merkle.NewClient()
			default:
				return nil, id, fmt.Errorf("unsupported state machine kind: %s", sm.Kind)
			}
		}
		return committee.New(id, committee.Config{
			UnbondingPeriod: cfg.UnbondingPeriod,
			StateMachines:   stateMachines,
		}), id, nil
	default:
		return nil, id, fmt.Errorf("unsupported consensus client kind: %s", cfg.Kind)
	}
}

// NewBackOff returns the message retry policy, nil if retries are disabled.
func NewBackOff(cfg *config.RetryConfig) backoff.BackOff {
	if cfg.MaxElapsedTime == 0 {
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = cfg.MaxElapsedTime
	if cfg.MaxInterval > 0 {
		bo.MaxInterval = cfg.MaxInterval
	}
	return bo
}

type logModule struct {
	logger *logging.Logger
}

func (m *logModule) OnAccept(_ context.Context, req *api.Request) error {
	m.logger.Info("accepted request",
		"id", req.ID(),
		"from", fmt.Sprintf("%x", req.From()),
	)
	return nil
}

func (m *logModule) OnResponse(_ context.Context, res *api.Response) error {
	m.logger.Info("received response",
		"id", res.Request().ID(),
		"commitment", api.HashResponse(res),
	)
	return nil
}

func (m *logModule) OnTimeout(_ context.Context, req *api.Request) error {
	m.logger.Info("request timed out",
		"id", req.ID(),
		"timeout", time.Unix(int64(req.TimeoutTimestamp()), 0).UTC(),
	)
	return nil
}
