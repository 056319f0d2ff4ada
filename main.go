package AdOrchDB

import (
	"github.com/nickyhof/AdOrchDB/config"
	"github.com/nickyhof/AdOrchDB/core"
	"github.com/nickyhof/AdOrchDB/db"
	"github.com/nickyhof/AdOrchDB/ps"
	"github.com/nickyhof/AdOrchDB/workflow"
	"go.uber.org/zap"
)

type Instance struct {
	Persistence *ps.Persistence
	logger      *zap.Logger
}

func Open(persistence *ps.Persistence) *Instance {
	return &Instance{
		Persistence: persistence,
		logger:      zap.NewNop(),
	}
}

// OpenConfig opens the snapshot in the configured data directory.
func OpenConfig(cfg *config.Config, logger *zap.Logger) (*Instance, error) {
	persistence, err := ps.NewFilePersistence(cfg.DataDir,
		ps.WithSnapshotPath(cfg.Snapshot),
		ps.WithHistory(cfg.GitHistory))
	if err != nil {
		return nil, err
	}

	instance := Open(persistence)
	if logger != nil {
		instance.logger = logger
	}
	return instance, nil
}

// Engine returns a loaded record engine. Options given here override the
// instance logger.
func (instance *Instance) Engine(identity core.Identity, opts ...db.Option) (*db.Engine, error) {
	opts = append([]db.Option{db.WithLogger(instance.logger)}, opts...)
	engine := db.NewEngine(instance.Persistence, identity, opts...)
	if err := engine.Load(); err != nil {
		return nil, err
	}
	return engine, nil
}

// Workflow returns an approval engine over a freshly loaded record engine.
func (instance *Instance) Workflow(identity core.Identity, opts ...db.Option) (*workflow.Engine, error) {
	engine, err := instance.Engine(identity, opts...)
	if err != nil {
		return nil, err
	}
	return workflow.NewEngine(engine, workflow.WithLogger(instance.logger)), nil
}
