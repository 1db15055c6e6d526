package main

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/lox/laketemp/internal/config"
	"github.com/lox/laketemp/internal/dataset"
	"github.com/lox/laketemp/internal/scheduler"
	"github.com/lox/laketemp/internal/sensor"
	"github.com/lox/laketemp/internal/source"
)

var errNoLakes = errors.New("no valid lakes configured")

// app wires configured lakes to their sources, sensors and polling jobs.
type app struct {
	registry  *dataset.Registry
	scheduler *scheduler.Scheduler
	sensors   []*sensor.Sensor
	sources   []source.DataSource
	logger    zerolog.Logger
}

// loadLakes returns the valid lakes and logs the rest.
func loadLakes(path string, logger zerolog.Logger) ([]config.LakeConfig, error) {
	res, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	for _, le := range res.Errors {
		logger.Error().Err(le.Err).Int("index", le.Index).Str("lake", le.Name).Msg("skipping invalid lake")
	}
	if len(res.Lakes) == 0 {
		return nil, errNoLakes
	}
	return res.Lakes, nil
}

func newApp(lakes []config.LakeConfig, opts dataset.RegistryOptions, logger zerolog.Logger) (*app, error) {
	opts.Logger = logger
	a := &app{
		registry:  dataset.NewRegistry(opts),
		scheduler: scheduler.New(logger),
		logger:    logger,
	}

	members := map[*dataset.Coordinator][]*sensor.Sensor{}
	for _, lake := range lakes {
		src, err := source.New(lake, a.registry, source.Options{Logger: logger})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("lake %s: %w", lake.EntityID, err)
		}
		sn := sensor.New(lake, src, logger)
		a.sources = append(a.sources, src)
		a.sensors = append(a.sensors, sn)

		if ds, ok := src.(*source.DatasetSource); ok {
			members[ds.Coordinator()] = append(members[ds.Coordinator()], sn)
			continue
		}
		a.scheduler.AddSensor(sn, src.UpdateFrequency())
	}
	for _, c := range a.registry.Coordinators() {
		a.scheduler.AddDataset(c, members[c])
	}

	logger.Info().
		Int("lakes", len(a.sensors)).
		Int("datasets", len(a.registry.Coordinators())).
		Msg("configured lakes")
	return a, nil
}

// Close releases every source and the registry's sessions.
func (a *app) Close() {
	for _, src := range a.sources {
		src.Close()
	}
	a.registry.Close()
}
