package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hammal/koopman/dataset"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModelConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"mode": "hamiltonian", "epochs": 3, "batch_size": 4}`), 0o644))

	cfg, err := modelConfig(FitConfig{ConfigPath: path})
	require.NoError(t, err)
	assert.Equal(t, "hamiltonian", cfg.Mode)
	assert.Equal(t, 3, cfg.Epochs)
	assert.Equal(t, 4, cfg.BatchSize)
	assert.Equal(t, 6, cfg.Encoder.OutputSize)

	cfg, err = modelConfig(FitConfig{ConfigPath: path, Mode: "dissipative", Epochs: 7, LBFGS: true})
	require.NoError(t, err)
	assert.Equal(t, "dissipative", cfg.Mode)
	assert.Equal(t, 7, cfg.Epochs)
	assert.True(t, cfg.LBFGS)

	_, err = modelConfig(FitConfig{Mode: "symplectic"})
	assert.Error(t, err)
}

func TestSystem(t *testing.T) {
	for _, name := range []string{"slowmanifold", "duffing", "pendulum", "linear"} {
		sys, err := system(name)
		require.NoError(t, err, name)
		assert.Equal(t, 2, sys.StateSpaceOrder())
	}
	_, err := system("lorenz")
	assert.Error(t, err)
}

func TestGenerateAndFit(t *testing.T) {
	log, _ := test.NewNullLogger()
	db := filepath.Join(t.TempDir(), "store.db")

	require.NoError(t, generate(GenerateConfig{
		Database:   db,
		Collection: "manifold",
		System:     "slowmanifold",
		N:          4,
		Steps:      10,
		Ts:         0.1,
		Low:        -1,
		High:       1,
		Seed:       3,
	}, log))

	store, err := dataset.OpenStore(db)
	require.NoError(t, err)
	trajectories, err := store.Load("manifold")
	require.NoError(t, err)
	assert.Len(t, trajectories, 4)
	require.NoError(t, store.Close())

	plot := filepath.Join(t.TempDir(), "eigenvalues.png")
	require.NoError(t, fit(FitConfig{
		Database:       db,
		Train:          "manifold",
		Epochs:         1,
		EigenvaluePlot: plot,
	}, log))
	_, err = os.Stat(plot)
	assert.NoError(t, err)

	assert.Error(t, fit(FitConfig{Database: db, Train: "missing", Epochs: 1}, log))
}
