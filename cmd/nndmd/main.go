// Command nndmd simulates reference systems into a trajectory store and fits
// neural network Koopman models to stored collections.
//
//	nndmd generate -system duffing -collection duffing -n 64
//	nndmd fit -train duffing -plot eigenvalues.png
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"strconv"

	"github.com/hammal/koopman"
	"github.com/hammal/koopman/dataset"
	"github.com/hammal/koopman/simulate"
	"github.com/joho/godotenv"
	"github.com/mdobak/go-xerrors"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
)

const usage = "Expected 'generate' or 'fit' subcommand"

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}
	_ = godotenv.Load()

	log := logrus.New()
	if level, err := logrus.ParseLevel(os.Getenv("NNDMD_LOG_LEVEL")); err == nil {
		log.SetLevel(level)
	}

	var err error
	switch os.Args[1] {
	case "generate":
		err = generate(parseGenerateFlags(os.Args[2:]), log)
	case "fit":
		err = fit(parseFitFlags(os.Args[2:]), log)
	default:
		fmt.Println(usage)
		os.Exit(1)
	}
	if err != nil {
		err := xerrors.New(err)
		log.WithError(err).Fatal(os.Args[1] + " failed")
	}
}

// GenerateConfig are the parameters of the generate subcommand.
type GenerateConfig struct {
	Database   string
	Collection string
	System     string
	N          int
	Steps      int
	Ts         float64
	Low        float64
	High       float64
	Seed       uint64
}

func parseGenerateFlags(args []string) GenerateConfig {
	config := GenerateConfig{}
	cmd := flag.NewFlagSet("generate", flag.ExitOnError)

	cmd.StringVar(&config.Database, "db", env("NNDMD_DB", "data/trajectories.db"),
		"Path to the trajectory store")
	cmd.StringVar(&config.Collection, "collection", "",
		"Name of the collection to write, defaults to the system name")
	cmd.StringVar(&config.System, "system", "slowmanifold",
		"System to simulate (slowmanifold, duffing, pendulum or linear)")
	cmd.IntVar(&config.N, "n", 32,
		"Number of trajectories")
	cmd.IntVar(&config.Steps, "steps", 50,
		"Number of samples after the initial state")
	cmd.Float64Var(&config.Ts, "ts", 0.1,
		"Sampling period")
	cmd.Float64Var(&config.Low, "low", -1,
		"Lower bound of the initial states")
	cmd.Float64Var(&config.High, "high", 1,
		"Upper bound of the initial states")
	cmd.Uint64Var(&config.Seed, "seed", envUint("NNDMD_SEED", 1),
		"Seed of the initial states")

	cmd.Parse(args)
	if config.Collection == "" {
		config.Collection = config.System
	}
	return config
}

func system(name string) (simulate.System, error) {
	switch name {
	case "slowmanifold":
		return simulate.SlowManifold{Mu: -0.05, Lambda: -1}, nil
	case "duffing":
		return simulate.Duffing{Delta: 0.5, Alpha: -1, Beta: 1}, nil
	case "pendulum":
		return simulate.Pendulum{G: 9.81, L: 1, Damping: 0.1}, nil
	case "linear":
		return simulate.NewLinear(mat.NewDense(2, 2, []float64{-0.1, -1, 1, -0.1})), nil
	}
	return nil, fmt.Errorf("unknown system %q", name)
}

func generate(config GenerateConfig, log logrus.FieldLogger) error {
	sys, err := system(config.System)
	if err != nil {
		return err
	}

	store, err := dataset.OpenStore(config.Database)
	if err != nil {
		return err
	}
	defer store.Close()

	x0s := simulate.UniformInitialStates(config.N, sys.StateSpaceOrder(), config.Low, config.High, rand.NewPCG(config.Seed, 0))
	trajectories, err := simulate.NewSimulator(config.Ts, config.Steps).Trajectories(sys, x0s)
	if err != nil {
		return err
	}
	if err := store.Save(config.Collection, trajectories); err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"collection":   config.Collection,
		"system":       config.System,
		"trajectories": len(trajectories),
		"steps":        config.Steps,
	}).Info("collection saved")
	return nil
}

// FitConfig are the parameters of the fit subcommand.
type FitConfig struct {
	Database   string
	Train      string
	Validation string
	// Optional JSON file holding a koopman.Config
	ConfigPath string
	Mode       string
	Epochs     int
	LBFGS      bool

	EigenvaluePlot string
	ForecastPlot   string
	Horizon        int
}

func parseFitFlags(args []string) FitConfig {
	config := FitConfig{}
	cmd := flag.NewFlagSet("fit", flag.ExitOnError)

	cmd.StringVar(&config.Database, "db", env("NNDMD_DB", "data/trajectories.db"),
		"Path to the trajectory store")
	cmd.StringVar(&config.Train, "train", "",
		"Collection used for training")
	cmd.StringVar(&config.Validation, "validation", "",
		"Collection used for validation")
	cmd.StringVar(&config.ConfigPath, "config", env("NNDMD_CONFIG", ""),
		"Path to a JSON model configuration")
	cmd.StringVar(&config.Mode, "mode", "",
		"Overrides the propagator family (standard, hamiltonian or dissipative)")
	cmd.IntVar(&config.Epochs, "epochs", 0,
		"Overrides the number of epochs")
	cmd.BoolVar(&config.LBFGS, "lbfgs", false,
		"Train with L-BFGS instead of Adam")
	cmd.StringVar(&config.EigenvaluePlot, "plot", "",
		"Path to save the eigenvalue plot")
	cmd.StringVar(&config.ForecastPlot, "forecast", "",
		"Path to save a forecast of the first training trajectory")
	cmd.IntVar(&config.Horizon, "horizon", 0,
		"Forecast horizon, defaults to the trajectory length")

	cmd.Parse(args)
	return config
}

// modelConfig reads the JSON configuration over the defaults and applies
// the flag overrides.
func modelConfig(config FitConfig) (koopman.Config, error) {
	res := koopman.DefaultConfig()
	if config.ConfigPath != "" {
		data, err := os.ReadFile(config.ConfigPath)
		if err != nil {
			return res, err
		}
		if err := json.Unmarshal(data, &res); err != nil {
			return res, fmt.Errorf("config %s: %w", config.ConfigPath, err)
		}
	}
	if config.Mode != "" {
		res.Mode = config.Mode
	}
	if config.Epochs > 0 {
		res.Epochs = config.Epochs
	}
	if config.LBFGS {
		res.LBFGS = true
	}
	return res, res.Validate()
}

func fit(config FitConfig, log logrus.FieldLogger) error {
	if config.Train == "" {
		return fmt.Errorf("missing -train collection")
	}
	cfg, err := modelConfig(config)
	if err != nil {
		return err
	}

	store, err := dataset.OpenStore(config.Database)
	if err != nil {
		return err
	}
	defer store.Close()

	train, err := store.Load(config.Train)
	if err != nil {
		return err
	}
	var validation []any
	if config.Validation != "" {
		if validation, err = store.Load(config.Validation); err != nil {
			return err
		}
	}

	model, err := koopman.NewNNDMD(cfg, log)
	if err != nil {
		return err
	}
	if validation != nil {
		err = model.Fit(train, validation)
	} else {
		err = model.Fit(train, nil)
	}
	if err != nil {
		return err
	}

	eigenvalues, err := model.Eigenvalues()
	if err != nil {
		return err
	}
	for index, value := range eigenvalues {
		fmt.Printf("lambda_%d = %.6f\n", index, value)
	}

	if config.EigenvaluePlot != "" {
		if err := plotEigenvalues(eigenvalues, config.EigenvaluePlot); err != nil {
			return err
		}
		log.WithField("path", config.EigenvaluePlot).Info("eigenvalue plot saved")
	}
	if config.ForecastPlot != "" {
		first, _, err := dataset.FromArray(train[0])
		if err != nil {
			return err
		}
		if err := plotForecast(model, first, config.Horizon, config.ForecastPlot); err != nil {
			return err
		}
		log.WithField("path", config.ForecastPlot).Info("forecast plot saved")
	}
	return nil
}

func env(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func envUint(key string, fallback uint64) uint64 {
	if value, ok := os.LookupEnv(key); ok {
		if res, err := strconv.ParseUint(value, 10, 64); err == nil {
			return res
		}
	}
	return fallback
}
