// Command moorsim reads a mooring scenario, runs every seed of the study and stores the statistics.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"

	"github.com/ChristopherRabotin/moorsim/store"
	kitlog "github.com/go-kit/log"
	"github.com/spf13/viper"
)

const defaultScenario = "~~unset~~"

var (
	scenario string
	table    string
	verbose  bool
)

func init() {
	flag.StringVar(&scenario, "scenario", defaultScenario, "mooring scenario TOML file")
	flag.StringVar(&table, "table", "", "hydrodynamic coefficient file (JSON or TOML), overrides study.table")
	flag.BoolVar(&verbose, "verbose", false, "log the statistics of every channel")
}

func main() {
	flag.Parse()
	logger := kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(os.Stdout))
	logger = kitlog.With(logger, "ts", kitlog.DefaultTimestampUTC)
	os.Exit(run(logger))
}

// run returns the exit code: 1 when the study could not run, 3 when some realizations failed.
func run(logger kitlog.Logger) int {
	if scenario == defaultScenario {
		logger.Log("level", "critical", "msg", "no scenario provided")
		return 2
	}
	viper.SetConfigFile(scenario)
	if err := viper.ReadInConfig(); err != nil {
		logger.Log("level", "critical", "scenario", scenario, "err", err)
		return 1
	}
	study, err := readStudy(viper.GetViper(), table)
	if err != nil {
		logger.Log("level", "critical", "scenario", scenario, "err", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	realizations, err := study.Run(ctx, logger)
	if err != nil {
		logger.Log("level", "critical", "study", study.Name, "err", err)
		return 1
	}

	failed := 0
	for _, r := range realizations {
		if r.Err != nil {
			failed++
			logger.Log("level", "warning", "seed", r.Seed, "run", r.RunID, "err", r.Err)
		}
		for _, s := range r.Stats {
			if !verbose && !strings.HasPrefix(s.Channel, "load/") {
				continue
			}
			logger.Log("level", "notice", "seed", r.Seed, "channel", s.Channel, "max", s.Max, "mean", s.Mean, "std", s.Std, "significant", s.Significant, "tenth", s.Tenth)
		}
	}

	if viper.GetBool("store.save") {
		st, err := store.Open(viper.GetString("store.path"), logger)
		if err != nil {
			logger.Log("level", "critical", "err", err)
			return 1
		}
		defer st.Close()
		if err := st.Save(study.Name, realizations); err != nil {
			return 1
		}
	}
	if failed > 0 {
		logger.Log("level", "warning", "study", study.Name, "failed", failed, "realizations", len(realizations))
		return 3
	}
	return 0
}
