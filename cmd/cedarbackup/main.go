package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"runtime"
	"runtime/debug"

	"github.com/integrii/flaggy"
	"github.com/jesseduffield/yaml"
	"github.com/spf13/afero"

	"github.com/pronovic/cedarbackup/pkg/cerrors"
	"github.com/pronovic/cedarbackup/pkg/command"
	"github.com/pronovic/cedarbackup/pkg/config"
	"github.com/pronovic/cedarbackup/pkg/engine"
	"github.com/pronovic/cedarbackup/pkg/logging"
)

const defaultVersion = "unversioned"

var (
	commit  string
	version = defaultVersion
	date    string

	printFlag     = false
	debuggingFlag = false
	quietFlag     = false
	fullFlag      = false
	configPath    = ""
	action        = ""
)

func main() {
	updateBuildInfo()

	info := fmt.Sprintf("%s\nDate: %s\nCommit: %s\nOS: %s\nArch: %s", version, date, commit, runtime.GOOS, runtime.GOARCH)

	flaggy.SetName("cedarbackup")
	flaggy.SetDescription("Local and remote backup to CD/DVD media")
	flaggy.String(&configPath, "c", "config", "Path to the YAML configuration file")
	flaggy.Bool(&printFlag, "", "print-config", "Print the default configuration and exit")
	flaggy.Bool(&fullFlag, "f", "full", "Run a full backup, ignoring incremental state")
	flaggy.Bool(&quietFlag, "q", "quiet", "Suppress informational logging")
	flaggy.Bool(&debuggingFlag, "d", "debug", "Enable debug logging to cedarbackup.log")
	flaggy.String(&action, "a", "action", "Action to run: collect, stage, store, rebuild, purge, validate, all")
	flaggy.SetVersion(info)
	flaggy.Parse()

	if printFlag {
		var buf bytes.Buffer
		encoder := yaml.NewEncoder(&buf)
		if err := encoder.Encode(config.DefaultConfig()); err != nil {
			log.Fatal(err.Error())
		}
		fmt.Print(buf.String())
		os.Exit(0)
	}

	if action == "" {
		action = "all"
	}
	if configPath == "" {
		configPath = config.DefaultConfigDir() + "/cedarbackup.yaml"
	}

	fs := afero.NewOsFs()
	cfg, err := config.Load(fs, configPath)
	if err != nil {
		log.Fatal(err.Error())
	}

	logger, err := logging.NewLogger(logging.Options{
		Debug:     debuggingFlag,
		Quiet:     quietFlag,
		ConfigDir: cfg.WorkingDir,
		Version:   version,
		Commit:    commit,
		BuildDate: date,
	})
	if err != nil {
		log.Fatal(err.Error())
	}

	runner := command.NewRunner(logger)
	eng := engine.New(fs, runner, logger, *cfg, isRoot)

	if err := run(eng, action, fullFlag); err != nil {
		reportFatal(logger, err)
	}
}

func run(eng *engine.ActionEngine, action string, full bool) error {
	ctx := context.Background()

	requested := []string{action}
	if action == "all" {
		requested = []string{"collect", "stage", "store", "purge"}
	}

	order, err := engine.BuildActionOrder(requested, eng.Config.Extensions)
	if err != nil {
		return err
	}

	for _, name := range order {
		switch name {
		case "collect":
			err = eng.ExecuteCollect(ctx, full)
		case "stage":
			err = eng.ExecuteStage(ctx, full)
		case "store":
			err = eng.ExecuteStore(ctx, full)
		case "rebuild":
			err = eng.ExecuteRebuild(ctx)
		case "purge":
			err = eng.ExecutePurge(ctx)
		case "validate":
			err = eng.ExecuteValidate(ctx)
		default:
			continue // extension action with no built-in handler
		}
		if err != nil {
			return fmt.Errorf("action %q failed: %w", name, err)
		}
		if eng.Log != nil {
			eng.Log.Infof("Executed the %q action successfully", name)
		}
	}
	return nil
}

func isRoot() bool {
	return os.Geteuid() == 0
}

func reportFatal(logger interface{ Errorf(string, ...interface{}) }, err error) {
	var ce *cerrors.CedarError
	if errors.As(err, &ce) {
		logger.Errorf("%s", ce.StackTrace())
	}
	snapshot := cerrors.NewSnapshot(nil)
	log.Fatalf("cedarbackup failed: %v\n%s", err, snapshot.String())
}

func updateBuildInfo() {
	if version != defaultVersion {
		return
	}
	buildInfo, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	for _, setting := range buildInfo.Settings {
		switch setting.Key {
		case "vcs.revision":
			commit = setting.Value
			version = setting.Value
			if len(version) > 7 {
				version = version[:7]
			}
		case "vcs.time":
			date = setting.Value
		}
	}
}
