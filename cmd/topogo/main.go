// Package main runs a topogo controller: skeleton frames and spoken commands in, turtle
// commands out over a serial port.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"go.viam.com/topogo/config"
	"go.viam.com/topogo/controller"
	"go.viam.com/topogo/logging"
	"go.viam.com/topogo/sensor/replay"
	"go.viam.com/topogo/serial"
	"go.viam.com/topogo/speech/console"
)

const statusInterval = 10 * time.Second

var logger = logging.NewLogger("topogo")

// Arguments for the command.
type Arguments struct {
	Config      string `flag:"config,usage=path to a JSON config file"`
	Port        string `flag:"port,usage=serial port the turtle is attached to"`
	Baud        int    `flag:"baud,usage=serial baud rate (default 9600)"`
	Replay      string `flag:"replay,usage=JSON-lines skeleton recording to play back"`
	SpeechStdin bool   `flag:"speech-stdin,usage=read '<TAG> [confidence]' speech lines from stdin"`
	ListPorts   bool   `flag:"list-ports,usage=list serial ports and exit"`
	Debug       bool   `flag:"debug,usage=enable debug logging"`
}

func main() {
	utils.ContextualMain(mainWithArgs, logger)
}

func mainWithArgs(ctx context.Context, args []string, logger logging.Logger) (err error) {
	var argsParsed Arguments
	if err := utils.ParseFlags(args, &argsParsed); err != nil {
		return err
	}

	if argsParsed.ListPorts {
		return listPorts()
	}

	cfg, err := loadConfig(argsParsed, logger)
	if err != nil {
		return err
	}
	if cfg.Debug {
		logger.SetLevel(logging.DEBUG)
	}
	if cfg.Log.File != "" {
		fileAppender := logging.NewFileAppender(cfg.Log.File, cfg.Log.MaxSizeMB)
		logger.AddAppender(fileAppender)
		defer func() {
			err = multierr.Combine(err, fileAppender.Close())
		}()
	}

	deps := controller.Deps{}
	if cfg.Sensor.Replay.Path != "" {
		deps.Source = replay.New(cfg.Sensor.Replay, nil, logger.Sublogger("replay"))
	}
	if cfg.Speech.Stdin {
		deps.Recognizer = console.New(os.Stdin, nil, logger.Sublogger("speech"))
	}

	ctrl, err := controller.New(cfg, deps, logger)
	if err != nil {
		return err
	}
	if err := ctrl.Start(ctx); err != nil {
		return multierr.Combine(err, ctrl.Close(context.Background()))
	}
	defer func() {
		err = multierr.Combine(err, ctrl.Close(context.Background()))
	}()

	if cfg.ConfigFilePath != "" {
		watcher, watchErr := config.NewWatcher(ctx, cfg.ConfigFilePath, logger.Sublogger("config"))
		if watchErr != nil {
			logger.Warnw("config hot reload disabled", "error", watchErr)
		} else {
			defer func() {
				err = multierr.Combine(err, watcher.Close())
			}()
			utils.PanicCapturingGo(func() {
				watchConfig(ctx, watcher, ctrl, argsParsed, logger)
			})
		}
	}

	for utils.SelectContextOrWait(ctx, statusInterval) {
		st := ctrl.Status()
		logger.Infow("status",
			"sensor", st.Sensor, "voice", st.Voice, "actuation", st.Actuation, "heading", st.Heading,
			"frames", st.FramesProcessed, "frames_dropped", st.FramesDropped,
			"intents", st.IntentsDispatched, "intents_failed", st.IntentsFailed)
	}
	return nil
}

func loadConfig(args Arguments, logger logging.Logger) (*config.Config, error) {
	cfg := config.Default()
	if args.Config != "" {
		var err error
		if cfg, err = config.Read(args.Config, logger); err != nil {
			return nil, err
		}
	}
	applyFlags(cfg, args)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyFlags lets command line flags override the config file.
func applyFlags(cfg *config.Config, args Arguments) {
	if args.Port != "" {
		cfg.Serial.Port = args.Port
	}
	if args.Baud != 0 {
		cfg.Serial.Serial.BaudRate = args.Baud
	}
	if args.Replay != "" {
		cfg.Sensor.Replay.Path = args.Replay
	}
	if args.SpeechStdin {
		cfg.Speech.Stdin = true
	}
	if args.Debug {
		cfg.Debug = true
	}
}

func watchConfig(
	ctx context.Context,
	watcher *config.Watcher,
	ctrl *controller.Controller,
	args Arguments,
	logger logging.Logger,
) {
	for {
		select {
		case <-ctx.Done():
			return
		case cfg := <-watcher.Config():
			applyFlags(cfg, args)
			if err := ctrl.Reconfigure(cfg); err != nil {
				logger.Warnw("config change rejected", "error", err)
			}
		}
	}
}

func listPorts() error {
	ports, err := serial.ListPorts()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Println("no serial ports found")
		return nil
	}
	fmt.Println(portTable(ports))
	return nil
}

func portTable(ports []serial.Description) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Path", "Type", "Product"})
	for _, p := range ports {
		t.AppendRow(table.Row{p.Path, p.Type, p.Product})
	}
	return t.Render()
}
