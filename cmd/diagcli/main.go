// Command diagcli is the operator-facing CLI: it brings up a CAN
// adapter, an ISO-TP engine and a UDS client from an INI configuration
// file, and exposes read/reset/routine/set-mode/dtc subcommands.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/fleetdiag/canuds/pkg/can"
	_ "github.com/fleetdiag/canuds/pkg/can/socketcan"
	_ "github.com/fleetdiag/canuds/pkg/can/virtual"
	"github.com/fleetdiag/canuds/pkg/codec"
	"github.com/fleetdiag/canuds/pkg/config"
	"github.com/fleetdiag/canuds/pkg/correlator"
	"github.com/fleetdiag/canuds/pkg/frontend"
	"github.com/fleetdiag/canuds/pkg/isotp"
	"github.com/fleetdiag/canuds/pkg/uds"
)

// session bundles everything one CLI invocation needs, built fresh per
// run from the resolved AdapterConfig.
type session struct {
	cfg     config.AdapterConfig
	channel *can.Channel
	client  *uds.Client
	api     *frontend.API
	corr    *correlator.TcpCorrelator
}

func bringUp(c *cli.Context) (*session, error) {
	cfgPath := c.String("config")
	var cfg config.AdapterConfig
	var err error
	if cfgPath != "" {
		cfg, err = config.Load(cfgPath)
	} else {
		cfg = config.Default()
	}
	if err != nil {
		return nil, err
	}

	level, err := log.ParseLevel(cfg.LogLevel)
	if err == nil {
		log.SetLevel(level)
	}

	bus, err := can.NewBus(cfg.CanInterface, cfg.CanInterface)
	if err != nil {
		return nil, fmt.Errorf("opening CAN interface %q: %w", cfg.CanInterface, err)
	}
	channel := can.NewChannel(bus)
	if err := channel.Open(); err != nil {
		return nil, err
	}

	engine := isotp.New(channel, cfg.IsoTpSettings())
	opts := uds.DefaultClientOptions()
	opts.ReplyTimeout = cfg.UdsReplyTimeout
	opts.TesterPresentInterval = cfg.UdsTesterPresentInterval
	client := uds.NewClient(engine, opts)

	corr := correlator.NewTcpCorrelator()
	if err := corr.Dial(cfg.TcpAddress); err != nil {
		log.Warnf("gateway correlator unavailable: %v", err)
	} else {
		client.SetGateway(corr)
	}

	return &session{
		cfg:     cfg,
		channel: channel,
		client:  client,
		api:     frontend.New(client),
		corr:    corr,
	}, nil
}

func (s *session) Close() {
	s.corr.Close()
	s.channel.Close()
}

func printResult(r frontend.Result) {
	fmt.Println(r.Text)
}

func runMaybeStreaming(c *cli.Context, call func(context.Context) frontend.Result) error {
	ctx := context.Background()
	if !c.Bool("stream") {
		printResult(call(ctx))
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	frontend.Stream(ctx, call, printResult)
	return nil
}

func main() {
	app := &cli.App{
		Name:  "diagcli",
		Usage: "host-side UDS diagnostic client over ISO-TP/CAN",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "path to adapter.ini"},
			&cli.BoolFlag{Name: "stream", Usage: "repeat the command once per second until interrupted"},
		},
		Commands: []*cli.Command{
			readCommand(),
			resetCommand(),
			setModeCommand(),
			routineCommand(),
			dtcCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func readCommand() *cli.Command {
	return &cli.Command{
		Name:      "read",
		Usage:     "ReadDataByIdentifier",
		ArgsUsage: "<did as 0xHHHH>",
		Action: func(c *cli.Context) error {
			s, err := bringUp(c)
			if err != nil {
				return err
			}
			defer s.Close()

			id, err := parseDataId(c.Args().First())
			if err != nil {
				return err
			}
			return runMaybeStreaming(c, func(ctx context.Context) frontend.Result {
				return s.api.ReadData(ctx, id)
			})
		},
	}
}

// resetTypes enumerates ECUReset's ResetType values in spec.md §6
// order, giving resetCommand one nested subcommand per reset kind.
var resetTypes = []struct {
	name string
	kind uds.ResetType
}{
	{"hard", uds.ResetHard},
	{"key-off", uds.ResetKeyOff},
	{"soft", uds.ResetSoft},
	{"enable-rapid-power-shutdown", uds.ResetEnableRapidPowerShutDown},
	{"disable-rapid-power-shutdown", uds.ResetDisableRapidPowerShutDown},
	{"realtime", uds.ResetRealtime},
	{"telematic", uds.ResetTelematic},
	{"imx", uds.ResetImx},
	{"esp32-wifi", uds.ResetEsp32Wifi},
	{"esp32-ble", uds.ResetEsp32Ble},
	{"quectel", uds.ResetQuectel},
	{"lizard", uds.ResetLizard},
	{"cendric", uds.ResetCendric},
}

func resetCommand() *cli.Command {
	subs := make([]*cli.Command, len(resetTypes))
	for i, rt := range resetTypes {
		kind := rt.kind
		subs[i] = &cli.Command{
			Name: rt.name,
			Action: func(c *cli.Context) error {
				s, err := bringUp(c)
				if err != nil {
					return err
				}
				defer s.Close()
				return runMaybeStreaming(c, func(ctx context.Context) frontend.Result {
					return s.api.Reset(ctx, kind)
				})
			},
		}
	}
	return &cli.Command{
		Name:        "reset",
		Usage:       "ECUReset",
		Subcommands: subs,
	}
}

// sessionTypes enumerates DiagnosticSessionControl's SessionType
// values in spec.md §6 order, giving setModeCommand one nested
// subcommand per session.
var sessionTypes = []struct {
	name string
	kind uds.SessionType
}{
	{"default", uds.SessionDefault},
	{"programming", uds.SessionProgramming},
	{"extended", uds.SessionExtended},
	{"safety-system", uds.SessionSafetySystem},
	{"stream-mode", uds.SessionStreamMode},
	{"invalid", uds.SessionInvalid},
}

func setModeCommand() *cli.Command {
	subs := make([]*cli.Command, len(sessionTypes))
	for i, st := range sessionTypes {
		kind := st.kind
		subs[i] = &cli.Command{
			Name: st.name,
			Action: func(c *cli.Context) error {
				s, err := bringUp(c)
				if err != nil {
					return err
				}
				defer s.Close()
				return runMaybeStreaming(c, func(ctx context.Context) frontend.Result {
					return s.api.SetMode(ctx, kind)
				})
			},
		}
	}
	return &cli.Command{
		Name:        "set-mode",
		Usage:       "DiagnosticSessionControl",
		Subcommands: subs,
	}
}

func routineCommand() *cli.Command {
	return &cli.Command{
		Name:  "routine",
		Usage: "RoutineControl",
		Subcommands: []*cli.Command{
			{
				Name:      "start",
				ArgsUsage: "<rid as 0xHHHH>",
				Action: func(c *cli.Context) error {
					s, err := bringUp(c)
					if err != nil {
						return err
					}
					defer s.Close()
					rid, err := parseRoutineId(c.Args().First())
					if err != nil {
						return err
					}
					return runMaybeStreaming(c, func(ctx context.Context) frontend.Result {
						return s.api.RunRoutine(ctx, rid, nil)
					})
				},
			},
			{
				Name:      "stop",
				ArgsUsage: "<rid as 0xHHHH>",
				Action: func(c *cli.Context) error {
					s, err := bringUp(c)
					if err != nil {
						return err
					}
					defer s.Close()
					rid, err := parseRoutineId(c.Args().First())
					if err != nil {
						return err
					}
					return runMaybeStreaming(c, func(ctx context.Context) frontend.Result {
						return s.api.StopRoutine(ctx, rid, nil)
					})
				},
			},
			{
				Name:      "get-result",
				ArgsUsage: "<rid as 0xHHHH>",
				Action: func(c *cli.Context) error {
					s, err := bringUp(c)
					if err != nil {
						return err
					}
					defer s.Close()
					rid, err := parseRoutineId(c.Args().First())
					if err != nil {
						return err
					}
					return runMaybeStreaming(c, func(ctx context.Context) frontend.Result {
						return s.api.RoutineResult(ctx, rid, nil)
					})
				},
			},
		},
	}
}

func dtcCommand() *cli.Command {
	return &cli.Command{
		Name:  "dtc",
		Usage: "ReadDTCInformation",
		Subcommands: []*cli.Command{
			{
				Name:      "by-status-mask",
				ArgsUsage: "<status-mask as 0xHH>",
				Action: func(c *cli.Context) error {
					s, err := bringUp(c)
					if err != nil {
						return err
					}
					defer s.Close()
					v, err := strconv.ParseUint(c.Args().First(), 0, 8)
					if err != nil {
						return err
					}
					return runMaybeStreaming(c, func(ctx context.Context) frontend.Result {
						return s.api.DtcByStatusMask(ctx, uint8(v))
					})
				},
			},
		},
	}
}

func parseDataId(arg string) (codec.DataId, error) {
	v, err := strconv.ParseUint(arg, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid data identifier %q: %w", arg, err)
	}
	return codec.DataId(v), nil
}

func parseRoutineId(arg string) (codec.RoutineId, error) {
	v, err := strconv.ParseUint(arg, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid routine identifier %q: %w", arg, err)
	}
	return codec.RoutineId(v), nil
}
