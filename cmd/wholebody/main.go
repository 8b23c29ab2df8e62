// The wholebody command loads a robot model and runs move goals against it
// from the command line, printing the planned trajectory. Real deployments
// replace the printing controller with their joint-controller transport.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/Ange-Michel/wholebody/logging"
	"github.com/Ange-Michel/wholebody/motion"
	"github.com/Ange-Michel/wholebody/robot"
	"github.com/Ange-Michel/wholebody/trajectory"
	"github.com/Ange-Michel/wholebody/world"
)

type printingController struct {
	logger logging.Logger
}

func (c *printingController) FollowTrajectory(_ context.Context, traj *trajectory.Trajectory) error {
	c.logger.Infof("trajectory with %d samples", traj.Len())
	if last, ok := traj.Last(); ok {
		for _, name := range last.State.Names() {
			c.logger.Infof("  %s -> %.4f", name, last.State[name].Position)
		}
	}
	return nil
}

func (c *printingController) Stop(context.Context) error {
	c.logger.Info("stop")
	return nil
}

func main() {
	logger := logging.NewLogger("wholebody")
	app := &cli.App{
		Name:  "wholebody",
		Usage: "whole-body constraint-based motion control",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "model", Usage: "robot model JSON file", Required: true},
			&cli.Float64Flag{Name: "tick-rate", Usage: "tree tick rate in Hz", Value: 50},
			&cli.Float64Flag{Name: "vel-limit", Usage: "default joint velocity limit", Value: 1},
			&cli.Float64Flag{Name: "joint-weight", Usage: "default joint cost weight", Value: 0.001},
			&cli.StringFlag{Name: "cache-dir", Usage: "compiled evaluator cache directory"},
			&cli.BoolFlag{Name: "debug", Usage: "verbose logging"},
		},
		Commands: []*cli.Command{
			{
				Name:      "move",
				Usage:     "plan and execute a move goal from a JSON file",
				ArgsUsage: "<goal.json>",
				Action: func(c *cli.Context) error {
					if c.Args().Len() != 1 {
						return cli.Exit("expected exactly one goal file", 1)
					}
					if c.Bool("debug") {
						logger = logging.NewDebugLogger("wholebody")
					}
					svc, err := buildService(c, logger)
					if err != nil {
						return err
					}
					data, err := os.ReadFile(c.Args().First())
					if err != nil {
						return err
					}
					var goal motion.MoveGoal
					if err := json.Unmarshal(data, &goal); err != nil {
						return err
					}
					result := svc.Move(c.Context, goal)
					if result.Err != nil {
						return cli.Exit(fmt.Sprintf("motion failed (%s): %v", result.Code, result.Err), 1)
					}
					logger.Info("motion succeeded")
					return nil
				},
			},
			{
				Name:  "check",
				Usage: "parse and validate a robot model",
				Action: func(c *cli.Context) error {
					model, err := loadModel(c)
					if err != nil {
						return err
					}
					logger.Infof("model %q: %d controlled joints, %d collision links",
						model.Name(), len(model.ControlledJoints()), len(model.ControlledLinks()))
					return nil
				},
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		logger.Fatal(err)
	}
}

func loadModel(c *cli.Context) (*robot.Model, error) {
	return robot.ParseModelJSONFile(c.String("model"), robot.Defaults{
		VelocityLimit: c.Float64("vel-limit"),
		JointWeight:   c.Float64("joint-weight"),
	})
}

func buildService(c *cli.Context, logger logging.Logger) (*motion.Service, error) {
	model, err := loadModel(c)
	if err != nil {
		return nil, err
	}
	worldSvc := world.NewService(model, logger)
	cfg := motion.Config{
		TreeTickRate:         c.Float64("tick-rate"),
		DefaultJointVelLimit: c.Float64("vel-limit"),
		DefaultJointWeight:   c.Float64("joint-weight"),
		EvaluatorCacheDir:    c.String("cache-dir"),
	}
	return motion.NewService(model, worldSvc, &printingController{logger: logger}, cfg, nil, logger)
}
