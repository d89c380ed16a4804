/*
   Copyright The containerd Authors.

   Licensed under the Apache License, Version 2.0 (the "License");
   you may not use this file except in compliance with the License.
   You may obtain a copy of the License at

       http://www.apache.org/licenses/LICENSE-2.0

   Unless required by applicable law or agreed to in writing, software
   distributed under the License is distributed on an "AS IS" BASIS,
   WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
   See the License for the specific language governing permissions and
   limitations under the License.
*/

// Command nucleusctl is an administrative client for nucleusd, in the
// spirit of cmd/ctr: today it only understands the daemon's configuration
// file, since sys_bind/inspect both require a running nucleusd to talk to
// over a control socket that is out of scope here.
package main

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/urfave/cli/v2"

	"github.com/xenocore/nucleus/internal/config"
)

var version = "dev"

func main() {
	app := cli.NewApp()
	app.Name = "nucleusctl"
	app.Version = version
	app.Usage = "inspect and configure nucleusd"
	app.Commands = []*cli.Command{configCommand}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "nucleusctl:", err)
		os.Exit(1)
	}
}

var configCommand = &cli.Command{
	Name:  "config",
	Usage: "inspect nucleusd's configuration",
	Subcommands: []*cli.Command{
		{
			Name:  "default",
			Usage: "print the built-in default configuration",
			Action: func(*cli.Context) error {
				return toml.NewEncoder(os.Stdout).Encode(config.Default())
			},
		},
		{
			Name:  "dump",
			Usage: "print a config file merged over the defaults",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Value: "/etc/nucleusd/config.toml"},
			},
			Action: func(cliContext *cli.Context) error {
				cfg := config.Default()
				if err := config.Load(cliContext.String("config"), cfg); err != nil {
					return err
				}
				return toml.NewEncoder(os.Stdout).Encode(cfg)
			},
		},
	},
}
