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

// Command nucleusd is the real-time nucleus daemon: it wires the core
// plugin and every registered skin plugin together and keeps them running
// until signaled to stop, the way cmd/containerd wires its own plugin
// graph (registry.Graph) into a running server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/containerd/log"
	"github.com/containerd/plugin"
	"github.com/containerd/plugin/registry"
	"github.com/urfave/cli/v2"

	nucleuscore "github.com/xenocore/nucleus/core"
	_ "github.com/xenocore/nucleus/plugins/core"
	_ "github.com/xenocore/nucleus/plugins/skins/native"
	_ "github.com/xenocore/nucleus/plugins/skins/posix"
	_ "github.com/xenocore/nucleus/plugins/skins/psos"
	"github.com/xenocore/nucleus/plugins"
)

// version is set at build time via -ldflags; "dev" otherwise.
var version = "dev"

func main() {
	app := cli.NewApp()
	app.Name = "nucleusd"
	app.Version = version
	app.Usage = "real-time nucleus daemon"
	app.Flags = []cli.Flag{
		&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "path to nucleusd.toml"},
		&cli.StringFlag{Name: "root", Value: "/var/lib/nucleusd", Usage: "state directory"},
		&cli.BoolFlag{Name: "debug", Usage: "enable debug logging"},
	}
	app.Action = func(cliContext *cli.Context) error {
		if cliContext.Bool("debug") {
			if err := log.SetLevel("debug"); err != nil {
				return err
			}
		}
		return run(cliContext.Context, cliContext.String("config"), cliContext.String("root"))
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "nucleusd:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath, root string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	registrations := registry.Graph(func(*plugin.Registration) bool { return false })

	set := plugin.NewPluginSet()
	var core *nucleuscore.Core
	for _, r := range registrations {
		initCtx := plugin.NewContext(ctx, set, map[string]string{
			plugins.PropertyRootDir:    filepath.Join(root, r.URI()),
			plugins.PropertyStateDir:   filepath.Join(root, "state", r.URI()),
			plugins.PropertyConfigPath: configPath,
		})
		if r.Config != nil {
			initCtx.Config = r.Config
		}

		result := r.Init(initCtx)
		if err := set.Add(result); err != nil {
			return fmt.Errorf("nucleusd: adding plugin %s: %w", r.URI(), err)
		}
		inst, err := result.Instance()
		if err != nil {
			return fmt.Errorf("nucleusd: initializing plugin %s: %w", r.URI(), err)
		}
		if c, ok := inst.(*nucleuscore.Core); ok {
			core = c
		}
		log.G(ctx).WithField("plugin", r.URI()).Info("plugin loaded")
	}

	if core == nil {
		return fmt.Errorf("nucleusd: no core plugin registered")
	}

	log.G(ctx).Info("nucleusd ready")
	<-ctx.Done()
	log.G(ctx).Info("nucleusd shutting down")
	return core.Stop(context.Background())
}
