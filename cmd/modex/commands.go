package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/systemshift/modex/internal/modrt"
	"github.com/systemshift/modex/internal/remote"
	"github.com/systemshift/modex/internal/settings"
	"github.com/systemshift/modex/pkg/dispatch"
	"github.com/systemshift/modex/pkg/gitsync"
	"github.com/systemshift/modex/pkg/registry"
	"github.com/systemshift/modex/pkg/workflow"
)

// app wires the project-level components for one CLI invocation.
type app struct {
	root   string
	log    zerolog.Logger
	cfg    *settings.Settings
	reg    *registry.Registry
	engine *gitsync.Engine
}

func newApp(root string, verbose bool) (*app, error) {
	log := newLogger(verbose)

	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving project root: %w", err)
	}

	cfg, err := settings.Load(filepath.Join(root, settings.Filename))
	if err != nil {
		return nil, err
	}

	stateFile := registry.NewStateFile(
		filepath.Join(root, ".modex", "module_states.cfg"), cfg.ProjectName())
	reg := registry.New(filepath.Join(root, "modules"), stateFile, modrt.NewLoader(log), log)
	if err := reg.Refresh(); err != nil {
		return nil, err
	}

	return &app{
		root:   root,
		log:    log,
		cfg:    cfg,
		reg:    reg,
		engine: gitsync.New(log, gitsync.WithProjectRoot(root)),
	}, nil
}

func newListCmd(open func() (*app, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List discovered modules",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := open()
			if err != nil {
				return err
			}
			for _, rec := range a.reg.Records() {
				d := rec.Descriptor
				state := "disabled"
				if a.reg.Enabled(d.ID) {
					state = "enabled"
				}
				fmt.Printf("%-24s %-10s %-8s %s\n", d.ID, d.Version, state, d.Name)
			}
			return nil
		},
	}
}

func newRefreshCmd(open func() (*app, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Rescan the modules directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := open()
			if err != nil {
				return err
			}
			// newApp already refreshed once; a second pass reports the count
			// after any state pruning.
			if err := a.reg.Refresh(); err != nil {
				return err
			}
			fmt.Printf("%d modules available\n", len(a.reg.Records()))
			return nil
		},
	}
}

func newEnableCmd(open func() (*app, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "enable <module-id>",
		Short: "Enable and load a module",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return toggle(open, args[0], true)
		},
	}
}

func newDisableCmd(open func() (*app, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "disable <module-id>",
		Short: "Disable and unload a module",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return toggle(open, args[0], false)
		},
	}
}

func toggle(open func() (*app, error), id string, enabled bool) error {
	a, err := open()
	if err != nil {
		return err
	}
	if !a.reg.SetEnabled(id, enabled) {
		return fmt.Errorf("toggling module %s failed", id)
	}
	return nil
}

func newInvokeCmd(open func() (*app, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "invoke <module-id> <method> [args...]",
		Short: "Invoke a module method through the safe dispatch proxy",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := open()
			if err != nil {
				return err
			}
			callArgs := make([]interface{}, 0, len(args)-2)
			for _, arg := range args[2:] {
				callArgs = append(callArgs, arg)
			}
			proxy := dispatch.New(a.reg, args[0], a.log)
			out, err := json.Marshal(proxy.Invoke(args[1], callArgs))
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
}

func newSyncCmd(open func() (*app, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "sync <module-id>",
		Short: "Synchronize a module into its git repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := open()
			if err != nil {
				return err
			}
			return a.runSync(args[0])
		},
	}
}

// runSync drives the workflow, answering its prompts from stdin.
func (a *app) runSync(moduleID string) error {
	wf := workflow.New(a.reg, a.engine, a.cfg, workflow.NopEvents{}, a.log)
	wf.Start(moduleID)

	reader := bufio.NewReader(os.Stdin)
	for {
		switch wf.State() {
		case workflow.StatePromptingClient:
			path, err := prompt(reader, "Path to git client executable: ")
			if err != nil {
				wf.Cancel()
				continue
			}
			a.cfg.SetGitClientPath(path)
			if err := a.cfg.Save(); err != nil {
				return err
			}
			wf.ClientConfigured()

		case workflow.StatePromptingFolder:
			folder, err := prompt(reader, "Folder for synchronized repositories: ")
			if err != nil {
				wf.Cancel()
				continue
			}
			if err := os.MkdirAll(folder, 0o755); err != nil {
				return err
			}
			a.cfg.SetSyncFolder(folder)
			if err := a.cfg.Save(); err != nil {
				return err
			}
			wf.FolderConfigured()

		case workflow.StatePromptingRepoURL:
			url, err := prompt(reader, "Repository URL (empty for a local repository): ")
			if err != nil {
				wf.Cancel()
				continue
			}
			wf.RepositoryURLProvided(url)

		case workflow.StateCompleted:
			ctx, _ := wf.Current()
			fmt.Println(ctx.Message)
			return nil

		case workflow.StateFailed:
			ctx, _ := wf.Current()
			return fmt.Errorf("%s", ctx.Message)

		default:
			// Transient states resolve synchronously; nothing to wait on.
			ctx, _ := wf.Current()
			return fmt.Errorf("workflow stalled in state %s", ctx.State)
		}
	}
}

func prompt(reader *bufio.Reader, label string) (string, error) {
	fmt.Fprint(os.Stderr, label)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func newInstallCmd(open func() (*app, error)) *cobra.Command {
	var branch string

	cmd := &cobra.Command{
		Use:   "install <git-url>",
		Short: "Install a module from a git repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := open()
			if err != nil {
				return err
			}
			url := args[0]

			// Validate the published descriptor before cloning anything.
			res := remote.New(nil, a.log).FetchDescriptor(url, branch)
			if !res.OK() {
				return res.Err()
			}
			desc := res.Value()

			dest := filepath.Join(a.root, "modules", desc.ID)
			if _, err := os.Stat(dest); err == nil {
				return fmt.Errorf("module %s is already installed", desc.ID)
			}
			if clone := a.engine.CloneRepo(url, dest); !clone.OK() {
				return clone.Err()
			}
			if err := a.reg.Refresh(); err != nil {
				return err
			}
			fmt.Printf("installed %s %s\n", desc.ID, desc.Version)
			return nil
		},
	}
	cmd.Flags().StringVar(&branch, "branch", "", "branch to fetch the descriptor from")
	return cmd
}
