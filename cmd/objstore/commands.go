package main

import (
	"fmt"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v2"

	"github.com/eigerco/objstore/internal/bridge"
	"github.com/eigerco/objstore/internal/config"
	"github.com/eigerco/objstore/internal/idb"
	"github.com/eigerco/objstore/internal/planfile"
	"github.com/eigerco/objstore/pkg/log"
)

// cli carries the settings shared by every subcommand.
type cli struct {
	configFile string
	backend    string
	dataDir    string
	logLevel   string
	logFormat  string

	factory *idb.Factory
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	rootCmd := &cobra.Command{
		Use:           "objstore",
		Short:         "Versioned object stores on an embedded key-value engine",
		Long:          `objstore migrates object store schemas and runs atomic batches of store operations against pebble or bolt backed databases.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup(cmd)
		},
	}
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&c.configFile, "config", "", "file of KEY=value settings")
	flags.StringVar(&c.backend, "backend", "", "storage backend: pebble, bolt or memory")
	flags.StringVar(&c.dataDir, "data-dir", "", "directory holding the databases")
	flags.StringVar(&c.logLevel, "log-level", "", "log level")
	flags.StringVar(&c.logFormat, "log-format", "", "log format: console or json")

	migrateCmd := &cobra.Command{
		Use:   "migrate [db]",
		Short: "Upgrade a database with a migration plan",
		Long:  `Open the database at the requested version, applying the plan's actions for every version newer than the stored one.`,
		Args:  cobra.ExactArgs(1),
		RunE:  c.runMigrate,
	}
	migrateCmd.Flags().String("plan", "", "YAML migration plan")
	migrateCmd.Flags().Uint64("version", 0, "target version (default: the plan's latest)")
	_ = migrateCmd.MarkFlagRequired("plan")
	rootCmd.AddCommand(migrateCmd)

	execCmd := &cobra.Command{
		Use:   "exec [db]",
		Short: "Run operation batches",
		Long:  `Run each JSON batch in its own atomic transaction and print its result slots. Batches run concurrently; output keeps their order.`,
		Args:  cobra.ExactArgs(1),
		RunE:  c.runExec,
	}
	execCmd.Flags().StringArray("batch", nil, "JSON batch file, repeatable")
	_ = execCmd.MarkFlagRequired("batch")
	rootCmd.AddCommand(execCmd)

	describeCmd := &cobra.Command{
		Use:   "describe [db]",
		Short: "Show the stores and indexes of a database",
		Args:  cobra.ExactArgs(1),
		RunE:  c.runDescribe,
	}
	describeCmd.Flags().String("format", "yaml", "output format: yaml or json")
	rootCmd.AddCommand(describeCmd)

	return rootCmd
}

// setup loads the configuration, lets flags override it and initialises
// logging and the engine factory.
func (c *cli) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(c.configFile)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("backend") {
		cfg.Backend = c.backend
	}
	if flags.Changed("data-dir") {
		cfg.DataDir = c.dataDir
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = c.logLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = c.logFormat
	}

	opts, err := cfg.LogOptions()
	if err != nil {
		return err
	}
	opts.Output = cmd.ErrOrStderr()
	log.Init(opts)

	factory, err := config.NewFactory(cfg)
	if err != nil {
		return err
	}
	c.factory = factory
	log.CLI.Debug().Str("backend", cfg.Backend).Str("dataDir", cfg.DataDir).Msg("configured")
	return nil
}

func (c *cli) runMigrate(cmd *cobra.Command, args []string) error {
	planPath, err := cmd.Flags().GetString("plan")
	if err != nil {
		return err
	}
	version, err := cmd.Flags().GetUint64("version")
	if err != nil {
		return err
	}

	m, err := planfile.LoadMigration(planPath)
	if err != nil {
		return err
	}
	if version == 0 {
		version = m.Latest()
	}

	conn, err := bridge.OpenConnection(c.factory, args[0], version, m.Upgrade())
	if err != nil {
		return errors.Wrapf(err, "migrate %s to version %d", args[0], version)
	}
	defer conn.Close()

	log.CLI.Info().Str("db", conn.Name()).Uint64("version", conn.Version()).Strs("stores", conn.ObjectStoreNames()).Msg("migrated")
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s at version %d\n", conn.Name(), conn.Version())
	return err
}

func (c *cli) runExec(cmd *cobra.Command, args []string) error {
	paths, err := cmd.Flags().GetStringArray("batch")
	if err != nil {
		return err
	}
	batches := make([][]bridge.Operation, len(paths))
	for i, p := range paths {
		if batches[i], err = planfile.LoadBatch(p); err != nil {
			return errors.Wrapf(err, "batch %s", p)
		}
	}

	conn, err := bridge.OpenConnection(c.factory, args[0], 0, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	exec := bridge.NewExecutor(log.Bridge)
	results := make([][]planfile.Slot, len(batches))
	var g errgroup.Group
	for i, ops := range batches {
		g.Go(func() error {
			slots, err := exec.Execute(conn, ops)
			if err != nil {
				return errors.Wrapf(err, "batch %s", paths[i])
			}
			results[i] = planfile.ToSlots(slots)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, r := range results {
		if err := writeJSON(out, r); err != nil {
			return err
		}
	}
	return nil
}

func (c *cli) runDescribe(cmd *cobra.Command, args []string) error {
	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return err
	}

	conn, err := bridge.OpenConnection(c.factory, args[0], 0, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	stores, err := bridge.Describe(conn)
	if err != nil {
		return err
	}
	doc := struct {
		Name    string             `json:"name" yaml:"name"`
		Version uint64             `json:"version" yaml:"version"`
		Stores  []bridge.StoreInfo `json:"stores" yaml:"stores"`
	}{conn.Name(), conn.Version(), stores}

	out := cmd.OutOrStdout()
	switch format {
	case "json":
		return writeJSON(out, doc)
	case "yaml":
		b, err := yaml.Marshal(doc)
		if err != nil {
			return err
		}
		_, err = out.Write(b)
		return err
	default:
		return errors.Newf("unknown format %q", format)
	}
}

func writeJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
