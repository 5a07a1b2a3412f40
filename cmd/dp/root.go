package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Yi-FanLi/deepmd-kit/atomicmodel"
	"github.com/Yi-FanLi/deepmd-kit/backend"
	"github.com/Yi-FanLi/deepmd-kit/descriptor"
	"github.com/Yi-FanLi/deepmd-kit/fitting"
	"github.com/Yi-FanLi/deepmd-kit/internal/logging"
	"github.com/Yi-FanLi/deepmd-kit/internal/serialization"
)

// Build-time variables injected via ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
)

const envPrefix = "DP"

// NewRootCommand builds the dp command tree. Each call uses its own viper
// instance so tests can build several trees.
func NewRootCommand() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:           "dp",
		Short:         "DeePMD-kit model tool",
		Long:          "dp lists the available descriptor, fitting and backend plugins,\nshows model files and converts them between backends.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initLogger(v.GetString("log-level"))
		},
	}
	root.PersistentFlags().String("log-level", "warn", "log level (debug, info, warn, error); env DP_LOG_LEVEL")
	_ = v.BindPFlag("log-level", root.PersistentFlags().Lookup("log-level"))

	root.AddCommand(
		newVersionCommand(),
		newListCommand(),
		newShowCommand(),
		newConvertCommand(),
	)
	return root
}

func initLogger(level string) error {
	l, err := logging.New(logging.Config{Level: level})
	if err != nil {
		return err
	}
	logging.SetDefault(l)
	return nil
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "DeePMD-kit %s (%s)\n", Version, GitCommit)
		},
	}
}

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List descriptor, fitting and backend types",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			w := cmd.OutOrStdout()
			printList(w, "descriptors", descriptor.Types())
			printList(w, "fittings", fitting.Types())
			printList(w, "backends", backend.Names())
		},
	}
}

func printList(w io.Writer, title string, names []string) {
	fmt.Fprintf(w, "%s:\n", title)
	for _, n := range names {
		fmt.Fprintf(w, "  %s\n", n)
	}
}

func newShowCommand() *cobra.Command {
	var backendName string
	cmd := &cobra.Command{
		Use:   "show MODEL",
		Short: "Show the structure of a model file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := backend.New(backendName)
			if err != nil {
				return err
			}
			m, err := atomicmodel.Load(args[0], b)
			if err != nil {
				return fmt.Errorf("load %s: %w", args[0], err)
			}
			d, err := m.Serialize()
			if err != nil {
				return err
			}
			dtype := "unknown"
			if descrpt, err := d.Dict("descriptor"); err == nil {
				dtype, _ = descrpt.StringOr("type", dtype)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "type_map:    %s\n", strings.Join(m.GetTypeMap(), " "))
			fmt.Fprintf(w, "descriptor:  %s\n", dtype)
			fmt.Fprintf(w, "rcut:        %g\n", m.GetRcut())
			fmt.Fprintf(w, "sel:         %v\n", m.GetSel())
			fmt.Fprintf(w, "dim_fparam:  %d\n", m.GetDimFparam())
			fmt.Fprintf(w, "dim_aparam:  %d\n", m.GetDimAparam())
			fmt.Fprintf(w, "outputs:     %s\n", strings.Join(m.OutputNames(), " "))
			return nil
		},
	}
	cmd.Flags().StringVarP(&backendName, "backend", "b", "cpu", "backend used to rebuild the model")
	return cmd
}

func newConvertCommand() *cobra.Command {
	var backendName string
	cmd := &cobra.Command{
		Use:   "convert-backend INPUT OUTPUT",
		Short: "Rebuild a model on a backend and write it out",
		Long:  "convert-backend loads INPUT, rebuilds every component on the chosen\nbackend and writes OUTPUT. The format follows the OUTPUT extension\n(.dp, .yaml or .yml).",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := backend.New(backendName)
			if err != nil {
				return err
			}
			m, err := atomicmodel.Load(args[0], b)
			if err != nil {
				return fmt.Errorf("load %s: %w", args[0], err)
			}
			d, err := m.Serialize()
			if err != nil {
				return err
			}
			opts := serialization.WriteOptions{
				Backend:  b.Name(),
				Metadata: map[string]string{"converted_from": args[0], "version": Version},
			}
			if err := serialization.SaveModel(args[1], d, opts); err != nil {
				return fmt.Errorf("save %s: %w", args[1], err)
			}
			logging.L().Info("model converted",
				logging.String("input", args[0]),
				logging.String("output", args[1]),
				logging.String("backend", b.Name()))
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", args[1])
			return nil
		},
	}
	cmd.Flags().StringVarP(&backendName, "backend", "b", "cpu", "target backend")
	return cmd
}
