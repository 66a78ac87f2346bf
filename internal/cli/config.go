package cli

import (
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kinecosystem/kinmigrate/internal/config"
	"github.com/kinecosystem/kinmigrate/internal/output"
	kinerr "github.com/kinecosystem/kinmigrate/pkg/errors"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	// configForce overwrites an existing configuration file.
	configForce bool
)

// configCmd is the parent command for configuration operations.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `View and initialize the kinmigrate configuration.`,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration",
	Long: `Create a default configuration file at ~/.kinmigrate/config.yaml.

An existing file is kept unless --force is given.

Example:
  kinmigrate config init
  kinmigrate config init --force --network production --app-id abcd`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long: `Display the configuration after environment variables and flags are applied.

Example:
  kinmigrate config show
  kinmigrate config show -o json`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd, configShowCmd)
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite an existing file")
}

// settings returns the configuration and formatter of cmd without opening
// the keystore.
func settings(cmd *cobra.Command) (*config.Config, *output.Formatter, error) {
	if cc := GetCmdContext(cmd); cc != nil {
		return cc.Config, cc.Formatter, nil
	}
	if cfg == nil {
		return nil, nil, kinerr.Wrap(kinerr.ErrConfigInvalid, "configuration not loaded")
	}
	return cfg, formatter, nil
}

// configDocument renders the configuration as YAML in text mode.
type configDocument struct {
	*config.Config
}

// WriteText implements output.Texter.
func (d configDocument) WriteText(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(d.Config); err != nil {
		return err
	}
	return enc.Close()
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	c, f, err := settings(cmd)
	if err != nil {
		return err
	}
	if f.IsJSON() {
		doc, err := configMap(c)
		if err != nil {
			return err
		}
		return f.Print(doc)
	}
	return f.Print(configDocument{c})
}

// configMap converts c to a generic map keyed by its YAML names.
func configMap(c *config.Config) (map[string]any, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, err
	}
	doc := map[string]any{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	c, f, err := settings(cmd)
	if err != nil {
		return err
	}
	path := config.Path(config.ExpandHome(c.Home))
	if _, err := os.Stat(path); err == nil && !configForce {
		return kinerr.WithSuggestion(
			kinerr.WithDetails(kinerr.ErrInvalidInput, map[string]string{"path": path}),
			"configuration already exists; use --force to overwrite it",
		)
	}
	if err := config.Save(c, path); err != nil {
		return kinerr.WithCause(kinerr.ErrStoreFailed, err, map[string]string{"path": path})
	}
	return output.FormatSuccess(f.Writer(), "Configuration written to "+path, f.Format())
}
