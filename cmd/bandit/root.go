package bandit

import (
	"context"
	"fmt"
	"time"

	"github.com/ValentinKolb/dBandit/cmd/util"
	"github.com/ValentinKolb/dBandit/lib/bandit"
	"github.com/ValentinKolb/dBandit/lib/store"
	"github.com/ValentinKolb/dBandit/lib/store/connect"
	"github.com/ValentinKolb/dBandit/rpc/common"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var Logger = logger.GetLogger("cli")

var (
	conn    store.IStore
	current *bandit.Bandit

	// BanditCommands represents the bandit command group
	BanditCommands = &cobra.Command{
		Use:                "bandit",
		Short:              "Manage the arms of a bandit",
		Long:               `Manage the arms of a bandit stored in any dBandit store. The store is selected with --store or, for a dBandit server, with the transport flags.`,
		PersistentPreRunE:  setupBandit,
		PersistentPostRunE: closeStore,
	}
)

func init() {
	cobra.OnInitialize(util.InitConfig)

	util.SetupStoreFlags(BanditCommands)

	key := "prefix"
	BanditCommands.PersistentFlags().String(key, "bandit", util.WrapString("Namespace of the bandit, arms are stored at <prefix>:<id>"))

	key = "schema"
	BanditCommands.PersistentFlags().String(key, "count:int=0", util.WrapString("Fields of the arms. Format: name:kind[=default],... where kind is one of: int, float, string, bool"))

	key = "schema-name"
	BanditCommands.PersistentFlags().String(key, "cli", util.WrapString("Name of the schema, used in transfer references"))

	key = "log-level"
	BanditCommands.PersistentFlags().String(key, "warn", util.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))

	BanditCommands.AddCommand(addCmd)
	BanditCommands.AddCommand(rmCmd)
	BanditCommands.AddCommand(lsCmd)
	BanditCommands.AddCommand(countCmd)
	BanditCommands.AddCommand(getCmd)
	BanditCommands.AddCommand(setCmd)
	BanditCommands.AddCommand(incrCmd)
	BanditCommands.AddCommand(fieldsCmd)
	BanditCommands.AddCommand(refCmd)
	BanditCommands.AddCommand(perfCmd)
}

// setupBandit opens the store and binds the bandit of --prefix
func setupBandit(cmd *cobra.Command, _ []string) error {
	// a failed command skips the post run, release its store here
	if err := closeStore(cmd, nil); err != nil {
		Logger.Warningf("failed to close previous store: %v", err)
	}
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}
	if err := common.InitLoggers(viper.GetString("log-level")); err != nil {
		return err
	}

	schema, err := bandit.ParseSchema(viper.GetString("schema-name"), viper.GetString("schema"))
	if err != nil {
		return err
	}
	if err := bandit.RegisterSchema(schema); err != nil {
		return err
	}

	storeURL, err := util.GetStoreURL()
	if err != nil {
		return err
	}

	ctx, cancel := commandContext()
	defer cancel()
	if conn, err = connect.Open(ctx, storeURL); err != nil {
		return fmt.Errorf("failed to open store %s: %w", connect.Redact(storeURL), err)
	}

	current, err = bandit.New(conn, viper.GetString("prefix"), schema, bandit.WithStoreURL(storeURL))
	return err
}

func closeStore(*cobra.Command, []string) error {
	if conn == nil {
		return nil
	}
	err := conn.Close()
	conn, current = nil, nil
	return err
}

// commandContext bounds a single command by --timeout
func commandContext() (context.Context, context.CancelFunc) {
	timeout := viper.GetInt("timeout")
	if timeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), time.Duration(timeout)*time.Second)
}
