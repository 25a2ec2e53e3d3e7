package util

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/ValentinKolb/dBandit/rpc/common"
	"github.com/ValentinKolb/dBandit/rpc/serializer"
	"github.com/ValentinKolb/dBandit/rpc/transport"
	"github.com/ValentinKolb/dBandit/rpc/transport/http"
	"github.com/ValentinKolb/dBandit/rpc/transport/tcp"
	"github.com/ValentinKolb/dBandit/rpc/transport/unix"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50

	// EnvPrefix is the prefix of all environment variables (DBANDIT_<FLAG>)
	EnvPrefix = "dbandit"
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// InitConfig loads .env files and makes viper read DBANDIT_* environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// --------------------------------------------------------------------------
// Client side
// --------------------------------------------------------------------------

// SetupStoreFlags adds the flags that select the store a client command talks to.
// --store takes a connection url, if it is empty the url is built from the transport flags.
func SetupStoreFlags(cmd *cobra.Command) {
	key := "store"
	cmd.PersistentFlags().String(key, "", WrapString("Connection url of the store (mem://, leveldb:///path, redis://host:port/0, dbandit+tcp://host:port/<shard>, ...). Overrides the transport flags"))

	key = "timeout"
	cmd.PersistentFlags().Int(key, 10, WrapString("The timeout in seconds of the client"))

	key = "shard"
	cmd.PersistentFlags().Int(key, 100, WrapString("ID of the shard to connect to"))

	key = "transport-endpoints"
	cmd.PersistentFlags().String(key, "localhost:8080", WrapString("The address of the dBandit server. Multiple endpoints of the same cluster can be specified as a comma-separated list"))

	key = "transport-conn-per-endpoint"
	cmd.PersistentFlags().Int(key, 1, WrapString("Simultaneous connections per endpoint - for transports that support this feature"))

	key = "transport-retries"
	cmd.PersistentFlags().Int(key, 3, WrapString("How many times to retry a request that could not be sent"))
}

// GetStoreURL returns the --store url or builds a dbandit url from the transport flags
func GetStoreURL() (string, error) {
	if u := viper.GetString("store"); u != "" {
		return u, nil
	}

	endpoints := strings.Split(viper.GetString("transport-endpoints"), ",")
	for i := range endpoints {
		endpoints[i] = strings.TrimSpace(endpoints[i])
	}
	if endpoints[0] == "" {
		return "", fmt.Errorf("either --store or --transport-endpoints is required")
	}

	q := url.Values{}
	q.Set("serializer", viper.GetString("serializer"))
	q.Set("timeout", strconv.Itoa(viper.GetInt("timeout")))
	q.Set("retries", strconv.Itoa(viper.GetInt("transport-retries")))
	q.Set("conns", strconv.Itoa(viper.GetInt("transport-conn-per-endpoint")))
	for _, e := range endpoints[1:] {
		q.Add("endpoint", e)
	}

	shard := strconv.Itoa(viper.GetInt("shard"))
	u := url.URL{Scheme: "dbandit+" + viper.GetString("transport"), RawQuery: q.Encode()}
	switch viper.GetString("transport") {
	case "http", "tcp":
		u.Host, u.Path = endpoints[0], "/"+shard
	case "unix":
		q.Set("shard", shard)
		u.Path, u.RawQuery = endpoints[0], q.Encode()
	default:
		return "", fmt.Errorf("invalid transport %s", viper.GetString("transport"))
	}
	return u.String(), nil
}

// --------------------------------------------------------------------------
// Server side
// --------------------------------------------------------------------------

// GetSerializer creates a serializer based on configuration
func GetSerializer() (serializer.IRPCSerializer, error) {
	switch viper.GetString("serializer") {
	case "json":
		return serializer.NewJSONSerializer(), nil
	case "gob":
		return serializer.NewGOBSerializer(), nil
	case "binary":
		return serializer.NewBinarySerializer(), nil
	default:
		return nil, fmt.Errorf("invalid serializer %s", viper.GetString("serializer"))
	}
}

// GetServerTransport creates the server transport based on configuration
func GetServerTransport() (transport.IRPCServerTransport, error) {
	switch viper.GetString("transport") {
	case "http":
		return http.NewHttpServerTransport(), nil
	case "tcp":
		return tcp.NewTCPServerTransport(), nil
	case "unix":
		return unix.NewUnixServerTransport(), nil
	default:
		return nil, fmt.Errorf("invalid transport %s", viper.GetString("transport"))
	}
}

// ParseShards parses the ID=TYPE list of the serve command
func ParseShards(spec string) ([]common.ServerShard, error) {
	var shards []common.ServerShard
	seen := make(map[uint64]bool)
	for _, shardConfig := range strings.Split(spec, ",") {
		if strings.TrimSpace(shardConfig) == "" {
			continue
		}
		idStr, typeStr, ok := strings.Cut(shardConfig, "=")
		if !ok {
			return nil, fmt.Errorf("invalid shard format: %s (expected ID=TYPE)", shardConfig)
		}

		shardID, err := strconv.ParseUint(strings.TrimSpace(idStr), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid shard ID %s: %v", idStr, err)
		}
		if seen[shardID] {
			return nil, fmt.Errorf("duplicate shard ID %d", shardID)
		}
		seen[shardID] = true

		shardType, err := common.ParseShardType(typeStr)
		if err != nil {
			return nil, err
		}
		shards = append(shards, common.ServerShard{ShardID: shardID, Type: shardType})
	}
	if len(shards) == 0 {
		return nil, fmt.Errorf("no shards configured")
	}
	return shards, nil
}
