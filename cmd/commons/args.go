package commons

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"gopkg.in/natefinch/lumberjack.v2"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/streamtv/cachepool/commons"
)

// SetCommonFlags attaches common flags to the command
func SetCommonFlags(command *cobra.Command) {
	command.Flags().BoolP("version", "v", false, "Print version")
	command.Flags().BoolP("help", "h", false, "Print help")
	command.Flags().BoolP("debug", "d", false, "Enable debug mode")
	command.Flags().BoolP("profile", "", false, "Enable profiling")
	command.Flags().BoolP("foreground", "f", false, "Run in foreground")

	command.Flags().StringP("config", "", "", "Set config file (yaml)")
	command.Flags().IntP("port", "p", commons.ServicePortDefault, "Set service port")
	command.Flags().StringP("data_root", "", commons.DataRootPathDefault, "Set data root path")
	command.Flags().StringP("origin", "", "", "Set origin server url")
	command.Flags().StringP("manifest", "", "", "Set build manifest path")
	command.Flags().StringP("log_path", "", "", "Set log file path")

	command.Flags().IntP("profile_port", "", commons.ProfileServicePortDefault, "Set profile service port")
	command.Flags().IntP("prometheus_exporter_port", "", commons.PrometheusExporterPortDefault, "Set prometheus exporter port")
}

func getBoolFlag(command *cobra.Command, name string) bool {
	flag := command.Flags().Lookup(name)
	if flag == nil {
		return false
	}

	value, err := strconv.ParseBool(flag.Value.String())
	if err != nil {
		return false
	}
	return value
}

func getStringFlag(command *cobra.Command, name string) (string, bool) {
	flag := command.Flags().Lookup(name)
	if flag == nil || !flag.Changed {
		return "", false
	}
	return flag.Value.String(), true
}

func getIntFlag(command *cobra.Command, name string) (int, bool) {
	flag := command.Flags().Lookup(name)
	if flag == nil || !flag.Changed {
		return 0, false
	}

	value, err := strconv.ParseInt(flag.Value.String(), 10, 32)
	if err != nil {
		return 0, false
	}
	return int(value), true
}

// ProcessCommonFlags processes common flags and builds the config.
// The returned bool tells whether the caller should continue.
func ProcessCommonFlags(command *cobra.Command) (*commons.Config, io.WriteCloser, bool, error) {
	logger := log.WithFields(log.Fields{
		"package":  "commons",
		"function": "ProcessCommonFlags",
	})

	debug := getBoolFlag(command, "debug")
	if debug {
		log.SetLevel(log.DebugLevel)
	}

	if getBoolFlag(command, "help") {
		printHelp(command)
		return nil, nil, false, nil
	}

	if getBoolFlag(command, "version") {
		printVersion()
		return nil, nil, false, nil
	}

	var config *commons.Config

	if configPath, ok := getStringFlag(command, "config"); ok {
		yamlBytes, err := os.ReadFile(configPath)
		if err != nil {
			logger.Error(err)
			return nil, nil, false, err
		}

		serverConfig, err := commons.NewConfigFromYAML(yamlBytes)
		if err != nil {
			logger.Error(err)
			return nil, nil, false, err
		}

		config = serverConfig
	} else {
		envConfig, err := commons.NewConfigFromENV()
		if err != nil {
			logger.Error(err)
			return nil, nil, false, err
		}

		config = envConfig
	}

	// flags override config values
	if config.Debug || debug {
		config.Debug = true
		log.SetLevel(log.DebugLevel)
	}

	if getBoolFlag(command, "foreground") {
		config.Foreground = true
	}

	if getBoolFlag(command, "profile") {
		config.Profile = true
	}

	if port, ok := getIntFlag(command, "port"); ok {
		config.ServicePort = port
	}

	if dataRoot, ok := getStringFlag(command, "data_root"); ok {
		config.DataRootPath = dataRoot
	}

	if origin, ok := getStringFlag(command, "origin"); ok {
		config.OriginURL = origin
	}

	if manifest, ok := getStringFlag(command, "manifest"); ok {
		config.ManifestPath = manifest
	}

	if logPath, ok := getStringFlag(command, "log_path"); ok {
		config.LogPath = logPath
	}

	if profilePort, ok := getIntFlag(command, "profile_port"); ok {
		config.ProfileServicePort = profilePort
	}

	if exporterPort, ok := getIntFlag(command, "prometheus_exporter_port"); ok {
		config.PrometheusExporterPort = exporterPort
	}

	var logWriter io.WriteCloser
	logFilePath := config.GetLogFilePath()
	if len(logFilePath) > 0 {
		logWriter = getLogWriter(logFilePath)

		// use multi output - to output to file and stdout
		mw := io.MultiWriter(os.Stderr, logWriter)
		log.SetOutput(mw)

		logger.Infof("Logging to %q", logFilePath)
	}

	err := config.Validate()
	if err != nil {
		logger.Error(err)
		return nil, logWriter, false, err
	}

	return config, logWriter, true, nil
}

func getLogWriter(logPath string) io.WriteCloser {
	return &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    50, // 50MB
		MaxBackups: 5,
		MaxAge:     30, // 30 days
		Compress:   false,
	}
}

func printVersion() {
	info, err := commons.GetVersionJSON()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return
	}

	fmt.Println(info)
}

func printHelp(command *cobra.Command) {
	command.Usage()
}
