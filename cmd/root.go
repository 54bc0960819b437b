////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package cmd initializes the CLI and config parsers as well as the logger.
package cmd

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/pkg/profile"
	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/spf13/viper"
)

// profiler is stopped by Execute once the command returns.
var profiler interface{ Stop() }

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main(). It only needs to happen once
// to the rootCmd.
func Execute() {
	defer func() {
		if profiler != nil {
			profiler.Stop()
		}
	}()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "staffcomms",
	Short: "Direct messaging and alert badges for school staff",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initLog(viper.GetUint(logLevelFlag), viper.GetString(logFlag))
		if dir := viper.GetString(profileCpuFlag); dir != "" {
			profiler = profile.Start(profile.CPUProfile,
				profile.ProfilePath(dir), profile.NoShutdownHook)
		}
	},
}

func initConfig() {
	viper.SetEnvPrefix("STAFFCOMMS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	cfgFile := viper.GetString(configFlag)
	if cfgFile == "" {
		return
	}
	viper.SetConfigFile(cfgFile)
	if err := viper.ReadInConfig(); err != nil {
		jww.FATAL.Panicf("Failed to read config file %s: %+v", cfgFile, err)
	}
}

// initLog initializes logging thresholds and the log path. A path of "-" or
// "" logs to stdout.
func initLog(threshold uint, logPath string) {
	if logPath != "-" && logPath != "" {
		// Disable stdout output
		jww.SetStdoutOutput(io.Discard)
		// Use log file
		logOutput, err := os.OpenFile(logPath,
			os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			panic(err.Error())
		}
		jww.SetLogOutput(logOutput)
	}

	if threshold > 1 {
		jww.INFO.Printf("log level set to: TRACE")
		jww.SetStdoutThreshold(jww.LevelTrace)
		jww.SetLogThreshold(jww.LevelTrace)
		jww.SetFlags(log.LstdFlags | log.Lmicroseconds)
	} else if threshold == 1 {
		jww.INFO.Printf("log level set to: DEBUG")
		jww.SetStdoutThreshold(jww.LevelDebug)
		jww.SetLogThreshold(jww.LevelDebug)
		jww.SetFlags(log.LstdFlags | log.Lmicroseconds)
	} else {
		jww.INFO.Printf("log level set to: INFO")
		jww.SetStdoutThreshold(jww.LevelInfo)
		jww.SetLogThreshold(jww.LevelInfo)
	}
}

// bindString declares a persistent string flag and binds it to key.
func bindString(key, def, usage string) {
	rootCmd.PersistentFlags().String(key, def, usage)
	_ = viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(key))
}

func init() {
	// NOTE: The point of init() is to be declarative.
	// There is one init in each sub command. Do not put variable declarations
	// here, and ensure all the Flags are of the *P variety, unless there's a
	// very good reason not to have them as local params to sub command."
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringP(configFlag, "c", "",
		"Path to a YAML config file")
	_ = viper.BindPFlag(configFlag, rootCmd.PersistentFlags().Lookup(configFlag))

	rootCmd.PersistentFlags().UintP(logLevelFlag, "v", 0,
		"Verbose mode for debugging")
	_ = viper.BindPFlag(logLevelFlag,
		rootCmd.PersistentFlags().Lookup(logLevelFlag))

	rootCmd.PersistentFlags().StringP(logFlag, "l", "-",
		"Path to the log output path (- is stdout)")
	_ = viper.BindPFlag(logFlag, rootCmd.PersistentFlags().Lookup(logFlag))

	rootCmd.PersistentFlags().String(profileCpuFlag, "",
		"Enable cpu profiling, writing the profile to this directory")
	_ = viper.BindPFlag(profileCpuFlag,
		rootCmd.PersistentFlags().Lookup(profileCpuFlag))

	bindString(storeBackendFlag, "memory",
		"Message store backend (memory|firestore)")
	bindString(firestoreProjectFlag, "", "Firestore project ID")
	bindString(firestoreCredentialsFlag, "",
		"Path to the Firestore service account key")
	bindString(directoryBackendFlag, "roster",
		"User directory backend (roster|firestore)")
	bindString(directoryRosterFlag, "roster.json",
		"Path to the exported roster used by the roster directory")
	bindString(pushProviderFlag, "none", "Push provider (expo|fcm|none)")
	bindString(pushExpoTokenFlag, "", "Expo push access token")
	bindString(pushFcmProjectFlag, "", "Firebase project for FCM")
	bindString(pushFcmCredentialsFlag, "",
		"Path to the FCM service account key")
	bindString(ledgerPathFlag, "",
		"Directory of the device store holding the notification ledger; "+
			"empty keeps it in memory")
	bindString(ledgerPasswordFlag, "", "Password of the device store")
	bindString(alertsBackendFlag, "none",
		"Alert feed for the badge (none|firestore|poll)")

	rootCmd.PersistentFlags().Duration(directoryCacheTTLFlag,
		defaultCacheTTL, "How long directory lookups are cached")
	_ = viper.BindPFlag(directoryCacheTTLFlag,
		rootCmd.PersistentFlags().Lookup(directoryCacheTTLFlag))

	rootCmd.PersistentFlags().Int(pushRateFlag, 0,
		"FCM sends per second (0 uses the default)")
	_ = viper.BindPFlag(pushRateFlag, rootCmd.PersistentFlags().Lookup(pushRateFlag))

	rootCmd.PersistentFlags().Duration(alertsPollIntervalFlag,
		defaultPollInterval, "Alert poll interval for the poll alert feed")
	_ = viper.BindPFlag(alertsPollIntervalFlag,
		rootCmd.PersistentFlags().Lookup(alertsPollIntervalFlag))

	rootCmd.PersistentFlags().Duration(storeTimeoutFlag, 0,
		"Timeout of each store write (0 uses the default)")
	_ = viper.BindPFlag(storeTimeoutFlag,
		rootCmd.PersistentFlags().Lookup(storeTimeoutFlag))
	rootCmd.PersistentFlags().Duration(lookupTimeoutFlag, 0,
		"Timeout of each directory lookup (0 uses the default)")
	_ = viper.BindPFlag(lookupTimeoutFlag,
		rootCmd.PersistentFlags().Lookup(lookupTimeoutFlag))
	rootCmd.PersistentFlags().Duration(pushTimeoutFlag, 0,
		"Timeout of each push attempt (0 uses the default)")
	_ = viper.BindPFlag(pushTimeoutFlag,
		rootCmd.PersistentFlags().Lookup(pushTimeoutFlag))
}
