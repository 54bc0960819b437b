////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package cmd

import "time"

// This is a comprehensive list of CLI flag name constants. Organized by
// subcommand, with root level CLI flags at the top of the list. Pulling flags
// using Viper should use the constants defined here. Dotted names double as
// config file keys and map to STAFFCOMMS_ environment variables.
const (
	//////////////// Root flags ///////////////////////////////////////////////

	// Config and logging
	configFlag     = "config"
	logLevelFlag   = "logLevel"
	logFlag        = "log"
	profileCpuFlag = "profile-cpu"

	// Backends
	storeBackendFlag         = "store.backend"
	firestoreProjectFlag     = "firestore.project"
	firestoreCredentialsFlag = "firestore.credentials"
	directoryBackendFlag     = "directory.backend"
	directoryRosterFlag      = "directory.roster"
	directoryCacheTTLFlag    = "directory.cacheTTL"
	pushProviderFlag         = "push.provider"
	pushExpoTokenFlag        = "push.expoToken"
	pushFcmProjectFlag       = "push.fcmProject"
	pushFcmCredentialsFlag   = "push.fcmCredentials"
	pushRateFlag             = "push.rate"
	ledgerPathFlag           = "ledger.path"
	ledgerPasswordFlag       = "ledger.password"
	alertsBackendFlag        = "alerts.backend"
	alertsPollIntervalFlag   = "alerts.pollInterval"

	// Timeouts
	storeTimeoutFlag  = "dm.storeTimeout"
	lookupTimeoutFlag = "dm.lookupTimeout"
	pushTimeoutFlag   = "dm.pushTimeout"

	///////////////// Messaging subcommand flags //////////////////////////////
	asFlag           = "as"
	toFlag           = "to"
	messageFlag      = "message"
	peerFlag         = "peer"
	followFlag       = "follow"
	conversationFlag = "conversation"
	messageIDFlag    = "messageID"

	///////////////// Serve subcommand flags //////////////////////////////////
	serverAddrFlag    = "server.addr"
	authJwtSecretFlag = "auth.jwtSecret"
)

const (
	defaultCacheTTL     = 5 * time.Minute
	defaultPollInterval = 30 * time.Second
)
