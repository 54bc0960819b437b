////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package cmd

import (
	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/spf13/viper"

	"gitlab.com/elixxir/staffcomms/api"
)

// serveCmd runs the HTTP and websocket API.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the messaging API to the staff app",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext(cmd.Context())
		defer cancel()

		secret := viper.GetString(authJwtSecretFlag)
		if secret == "" {
			jww.FATAL.Panicf("--%s is required", authJwtSecretFlag)
		}

		b := mustInitBackends(ctx)
		defer b.Close()

		server := api.NewServer(b.client, b.alerts, []byte(secret))
		errs := make(chan error, 1)
		go func() { errs <- server.Listen(viper.GetString(serverAddrFlag)) }()

		select {
		case err := <-errs:
			if err != nil {
				jww.FATAL.Panicf("Server failed: %+v", err)
			}
		case <-ctx.Done():
			jww.INFO.Printf("Shutting down")
			if err := server.Shutdown(); err != nil {
				jww.ERROR.Printf("Failed to shut down cleanly: %+v", err)
			}
		}
	},
}

func init() {
	serveCmd.Flags().String(serverAddrFlag, ":8080", "Address to listen on")
	_ = viper.BindPFlag(serverAddrFlag, serveCmd.Flags().Lookup(serverAddrFlag))

	serveCmd.Flags().String(authJwtSecretFlag, "",
		"HS256 secret used to verify bearer tokens")
	_ = viper.BindPFlag(authJwtSecretFlag,
		serveCmd.Flags().Lookup(authJwtSecretFlag))

	rootCmd.AddCommand(serveCmd)
}
