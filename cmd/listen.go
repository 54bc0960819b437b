////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package cmd

import (
	"context"

	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/spf13/viper"

	"gitlab.com/elixxir/staffcomms/badge"
	"gitlab.com/elixxir/staffcomms/dm"
)

// listenCmd acts as a device for one user: it logs notifications for new
// inbound messages and keeps a badge count until interrupted.
var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Log notifications and the badge count for a user",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext(cmd.Context())
		defer cancel()
		b := mustInitBackends(ctx)
		defer b.Close()

		viewer := requireFlag(asFlag)
		session := dm.NewSession(viewer)
		if peer := viper.GetString(peerFlag); peer != "" {
			session.SetViewing(peer)
		}

		unsub := b.client.ListenForNotifications(viewer, session,
			dm.NotifierFunc(func(_ context.Context, n dm.Notification) error {
				jww.INFO.Printf("Notification from %s: %s", n.Title, n.Body)
				printJSON(n)
				return nil
			}))
		defer unsub()

		agg := badge.NewAggregator(b.client, b.alerts, badge.LogSink{})
		if err := agg.Start(viewer); err != nil {
			jww.FATAL.Panicf("Failed to start badge: %+v", err)
		}
		defer agg.Stop()

		<-ctx.Done()
		jww.INFO.Printf("Stopped listening for %s", viewer)
	},
}

func init() {
	listenCmd.Flags().String(asFlag, "", "ID of the listening user")
	listenCmd.Flags().String(peerFlag, "",
		"Treat the conversation with this peer as open")
	listenCmd.PreRun = bindLocalFlags
	rootCmd.AddCommand(listenCmd)
}
