////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/spf13/viper"

	"gitlab.com/elixxir/staffcomms/directory"
	"gitlab.com/elixxir/staffcomms/dm"
)

// sendCmd sends one direct message.
var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a direct message",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		b := mustInitBackends(ctx)
		defer b.Close()

		sender := resolveParticipant(ctx, b.dir, viper.GetString(asFlag))
		recipient := resolveParticipant(ctx, b.dir, viper.GetString(toFlag))
		id, err := b.client.SendMessage(ctx, sender, recipient,
			viper.GetString(messageFlag))
		if err != nil {
			jww.FATAL.Panicf("Failed to send message: %+v", err)
		}
		jww.INFO.Printf("Sent message %s from %s to %s", id, sender.ID,
			recipient.ID)
		fmt.Println(id)
	},
}

// conversationsCmd prints the conversation list of a user.
var conversationsCmd = &cobra.Command{
	Use:   "conversations",
	Short: "List a user's conversations, newest first",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext(cmd.Context())
		defer cancel()
		b := mustInitBackends(ctx)
		defer b.Close()

		viewer := requireFlag(asFlag)
		follow(ctx, func(emit func(interface{})) dm.Unsubscribe {
			return b.client.GetConversationsRealtime(viewer,
				func(views []dm.ConversationView) { emit(views) })
		})
	},
}

// messagesCmd prints the thread between two users.
var messagesCmd = &cobra.Command{
	Use:   "messages",
	Short: "List the messages between a user and a peer, oldest first",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext(cmd.Context())
		defer cancel()
		b := mustInitBackends(ctx)
		defer b.Close()

		viewer, peer := requireFlag(asFlag), requireFlag(peerFlag)
		follow(ctx, func(emit func(interface{})) dm.Unsubscribe {
			return b.client.GetMessages(viewer, peer,
				func(views []dm.MessageView) { emit(views) })
		})
	},
}

// readCmd marks a thread read.
var readCmd = &cobra.Command{
	Use:   "read",
	Short: "Mark every message from a peer as read",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		b := mustInitBackends(ctx)
		defer b.Close()

		viewer, peer := requireFlag(asFlag), requireFlag(peerFlag)
		if err := b.client.MarkMessagesAsRead(ctx, peer, viewer); err != nil {
			jww.FATAL.Panicf("Failed to mark messages from %s read: %+v",
				peer, err)
		}
		jww.INFO.Printf("Marked messages from %s to %s read", peer, viewer)
	},
}

// deleteCmd hides a conversation or a message from a user.
var deleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete a conversation or a message for one user",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		b := mustInitBackends(ctx)
		defer b.Close()

		viewer := requireFlag(asFlag)
		convID := viper.GetString(conversationFlag)
		msgID := viper.GetString(messageIDFlag)
		switch {
		case convID != "" && msgID != "":
			jww.FATAL.Panicf("Only one of --%s and --%s may be set",
				conversationFlag, messageIDFlag)
		case convID != "":
			if err := b.client.DeleteConversation(ctx, convID, viewer); err != nil {
				jww.FATAL.Panicf("Failed to delete conversation %s: %+v",
					convID, err)
			}
			jww.INFO.Printf("Deleted conversation %s for %s", convID, viewer)
		case msgID != "":
			if err := b.client.DeleteMessage(ctx, msgID, viewer); err != nil {
				jww.FATAL.Panicf("Failed to delete message %s: %+v",
					msgID, err)
			}
			jww.INFO.Printf("Deleted message %s for %s", msgID, viewer)
		default:
			jww.FATAL.Panicf("One of --%s or --%s is required",
				conversationFlag, messageIDFlag)
		}
	},
}

// bindLocalFlags binds the flags of the running command. Several commands
// share flag names, so they are bound once the command is known.
func bindLocalFlags(cmd *cobra.Command, _ []string) {
	if err := viper.BindPFlags(cmd.LocalFlags()); err != nil {
		jww.FATAL.Panicf("Failed to bind flags of %s: %+v", cmd.Name(), err)
	}
}

func mustInitBackends(ctx context.Context) *backends {
	b, err := initBackends(ctx, loadConfig())
	if err != nil {
		jww.FATAL.Panicf("Failed to initialize backends: %+v", err)
	}
	return b
}

func requireFlag(name string) string {
	v := viper.GetString(name)
	if v == "" {
		jww.FATAL.Panicf("--%s is required", name)
	}
	return v
}

// resolveParticipant looks a user up by ID, or by email when key looks like
// one. Unknown users are used as given.
func resolveParticipant(ctx context.Context, dir directory.Directory,
	key string) dm.Participant {
	if key == "" {
		jww.FATAL.Panicf("A user ID or email is required")
	}
	var rec *directory.UserRecord
	var err error
	if strings.Contains(key, "@") {
		rec, err = dir.GetUserByEmail(ctx, key)
	} else {
		rec, err = dir.GetUserByID(ctx, key)
	}
	if err != nil {
		if !directory.IsNotFound(err) {
			jww.FATAL.Panicf("Failed to look up %s: %+v", key, err)
		}
		jww.WARN.Printf("%s is not in the directory", key)
		if strings.Contains(key, "@") {
			return dm.Participant{ID: key, Email: key}
		}
		return dm.Participant{ID: key}
	}
	return dm.Participant{ID: rec.ID, Name: rec.Name, Email: rec.Email}
}

// follow prints the first snapshot of a subscription, or every snapshot
// until interrupted when --follow is set.
func follow(ctx context.Context,
	subscribe func(emit func(interface{})) dm.Unsubscribe) {
	updates := make(chan interface{}, 1)
	unsub := subscribe(func(v interface{}) {
		// Only the latest snapshot matters.
		select {
		case <-updates:
		default:
		}
		updates <- v
	})
	defer unsub()

	keep := viper.GetBool(followFlag)
	for {
		select {
		case <-ctx.Done():
			return
		case v := <-updates:
			printJSON(v)
			if !keep {
				return
			}
		}
	}
}

func printJSON(v interface{}) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		jww.FATAL.Panicf("Failed to encode output: %+v", err)
	}
	fmt.Println(string(out))
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func init() {
	for _, c := range []*cobra.Command{sendCmd, conversationsCmd, messagesCmd,
		readCmd, deleteCmd} {
		c.Flags().String(asFlag, "", "ID or email of the acting user")
		c.PreRun = bindLocalFlags
		rootCmd.AddCommand(c)
	}

	sendCmd.Flags().String(toFlag, "", "ID or email of the recipient")
	sendCmd.Flags().StringP(messageFlag, "m", "", "Message content")

	for _, c := range []*cobra.Command{messagesCmd, readCmd} {
		c.Flags().String(peerFlag, "", "ID of the other participant")
	}
	for _, c := range []*cobra.Command{conversationsCmd, messagesCmd} {
		c.Flags().BoolP(followFlag, "f", false,
			"Keep printing updates until interrupted")
	}

	deleteCmd.Flags().String(conversationFlag, "", "Conversation to delete")
	deleteCmd.Flags().String(messageIDFlag, "", "Message to delete")
}
